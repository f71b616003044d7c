package dto

// SetActiveRequest toggles a user account on PATCH /users/:id/status.
type SetActiveRequest struct {
	Active *bool `json:"is_active" binding:"required"`
}
