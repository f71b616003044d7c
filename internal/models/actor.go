package models

// Actor is the authenticated user acting on a request.
type Actor struct {
	ID          string
	Email       string
	FullName    string
	Role        UserRole
	Region      string
	Zone        string
	Woreda      string
	Kebele      string
	Permissions map[string]bool
}

// HasRole reports whether the actor holds one of the given roles.
func (a Actor) HasRole(roles ...UserRole) bool {
	for _, role := range roles {
		if a.Role == role {
			return true
		}
	}
	return false
}
