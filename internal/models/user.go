package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin        UserRole = "admin"
	RoleVMSOfficer   UserRole = "vms_officer"
	RoleStatistician UserRole = "statistician"
	RoleClerk        UserRole = "clerk"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleVMSOfficer, RoleStatistician, RoleClerk:
		return true
	}
	return false
}

// User represents an application user stored in the users collection.
type User struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	PasswordHash string          `json:"-"`
	FullName     string          `json:"full_name"`
	Role         UserRole        `json:"role"`
	Department   string          `json:"department,omitempty"`
	Region       string          `json:"region,omitempty"`
	Zone         string          `json:"zone,omitempty"`
	Woreda       string          `json:"woreda,omitempty"`
	Kebele       string          `json:"kebele,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	BadgeNumber  string          `json:"badge_number,omitempty"`
	OfficeName   string          `json:"office_name,omitempty"`
	Active       bool            `json:"is_active"`
	Permissions  map[string]bool `json:"permissions,omitempty"`
	LastLogin    *time.Time      `json:"last_login,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Actor returns the identity used by access and lifecycle checks.
func (u *User) Actor() Actor {
	return Actor{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		Role:        u.Role,
		Region:      u.Region,
		Zone:        u.Zone,
		Woreda:      u.Woreda,
		Kebele:      u.Kebele,
		Permissions: u.Permissions,
	}
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role    *UserRole
	Active  *bool
	Region  string
	Search  string
	Page    int
	PerPage int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
	Pages   int `json:"pages"`
}

// NewPagination derives the page count for a result window.
func NewPagination(page, perPage, total int) *Pagination {
	pages := 0
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return &Pagination{Page: page, PerPage: perPage, Total: total, Pages: pages}
}
