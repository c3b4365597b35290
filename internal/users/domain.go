package users

import (
	"time"

	"github.com/atlas-ops/atlas-ops/internal/access"
)

// User represents a managed user account.
type User struct {
	ID         int64       `json:"id"`
	Email      string      `json:"email"`
	Name       string      `json:"name"`
	Role       access.Role `json:"role"`
	Department string      `json:"department,omitempty"`
	Phone      string      `json:"phone,omitempty"`
	Avatar     string      `json:"avatar,omitempty"`
	IsActive   bool        `json:"isActive"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// Principal converts the record into the snapshot the access gate and the
// last-admin guard decide against.
func (u *User) Principal() access.Principal {
	return access.Principal{
		ID:         u.ID,
		Role:       u.Role,
		Department: u.Department,
		IsActive:   u.IsActive,
	}
}

// Object is the relation snapshot used for single-record authorization. A
// user record is its own subject.
func (u *User) Object() access.Object {
	return access.Object{
		Type:       access.ResourceUsers,
		SubjectID:  u.ID,
		Department: u.Department,
	}
}

// ListQuery carries the caller-supplied list filters. The access filter is
// ANDed on top by the repository.
type ListQuery struct {
	Role       string
	Department string
	IsActive   *bool
	Search     string
	Page       int
	PerPage    int
}

// UpdateInput carries a profile update. Nil fields are left unchanged; the
// service trims the set down to what the caller's role may touch.
type UpdateInput struct {
	Name       *string
	Department *string
	Phone      *string
	Avatar     *string
}

// Stats aggregates the user directory for the admin dashboard.
type Stats struct {
	Total        int            `json:"total"`
	Active       int            `json:"active"`
	ByRole       map[string]int `json:"byRole"`
	ByDepartment map[string]int `json:"byDepartment"`
}
