package auth

import (
	"time"

	"github.com/atlas-ops/atlas-ops/internal/access"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         access.Role
	Department   string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal converts the account into the snapshot the access gate decides
// against.
func (u *User) Principal() *access.Principal {
	if u == nil {
		return nil
	}
	return &access.Principal{
		ID:         u.ID,
		Role:       u.Role,
		Department: u.Department,
		IsActive:   u.IsActive,
	}
}

// TokenPair is the credential set returned by login and refresh.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}
