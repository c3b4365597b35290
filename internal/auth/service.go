package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/atlas-ops/atlas-ops/internal/access"
	"github.com/atlas-ops/atlas-ops/internal/shared"
)

// Repository abstracts user persistence for the auth flows.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, u *User) (*User, error)
}

// Service wraps authentication business rules.
type Service struct {
	repo    Repository
	issuer  *TokenIssuer
	refresh *RefreshStore
}

// NewService constructs a new Service.
func NewService(repo Repository, issuer *TokenIssuer, refresh *RefreshStore) *Service {
	return &Service{repo: repo, issuer: issuer, refresh: refresh}
}

// Authenticate validates email/password credentials and issues a token pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, *TokenPair, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, shared.ErrInvalidCredentials
	}
	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh rotates a refresh token and issues a new token pair. The old
// token is consumed even when the user has since been deactivated.
func (s *Service) Refresh(ctx context.Context, token string) (*User, *TokenPair, error) {
	userID, err := s.refresh.Redeem(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, nil, ErrRefreshTokenUnknown
	}
	if !user.IsActive {
		return nil, nil, ErrRefreshTokenUnknown
	}
	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Logout revokes a refresh token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.refresh.Revoke(ctx, token)
}

// RegisterInput carries a new-account request.
type RegisterInput struct {
	Email      string
	Name       string
	Password   string
	Role       access.Role
	Department string
}

// Register creates a user account. The handler restricts this to admins.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if !in.Role.Valid() {
		return nil, fmt.Errorf("auth: invalid role %q", in.Role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now()
	user := &User{
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: string(hash),
		Role:         in.Role,
		Department:   in.Department,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return s.repo.Create(ctx, user)
}

// LoadPrincipal resolves a verified access token subject into a principal.
// Users are loaded fresh per request so deactivation takes effect without
// waiting for token expiry.
func (s *Service) LoadPrincipal(ctx context.Context, userID int64) (*access.Principal, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Principal(), nil
}

func (s *Service) issuePair(ctx context.Context, user *User) (*TokenPair, error) {
	accessToken, expiresAt, err := s.issuer.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, err := s.refresh.Mint(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}
	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken, ExpiresAt: expiresAt}, nil
}
