package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRefreshTokenUnknown indicates a refresh token that is absent, expired
// or already rotated.
var ErrRefreshTokenUnknown = errors.New("auth: unknown refresh token")

// RefreshStore keeps opaque refresh tokens in Redis. Tokens are single use:
// a refresh rotates the token, a logout revokes it.
type RefreshStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRefreshStore constructs a RefreshStore.
func NewRefreshStore(client *redis.Client, ttl time.Duration) *RefreshStore {
	return &RefreshStore{client: client, ttl: ttl}
}

// Mint creates a fresh refresh token for the user.
func (s *RefreshStore) Mint(ctx context.Context, userID int64) (string, error) {
	token := uuid.NewString()
	if err := s.client.Set(ctx, s.key(token), strconv.FormatInt(userID, 10), s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Redeem consumes a refresh token, returning the user it belongs to. The
// token is deleted atomically so a replay cannot redeem it twice.
func (s *RefreshStore) Redeem(ctx context.Context, token string) (int64, error) {
	raw, err := s.client.GetDel(ctx, s.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrRefreshTokenUnknown
		}
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrRefreshTokenUnknown
	}
	return id, nil
}

// Revoke removes a refresh token. Revoking an unknown token is a no-op.
func (s *RefreshStore) Revoke(ctx context.Context, token string) error {
	err := s.client.Del(ctx, s.key(token)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (s *RefreshStore) key(token string) string {
	return "refresh:" + token
}
