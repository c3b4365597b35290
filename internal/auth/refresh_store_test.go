package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/atlas-ops/atlas-ops/internal/auth"
)

func newRefreshStore(t *testing.T) (*auth.RefreshStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return auth.NewRefreshStore(client, time.Hour), mr
}

func TestRefreshStoreMintRedeem(t *testing.T) {
	store, _ := newRefreshStore(t)
	ctx := context.Background()

	token, err := store.Mint(ctx, 42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := store.Redeem(ctx, token)
	require.NoError(t, err)
	require.Equal(t, int64(42), userID)
}

func TestRefreshStoreSingleUse(t *testing.T) {
	store, _ := newRefreshStore(t)
	ctx := context.Background()

	token, err := store.Mint(ctx, 42)
	require.NoError(t, err)

	_, err = store.Redeem(ctx, token)
	require.NoError(t, err)

	_, err = store.Redeem(ctx, token)
	require.ErrorIs(t, err, auth.ErrRefreshTokenUnknown)
}

func TestRefreshStoreRevoke(t *testing.T) {
	store, _ := newRefreshStore(t)
	ctx := context.Background()

	token, err := store.Mint(ctx, 42)
	require.NoError(t, err)
	require.NoError(t, store.Revoke(ctx, token))

	_, err = store.Redeem(ctx, token)
	require.ErrorIs(t, err, auth.ErrRefreshTokenUnknown)

	// Revoking again is a no-op.
	require.NoError(t, store.Revoke(ctx, token))
}

func TestRefreshStoreExpiry(t *testing.T) {
	store, mr := newRefreshStore(t)
	ctx := context.Background()

	token, err := store.Mint(ctx, 42)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	_, err = store.Redeem(ctx, token)
	require.ErrorIs(t, err, auth.ErrRefreshTokenUnknown)
}
