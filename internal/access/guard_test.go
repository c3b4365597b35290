package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubAdminCounter struct {
	count int
	err   error
}

func (c *stubAdminCounter) CountActiveAdmins(ctx context.Context) (int, error) {
	return c.count, c.err
}

func TestGuardDemoteLastAdmin(t *testing.T) {
	guard := NewGuard(&stubAdminCounter{count: 1})
	actor := Principal{ID: 1, Role: RoleAdmin, IsActive: true}
	target := Principal{ID: 2, Role: RoleAdmin, IsActive: true}

	err := guard.CanChangeRole(context.Background(), actor, target, RoleManager)
	require.ErrorIs(t, err, ErrLastAdmin)
}

func TestGuardDemoteWithSecondAdmin(t *testing.T) {
	guard := NewGuard(&stubAdminCounter{count: 2})
	actor := Principal{ID: 1, Role: RoleAdmin, IsActive: true}
	target := Principal{ID: 2, Role: RoleAdmin, IsActive: true}

	require.NoError(t, guard.CanChangeRole(context.Background(), actor, target, RoleManager))
}

func TestGuardPromotionSkipsCount(t *testing.T) {
	counter := &stubAdminCounter{err: errors.New("should not be called")}
	guard := NewGuard(counter)
	actor := Principal{ID: 1, Role: RoleAdmin, IsActive: true}
	target := Principal{ID: 2, Role: RoleEmployee, IsActive: true}

	require.NoError(t, guard.CanChangeRole(context.Background(), actor, target, RoleManager))
}

func TestGuardAdminToAdminIsNotDemotion(t *testing.T) {
	counter := &stubAdminCounter{err: errors.New("should not be called")}
	guard := NewGuard(counter)
	actor := Principal{ID: 1, Role: RoleAdmin, IsActive: true}
	target := Principal{ID: 2, Role: RoleAdmin, IsActive: true}

	require.NoError(t, guard.CanChangeRole(context.Background(), actor, target, RoleAdmin))
}

func TestGuardSelfRoleChangeAlwaysDenied(t *testing.T) {
	guard := NewGuard(&stubAdminCounter{count: 5})
	actor := Principal{ID: 1, Role: RoleAdmin, IsActive: true}

	// Even a no-op self change is denied.
	err := guard.CanChangeRole(context.Background(), actor, actor, RoleAdmin)
	require.ErrorIs(t, err, ErrSelfRoleChange)

	err = guard.CanChangeRole(context.Background(), actor, actor, RoleManager)
	require.ErrorIs(t, err, ErrSelfRoleChange)
}

func TestGuardPropagatesCounterError(t *testing.T) {
	countErr := errors.New("db down")
	guard := NewGuard(&stubAdminCounter{err: countErr})
	actor := Principal{ID: 1, Role: RoleAdmin, IsActive: true}
	target := Principal{ID: 2, Role: RoleAdmin, IsActive: true}

	err := guard.CanChangeRole(context.Background(), actor, target, RoleEmployee)
	require.ErrorIs(t, err, countErr)
}
