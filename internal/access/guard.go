package access

import (
	"context"
	"fmt"
)

// AdminCounter counts the active admin principals. The users repository
// implements it; the storage layer is additionally expected to re-check the
// count inside the guarded UPDATE so two concurrent demotions cannot both
// pass.
type AdminCounter interface {
	CountActiveAdmins(ctx context.Context) (int, error)
}

// Guard enforces the last-admin invariant on role changes. It sits before
// the gate's normal update check and cannot be bypassed by admin-level full
// permission.
type Guard struct {
	admins AdminCounter
}

// NewGuard constructs a Guard.
func NewGuard(admins AdminCounter) *Guard {
	return &Guard{admins: admins}
}

// CanChangeRole validates a role change of target to newRole performed by
// actor. A principal may never alter its own role, even when the change is a
// no-op. Demoting the sole active admin is rejected.
func (g *Guard) CanChangeRole(ctx context.Context, actor Principal, target Principal, newRole Role) error {
	if actor.ID == target.ID {
		return ErrSelfRoleChange
	}
	if target.Role == RoleAdmin && newRole != RoleAdmin {
		count, err := g.admins.CountActiveAdmins(ctx)
		if err != nil {
			return fmt.Errorf("access: count active admins: %w", err)
		}
		if count <= 1 {
			return ErrLastAdmin
		}
	}
	return nil
}
