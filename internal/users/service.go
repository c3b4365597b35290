package users

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/atlas-ops/atlas-ops/internal/access"
	"github.com/atlas-ops/atlas-ops/internal/platform/cache"
)

// ErrSelfDeactivation rejects a principal deactivating its own account.
var ErrSelfDeactivation = errors.New("users: cannot deactivate own account")

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	List(ctx context.Context, q ListQuery, filter access.Filter) ([]User, int, error)
	Get(ctx context.Context, id int64) (*User, error)
	Update(ctx context.Context, id int64, in UpdateInput) (*User, error)
	Deactivate(ctx context.Context, id int64) error
	UpdateRoleGuarded(ctx context.Context, id int64, newRole access.Role) (*User, error)
	CountUsers(ctx context.Context) (total, active int, err error)
	CountByRole(ctx context.Context) (map[string]int, error)
	CountByDepartment(ctx context.Context) (map[string]int, error)
}

// Service handles the user directory business rules.
type Service struct {
	repo  RepositoryPort
	gate  *access.Gate
	guard *access.Guard
	stats *cache.StatsCache
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, gate *access.Gate, guard *access.Guard, stats *cache.StatsCache) *Service {
	return &Service{repo: repo, gate: gate, guard: guard, stats: stats}
}

// List returns the users visible to the principal. Managers see only their
// own department even though their read grant is unscoped; the console has
// always narrowed the people directory that way.
func (s *Service) List(ctx context.Context, principal *access.Principal, q ListQuery) ([]User, int, error) {
	filter, err := s.gate.ListFilter(ctx, principal, access.ResourceUsers, access.ActionRead)
	if err != nil {
		return nil, 0, err
	}
	if principal.Role == access.RoleManager {
		if principal.Department == "" {
			return nil, 0, nil
		}
		q.Department = principal.Department
	}
	return s.repo.List(ctx, q, filter)
}

// Get fetches a single user. Existence is checked before authorization,
// matching the console's handler convention.
func (s *Service) Get(ctx context.Context, principal *access.Principal, id int64) (*User, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceUsers, access.ActionRead, user.Object()); err != nil {
		return nil, err
	}
	if principal.Role == access.RoleManager && principal.ID != user.ID && user.Department != principal.Department {
		return nil, access.ErrScopeDenied
	}
	return user, nil
}

// Update applies a profile change. The touchable field set depends on who
// is editing whom: a principal edits its own name, phone and avatar (plus
// department when at least manager); an admin edits anyone fully; a manager
// edits name, department and avatar of same-department users.
func (s *Service) Update(ctx context.Context, actor *access.Principal, id int64, in UpdateInput) (*User, error) {
	target, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case actor != nil && actor.IsActive && actor.ID == target.ID:
		if !access.AtLeast(actor.Role, access.RoleManager) {
			in.Department = nil
		}
	case actor != nil && actor.IsActive && actor.Role == access.RoleAdmin:
		// Full field set.
	case actor != nil && actor.IsActive && actor.Role == access.RoleManager &&
		actor.Department != "" && target.Department == actor.Department:
		in.Phone = nil
	default:
		if err := s.gate.Authorize(ctx, actor, access.ResourceUsers, access.ActionUpdate, target.Object()); err != nil {
			return nil, err
		}
		return nil, access.ErrScopeDenied
	}

	updated, err := s.repo.Update(ctx, id, in)
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)
	return updated, nil
}

// Deactivate soft-deletes a user account. Self-deactivation is rejected.
func (s *Service) Deactivate(ctx context.Context, actor *access.Principal, id int64) error {
	target, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.gate.Authorize(ctx, actor, access.ResourceUsers, access.ActionDelete, target.Object()); err != nil {
		return err
	}
	if actor.ID == id {
		return ErrSelfDeactivation
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.invalidateStats(ctx)
	return nil
}

// UpdateRole changes a user's role. The last-admin guard runs before the
// gate's normal update check and cannot be bypassed by admin permission;
// the repository re-checks the admin count inside the UPDATE.
func (s *Service) UpdateRole(ctx context.Context, actor *access.Principal, id int64, newRole access.Role) (*User, error) {
	if !newRole.Valid() {
		return nil, fmt.Errorf("users: invalid role %q", newRole)
	}
	target, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor == nil || !actor.IsActive {
		return nil, access.ErrNotAuthenticated
	}
	if err := s.guard.CanChangeRole(ctx, *actor, target.Principal(), newRole); err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, actor, access.ResourceUsers, access.ActionUpdate, target.Object()); err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateRoleGuarded(ctx, id, newRole)
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)
	return updated, nil
}

// Stats aggregates the directory for the admin dashboard. The route is
// admin-gated; the aggregate queries run in parallel and the result is
// cached.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	key, err := s.stats.BuildKey(ctx, "stats", "users")
	if err != nil {
		return nil, err
	}
	var out Stats
	err = s.stats.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		var agg Stats
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			total, active, err := s.repo.CountUsers(gctx)
			if err != nil {
				return err
			}
			agg.Total, agg.Active = total, active
			return nil
		})
		g.Go(func() error {
			byRole, err := s.repo.CountByRole(gctx)
			if err != nil {
				return err
			}
			agg.ByRole = byRole
			return nil
		})
		g.Go(func() error {
			byDept, err := s.repo.CountByDepartment(gctx)
			if err != nil {
				return err
			}
			agg.ByDepartment = byDept
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return &agg, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) invalidateStats(ctx context.Context) {
	_ = s.stats.Bump(ctx)
}
