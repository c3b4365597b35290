package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atlas-ops/atlas-ops/internal/access"
	"github.com/atlas-ops/atlas-ops/internal/platform/cache"
)

// ErrActiveInstanceExists rejects starting a second onboarding for an
// employee who already has a running one.
var ErrActiveInstanceExists = errors.New("onboarding: employee already has an active instance")

// ErrEmployeeInactive rejects onboarding a deactivated account.
var ErrEmployeeInactive = errors.New("onboarding: employee is not active")

// ErrTemplateInactive rejects instantiating a deactivated template.
var ErrTemplateInactive = errors.New("onboarding: template is not active")

// ErrInstanceClosed rejects task updates on a finished or cancelled run.
var ErrInstanceClosed = errors.New("onboarding: instance is not active")

const dueSoonWindow = 7 * 24 * time.Hour

// RepositoryPort defines data access methods for onboarding.
type RepositoryPort interface {
	ListTemplates(ctx context.Context, filter access.Filter) ([]Template, error)
	GetTemplate(ctx context.Context, id int64) (*Template, error)
	CreateTemplate(ctx context.Context, in TemplateInput, createdBy int64) (*Template, error)
	UpdateTemplate(ctx context.Context, id int64, in TemplateInput) (*Template, error)
	DeactivateTemplate(ctx context.Context, id int64) error
	DeleteTemplate(ctx context.Context, id int64) error
	CountActiveInstances(ctx context.Context, templateID int64) (int, error)
	ListInstances(ctx context.Context, q InstanceListQuery, filter access.Filter) ([]Instance, int, error)
	GetInstance(ctx context.Context, id int64) (*Instance, error)
	HasActiveInstance(ctx context.Context, employeeID int64) (bool, error)
	CreateInstance(ctx context.Context, template *Template, employeeID, createdBy int64, startDate time.Time) (*Instance, error)
	UpdateTaskStatus(ctx context.Context, instanceID, taskID int64, status TaskStatus) (*Instance, error)
	CancelInstance(ctx context.Context, id int64) error
	UserSnapshot(ctx context.Context, userID int64) (department string, active bool, err error)
	InstanceCounts(ctx context.Context) (active, completed int, avgProgress float64, err error)
	TaskDueCounts(ctx context.Context, window time.Duration) (overdue, dueSoon int, err error)
}

// Service handles the onboarding business rules.
type Service struct {
	repo  RepositoryPort
	gate  *access.Gate
	stats *cache.StatsCache
	now   func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, gate *access.Gate, stats *cache.StatsCache) *Service {
	return &Service{repo: repo, gate: gate, stats: stats, now: time.Now}
}

// ListTemplates returns the templates visible to the principal. Employees
// see their department's templates plus the organisation-wide ones.
func (s *Service) ListTemplates(ctx context.Context, principal *access.Principal) ([]Template, error) {
	filter, err := s.gate.ListFilter(ctx, principal, access.ResourceOnboardingTemplates, access.ActionRead)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTemplates(ctx, filter)
}

// GetTemplate fetches a single template. Existence is checked before
// authorization, matching the console's handler convention.
func (s *Service) GetTemplate(ctx context.Context, principal *access.Principal, id int64) (*Template, error) {
	template, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceOnboardingTemplates, access.ActionRead, template.Object()); err != nil {
		return nil, err
	}
	return template, nil
}

// CreateTemplate registers a template. Admin only per the matrix.
func (s *Service) CreateTemplate(ctx context.Context, principal *access.Principal, in TemplateInput) (*Template, error) {
	obj := access.Object{Type: access.ResourceOnboardingTemplates}
	if err := s.gate.Authorize(ctx, principal, access.ResourceOnboardingTemplates, access.ActionCreate, obj); err != nil {
		return nil, err
	}
	return s.repo.CreateTemplate(ctx, in, principal.ID)
}

// UpdateTemplate replaces a template's fields and checklist.
func (s *Service) UpdateTemplate(ctx context.Context, principal *access.Principal, id int64, in TemplateInput) (*Template, error) {
	template, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceOnboardingTemplates, access.ActionUpdate, template.Object()); err != nil {
		return nil, err
	}
	return s.repo.UpdateTemplate(ctx, id, in)
}

// DeleteTemplate removes a template. A template still referenced by active
// instances is deactivated instead so running checklists stay intact.
func (s *Service) DeleteTemplate(ctx context.Context, principal *access.Principal, id int64) (deleted bool, err error) {
	template, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return false, err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceOnboardingTemplates, access.ActionDelete, template.Object()); err != nil {
		return false, err
	}
	inUse, err := s.repo.CountActiveInstances(ctx, id)
	if err != nil {
		return false, err
	}
	if inUse > 0 {
		return false, s.repo.DeactivateTemplate(ctx, id)
	}
	if err := s.repo.DeleteTemplate(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// ListInstances returns the runs visible to the principal: all for admins,
// the department's employees for managers, the principal's own run for
// employees.
func (s *Service) ListInstances(ctx context.Context, principal *access.Principal, q InstanceListQuery) ([]Instance, int, error) {
	filter, err := s.gate.ListFilter(ctx, principal, access.ResourceOnboardingInstances, access.ActionRead)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.ListInstances(ctx, q, filter)
}

// GetInstance fetches a single run with its checklist.
func (s *Service) GetInstance(ctx context.Context, principal *access.Principal, id int64) (*Instance, error) {
	inst, err := s.repo.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceOnboardingInstances, access.ActionRead, inst.Object()); err != nil {
		return nil, err
	}
	return inst, nil
}

// StartInstance expands a template into a run for the employee. An
// employee can have at most one active run.
func (s *Service) StartInstance(ctx context.Context, principal *access.Principal, templateID, employeeID int64, startDate time.Time) (*Instance, error) {
	obj := access.Object{Type: access.ResourceOnboardingInstances, SubjectID: employeeID}
	if err := s.gate.Authorize(ctx, principal, access.ResourceOnboardingInstances, access.ActionCreate, obj); err != nil {
		return nil, err
	}
	template, err := s.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !template.IsActive {
		return nil, ErrTemplateInactive
	}
	_, active, err := s.repo.UserSnapshot(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrEmployeeInactive
	}
	running, err := s.repo.HasActiveInstance(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if running {
		return nil, ErrActiveInstanceExists
	}
	if startDate.IsZero() {
		startDate = s.now()
	}
	inst, err := s.repo.CreateInstance(ctx, template, employeeID, principal.ID, startDate)
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)
	return inst, nil
}

// UpdateTask moves a checklist item. Employees may only touch tasks of
// their own run; a fully completed checklist completes the run.
func (s *Service) UpdateTask(ctx context.Context, principal *access.Principal, instanceID, taskID int64, status TaskStatus) (*Instance, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("onboarding: invalid task status %q", status)
	}
	inst, err := s.repo.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceOnboardingInstances, access.ActionUpdate, inst.Object()); err != nil {
		return nil, err
	}
	if inst.Status != InstanceActive {
		return nil, ErrInstanceClosed
	}
	updated, err := s.repo.UpdateTaskStatus(ctx, instanceID, taskID, status)
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)
	return updated, nil
}

// CancelInstance aborts a running onboarding. Employees never hold the
// update grant broadly enough for this; managers reach their team, admins
// everything.
func (s *Service) CancelInstance(ctx context.Context, principal *access.Principal, id int64) error {
	inst, err := s.repo.GetInstance(ctx, id)
	if err != nil {
		return err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceOnboardingInstances, access.ActionUpdate, inst.Object()); err != nil {
		return err
	}
	if principal.Role == access.RoleEmployee {
		return access.ErrForbidden
	}
	if err := s.repo.CancelInstance(ctx, id); err != nil {
		return err
	}
	s.invalidateStats(ctx)
	return nil
}

// Stats aggregates the onboarding pipeline for the dashboard.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	key, err := s.stats.BuildKey(ctx, "stats", "onboarding")
	if err != nil {
		return nil, err
	}
	var out Stats
	err = s.stats.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		var agg Stats
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			active, completed, avg, err := s.repo.InstanceCounts(gctx)
			if err != nil {
				return err
			}
			agg.Active, agg.Completed, agg.AverageProgress = active, completed, avg
			return nil
		})
		g.Go(func() error {
			overdue, dueSoon, err := s.repo.TaskDueCounts(gctx, dueSoonWindow)
			if err != nil {
				return err
			}
			agg.OverdueTasks, agg.DueSoonTasks = overdue, dueSoon
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
