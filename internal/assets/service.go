package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atlas-ops/atlas-ops/internal/access"
	"github.com/atlas-ops/atlas-ops/internal/platform/cache"
	"github.com/atlas-ops/atlas-ops/internal/shared"
)

// ErrAssigneeInactive rejects assigning an asset to a deactivated user.
var ErrAssigneeInactive = errors.New("assets: assignee is not active")

// ErrAssetRetired rejects mutations of retired assets.
var ErrAssetRetired = errors.New("assets: asset is retired")

const warrantyWindow = 30 * 24 * time.Hour

// RepositoryPort defines data access methods for the asset register.
type RepositoryPort interface {
	List(ctx context.Context, q ListQuery, filter access.Filter) ([]Asset, int, error)
	Get(ctx context.Context, id int64) (*Asset, error)
	Create(ctx context.Context, in CreateInput, createdBy int64) (*Asset, error)
	Update(ctx context.Context, id int64, in UpdateInput) (*Asset, error)
	Retire(ctx context.Context, id int64) error
	SetAssignee(ctx context.Context, id int64, userID *int64) (*Asset, error)
	UserSnapshot(ctx context.Context, userID int64) (department string, active bool, err error)
	AddMaintenance(ctx context.Context, rec *MaintenanceRecord) (*MaintenanceRecord, error)
	ListMaintenance(ctx context.Context, assetID int64) ([]MaintenanceRecord, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
	CountByCategory(ctx context.Context) (map[string]int, error)
	Totals(ctx context.Context, warrantyWindow time.Duration) (total int, value float64, expiring int, err error)
}

// Service handles the asset register business rules.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	gate   *access.Gate
	stats  *cache.StatsCache
	audit  *shared.AuditLogger
	now    func() time.Time
}

// NewService builds a Service instance.
func NewService(logger *slog.Logger, repo RepositoryPort, gate *access.Gate, stats *cache.StatsCache, audit *shared.AuditLogger) *Service {
	return &Service{logger: logger, repo: repo, gate: gate, stats: stats, audit: audit, now: time.Now}
}

// List returns the assets visible to the principal.
func (s *Service) List(ctx context.Context, principal *access.Principal, q ListQuery) ([]Asset, int, error) {
	filter, err := s.gate.ListFilter(ctx, principal, access.ResourceAssets, access.ActionRead)
	if err != nil {
		return nil, 0, err
	}
	assets, total, err := s.repo.List(ctx, q, filter)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	for i := range assets {
		assets[i].CurrentValue = assets[i].ComputeCurrentValue(now)
	}
	return assets, total, nil
}

// Get fetches a single asset. Existence is checked before authorization,
// matching the console's handler convention.
func (s *Service) Get(ctx context.Context, principal *access.Principal, id int64) (*Asset, error) {
	asset, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceAssets, access.ActionRead, asset.Object()); err != nil {
		return nil, err
	}
	asset.CurrentValue = asset.ComputeCurrentValue(s.now())
	return asset, nil
}

// Create registers a new asset owned by the principal.
func (s *Service) Create(ctx context.Context, principal *access.Principal, in CreateInput) (*Asset, error) {
	obj := access.Object{Type: access.ResourceAssets}
	if principal != nil {
		obj.OwnerID = principal.ID
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceAssets, access.ActionCreate, obj); err != nil {
		return nil, err
	}
	asset, err := s.repo.Create(ctx, in, principal.ID)
	if err != nil {
		return nil, err
	}
	asset.CurrentValue = asset.ComputeCurrentValue(s.now())
	s.recordAudit(ctx, principal.ID, "asset.create", asset.ID, nil)
	s.invalidateStats(ctx)
	return asset, nil
}

// Update applies an asset update.
func (s *Service) Update(ctx context.Context, principal *access.Principal, id int64, in UpdateInput) (*Asset, error) {
	asset, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceAssets, access.ActionUpdate, asset.Object()); err != nil {
		return nil, err
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, fmt.Errorf("assets: invalid status %q", *in.Status)
	}
	updated, err := s.repo.Update(ctx, id, in)
	if err != nil {
		return nil, err
	}
	updated.CurrentValue = updated.ComputeCurrentValue(s.now())
	s.recordAudit(ctx, principal.ID, "asset.update", id, nil)
	s.invalidateStats(ctx)
	return updated, nil
}

// Retire soft-deletes an asset, clearing any assignment.
func (s *Service) Retire(ctx context.Context, principal *access.Principal, id int64) error {
	asset, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceAssets, access.ActionDelete, asset.Object()); err != nil {
		return err
	}
	if err := s.repo.Retire(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, principal.ID, "asset.retire", id, nil)
	s.invalidateStats(ctx)
	return nil
}

// Assign hands the asset to a user. Managers may only assign within their
// own department; the gate checks the prospective assignee against the
// team scope.
func (s *Service) Assign(ctx context.Context, principal *access.Principal, id, userID int64) (*Asset, error) {
	asset, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if asset.Status == StatusRetired {
		return nil, ErrAssetRetired
	}
	_, active, err := s.repo.UserSnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrAssigneeInactive
	}
	prospective := asset.Object()
	prospective.AssigneeID = userID
	if err := s.gate.Authorize(ctx, principal, access.ResourceAssets, access.ActionAssign, prospective); err != nil {
		return nil, err
	}
	updated, err := s.repo.SetAssignee(ctx, id, &userID)
	if err != nil {
		return nil, err
	}
	updated.CurrentValue = updated.ComputeCurrentValue(s.now())
	s.recordAudit(ctx, principal.ID, "asset.assign", id, map[string]any{"assignee": userID})
	s.invalidateStats(ctx)
	return updated, nil
}

// Unassign returns the asset to the pool. The team check runs against the
// current assignee.
func (s *Service) Unassign(ctx context.Context, principal *access.Principal, id int64) (*Asset, error) {
	asset, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceAssets, access.ActionAssign, asset.Object()); err != nil {
		return nil, err
	}
	updated, err := s.repo.SetAssignee(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	updated.CurrentValue = updated.ComputeCurrentValue(s.now())
	s.recordAudit(ctx, principal.ID, "asset.unassign", id, nil)
	s.invalidateStats(ctx)
	return updated, nil
}

// AddMaintenance appends a maintenance record to the asset history.
func (s *Service) AddMaintenance(ctx context.Context, principal *access.Principal, assetID int64, description string, cost float64, performedAt time.Time) (*MaintenanceRecord, error) {
	asset, err := s.repo.Get(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceAssets, access.ActionUpdate, asset.Object()); err != nil {
		return nil, err
	}
	if performedAt.IsZero() {
		performedAt = s.now()
	}
	rec := &MaintenanceRecord{
		AssetID:     assetID,
		Description: description,
		Cost:        cost,
		PerformedBy: principal.ID,
		PerformedAt: performedAt,
	}
	return s.repo.AddMaintenance(ctx, rec)
}

// MaintenanceHistory lists the maintenance records of an asset.
func (s *Service) MaintenanceHistory(ctx context.Context, principal *access.Principal, assetID int64) ([]MaintenanceRecord, error) {
	asset, err := s.repo.Get(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceAssets, access.ActionRead, asset.Object()); err != nil {
		return nil, err
	}
	return s.repo.ListMaintenance(ctx, assetID)
}

// Tag returns the machine-readable tag payload of an asset.
func (s *Service) Tag(ctx context.Context, principal *access.Principal, id int64) (*TagPayload, error) {
	asset, err := s.Get(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	return &TagPayload{
		AssetID:      asset.ID,
		Name:         asset.Name,
		Category:     asset.Category,
		SerialNumber: asset.SerialNumber,
		Status:       asset.Status,
	}, nil
}

// Stats aggregates the register for the dashboard. The route is gated to
// manager and up; the aggregate queries run in parallel and the result is
// cached.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	key, err := s.stats.BuildKey(ctx, "stats", "assets")
	if err != nil {
		return nil, err
	}
	var out Stats
	err = s.stats.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		var agg Stats
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			byStatus, err := s.repo.CountByStatus(gctx)
			if err != nil {
				return err
			}
			agg.ByStatus = byStatus
			return nil
		})
		g.Go(func() error {
			byCategory, err := s.repo.CountByCategory(gctx)
			if err != nil {
				return err
			}
			agg.ByCategory = byCategory
			return nil
		})
		g.Go(func() error {
			total, value, expiring, err := s.repo.Totals(gctx, warrantyWindow)
			if err != nil {
				return err
			}
			agg.Total, agg.TotalPurchaseValue, agg.WarrantyExpiring = total, value, expiring
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

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, assetID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "asset",
		EntityID: strconv.FormatInt(assetID, 10),
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) invalidateStats(ctx context.Context) {
	_ = s.stats.Bump(ctx)
}
