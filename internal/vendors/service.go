package vendors

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atlas-ops/atlas-ops/internal/access"
	"github.com/atlas-ops/atlas-ops/internal/platform/cache"
)

const contractWindow = 30 * 24 * time.Hour

// RepositoryPort defines data access methods for the vendor registry.
type RepositoryPort interface {
	List(ctx context.Context, q ListQuery) ([]Vendor, int, error)
	Get(ctx context.Context, id int64) (*Vendor, error)
	Create(ctx context.Context, in VendorInput, createdBy int64) (*Vendor, error)
	Update(ctx context.Context, id int64, in VendorInput) (*Vendor, error)
	Deactivate(ctx context.Context, id int64) error
	AddContact(ctx context.Context, c *Contact) (*Contact, error)
	ListContacts(ctx context.Context, vendorID int64) ([]Contact, error)
	DeleteContact(ctx context.Context, vendorID, contactID int64) error
	AddContract(ctx context.Context, c *Contract) (*Contract, error)
	ListContracts(ctx context.Context, vendorID int64) ([]Contract, error)
	CountVendors(ctx context.Context) (total, active int, err error)
	CountByCategory(ctx context.Context) (map[string]int, error)
	ContractTotals(ctx context.Context, window time.Duration) (value float64, expiring int, err error)
}

// Service handles the vendor registry business rules. Vendor grants are
// never row-scoped: admins hold the full action set, managers read, and
// employees have no entry, so the gate decides everything at the type
// level.
type Service struct {
	repo  RepositoryPort
	gate  *access.Gate
	stats *cache.StatsCache
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, gate *access.Gate, stats *cache.StatsCache) *Service {
	return &Service{repo: repo, gate: gate, stats: stats}
}

// List returns vendors visible to the principal.
func (s *Service) List(ctx context.Context, principal *access.Principal, q ListQuery) ([]Vendor, int, error) {
	filter, err := s.gate.ListFilter(ctx, principal, access.ResourceVendors, access.ActionRead)
	if err != nil {
		return nil, 0, err
	}
	if filter.Kind != access.FilterAll {
		return nil, 0, nil
	}
	return s.repo.List(ctx, q)
}

// Get fetches a single vendor.
func (s *Service) Get(ctx context.Context, principal *access.Principal, id int64) (*Vendor, error) {
	vendor, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceVendors, access.ActionRead, vendor.Object()); err != nil {
		return nil, err
	}
	return vendor, nil
}

// Create registers a vendor.
func (s *Service) Create(ctx context.Context, principal *access.Principal, in VendorInput) (*Vendor, error) {
	obj := access.Object{Type: access.ResourceVendors}
	if err := s.gate.Authorize(ctx, principal, access.ResourceVendors, access.ActionCreate, obj); err != nil {
		return nil, err
	}
	vendor, err := s.repo.Create(ctx, in, principal.ID)
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)
	return vendor, nil
}

// Update replaces a vendor profile.
func (s *Service) Update(ctx context.Context, principal *access.Principal, id int64, in VendorInput) (*Vendor, error) {
	vendor, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceVendors, access.ActionUpdate, vendor.Object()); err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, id, in)
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)
	return updated, nil
}

// Deactivate soft-deletes a vendor.
func (s *Service) Deactivate(ctx context.Context, principal *access.Principal, id int64) error {
	vendor, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceVendors, access.ActionDelete, vendor.Object()); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.invalidateStats(ctx)
	return nil
}

// AddContact attaches a contact to a vendor.
func (s *Service) AddContact(ctx context.Context, principal *access.Principal, vendorID int64, c Contact) (*Contact, error) {
	vendor, err := s.repo.Get(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceVendors, access.ActionUpdate, vendor.Object()); err != nil {
		return nil, err
	}
	c.VendorID = vendorID
	return s.repo.AddContact(ctx, &c)
}

// Contacts lists a vendor's contacts.
func (s *Service) Contacts(ctx context.Context, principal *access.Principal, vendorID int64) ([]Contact, error) {
	vendor, err := s.repo.Get(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceVendors, access.ActionRead, vendor.Object()); err != nil {
		return nil, err
	}
	return s.repo.ListContacts(ctx, vendorID)
}

// RemoveContact deletes a vendor contact.
func (s *Service) RemoveContact(ctx context.Context, principal *access.Principal, vendorID, contactID int64) error {
	vendor, err := s.repo.Get(ctx, vendorID)
	if err != nil {
		return err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceVendors, access.ActionUpdate, vendor.Object()); err != nil {
		return err
	}
	return s.repo.DeleteContact(ctx, vendorID, contactID)
}

// AddContract attaches a contract to a vendor.
func (s *Service) AddContract(ctx context.Context, principal *access.Principal, vendorID int64, c Contract) (*Contract, error) {
	vendor, err := s.repo.Get(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceVendors, access.ActionUpdate, vendor.Object()); err != nil {
		return nil, err
	}
	c.VendorID = vendorID
	contract, err := s.repo.AddContract(ctx, &c)
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)
	return contract, nil
}

// Contracts lists a vendor's contracts.
func (s *Service) Contracts(ctx context.Context, principal *access.Principal, vendorID int64) ([]Contract, error) {
	vendor, err := s.repo.Get(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, principal, access.ResourceVendors, access.ActionRead, vendor.Object()); err != nil {
		return nil, err
	}
	return s.repo.ListContracts(ctx, vendorID)
}

// Stats aggregates the registry for the dashboard.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	key, err := s.stats.BuildKey(ctx, "stats", "vendors")
	if err != nil {
		return nil, err
	}
	var out Stats
	err = s.stats.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		var agg Stats
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			total, active, err := s.repo.CountVendors(gctx)
			if err != nil {
				return err
			}
			agg.Total, agg.Active = total, active
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
			value, expiring, err := s.repo.ContractTotals(gctx, contractWindow)
			if err != nil {
				return err
			}
			agg.TotalContracted, agg.ContractsExpiring = value, expiring
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
