package vendors_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atlas-ops/atlas-ops/internal/access"
	"github.com/atlas-ops/atlas-ops/internal/shared"
	"github.com/atlas-ops/atlas-ops/internal/vendors"
)

type fakeRepo struct {
	records   map[int64]*vendors.Vendor
	contacts  map[int64][]vendors.Contact
	contracts map[int64][]vendors.Contract
	nextID    int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		records:   make(map[int64]*vendors.Vendor),
		contacts:  make(map[int64][]vendors.Contact),
		contracts: make(map[int64][]vendors.Contract),
		nextID:    1,
	}
}

func (f *fakeRepo) List(ctx context.Context, q vendors.ListQuery) ([]vendors.Vendor, int, error) {
	var out []vendors.Vendor
	for _, v := range f.records {
		if q.Category != "" && v.Category != q.Category {
			continue
		}
		out = append(out, *v)
	}
	return out, len(out), nil
}

func (f *fakeRepo) Get(ctx context.Context, id int64) (*vendors.Vendor, error) {
	v, ok := f.records[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *v
	return &copied, nil
}

func (f *fakeRepo) Create(ctx context.Context, in vendors.VendorInput, createdBy int64) (*vendors.Vendor, error) {
	v := &vendors.Vendor{
		ID: f.nextID, Name: in.Name, Category: in.Category, Email: in.Email,
		IsActive: true, CreatedBy: createdBy, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	f.nextID++
	f.records[v.ID] = v
	copied := *v
	return &copied, nil
}

func (f *fakeRepo) Update(ctx context.Context, id int64, in vendors.VendorInput) (*vendors.Vendor, error) {
	v, ok := f.records[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	v.Name, v.Category, v.Email = in.Name, in.Category, in.Email
	copied := *v
	return &copied, nil
}

func (f *fakeRepo) Deactivate(ctx context.Context, id int64) error {
	v, ok := f.records[id]
	if !ok {
		return shared.ErrNotFound
	}
	v.IsActive = false
	return nil
}

func (f *fakeRepo) AddContact(ctx context.Context, c *vendors.Contact) (*vendors.Contact, error) {
	c.ID = int64(len(f.contacts[c.VendorID]) + 1)
	f.contacts[c.VendorID] = append(f.contacts[c.VendorID], *c)
	return c, nil
}

func (f *fakeRepo) ListContacts(ctx context.Context, vendorID int64) ([]vendors.Contact, error) {
	return f.contacts[vendorID], nil
}

func (f *fakeRepo) DeleteContact(ctx context.Context, vendorID, contactID int64) error {
	list := f.contacts[vendorID]
	for i, c := range list {
		if c.ID == contactID {
			f.contacts[vendorID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (f *fakeRepo) AddContract(ctx context.Context, c *vendors.Contract) (*vendors.Contract, error) {
	c.ID = int64(len(f.contracts[c.VendorID]) + 1)
	c.CreatedAt = time.Now()
	f.contracts[c.VendorID] = append(f.contracts[c.VendorID], *c)
	return c, nil
}

func (f *fakeRepo) ListContracts(ctx context.Context, vendorID int64) ([]vendors.Contract, error) {
	return f.contracts[vendorID], nil
}

func (f *fakeRepo) CountVendors(ctx context.Context) (int, int, error) {
	total, active := 0, 0
	for _, v := range f.records {
		total++
		if v.IsActive {
			active++
		}
	}
	return total, active, nil
}

func (f *fakeRepo) CountByCategory(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for _, v := range f.records {
		if v.IsActive && v.Category != "" {
			out[v.Category]++
		}
	}
	return out, nil
}

func (f *fakeRepo) ContractTotals(ctx context.Context, window time.Duration) (float64, int, error) {
	value := 0.0
	expiring := 0
	deadline := time.Now().Add(window)
	for _, list := range f.contracts {
		for _, c := range list {
			value += c.Value
			if c.EndDate != nil && c.EndDate.After(time.Now()) && c.EndDate.Before(deadline) {
				expiring++
			}
		}
	}
	return value, expiring, nil
}

type noDirectory struct{}

func (noDirectory) ActiveMemberIDs(ctx context.Context, department string) ([]int64, error) {
	return nil, nil
}

func newVendorService(repo *fakeRepo) *vendors.Service {
	gate := access.NewGate(access.DefaultMatrix(), access.NewResolver(noDirectory{}))
	return vendors.NewService(repo, gate, nil)
}

func admin() *access.Principal {
	return &access.Principal{ID: 1, Role: access.RoleAdmin, IsActive: true}
}

func manager() *access.Principal {
	return &access.Principal{ID: 2, Role: access.RoleManager, Department: "Eng", IsActive: true}
}

func employee() *access.Principal {
	return &access.Principal{ID: 3, Role: access.RoleEmployee, Department: "Eng", IsActive: true}
}

func seedRegistry(t *testing.T) (*fakeRepo, *vendors.Service, *vendors.Vendor) {
	t.Helper()
	repo := newFakeRepo()
	svc := newVendorService(repo)
	vendor, err := svc.Create(context.Background(), admin(), vendors.VendorInput{Name: "Acme Supplies", Category: "hardware"})
	require.NoError(t, err)
	return repo, svc, vendor
}

func TestEmployeeHasNoVendorAccess(t *testing.T) {
	_, svc, vendor := seedRegistry(t)
	ctx := context.Background()

	_, _, err := svc.List(ctx, employee(), vendors.ListQuery{})
	require.ErrorIs(t, err, access.ErrForbidden)

	_, err = svc.Get(ctx, employee(), vendor.ID)
	require.ErrorIs(t, err, access.ErrForbidden)
}

func TestManagerReadsButCannotMutate(t *testing.T) {
	_, svc, vendor := seedRegistry(t)
	ctx := context.Background()

	got, err := svc.Get(ctx, manager(), vendor.ID)
	require.NoError(t, err)
	require.Equal(t, "Acme Supplies", got.Name)

	_, _, err = svc.List(ctx, manager(), vendors.ListQuery{})
	require.NoError(t, err)

	_, err = svc.Update(ctx, manager(), vendor.ID, vendors.VendorInput{Name: "Hijacked"})
	require.ErrorIs(t, err, access.ErrForbidden)

	err = svc.Deactivate(ctx, manager(), vendor.ID)
	require.ErrorIs(t, err, access.ErrForbidden)

	_, err = svc.Create(ctx, manager(), vendors.VendorInput{Name: "Shadow Corp"})
	require.ErrorIs(t, err, access.ErrForbidden)
}

func TestAdminManagesVendorLifecycle(t *testing.T) {
	repo, svc, vendor := seedRegistry(t)
	ctx := context.Background()

	updated, err := svc.Update(ctx, admin(), vendor.ID, vendors.VendorInput{Name: "Acme Industrial", Category: "hardware"})
	require.NoError(t, err)
	require.Equal(t, "Acme Industrial", updated.Name)

	require.NoError(t, svc.Deactivate(ctx, admin(), vendor.ID))
	got, err := repo.Get(ctx, vendor.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
}

func TestContactsAdminManagedManagerReadable(t *testing.T) {
	_, svc, vendor := seedRegistry(t)
	ctx := context.Background()

	contact, err := svc.AddContact(ctx, admin(), vendor.ID, vendors.Contact{Name: "Jo Vendor", Email: "jo@acme.test"})
	require.NoError(t, err)
	require.Equal(t, vendor.ID, contact.VendorID)

	_, err = svc.AddContact(ctx, manager(), vendor.ID, vendors.Contact{Name: "Intruder"})
	require.ErrorIs(t, err, access.ErrForbidden)

	contacts, err := svc.Contacts(ctx, manager(), vendor.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)

	require.NoError(t, svc.RemoveContact(ctx, admin(), vendor.ID, contact.ID))
}

func TestContractsAndStats(t *testing.T) {
	_, svc, vendor := seedRegistry(t)
	ctx := context.Background()
	ends := time.Now().Add(14 * 24 * time.Hour)

	_, err := svc.AddContract(ctx, admin(), vendor.ID, vendors.Contract{Title: "Support 2026", Value: 12000, EndDate: &ends})
	require.NoError(t, err)

	_, err = svc.AddContract(ctx, manager(), vendor.ID, vendors.Contract{Title: "Rogue"})
	require.ErrorIs(t, err, access.ErrForbidden)

	contracts, err := svc.Contracts(ctx, manager(), vendor.ID)
	require.NoError(t, err)
	require.Len(t, contracts, 1)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Total)
	require.Equal(t, 1, stats.ContractsExpiring)
	require.InDelta(t, 12000, stats.TotalContracted, 0.01)
}

func TestVendorNotFound(t *testing.T) {
	_, svc, _ := seedRegistry(t)

	_, err := svc.Get(context.Background(), admin(), 404)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
