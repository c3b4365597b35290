package users_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlas-ops/atlas-ops/internal/access"
	"github.com/atlas-ops/atlas-ops/internal/shared"
	"github.com/atlas-ops/atlas-ops/internal/users"
)

type fakeRepo struct {
	records map[int64]*users.User

	lastQuery  users.ListQuery
	lastFilter access.Filter
}

func newFakeRepo(records ...*users.User) *fakeRepo {
	repo := &fakeRepo{records: make(map[int64]*users.User)}
	for _, u := range records {
		repo.records[u.ID] = u
	}
	return repo
}

func (f *fakeRepo) List(ctx context.Context, q users.ListQuery, filter access.Filter) ([]users.User, int, error) {
	f.lastQuery, f.lastFilter = q, filter
	var out []users.User
	for _, u := range f.records {
		if filter.Kind == access.FilterSubject && u.ID != filter.UserID {
			continue
		}
		if q.Department != "" && u.Department != q.Department {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (f *fakeRepo) Get(ctx context.Context, id int64) (*users.User, error) {
	u, ok := f.records[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeRepo) Update(ctx context.Context, id int64, in users.UpdateInput) (*users.User, error) {
	u, ok := f.records[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.Department != nil {
		u.Department = *in.Department
	}
	if in.Phone != nil {
		u.Phone = *in.Phone
	}
	if in.Avatar != nil {
		u.Avatar = *in.Avatar
	}
	copied := *u
	return &copied, nil
}

func (f *fakeRepo) Deactivate(ctx context.Context, id int64) error {
	u, ok := f.records[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.IsActive = false
	return nil
}

func (f *fakeRepo) UpdateRoleGuarded(ctx context.Context, id int64, newRole access.Role) (*users.User, error) {
	u, ok := f.records[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	if u.Role == access.RoleAdmin && newRole != access.RoleAdmin && f.countAdmins() <= 1 {
		return nil, access.ErrLastAdmin
	}
	u.Role = newRole
	copied := *u
	return &copied, nil
}

func (f *fakeRepo) countAdmins() int {
	count := 0
	for _, u := range f.records {
		if u.Role == access.RoleAdmin && u.IsActive {
			count++
		}
	}
	return count
}

func (f *fakeRepo) CountActiveAdmins(ctx context.Context) (int, error) {
	return f.countAdmins(), nil
}

func (f *fakeRepo) ActiveMemberIDs(ctx context.Context, department string) ([]int64, error) {
	var ids []int64
	for _, u := range f.records {
		if u.IsActive && u.Department == department {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (f *fakeRepo) CountUsers(ctx context.Context) (int, int, error) {
	total, active := 0, 0
	for _, u := range f.records {
		total++
		if u.IsActive {
			active++
		}
	}
	return total, active, nil
}

func (f *fakeRepo) CountByRole(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for _, u := range f.records {
		out[string(u.Role)]++
	}
	return out, nil
}

func (f *fakeRepo) CountByDepartment(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for _, u := range f.records {
		if u.IsActive && u.Department != "" {
			out[u.Department]++
		}
	}
	return out, nil
}

func newUserService(repo *fakeRepo) *users.Service {
	gate := access.NewGate(access.DefaultMatrix(), access.NewResolver(repo))
	guard := access.NewGuard(repo)
	return users.NewService(repo, gate, guard, nil)
}

func principalOf(u *users.User) *access.Principal {
	p := u.Principal()
	return &p
}

func seedDirectory() (*fakeRepo, *users.User, *users.User, *users.User, *users.User) {
	admin := &users.User{ID: 1, Email: "admin@atlas.test", Name: "Admin", Role: access.RoleAdmin, Department: "IT", IsActive: true}
	manager := &users.User{ID: 2, Email: "mgr@atlas.test", Name: "Manager", Role: access.RoleManager, Department: "Eng", IsActive: true}
	engineer := &users.User{ID: 3, Email: "eng@atlas.test", Name: "Engineer", Role: access.RoleEmployee, Department: "Eng", IsActive: true}
	seller := &users.User{ID: 4, Email: "sales@atlas.test", Name: "Seller", Role: access.RoleEmployee, Department: "Sales", IsActive: true}
	return newFakeRepo(admin, manager, engineer, seller), admin, manager, engineer, seller
}

func TestListAdminSeesEveryone(t *testing.T) {
	repo, admin, _, _, _ := seedDirectory()
	svc := newUserService(repo)

	got, total, err := svc.List(context.Background(), principalOf(admin), users.ListQuery{})
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Len(t, got, 4)
	require.Equal(t, access.FilterAll, repo.lastFilter.Kind)
}

func TestListManagerNarrowedToDepartment(t *testing.T) {
	repo, _, manager, _, _ := seedDirectory()
	svc := newUserService(repo)

	got, _, err := svc.List(context.Background(), principalOf(manager), users.ListQuery{Department: "Sales"})
	require.NoError(t, err)
	// The caller-supplied department cannot widen the manager's view.
	require.Equal(t, "Eng", repo.lastQuery.Department)
	for _, u := range got {
		require.Equal(t, "Eng", u.Department)
	}
}

func TestListManagerWithoutDepartmentSeesNobody(t *testing.T) {
	repo, _, _, _, _ := seedDirectory()
	svc := newUserService(repo)
	lone := &access.Principal{ID: 99, Role: access.RoleManager, IsActive: true}

	got, total, err := svc.List(context.Background(), lone, users.ListQuery{})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, got)
}

func TestListEmployeeSeesSelfOnly(t *testing.T) {
	repo, _, _, engineer, _ := seedDirectory()
	svc := newUserService(repo)

	got, _, err := svc.List(context.Background(), principalOf(engineer), users.ListQuery{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, engineer.ID, got[0].ID)
	require.Equal(t, access.FilterSubject, repo.lastFilter.Kind)
}

func TestGetManagerOutsideDepartmentDenied(t *testing.T) {
	repo, _, manager, _, seller := seedDirectory()
	svc := newUserService(repo)

	_, err := svc.Get(context.Background(), principalOf(manager), seller.ID)
	require.ErrorIs(t, err, access.ErrScopeDenied)
}

func TestGetNotFoundBeforeAuthorization(t *testing.T) {
	repo, _, _, engineer, _ := seedDirectory()
	svc := newUserService(repo)

	_, err := svc.Get(context.Background(), principalOf(engineer), 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGetEmployeeOtherUserDenied(t *testing.T) {
	repo, _, _, engineer, seller := seedDirectory()
	svc := newUserService(repo)

	_, err := svc.Get(context.Background(), principalOf(engineer), seller.ID)
	require.ErrorIs(t, err, access.ErrScopeDenied)
}

func strPtr(s string) *string { return &s }

func TestUpdateSelfEmployeeCannotMoveDepartment(t *testing.T) {
	repo, _, _, engineer, _ := seedDirectory()
	svc := newUserService(repo)

	got, err := svc.Update(context.Background(), principalOf(engineer), engineer.ID, users.UpdateInput{
		Name:       strPtr("Renamed"),
		Department: strPtr("Sales"),
	})
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.Name)
	require.Equal(t, "Eng", got.Department)
}

func TestUpdateSelfManagerMayMoveDepartment(t *testing.T) {
	repo, _, manager, _, _ := seedDirectory()
	svc := newUserService(repo)

	got, err := svc.Update(context.Background(), principalOf(manager), manager.ID, users.UpdateInput{
		Department: strPtr("Platform"),
	})
	require.NoError(t, err)
	require.Equal(t, "Platform", got.Department)
}

func TestUpdateManagerEditsTeamMember(t *testing.T) {
	repo, _, manager, engineer, _ := seedDirectory()
	svc := newUserService(repo)

	got, err := svc.Update(context.Background(), principalOf(manager), engineer.ID, users.UpdateInput{
		Name:  strPtr("Edited"),
		Phone: strPtr("555-0100"),
	})
	require.NoError(t, err)
	require.Equal(t, "Edited", got.Name)
	// Phone stays manager-untouchable.
	require.Empty(t, got.Phone)
}

func TestUpdateManagerOutsideDepartmentDenied(t *testing.T) {
	repo, _, manager, _, seller := seedDirectory()
	svc := newUserService(repo)

	_, err := svc.Update(context.Background(), principalOf(manager), seller.ID, users.UpdateInput{Name: strPtr("Nope")})
	require.Error(t, err)
	require.ErrorIs(t, err, access.ErrForbidden)
}

func TestUpdateEmployeeOtherUserDenied(t *testing.T) {
	repo, _, _, engineer, seller := seedDirectory()
	svc := newUserService(repo)

	_, err := svc.Update(context.Background(), principalOf(engineer), seller.ID, users.UpdateInput{Name: strPtr("Nope")})
	require.ErrorIs(t, err, access.ErrScopeDenied)
}

func TestUpdateAdminEditsAnyone(t *testing.T) {
	repo, admin, _, _, seller := seedDirectory()
	svc := newUserService(repo)

	got, err := svc.Update(context.Background(), principalOf(admin), seller.ID, users.UpdateInput{
		Department: strPtr("Support"),
		Phone:      strPtr("555-0199"),
	})
	require.NoError(t, err)
	require.Equal(t, "Support", got.Department)
	require.Equal(t, "555-0199", got.Phone)
}

func TestDeactivateSelfRejected(t *testing.T) {
	repo, admin, _, _, _ := seedDirectory()
	svc := newUserService(repo)

	err := svc.Deactivate(context.Background(), principalOf(admin), admin.ID)
	require.ErrorIs(t, err, users.ErrSelfDeactivation)
}

func TestDeactivateRequiresAdmin(t *testing.T) {
	repo, _, manager, engineer, _ := seedDirectory()
	svc := newUserService(repo)

	err := svc.Deactivate(context.Background(), principalOf(manager), engineer.ID)
	require.ErrorIs(t, err, access.ErrForbidden)
}

func TestDeactivateSoftDeletes(t *testing.T) {
	repo, admin, _, engineer, _ := seedDirectory()
	svc := newUserService(repo)

	require.NoError(t, svc.Deactivate(context.Background(), principalOf(admin), engineer.ID))
	got, err := repo.Get(context.Background(), engineer.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
}

func TestUpdateRoleSelfChangeDenied(t *testing.T) {
	repo, admin, _, _, _ := seedDirectory()
	svc := newUserService(repo)

	_, err := svc.UpdateRole(context.Background(), principalOf(admin), admin.ID, access.RoleAdmin)
	require.ErrorIs(t, err, access.ErrSelfRoleChange)
}

func TestUpdateRoleLastAdminProtected(t *testing.T) {
	repo, admin, manager, _, _ := seedDirectory()
	svc := newUserService(repo)

	// A second admin acting on the sole other admin would pass the guard;
	// here the single admin is targeted by a hypothetical second actor.
	actor := &access.Principal{ID: 50, Role: access.RoleAdmin, IsActive: true}
	_, err := svc.UpdateRole(context.Background(), actor, admin.ID, access.RoleManager)
	require.ErrorIs(t, err, access.ErrLastAdmin)

	// Promotions are never guarded.
	got, err := svc.UpdateRole(context.Background(), actor, manager.ID, access.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, access.RoleAdmin, got.Role)
}

func TestUpdateRoleDemoteWithSpareAdmin(t *testing.T) {
	repo, admin, manager, _, _ := seedDirectory()
	svc := newUserService(repo)
	actor := &access.Principal{ID: 50, Role: access.RoleAdmin, IsActive: true}

	_, err := svc.UpdateRole(context.Background(), actor, manager.ID, access.RoleAdmin)
	require.NoError(t, err)

	got, err := svc.UpdateRole(context.Background(), actor, admin.ID, access.RoleManager)
	require.NoError(t, err)
	require.Equal(t, access.RoleManager, got.Role)
}

func TestUpdateRoleInvalidRole(t *testing.T) {
	repo, admin, _, engineer, _ := seedDirectory()
	svc := newUserService(repo)

	_, err := svc.UpdateRole(context.Background(), principalOf(admin), engineer.ID, access.Role("root"))
	require.Error(t, err)
}

func TestStatsAggregates(t *testing.T) {
	repo, _, _, _, _ := seedDirectory()
	svc := newUserService(repo)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, stats.Total)
	require.Equal(t, 4, stats.Active)
	require.Equal(t, 1, stats.ByRole["admin"])
	require.Equal(t, 2, stats.ByRole["employee"])
	require.Equal(t, 2, stats.ByDepartment["Eng"])
}
