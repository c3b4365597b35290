package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubDirectory struct {
	members map[string][]int64
	err     error
	calls   int
}

func (d *stubDirectory) ActiveMemberIDs(ctx context.Context, department string) ([]int64, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.members[department], nil
}

func engineeringDirectory() *stubDirectory {
	return &stubDirectory{members: map[string][]int64{
		"Engineering": {1, 2, 3},
		"Sales":       {10, 11},
	}}
}

func TestAuthorizeObjectAssignedScope(t *testing.T) {
	r := NewResolver(engineeringDirectory())
	employee := Principal{ID: 2, Role: RoleEmployee, Department: "Engineering", IsActive: true}

	ok, err := r.AuthorizeObject(context.Background(), ScopeAssigned, employee, Object{Type: ResourceAssets, AssigneeID: 2})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.AuthorizeObject(context.Background(), ScopeAssigned, employee, Object{Type: ResourceAssets, AssigneeID: 9})
	require.NoError(t, err)
	require.False(t, ok)

	// Unassigned asset is out of reach regardless of ownership.
	ok, err = r.AuthorizeObject(context.Background(), ScopeAssigned, employee, Object{Type: ResourceAssets, OwnerID: 2})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAuthorizeObjectSelfScope(t *testing.T) {
	r := NewResolver(engineeringDirectory())
	employee := Principal{ID: 5, Role: RoleEmployee, Department: "Engineering", IsActive: true}

	// Users: the record itself is the subject.
	ok, err := r.AuthorizeObject(context.Background(), ScopeSelf, employee, Object{Type: ResourceUsers, SubjectID: 5})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.AuthorizeObject(context.Background(), ScopeSelf, employee, Object{Type: ResourceUsers, SubjectID: 6})
	require.NoError(t, err)
	require.False(t, ok)

	// Assets: owner or assignee match is sufficient.
	ok, err = r.AuthorizeObject(context.Background(), ScopeSelf, employee, Object{Type: ResourceAssets, OwnerID: 5})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.AuthorizeObject(context.Background(), ScopeSelf, employee, Object{Type: ResourceAssets, AssigneeID: 5})
	require.NoError(t, err)
	require.True(t, ok)

	// Missing relations deny.
	ok, err = r.AuthorizeObject(context.Background(), ScopeSelf, employee, Object{Type: ResourceAssets})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAuthorizeObjectTeamScope(t *testing.T) {
	r := NewResolver(engineeringDirectory())
	manager := Principal{ID: 1, Role: RoleManager, Department: "Engineering", IsActive: true}

	// Assignee in department.
	ok, err := r.AuthorizeObject(context.Background(), ScopeTeam, manager, Object{Type: ResourceAssets, AssigneeID: 3})
	require.NoError(t, err)
	require.True(t, ok)

	// Assignee in another department.
	ok, err = r.AuthorizeObject(context.Background(), ScopeTeam, manager, Object{Type: ResourceAssets, AssigneeID: 10})
	require.NoError(t, err)
	require.False(t, ok)

	// Unassigned falls back to owner.
	ok, err = r.AuthorizeObject(context.Background(), ScopeTeam, manager, Object{Type: ResourceAssets, OwnerID: 2})
	require.NoError(t, err)
	require.True(t, ok)

	// Neither owner nor assignee resolvable: fail closed.
	ok, err = r.AuthorizeObject(context.Background(), ScopeTeam, manager, Object{Type: ResourceAssets})
	require.NoError(t, err)
	require.False(t, ok)

	// Instances key team membership off the employee subject.
	ok, err = r.AuthorizeObject(context.Background(), ScopeTeam, manager, Object{Type: ResourceOnboardingInstances, SubjectID: 2})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAuthorizeObjectTeamScopeDepartmentExactMatch(t *testing.T) {
	dir := &stubDirectory{members: map[string][]int64{"Engineering": {1, 2}}}
	r := NewResolver(dir)

	// Department comparison is case-sensitive: "engineering" finds no members.
	manager := Principal{ID: 1, Role: RoleManager, Department: "engineering", IsActive: true}
	ok, err := r.AuthorizeObject(context.Background(), ScopeTeam, manager, Object{Type: ResourceAssets, AssigneeID: 2})
	require.NoError(t, err)
	require.False(t, ok)

	// Manager without a department cannot reach anything via team scope.
	manager.Department = ""
	ok, err = r.AuthorizeObject(context.Background(), ScopeTeam, manager, Object{Type: ResourceAssets, AssigneeID: 2})
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, dir.calls, "no lookup expected for empty department")
}

func TestAuthorizeObjectOwnScope(t *testing.T) {
	r := NewResolver(engineeringDirectory())
	employee := Principal{ID: 7, Role: RoleEmployee, Department: "Engineering", IsActive: true}

	ok, err := r.AuthorizeObject(context.Background(), ScopeOwn, employee, Object{Type: ResourceOnboardingInstances, SubjectID: 7})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.AuthorizeObject(context.Background(), ScopeOwn, employee, Object{Type: ResourceOnboardingInstances, SubjectID: 8})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = r.AuthorizeObject(context.Background(), ScopeOwnTasks, employee, Object{Type: ResourceOnboardingInstances, SubjectID: 7})
	require.NoError(t, err)
	require.True(t, ok)

	// Templates match on department; untagged templates are visible to all.
	ok, err = r.AuthorizeObject(context.Background(), ScopeOwn, employee, Object{Type: ResourceOnboardingTemplates, Department: "Engineering"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.AuthorizeObject(context.Background(), ScopeOwn, employee, Object{Type: ResourceOnboardingTemplates, Department: "Sales"})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = r.AuthorizeObject(context.Background(), ScopeOwn, employee, Object{Type: ResourceOnboardingTemplates})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestListFilterTeamScope(t *testing.T) {
	r := NewResolver(engineeringDirectory())
	manager := Principal{ID: 1, Role: RoleManager, Department: "Engineering", IsActive: true}

	filter, err := r.ListFilter(context.Background(), ScopeTeam, manager, ResourceOnboardingInstances)
	require.NoError(t, err)
	require.Equal(t, FilterMembers, filter.Kind)
	require.ElementsMatch(t, []int64{1, 2, 3}, filter.MemberIDs)

	// Empty department compiles to a match-nothing predicate.
	manager.Department = ""
	filter, err = r.ListFilter(context.Background(), ScopeTeam, manager, ResourceOnboardingInstances)
	require.NoError(t, err)
	require.Equal(t, FilterNone, filter.Kind)
}

func TestListFilterTeamScopeEmptyDepartmentMembership(t *testing.T) {
	r := NewResolver(&stubDirectory{members: map[string][]int64{}})
	manager := Principal{ID: 1, Role: RoleManager, Department: "Ghost", IsActive: true}
	filter, err := r.ListFilter(context.Background(), ScopeTeam, manager, ResourceAssets)
	require.NoError(t, err)
	require.Equal(t, FilterNone, filter.Kind)
}

func TestListFilterSelfAndOwnScopes(t *testing.T) {
	r := NewResolver(engineeringDirectory())
	employee := Principal{ID: 4, Role: RoleEmployee, Department: "Engineering", IsActive: true}

	filter, err := r.ListFilter(context.Background(), ScopeSelf, employee, ResourceUsers)
	require.NoError(t, err)
	require.Equal(t, FilterSubject, filter.Kind)
	require.Equal(t, int64(4), filter.UserID)

	filter, err = r.ListFilter(context.Background(), ScopeSelf, employee, ResourceAssets)
	require.NoError(t, err)
	require.Equal(t, FilterSelf, filter.Kind)

	filter, err = r.ListFilter(context.Background(), ScopeAssigned, employee, ResourceAssets)
	require.NoError(t, err)
	require.Equal(t, FilterAssignee, filter.Kind)
	require.Equal(t, int64(4), filter.UserID)

	filter, err = r.ListFilter(context.Background(), ScopeOwn, employee, ResourceOnboardingInstances)
	require.NoError(t, err)
	require.Equal(t, FilterSubject, filter.Kind)
	require.Equal(t, int64(4), filter.UserID)

	filter, err = r.ListFilter(context.Background(), ScopeOwn, employee, ResourceOnboardingTemplates)
	require.NoError(t, err)
	require.Equal(t, FilterDepartment, filter.Kind)
	require.Equal(t, "Engineering", filter.Department)
}

func TestResolverPropagatesDirectoryErrors(t *testing.T) {
	dirErr := errors.New("directory unavailable")
	r := NewResolver(&stubDirectory{err: dirErr})
	manager := Principal{ID: 1, Role: RoleManager, Department: "Engineering", IsActive: true}

	_, err := r.ListFilter(context.Background(), ScopeTeam, manager, ResourceAssets)
	require.ErrorIs(t, err, dirErr)

	_, err = r.AuthorizeObject(context.Background(), ScopeTeam, manager, Object{Type: ResourceAssets, AssigneeID: 2})
	require.ErrorIs(t, err, dirErr)
}
