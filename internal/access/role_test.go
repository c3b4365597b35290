package access

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRankStrictlyIncreasing(t *testing.T) {
	require.Less(t, Rank(RoleEmployee), Rank(RoleManager))
	require.Less(t, Rank(RoleManager), Rank(RoleAdmin))
	require.Equal(t, 0, Rank(Role("intern")))
	require.Equal(t, 0, Rank(Role("")))
}

func TestAtLeastReflexive(t *testing.T) {
	for _, r := range []Role{RoleEmployee, RoleManager, RoleAdmin} {
		require.True(t, AtLeast(r, r), "role %s should satisfy itself", r)
	}
}

func TestAtLeastTransitive(t *testing.T) {
	roles := []Role{RoleEmployee, RoleManager, RoleAdmin}
	for _, a := range roles {
		for _, b := range roles {
			for _, c := range roles {
				if AtLeast(a, b) && AtLeast(b, c) {
					require.True(t, AtLeast(a, c), "%s >= %s >= %s", a, b, c)
				}
			}
		}
	}
}

func TestAtLeastHierarchy(t *testing.T) {
	require.True(t, AtLeast(RoleAdmin, RoleEmployee))
	require.True(t, AtLeast(RoleManager, RoleEmployee))
	require.False(t, AtLeast(RoleEmployee, RoleManager))
	require.False(t, AtLeast(RoleManager, RoleAdmin))
}

func TestRoleValid(t *testing.T) {
	require.True(t, RoleAdmin.Valid())
	require.True(t, RoleManager.Valid())
	require.True(t, RoleEmployee.Valid())
	require.False(t, Role("superuser").Valid())
}
