package access

// Role is one of the three console roles.
type Role string

// Roles in ascending order of privilege.
const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// Rank maps a role onto the privilege hierarchy. Unknown roles rank below
// every real role.
func Rank(r Role) int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleManager:
		return 2
	case RoleEmployee:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r carries at least the privilege of min.
func AtLeast(r, min Role) bool {
	return Rank(r) >= Rank(min)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return Rank(r) > 0
}
