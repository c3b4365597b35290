package access

// ResourceType tags the entity category an operation targets.
type ResourceType string

// Managed resource types.
const (
	ResourceUsers               ResourceType = "users"
	ResourceAssets              ResourceType = "assets"
	ResourceVendors             ResourceType = "vendors"
	ResourceOnboardingTemplates ResourceType = "onboardingTemplates"
	ResourceOnboardingInstances ResourceType = "onboardingInstances"
)

// Action is an operation category against a resource type.
type Action string

// Actions referenced by the matrix.
const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionAssign Action = "assign"
	// ActionAny is the wildcard entry: a role holding it may perform every
	// action on the resource unscoped.
	ActionAny Action = "*"
)

// Scope narrows a granted action to a subset of records.
type Scope string

// Scope tokens.
const (
	// ScopeNone marks an unscoped (full) grant.
	ScopeNone Scope = ""
	// ScopeSelf matches records owned by, or assigned to, the caller.
	ScopeSelf Scope = "self"
	// ScopeOwn matches via the resource's subject relation (the onboarding
	// instance's employee, the template's department).
	ScopeOwn Scope = "own"
	// ScopeAssigned matches records assigned to the caller; ownership is
	// irrelevant.
	ScopeAssigned Scope = "assigned"
	// ScopeTeam matches records whose assignee (owner when unassigned)
	// belongs to the caller's department.
	ScopeTeam Scope = "team"
	// ScopeOwnTasks permits task-level updates on the caller's own
	// onboarding instance.
	ScopeOwnTasks Scope = "own-tasks"
)

// Grant is one permission matrix entry: an action, optionally narrowed by a
// scope token.
type Grant struct {
	Action Action
	Scope  Scope
}

// PermissionKind classifies a matrix lookup result.
type PermissionKind int

const (
	// PermissionNone means the role may not perform the action at all.
	PermissionNone PermissionKind = iota
	// PermissionFull means the action is allowed on every record.
	PermissionFull
	// PermissionScoped means the action is allowed on the records the scope
	// token selects.
	PermissionScoped
)

// Permission is the outcome of a matrix lookup.
type Permission struct {
	Kind  PermissionKind
	Scope Scope
}

// Matrix is the static resource × role permission table. It is built once at
// startup and never mutated afterwards; alternate tables may be constructed
// for tests.
type Matrix struct {
	grants map[ResourceType]map[Role][]Grant
}

// NewMatrix builds a Matrix from the given grant table. The table is copied
// so later mutation of the argument cannot affect lookups.
func NewMatrix(table map[ResourceType]map[Role][]Grant) *Matrix {
	grants := make(map[ResourceType]map[Role][]Grant, len(table))
	for resource, roles := range table {
		byRole := make(map[Role][]Grant, len(roles))
		for role, entries := range roles {
			copied := make([]Grant, len(entries))
			copy(copied, entries)
			byRole[role] = copied
		}
		grants[resource] = byRole
	}
	return &Matrix{grants: grants}
}

// DefaultMatrix returns the production permission table.
func DefaultMatrix() *Matrix {
	return NewMatrix(map[ResourceType]map[Role][]Grant{
		ResourceUsers: {
			RoleAdmin: {
				{Action: ActionCreate}, {Action: ActionRead},
				{Action: ActionUpdate}, {Action: ActionDelete},
			},
			RoleManager: {
				{Action: ActionRead},
			},
			RoleEmployee: {
				{Action: ActionRead, Scope: ScopeSelf},
				{Action: ActionUpdate, Scope: ScopeSelf},
			},
		},
		ResourceAssets: {
			RoleAdmin: {
				{Action: ActionCreate}, {Action: ActionRead},
				{Action: ActionUpdate}, {Action: ActionDelete},
				{Action: ActionAssign},
			},
			RoleManager: {
				{Action: ActionCreate}, {Action: ActionRead},
				{Action: ActionUpdate}, {Action: ActionDelete},
				{Action: ActionAssign, Scope: ScopeTeam},
			},
			RoleEmployee: {
				{Action: ActionRead, Scope: ScopeAssigned},
			},
		},
		ResourceVendors: {
			RoleAdmin: {
				{Action: ActionCreate}, {Action: ActionRead},
				{Action: ActionUpdate}, {Action: ActionDelete},
			},
			RoleManager: {
				{Action: ActionRead},
			},
		},
		ResourceOnboardingTemplates: {
			RoleAdmin: {
				{Action: ActionCreate}, {Action: ActionRead},
				{Action: ActionUpdate}, {Action: ActionDelete},
			},
			RoleManager: {
				{Action: ActionRead},
			},
			RoleEmployee: {
				{Action: ActionRead, Scope: ScopeOwn},
			},
		},
		ResourceOnboardingInstances: {
			RoleAdmin: {
				{Action: ActionCreate}, {Action: ActionRead},
				{Action: ActionUpdate}, {Action: ActionDelete},
			},
			RoleManager: {
				{Action: ActionCreate},
				{Action: ActionRead, Scope: ScopeTeam},
				{Action: ActionUpdate, Scope: ScopeTeam},
			},
			RoleEmployee: {
				{Action: ActionRead, Scope: ScopeOwn},
				{Action: ActionUpdate, Scope: ScopeOwnTasks},
			},
		},
	})
}

// PermittedScope resolves (resource, role, action) against the table. An
// exact action match or a wildcard yields a full permission; otherwise the
// first grant for the action with a scope token yields a scoped permission.
// Unknown resources and roles yield none. Lookups never fail.
func (m *Matrix) PermittedScope(resource ResourceType, role Role, action Action) Permission {
	if m == nil {
		return Permission{Kind: PermissionNone}
	}
	grants := m.grants[resource][role]
	for _, g := range grants {
		if g.Action == ActionAny {
			return Permission{Kind: PermissionFull}
		}
		if g.Action == action && g.Scope == ScopeNone {
			return Permission{Kind: PermissionFull}
		}
	}
	for _, g := range grants {
		if g.Action == action && g.Scope != ScopeNone {
			return Permission{Kind: PermissionScoped, Scope: g.Scope}
		}
	}
	return Permission{Kind: PermissionNone}
}
