package access

import (
	"errors"
	"fmt"
)

// Sentinel errors for the access taxonomy. All are terminal: no denial is
// retryable.
var (
	// ErrNotAuthenticated indicates the request carried no usable principal.
	ErrNotAuthenticated = errors.New("access: not authenticated")
	// ErrForbidden indicates the role lacks the action entirely.
	ErrForbidden = errors.New("access: forbidden")
	// ErrScopeDenied indicates a scoped grant exists but the target record
	// falls outside it.
	ErrScopeDenied = errors.New("access: outside permitted scope")
	// ErrLastAdmin indicates a role change would leave zero active admins.
	ErrLastAdmin = errors.New("access: cannot demote the last active admin")
	// ErrSelfRoleChange indicates a principal attempted to alter its own role.
	ErrSelfRoleChange = errors.New("access: cannot change own role")
)

// DeniedError carries machine-readable denial detail for the HTTP layer.
// It unwraps to ErrForbidden or ErrScopeDenied so callers can branch with
// errors.Is.
type DeniedError struct {
	Resource ResourceType
	Action   Action
	Role     Role
	Scope    Scope
	kind     error
}

// Error implements the error interface.
func (e *DeniedError) Error() string {
	if e.Scope != ScopeNone {
		return fmt.Sprintf("access: role %s may only %s %s within scope %q", e.Role, e.Action, e.Resource, e.Scope)
	}
	return fmt.Sprintf("access: role %s may not %s %s", e.Role, e.Action, e.Resource)
}

// Unwrap exposes the sentinel category.
func (e *DeniedError) Unwrap() error {
	return e.kind
}

func forbidden(resource ResourceType, action Action, role Role) error {
	return &DeniedError{Resource: resource, Action: action, Role: role, kind: ErrForbidden}
}

func scopeDenied(resource ResourceType, action Action, role Role, scope Scope) error {
	return &DeniedError{Resource: resource, Action: action, Role: role, Scope: scope, kind: ErrScopeDenied}
}
