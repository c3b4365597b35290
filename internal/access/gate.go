package access

import "context"

// Decision is the outcome of an authorization check. Allowed list decisions
// carry the row predicate to AND into the query.
type Decision struct {
	Allowed bool
	Scope   Scope
	Filter  Filter
}

// Gate composes the permission matrix and the scope resolver into a single
// per-request decision. It holds no mutable state: identical inputs always
// yield identical decisions.
type Gate struct {
	matrix   *Matrix
	resolver *Resolver
}

// NewGate constructs a Gate.
func NewGate(matrix *Matrix, resolver *Resolver) *Gate {
	return &Gate{matrix: matrix, resolver: resolver}
}

// Authorize decides whether the principal may perform action on the given
// record. A nil error means allowed; otherwise the error is one of the
// access taxonomy.
func (g *Gate) Authorize(ctx context.Context, principal *Principal, resource ResourceType, action Action, obj Object) error {
	if principal == nil || !principal.IsActive {
		return ErrNotAuthenticated
	}
	perm := g.matrix.PermittedScope(resource, principal.Role, action)
	switch perm.Kind {
	case PermissionFull:
		return nil
	case PermissionScoped:
		ok, err := g.resolver.AuthorizeObject(ctx, perm.Scope, *principal, obj)
		if err != nil {
			return err
		}
		if !ok {
			return scopeDenied(resource, action, principal.Role, perm.Scope)
		}
		return nil
	default:
		return forbidden(resource, action, principal.Role)
	}
}

// ListFilter decides whether the principal may perform action on the
// resource type at all and, if so, returns the predicate restricting list
// queries. Full permissions yield FilterAll.
func (g *Gate) ListFilter(ctx context.Context, principal *Principal, resource ResourceType, action Action) (Filter, error) {
	if principal == nil || !principal.IsActive {
		return Filter{Kind: FilterNone}, ErrNotAuthenticated
	}
	perm := g.matrix.PermittedScope(resource, principal.Role, action)
	switch perm.Kind {
	case PermissionFull:
		return Filter{Kind: FilterAll}, nil
	case PermissionScoped:
		return g.resolver.ListFilter(ctx, perm.Scope, *principal, resource)
	default:
		return Filter{Kind: FilterNone}, forbidden(resource, action, principal.Role)
	}
}
