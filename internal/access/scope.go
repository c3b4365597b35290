package access

import (
	"context"
	"fmt"
)

// Principal is the authenticated actor snapshot the gate decides against.
type Principal struct {
	ID         int64
	Role       Role
	Department string
	IsActive   bool
}

// Object is the relation snapshot of a single loaded record. Zero IDs mean
// the relation is absent. SubjectID is the identity the record is about:
// for users the record itself, for onboarding instances the employee.
type Object struct {
	Type       ResourceType
	SubjectID  int64
	OwnerID    int64
	AssigneeID int64
	Department string
}

// FilterKind enumerates the row predicates a scoped list grant compiles to.
type FilterKind int

const (
	// FilterAll matches every record.
	FilterAll FilterKind = iota
	// FilterNone matches nothing.
	FilterNone
	// FilterAssignee matches records assigned to UserID.
	FilterAssignee
	// FilterSelf matches records owned by UserID or, where the resource
	// carries an assignee, assigned to UserID.
	FilterSelf
	// FilterSubject matches records whose subject relation is UserID.
	FilterSubject
	// FilterMembers matches records whose assignee (owner when unassigned)
	// is one of MemberIDs.
	FilterMembers
	// FilterDepartment matches records tagged with Department, plus
	// untagged records.
	FilterDepartment
)

// Filter is a storage-neutral row predicate. Repositories compile it into a
// WHERE fragment and AND it with caller-supplied query filters; the two sets
// are never ORed, so scoping cannot be widened by query parameters.
type Filter struct {
	Kind       FilterKind
	UserID     int64
	MemberIDs  []int64
	Department string
}

// DirectoryPort looks up the active principals of a department. The users
// repository implements it; the resolver stays decoupled from storage.
type DirectoryPort interface {
	ActiveMemberIDs(ctx context.Context, department string) ([]int64, error)
}

// selfIncludesAssignee lists the resource types whose self scope also
// matches the assignee relation.
var selfIncludesAssignee = map[ResourceType]bool{
	ResourceAssets: true,
}

// Resolver translates scope tokens into row predicates and single-record
// checks.
type Resolver struct {
	directory DirectoryPort
}

// NewResolver constructs a Resolver backed by the given directory.
func NewResolver(directory DirectoryPort) *Resolver {
	return &Resolver{directory: directory}
}

// ListFilter compiles a scope token into the predicate restricting a list
// query for the principal.
func (r *Resolver) ListFilter(ctx context.Context, scope Scope, principal Principal, resource ResourceType) (Filter, error) {
	switch scope {
	case ScopeSelf:
		if resource == ResourceUsers {
			return Filter{Kind: FilterSubject, UserID: principal.ID}, nil
		}
		if selfIncludesAssignee[resource] {
			return Filter{Kind: FilterSelf, UserID: principal.ID}, nil
		}
		return Filter{Kind: FilterSubject, UserID: principal.ID}, nil
	case ScopeOwn, ScopeOwnTasks:
		if resource == ResourceOnboardingTemplates {
			if principal.Department == "" {
				return Filter{Kind: FilterDepartment}, nil
			}
			return Filter{Kind: FilterDepartment, Department: principal.Department}, nil
		}
		return Filter{Kind: FilterSubject, UserID: principal.ID}, nil
	case ScopeAssigned:
		return Filter{Kind: FilterAssignee, UserID: principal.ID}, nil
	case ScopeTeam:
		if principal.Department == "" {
			return Filter{Kind: FilterNone}, nil
		}
		ids, err := r.directory.ActiveMemberIDs(ctx, principal.Department)
		if err != nil {
			return Filter{}, fmt.Errorf("access: resolve team members: %w", err)
		}
		if len(ids) == 0 {
			return Filter{Kind: FilterNone}, nil
		}
		return Filter{Kind: FilterMembers, MemberIDs: ids}, nil
	default:
		return Filter{Kind: FilterNone}, nil
	}
}

// AuthorizeObject reports whether the principal's scoped grant covers the
// given record. Missing relations deny: a record the scope cannot resolve
// against is out of reach.
func (r *Resolver) AuthorizeObject(ctx context.Context, scope Scope, principal Principal, obj Object) (bool, error) {
	switch scope {
	case ScopeSelf:
		if obj.Type == ResourceUsers {
			return obj.SubjectID != 0 && obj.SubjectID == principal.ID, nil
		}
		if obj.OwnerID != 0 && obj.OwnerID == principal.ID {
			return true, nil
		}
		if selfIncludesAssignee[obj.Type] && obj.AssigneeID != 0 && obj.AssigneeID == principal.ID {
			return true, nil
		}
		return false, nil
	case ScopeOwn, ScopeOwnTasks:
		if obj.Type == ResourceOnboardingTemplates {
			return obj.Department == "" || obj.Department == principal.Department, nil
		}
		return obj.SubjectID != 0 && obj.SubjectID == principal.ID, nil
	case ScopeAssigned:
		return obj.AssigneeID != 0 && obj.AssigneeID == principal.ID, nil
	case ScopeTeam:
		if principal.Department == "" {
			return false, nil
		}
		subject := obj.AssigneeID
		if subject == 0 {
			subject = obj.OwnerID
		}
		if obj.Type == ResourceOnboardingInstances {
			subject = obj.SubjectID
		}
		if subject == 0 {
			return false, nil
		}
		ids, err := r.directory.ActiveMemberIDs(ctx, principal.Department)
		if err != nil {
			return false, fmt.Errorf("access: resolve team members: %w", err)
		}
		for _, id := range ids {
			if id == subject {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, nil
	}
}
