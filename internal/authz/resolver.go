package authz

import (
	"context"
	"errors"
	"time"
)

// MaxInheritanceDepth bounds the chain walk. Creation-time validation keeps
// the graph acyclic, so the bound is a defence, not a limit anyone should
// reach; exceeding it fails closed with ErrInheritanceCycle.
const MaxInheritanceDepth = 16

var (
	// ErrMembershipNotActive covers expired, inactive and suspended
	// memberships. Expected at runtime; callers deny without alerting.
	ErrMembershipNotActive = errors.New("authz: membership not active")
	// ErrRoleNotFound indicates a membership referencing a role id absent
	// from the store, a data-integrity fault.
	ErrRoleNotFound = errors.New("authz: role not found")
	// ErrInheritanceCycle indicates a cycle slipped past administration-time
	// validation. Callers must deny and raise an integrity alert.
	ErrInheritanceCycle = errors.New("authz: inheritance cycle detected")
)

// RoleSource is the read contract against the role store. System role ids
// resolve in any tenant scope; tenant role ids resolve only within their
// owning tenant.
type RoleSource interface {
	RoleByID(ctx context.Context, tenantID, roleID string) (Role, bool, error)
}

// Decision is the outcome of a successful resolution.
type Decision struct {
	// Permissions is the effective set after chain and override merging.
	Permissions PermissionSet `json:"permissions"`
	// Level is always the directly assigned role's level. Level expresses
	// who the user presents as and is never merged along the chain.
	Level int `json:"level"`
	// RoleID is the leaf role the membership points at.
	RoleID string `json:"role_id"`
}

// Can reports whether the decision grants the capability.
func (d Decision) Can(cap Capability) bool {
	return d.Permissions.Granted(cap)
}

// Resolve computes the effective permissions and authority level for a
// membership at the given instant. It is a pure function of its inputs plus
// the role records read through roles, and is safe for concurrent use.
//
// Merge order is fixed: root ancestor -> ... -> leaf role -> membership
// custom permissions. Later merges win.
func Resolve(ctx context.Context, m Membership, roles RoleSource, now time.Time) (Decision, error) {
	if m.Status != StatusActive || m.Expired(now) {
		return Decision{}, ErrMembershipNotActive
	}

	leaf, ok, err := roles.RoleByID(ctx, m.TenantID, m.RoleID)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{}, ErrRoleNotFound
	}

	chain, err := ChainFor(ctx, roles, m.TenantID, leaf)
	if err != nil {
		return Decision{}, err
	}

	// chain is leaf-first; accumulate from the root forward so a child's own
	// flags always shadow inherited ones.
	effective := make(PermissionSet, len(capabilityOrder))
	for i := len(chain) - 1; i >= 0; i-- {
		contribution := chain[i].Permissions
		if !chain[i].IsActive {
			contribution = AllDenied()
		}
		effective = effective.Merge(contribution)
	}
	effective = effective.Merge(m.CustomPermissions)

	return Decision{Permissions: effective, Level: leaf.Level, RoleID: leaf.ID}, nil
}

// ChainFor walks the inheritance chain starting at leaf and returns it
// leaf-first, root-last. The walk is bounded by MaxInheritanceDepth and keeps
// a seen set, so it terminates on any graph. Role administration runs the
// same walk against prospective chains before persisting.
func ChainFor(ctx context.Context, roles RoleSource, tenantID string, leaf Role) ([]Role, error) {
	chain := []Role{leaf}
	seen := map[string]struct{}{leaf.ID: {}}
	current := leaf
	for current.InheritsFrom != "" {
		if len(chain) > MaxInheritanceDepth {
			return nil, ErrInheritanceCycle
		}
		parent, ok, err := roles.RoleByID(ctx, tenantID, current.InheritsFrom)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrRoleNotFound
		}
		if _, dup := seen[parent.ID]; dup {
			return nil, ErrInheritanceCycle
		}
		seen[parent.ID] = struct{}{}
		chain = append(chain, parent)
		current = parent
	}
	return chain, nil
}
