package memberships

import (
	"errors"
	"time"

	"github.com/storehub-platform/storehub/internal/authz"
)

var (
	// ErrNotFound indicates no membership exists for the (tenant, user) pair.
	ErrNotFound = errors.New("memberships: not found")
	// ErrAlreadyMember rejects a second membership for the same user in the
	// same tenant.
	ErrAlreadyMember = errors.New("memberships: user is already a member of tenant")
	// ErrInvalidTransition rejects a status change the lifecycle machine does
	// not allow.
	ErrInvalidTransition = errors.New("memberships: invalid status transition")
	// ErrRoleNotAssignable rejects assignment of a role that is missing in the
	// tenant's scope or inactive.
	ErrRoleNotAssignable = errors.New("memberships: role missing or inactive")
	// ErrInvalidInput covers vocabulary violations and malformed fields.
	ErrInvalidInput = errors.New("memberships: invalid input")
	// ErrRoleNotManageable rejects assignment of a role at or above the
	// caller's own resolved level.
	ErrRoleNotManageable = errors.New("memberships: role level not below caller level")
)

// AddInput enrolls a user into a tenant. When RoleID is empty the role is
// derived from Tier: owner maps to the owner system role, everything else to
// the member system role with the tier's canned permissions as overrides.
type AddInput struct {
	UserID            string              `json:"user_id" validate:"required"`
	RoleID            string              `json:"role_id,omitempty"`
	Tier              authz.Tier          `json:"tier,omitempty"`
	CustomPermissions authz.PermissionSet `json:"custom_permissions,omitempty"`
	ExpiresAt         *time.Time          `json:"expires_at,omitempty"`
}

// PatchInput updates an existing membership. Nil fields are left untouched;
// ClearExpiry removes an expiry that ExpiresAt alone cannot express.
type PatchInput struct {
	RoleID            *string                 `json:"role_id,omitempty"`
	CustomPermissions *authz.PermissionSet    `json:"custom_permissions,omitempty"`
	Status            *authz.MembershipStatus `json:"status,omitempty"`
	ExpiresAt         *time.Time              `json:"expires_at,omitempty"`
	ClearExpiry       bool                    `json:"clear_expiry,omitempty"`
}
