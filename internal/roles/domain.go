package roles

import (
	"errors"

	"github.com/storehub-platform/storehub/internal/authz"
)

var (
	// ErrNotFound indicates that the requested role does not exist in the
	// caller's tenant scope.
	ErrNotFound = errors.New("roles: not found")
	// ErrInvalidRoleDefinition covers level-out-of-range, unknown or
	// cross-tenant parents, vocabulary violations and would-be cycles.
	// Rejected synchronously, never persisted.
	ErrInvalidRoleDefinition = errors.New("roles: invalid role definition")
	// ErrSystemRoleImmutable rejects mutation of platform roles.
	ErrSystemRoleImmutable = errors.New("roles: system roles are immutable")
	// ErrNameTaken indicates another role in the tenant already uses the
	// name (case-folded comparison).
	ErrNameTaken = errors.New("roles: role name already exists in tenant")
	// ErrRoleInUse blocks deletion while active memberships reference the
	// role.
	ErrRoleInUse = errors.New("roles: role still referenced by active memberships")
	// ErrLevelNotPermitted rejects mutations touching a level at or above the
	// caller's own resolved level.
	ErrLevelNotPermitted = errors.New("roles: level not below caller level")
)

// CreateInput carries a new tenant role definition.
type CreateInput struct {
	TenantID     string              `json:"tenant_id" validate:"required"`
	Name         string              `json:"name" validate:"required,min=1,max=100"`
	Description  string              `json:"description" validate:"max=500"`
	Level        int                 `json:"level" validate:"required,min=1,max=89"`
	InheritsFrom string              `json:"inherits_from,omitempty"`
	Permissions  authz.PermissionSet `json:"permissions"`
}

// UpdateInput patches an existing tenant role. Nil fields are left untouched.
type UpdateInput struct {
	Name         *string              `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description  *string              `json:"description,omitempty" validate:"omitempty,max=500"`
	Level        *int                 `json:"level,omitempty" validate:"omitempty,min=1,max=89"`
	InheritsFrom *string              `json:"inherits_from,omitempty"`
	Permissions  *authz.PermissionSet `json:"permissions,omitempty"`
	IsActive     *bool                `json:"is_active,omitempty"`
}

// DeactivateResult reports the advisory impact of a deactivation.
type DeactivateResult struct {
	Role authz.Role `json:"role"`
	// AffectedMemberships counts active memberships still referencing the
	// role. Advisory only; those memberships degrade to deny at resolution.
	AffectedMemberships int `json:"affected_memberships"`
}
