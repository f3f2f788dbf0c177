package authz

import "time"

// RoleKind discriminates the two role variants.
type RoleKind string

const (
	// KindSystem marks platform-wide roles created once at bootstrap.
	KindSystem RoleKind = "system"
	// KindTenant marks custom roles owned by a single tenant.
	KindTenant RoleKind = "tenant"
)

// Fixed system role identifiers. These ids are global and can never collide
// with tenant role ids, which are UUIDs.
const (
	RoleSuperAdmin = "super_admin"
	RoleOwner      = "owner"
	RoleMember     = "member"
)

// Authority level bands. System roles occupy 90-100, tenant roles 1-89.
const (
	LevelSuperAdmin = 100
	LevelOwner      = 90
	LevelAdmin      = 70
	LevelManager    = 50
	LevelStaff      = 30
	LevelViewer     = 10

	TenantLevelMin = 1
	TenantLevelMax = 89
	SystemLevelMin = 90
	SystemLevelMax = 100
)

// Role is a tagged variant over {system, tenant}. System roles have an empty
// TenantID and no parent; tenant roles may inherit from a system role or from
// another role in the same tenant.
type Role struct {
	ID          string        `json:"id"`
	Kind        RoleKind      `json:"kind"`
	TenantID    string        `json:"tenant_id,omitempty"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Level       int           `json:"level"`
	Permissions PermissionSet `json:"permissions"`
	// InheritsFrom references the parent role id, tenant roles only.
	InheritsFrom string `json:"inherits_from,omitempty"`
	// IsActive disables a role without deleting it. An inactive role cannot
	// be newly assigned and contributes AllDenied during resolution.
	IsActive  bool      `json:"is_active"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsSystem reports whether the role is a platform-wide system role.
func (r Role) IsSystem() bool {
	return r.Kind == KindSystem
}

// SystemRoleID reports whether id is one of the fixed system role ids.
func SystemRoleID(id string) bool {
	switch id {
	case RoleSuperAdmin, RoleOwner, RoleMember:
		return true
	}
	return false
}

// ValidTenantLevel reports whether level fits the custom role band.
func ValidTenantLevel(level int) bool {
	return level >= TenantLevelMin && level <= TenantLevelMax
}

// CanManage implements the coarse level order: an actor may manage roles and
// members strictly below their own level.
func CanManage(actorLevel, targetLevel int) bool {
	return actorLevel > targetLevel
}

// MeetsLevel reports whether actorLevel satisfies a minimum level gate.
func MeetsLevel(actorLevel, requiredLevel int) bool {
	return actorLevel >= requiredLevel
}
