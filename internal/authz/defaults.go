package authz

// Tier names the informal role tier used for quick seeding of new tenants.
type Tier string

const (
	TierOwner   Tier = "owner"
	TierAdmin   Tier = "admin"
	TierCashier Tier = "cashier"
	TierViewer  Tier = "viewer"
)

// ValidTier reports whether t is a known tier.
func ValidTier(t Tier) bool {
	switch t {
	case TierOwner, TierAdmin, TierCashier, TierViewer:
		return true
	}
	return false
}

// DefaultPermissionsForSystemRole returns the canned set for a fixed system
// role id. Used only at creation/bootstrap time, never during resolution.
func DefaultPermissionsForSystemRole(roleID string) PermissionSet {
	switch roleID {
	case RoleSuperAdmin, RoleOwner:
		return AllGranted()
	default:
		return ViewDefaults()
	}
}

// DefaultPermissionsForTier returns the canned set for the informal
// owner/admin/cashier/viewer tier.
func DefaultPermissionsForTier(tier Tier) PermissionSet {
	base := ViewDefaults()
	switch tier {
	case TierOwner:
		return AllGranted()
	case TierAdmin:
		return base.Merge(PermissionSet{
			CapCreateProducts:  true,
			CapEditProducts:    true,
			CapDeleteProducts:  true,
			CapCreateOrders:    true,
			CapEditOrders:      true,
			CapDeleteOrders:    true,
			CapRefundOrders:    true,
			CapManageCustomers: true,
			CapManageInventory: true,
			CapViewReports:     true,
			CapExportReports:   true,
			CapManageUsers:     true,
		})
	case TierCashier:
		return base.Merge(PermissionSet{
			CapCreateOrders:    true,
			CapEditOrders:      true,
			CapViewReports:     true,
			CapManageCustomers: true,
		})
	default:
		return base
	}
}

// SystemRoleDefinitions returns the three fixed platform roles inserted once
// at bootstrap and read-only thereafter.
func SystemRoleDefinitions() []Role {
	return []Role{
		{
			ID:          RoleSuperAdmin,
			Kind:        KindSystem,
			Name:        "Super Admin",
			Description: "Platform administrator with full access to all tenants and system settings",
			Level:       LevelSuperAdmin,
			Permissions: DefaultPermissionsForSystemRole(RoleSuperAdmin),
			IsActive:    true,
		},
		{
			ID:          RoleOwner,
			Kind:        KindSystem,
			Name:        "Owner",
			Description: "Tenant owner with full access to all tenant features and settings",
			Level:       LevelOwner,
			Permissions: DefaultPermissionsForSystemRole(RoleOwner),
			IsActive:    true,
		},
		{
			ID:          RoleMember,
			Kind:        KindSystem,
			Name:        "Member",
			Description: "Basic tenant member with view-only access",
			Level:       LevelViewer,
			Permissions: DefaultPermissionsForSystemRole(RoleMember),
			IsActive:    true,
		},
	}
}

// RoleTemplate is a starting point tenants can clone into a custom role.
type RoleTemplate struct {
	Key         string        `json:"key"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Level       int           `json:"level"`
	Permissions PermissionSet `json:"permissions"`
}

// RoleTemplates returns the predefined custom role templates.
func RoleTemplates() []RoleTemplate {
	return []RoleTemplate{
		{
			Key:         "admin",
			Name:        "Admin",
			Description: "Administrator with most permissions except ownership transfer",
			Level:       LevelAdmin,
			Permissions: DefaultPermissionsForTier(TierAdmin),
		},
		{
			Key:         "manager",
			Name:        "Manager",
			Description: "Store manager with product and order management permissions",
			Level:       LevelManager,
			Permissions: ViewDefaults().Merge(PermissionSet{
				CapCreateProducts:  true,
				CapEditProducts:    true,
				CapCreateOrders:    true,
				CapEditOrders:      true,
				CapManageCustomers: true,
				CapManageInventory: true,
				CapViewReports:     true,
			}),
		},
		{
			Key:         "cashier",
			Name:        "Cashier",
			Description: "Cashier with order creation and basic customer management",
			Level:       LevelStaff,
			Permissions: DefaultPermissionsForTier(TierCashier),
		},
		{
			Key:         "inventory_manager",
			Name:        "Inventory Manager",
			Description: "Specialized role for inventory and product management",
			Level:       LevelStaff,
			Permissions: ViewDefaults().Merge(PermissionSet{
				CapCreateProducts:  true,
				CapEditProducts:    true,
				CapManageInventory: true,
				CapViewReports:     true,
			}),
		},
	}
}
