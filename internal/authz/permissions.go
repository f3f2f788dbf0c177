package authz

import (
	"fmt"
	"sort"
)

// Capability identifies one boolean flag in the permission vocabulary.
type Capability string

// The closed capability vocabulary. Flags outside this set are rejected at
// administration time.
const (
	CapCreateProducts Capability = "canCreateProducts"
	CapEditProducts   Capability = "canEditProducts"
	CapDeleteProducts Capability = "canDeleteProducts"
	CapViewProducts   Capability = "canViewProducts"

	CapCreateOrders Capability = "canCreateOrders"
	CapEditOrders   Capability = "canEditOrders"
	CapDeleteOrders Capability = "canDeleteOrders"
	CapViewOrders   Capability = "canViewOrders"
	CapRefundOrders Capability = "canRefundOrders"

	CapManageCustomers Capability = "canManageCustomers"
	CapViewCustomers   Capability = "canViewCustomers"

	CapManageInventory Capability = "canManageInventory"
	CapViewInventory   Capability = "canViewInventory"

	CapViewReports   Capability = "canViewReports"
	CapExportReports Capability = "canExportReports"

	CapManageSettings Capability = "canManageSettings"
	CapManageUsers    Capability = "canManageUsers"
	CapManagePayments Capability = "canManagePayments"
)

var capabilityOrder = []Capability{
	CapCreateProducts,
	CapEditProducts,
	CapDeleteProducts,
	CapViewProducts,
	CapCreateOrders,
	CapEditOrders,
	CapDeleteOrders,
	CapViewOrders,
	CapRefundOrders,
	CapManageCustomers,
	CapViewCustomers,
	CapManageInventory,
	CapViewInventory,
	CapViewReports,
	CapExportReports,
	CapManageSettings,
	CapManageUsers,
	CapManagePayments,
}

var capabilityIndex = func() map[Capability]struct{} {
	idx := make(map[Capability]struct{}, len(capabilityOrder))
	for _, c := range capabilityOrder {
		idx[c] = struct{}{}
	}
	return idx
}()

// Capabilities returns the full vocabulary in declaration order.
func Capabilities() []Capability {
	out := make([]Capability, len(capabilityOrder))
	copy(out, capabilityOrder)
	return out
}

// KnownCapability reports whether name belongs to the vocabulary.
func KnownCapability(name Capability) bool {
	_, ok := capabilityIndex[name]
	return ok
}

// PermissionSet maps capabilities to grants. A set may be partial: flags it
// omits are decided by whatever base it is merged onto. Sets are treated as
// immutable values; Merge returns a fresh set and never mutates a receiver.
type PermissionSet map[Capability]bool

// Merge returns a new set where every flag present in override replaces the
// corresponding flag, and flags absent from override keep the receiver's
// value. Callers must apply merges root -> leaf -> per-assignment override;
// later merges win.
func (p PermissionSet) Merge(override PermissionSet) PermissionSet {
	merged := make(PermissionSet, len(p)+len(override))
	for cap, granted := range p {
		merged[cap] = granted
	}
	for cap, granted := range override {
		merged[cap] = granted
	}
	return merged
}

// Clone returns an independent copy.
func (p PermissionSet) Clone() PermissionSet {
	if p == nil {
		return nil
	}
	out := make(PermissionSet, len(p))
	for cap, granted := range p {
		out[cap] = granted
	}
	return out
}

// Granted reports whether the capability is present and true.
func (p PermissionSet) Granted(cap Capability) bool {
	return p[cap]
}

// Validate rejects sets containing flags outside the vocabulary.
func (p PermissionSet) Validate() error {
	names := make([]string, 0)
	for cap := range p {
		if !KnownCapability(cap) {
			names = append(names, string(cap))
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	return fmt.Errorf("authz: unknown capabilities %v", names)
}

// AllGranted returns the complete set with every capability true.
func AllGranted() PermissionSet {
	set := make(PermissionSet, len(capabilityOrder))
	for _, cap := range capabilityOrder {
		set[cap] = true
	}
	return set
}

// AllDenied returns the complete set with every capability false. This is the
// contribution of a deactivated role on an inheritance chain: it sinks every
// grant accumulated below it instead of passing them through.
func AllDenied() PermissionSet {
	set := make(PermissionSet, len(capabilityOrder))
	for _, cap := range capabilityOrder {
		set[cap] = false
	}
	return set
}

// ViewDefaults returns the conservative baseline: read access to the store
// catalog (products, orders, customers, inventory) and nothing else.
func ViewDefaults() PermissionSet {
	set := AllDenied()
	set[CapViewProducts] = true
	set[CapViewOrders] = true
	set[CapViewCustomers] = true
	set[CapViewInventory] = true
	return set
}
