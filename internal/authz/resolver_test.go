package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type stubRoles struct {
	roles map[string]Role
}

func (s stubRoles) RoleByID(_ context.Context, tenantID, roleID string) (Role, bool, error) {
	role, ok := s.roles[roleID]
	if !ok {
		return Role{}, false, nil
	}
	if role.Kind == KindTenant && role.TenantID != tenantID {
		return Role{}, false, nil
	}
	return role, true, nil
}

func activeMembership(tenantID, roleID string) Membership {
	return Membership{
		TenantID: tenantID,
		UserID:   "user-1",
		RoleID:   roleID,
		Status:   StatusActive,
		JoinedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestResolveRootRoleIsItsOwnSet(t *testing.T) {
	cashier := Role{
		ID:          "role-cashier",
		Kind:        KindTenant,
		TenantID:    "t1",
		Level:       LevelStaff,
		Permissions: DefaultPermissionsForTier(TierCashier),
		IsActive:    true,
	}
	store := stubRoles{roles: map[string]Role{cashier.ID: cashier}}

	dec, err := Resolve(context.Background(), activeMembership("t1", cashier.ID), store, testNow)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if dec.Level != LevelStaff {
		t.Fatalf("expected leaf level %d, got %d", LevelStaff, dec.Level)
	}
	for cap, want := range cashier.Permissions {
		if dec.Permissions[cap] != want {
			t.Fatalf("flag %s: expected %v, got %v", cap, want, dec.Permissions[cap])
		}
	}
}

func TestResolveManagerScenario(t *testing.T) {
	owner := Role{
		ID:          RoleOwner,
		Kind:        KindSystem,
		Level:       LevelOwner,
		Permissions: AllGranted(),
		IsActive:    true,
	}
	manager := Role{
		ID:           "role-manager",
		Kind:         KindTenant,
		TenantID:     "t1",
		Level:        LevelManager,
		InheritsFrom: RoleOwner,
		Permissions:  PermissionSet{CapManageUsers: false},
		IsActive:     true,
	}
	store := stubRoles{roles: map[string]Role{owner.ID: owner, manager.ID: manager}}

	m := activeMembership("t1", manager.ID)
	m.CustomPermissions = PermissionSet{CapViewReports: false}

	dec, err := Resolve(context.Background(), m, store, testNow)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if dec.Level != LevelManager {
		t.Fatalf("level must come from the leaf role, got %d", dec.Level)
	}
	for _, cap := range Capabilities() {
		want := true
		if cap == CapManageUsers || cap == CapViewReports {
			want = false
		}
		if dec.Permissions.Granted(cap) != want {
			t.Fatalf("flag %s: expected %v", cap, want)
		}
	}
}

func TestResolveChainGrantSurvivesUnlessOverridden(t *testing.T) {
	root := Role{
		ID:          "role-c",
		Kind:        KindTenant,
		TenantID:    "t1",
		Level:       20,
		Permissions: PermissionSet{CapViewReports: true},
		IsActive:    true,
	}
	mid := Role{
		ID:           "role-b",
		Kind:         KindTenant,
		TenantID:     "t1",
		Level:        30,
		InheritsFrom: root.ID,
		Permissions:  PermissionSet{CapCreateOrders: true},
		IsActive:     true,
	}
	leaf := Role{
		ID:           "role-a",
		Kind:         KindTenant,
		TenantID:     "t1",
		Level:        40,
		InheritsFrom: mid.ID,
		Permissions:  PermissionSet{CapManageCustomers: true},
		IsActive:     true,
	}
	store := stubRoles{roles: map[string]Role{root.ID: root, mid.ID: mid, leaf.ID: leaf}}

	dec, err := Resolve(context.Background(), activeMembership("t1", leaf.ID), store, testNow)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, cap := range []Capability{CapViewReports, CapCreateOrders, CapManageCustomers} {
		if !dec.Permissions.Granted(cap) {
			t.Fatalf("grant %s set on the chain and never overridden must survive", cap)
		}
	}
}

func TestResolveCustomPermissionsWin(t *testing.T) {
	owner := Role{ID: RoleOwner, Kind: KindSystem, Level: LevelOwner, Permissions: AllGranted(), IsActive: true}
	store := stubRoles{roles: map[string]Role{owner.ID: owner}}

	m := activeMembership("t1", RoleOwner)
	m.CustomPermissions = PermissionSet{CapManagePayments: false}

	dec, err := Resolve(context.Background(), m, store, testNow)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if dec.Permissions.Granted(CapManagePayments) {
		t.Fatalf("custom override must beat the role chain")
	}
	if !dec.Permissions.Granted(CapManageSettings) {
		t.Fatalf("flags omitted from the override must be untouched")
	}
}

func TestResolveExpiredMembershipDeniedEvenForSuperAdmin(t *testing.T) {
	super := Role{ID: RoleSuperAdmin, Kind: KindSystem, Level: LevelSuperAdmin, Permissions: AllGranted(), IsActive: true}
	store := stubRoles{roles: map[string]Role{super.ID: super}}

	expiry := testNow.Add(-time.Hour)
	m := activeMembership("t1", RoleSuperAdmin)
	m.ExpiresAt = &expiry

	if _, err := Resolve(context.Background(), m, store, testNow); !errors.Is(err, ErrMembershipNotActive) {
		t.Fatalf("expected ErrMembershipNotActive, got %v", err)
	}

	// Expiry boundary is inclusive: now == expiresAt already denies.
	m.ExpiresAt = &testNow
	if _, err := Resolve(context.Background(), m, store, testNow); !errors.Is(err, ErrMembershipNotActive) {
		t.Fatalf("expected denial at the expiry instant, got %v", err)
	}
}

func TestResolveNonActiveStatusDenied(t *testing.T) {
	owner := Role{ID: RoleOwner, Kind: KindSystem, Level: LevelOwner, Permissions: AllGranted(), IsActive: true}
	store := stubRoles{roles: map[string]Role{owner.ID: owner}}

	for _, status := range []MembershipStatus{StatusInactive, StatusSuspended} {
		m := activeMembership("t1", RoleOwner)
		m.Status = status
		if _, err := Resolve(context.Background(), m, store, testNow); !errors.Is(err, ErrMembershipNotActive) {
			t.Fatalf("status %s: expected ErrMembershipNotActive, got %v", status, err)
		}
	}
}

func TestResolveMissingRole(t *testing.T) {
	store := stubRoles{roles: map[string]Role{}}
	if _, err := Resolve(context.Background(), activeMembership("t1", "gone"), store, testNow); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestResolveCrossTenantRoleInvisible(t *testing.T) {
	foreign := Role{
		ID:          "role-x",
		Kind:        KindTenant,
		TenantID:    "other-tenant",
		Level:       LevelManager,
		Permissions: AllGranted(),
		IsActive:    true,
	}
	store := stubRoles{roles: map[string]Role{foreign.ID: foreign}}

	if _, err := Resolve(context.Background(), activeMembership("t1", foreign.ID), store, testNow); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("roles must not resolve across tenants, got %v", err)
	}
}

func TestResolveInactiveRoleSinksItsGrants(t *testing.T) {
	cashier := Role{
		ID:          "role-cashier",
		Kind:        KindTenant,
		TenantID:    "t1",
		Level:       LevelStaff,
		Permissions: DefaultPermissionsForTier(TierCashier),
		IsActive:    false,
	}
	store := stubRoles{roles: map[string]Role{cashier.ID: cashier}}

	dec, err := Resolve(context.Background(), activeMembership("t1", cashier.ID), store, testNow)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if dec.Permissions.Granted(CapCreateOrders) {
		t.Fatalf("deactivated role must stop granting canCreateOrders")
	}
	for _, cap := range Capabilities() {
		if dec.Permissions.Granted(cap) {
			t.Fatalf("deactivated root must contribute the all-deny set, %s leaked", cap)
		}
	}
	if dec.Level != LevelStaff {
		t.Fatalf("level still reports the assigned role, got %d", dec.Level)
	}
}

func TestResolveInactiveMiddleRoleIsSinkNotPassThrough(t *testing.T) {
	owner := Role{ID: RoleOwner, Kind: KindSystem, Level: LevelOwner, Permissions: AllGranted(), IsActive: true}
	mid := Role{
		ID:           "role-mid",
		Kind:         KindTenant,
		TenantID:     "t1",
		Level:        LevelManager,
		InheritsFrom: RoleOwner,
		Permissions:  PermissionSet{},
		IsActive:     false,
	}
	leaf := Role{
		ID:           "role-leaf",
		Kind:         KindTenant,
		TenantID:     "t1",
		Level:        LevelStaff,
		InheritsFrom: mid.ID,
		Permissions:  PermissionSet{CapCreateOrders: true},
		IsActive:     true,
	}
	store := stubRoles{roles: map[string]Role{owner.ID: owner, mid.ID: mid, leaf.ID: leaf}}

	dec, err := Resolve(context.Background(), activeMembership("t1", leaf.ID), store, testNow)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if dec.Permissions.Granted(CapManageSettings) {
		t.Fatalf("inactive role must sink inherited grants, not pass them through")
	}
	if !dec.Permissions.Granted(CapCreateOrders) {
		t.Fatalf("the active leaf's own grants apply on top of the sink")
	}
}

func TestResolveCycleFailsClosed(t *testing.T) {
	a := Role{ID: "role-a", Kind: KindTenant, TenantID: "t1", Level: 10, InheritsFrom: "role-b", IsActive: true}
	b := Role{ID: "role-b", Kind: KindTenant, TenantID: "t1", Level: 20, InheritsFrom: "role-a", IsActive: true}
	store := stubRoles{roles: map[string]Role{a.ID: a, b.ID: b}}

	if _, err := Resolve(context.Background(), activeMembership("t1", a.ID), store, testNow); !errors.Is(err, ErrInheritanceCycle) {
		t.Fatalf("expected ErrInheritanceCycle, got %v", err)
	}
}

func TestResolveDepthBound(t *testing.T) {
	roles := map[string]Role{}
	prev := ""
	var leafID string
	for i := 0; i < MaxInheritanceDepth+2; i++ {
		id := "role-" + string(rune('a'+i))
		roles[id] = Role{ID: id, Kind: KindTenant, TenantID: "t1", Level: 10, InheritsFrom: prev, IsActive: true}
		prev = id
		leafID = id
	}
	store := stubRoles{roles: roles}

	if _, err := Resolve(context.Background(), activeMembership("t1", leafID), store, testNow); !errors.Is(err, ErrInheritanceCycle) {
		t.Fatalf("expected depth bound to trip, got %v", err)
	}
}

func TestResolveDeterministicAfterRoundTrip(t *testing.T) {
	owner := Role{ID: RoleOwner, Kind: KindSystem, Level: LevelOwner, Permissions: AllGranted(), IsActive: true}
	manager := Role{
		ID:           "role-manager",
		Kind:         KindTenant,
		TenantID:     "t1",
		Level:        LevelManager,
		InheritsFrom: RoleOwner,
		Permissions:  PermissionSet{CapManageUsers: false},
		IsActive:     true,
	}
	store := stubRoles{roles: map[string]Role{owner.ID: owner, manager.ID: manager}}

	m := activeMembership("t1", manager.ID)
	m.CustomPermissions = PermissionSet{CapViewReports: false}

	first, err := Resolve(context.Background(), m, store, testNow)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal membership: %v", err)
	}
	var reloaded Membership
	if err := json.Unmarshal(raw, &reloaded); err != nil {
		t.Fatalf("unmarshal membership: %v", err)
	}

	second, err := Resolve(context.Background(), reloaded, store, testNow)
	if err != nil {
		t.Fatalf("resolve reloaded: %v", err)
	}

	firstJSON, _ := json.Marshal(first)
	secondJSON, _ := json.Marshal(second)
	if !bytes.Equal(firstJSON, secondJSON) {
		t.Fatalf("resolution must be byte-identical after a round trip:\n%s\n%s", firstJSON, secondJSON)
	}
}

func TestStatusMachine(t *testing.T) {
	allowed := map[[2]MembershipStatus]bool{
		{StatusActive, StatusInactive}:  true,
		{StatusActive, StatusSuspended}: true,
		{StatusInactive, StatusActive}:  true,
		{StatusSuspended, StatusActive}: true,
	}
	statuses := []MembershipStatus{StatusActive, StatusInactive, StatusSuspended}
	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]MembershipStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("transition %s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
}
