package authz

import "testing"

func TestMergeOverrideWins(t *testing.T) {
	base := ViewDefaults()
	merged := base.Merge(PermissionSet{CapViewProducts: false, CapCreateOrders: true})

	if merged.Granted(CapViewProducts) {
		t.Fatalf("override false should win over base true")
	}
	if !merged.Granted(CapCreateOrders) {
		t.Fatalf("override true should win over base false")
	}
	if !merged.Granted(CapViewOrders) {
		t.Fatalf("flags absent from override must keep base value")
	}
	if base.Granted(CapCreateOrders) {
		t.Fatalf("merge must not mutate the base set")
	}
}

func TestMergeOrderMatters(t *testing.T) {
	a := PermissionSet{CapManageUsers: true}
	b := PermissionSet{CapManageUsers: false}

	if AllDenied().Merge(a).Merge(b).Granted(CapManageUsers) {
		t.Fatalf("later merge should win")
	}
	if !AllDenied().Merge(b).Merge(a).Granted(CapManageUsers) {
		t.Fatalf("later merge should win")
	}
}

func TestCompleteConstructors(t *testing.T) {
	for _, cap := range Capabilities() {
		if !AllGranted().Granted(cap) {
			t.Fatalf("AllGranted missing %s", cap)
		}
		if AllDenied().Granted(cap) {
			t.Fatalf("AllDenied grants %s", cap)
		}
		if _, ok := ViewDefaults()[cap]; !ok {
			t.Fatalf("ViewDefaults incomplete, missing %s", cap)
		}
	}

	defaults := ViewDefaults()
	for _, cap := range []Capability{CapViewProducts, CapViewOrders, CapViewCustomers, CapViewInventory} {
		if !defaults.Granted(cap) {
			t.Fatalf("expected %s granted by default", cap)
		}
	}
	if defaults.Granted(CapViewReports) {
		t.Fatalf("report access must not be part of the view baseline")
	}
	if defaults.Granted(CapManageUsers) {
		t.Fatalf("mutating capabilities must default to denied")
	}
}

func TestValidateRejectsUnknownFlags(t *testing.T) {
	if err := (PermissionSet{CapViewProducts: true}).Validate(); err != nil {
		t.Fatalf("valid set rejected: %v", err)
	}
	if err := (PermissionSet{"canLaunchRockets": true}).Validate(); err == nil {
		t.Fatalf("expected unknown capability to be rejected")
	}
}
