package access

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/storehub-platform/storehub/internal/authz"
	"github.com/storehub-platform/storehub/internal/observability"
)

type stubMembers struct {
	mu      sync.Mutex
	members map[string]authz.Membership
	lookups int
}

func (s *stubMembers) MembershipByUser(ctx context.Context, tenantID, userID string) (authz.Membership, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	m, ok := s.members[tenantID+"/"+userID]
	return m, ok, nil
}

type stubRoles struct {
	roles map[string]authz.Role
}

func (s stubRoles) RoleByID(ctx context.Context, tenantID, roleID string) (authz.Role, bool, error) {
	role, ok := s.roles[roleID]
	if !ok {
		return authz.Role{}, false, nil
	}
	if role.Kind == authz.KindTenant && role.TenantID != tenantID {
		return authz.Role{}, false, nil
	}
	return role, true, nil
}

func newTestService(t *testing.T, members *stubMembers, roles stubRoles) (*Service, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewCache(client, time.Minute)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(members, roles, cache, observability.NewMetrics(), logger), cache
}

func fixtureRoles() stubRoles {
	roles := stubRoles{roles: make(map[string]authz.Role)}
	for _, role := range authz.SystemRoleDefinitions() {
		roles.roles[role.ID] = role
	}
	roles.roles["cashier-t1"] = authz.Role{
		ID:          "cashier-t1",
		Kind:        authz.KindTenant,
		TenantID:    "t1",
		Name:        "Cashier",
		Level:       authz.LevelStaff,
		Permissions: authz.DefaultPermissionsForTier(authz.TierCashier),
		IsActive:    true,
	}
	return roles
}

func activeMembership(tenantID, userID, roleID string) authz.Membership {
	return authz.Membership{
		TenantID: tenantID,
		UserID:   userID,
		RoleID:   roleID,
		Status:   authz.StatusActive,
		JoinedAt: time.Now().UTC(),
	}
}

func TestEffectivePermissionsResolves(t *testing.T) {
	members := &stubMembers{members: map[string]authz.Membership{
		"t1/u1": activeMembership("t1", "u1", "cashier-t1"),
	}}
	svc, _ := newTestService(t, members, fixtureRoles())

	decision, err := svc.EffectivePermissions(context.Background(), "t1", "u1")
	require.NoError(t, err)
	require.Equal(t, authz.LevelStaff, decision.Level)
	require.Equal(t, "cashier-t1", decision.RoleID)
	require.True(t, decision.Can(authz.CapCreateOrders))
	require.False(t, decision.Can(authz.CapManageUsers))
}

func TestEffectivePermissionsCached(t *testing.T) {
	members := &stubMembers{members: map[string]authz.Membership{
		"t1/u1": activeMembership("t1", "u1", "cashier-t1"),
	}}
	svc, _ := newTestService(t, members, fixtureRoles())

	first, err := svc.EffectivePermissions(context.Background(), "t1", "u1")
	require.NoError(t, err)
	second, err := svc.EffectivePermissions(context.Background(), "t1", "u1")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, members.lookups)
}

func TestBumpInvalidatesDecisions(t *testing.T) {
	members := &stubMembers{members: map[string]authz.Membership{
		"t1/u1": activeMembership("t1", "u1", "cashier-t1"),
	}}
	svc, cache := newTestService(t, members, fixtureRoles())

	decision, err := svc.EffectivePermissions(context.Background(), "t1", "u1")
	require.NoError(t, err)
	require.False(t, decision.Can(authz.CapManageInventory))

	// Role reassignment followed by a version bump.
	m := members.members["t1/u1"]
	m.RoleID = authz.RoleOwner
	members.members["t1/u1"] = m
	require.NoError(t, cache.Bump(context.Background()))

	decision, err = svc.EffectivePermissions(context.Background(), "t1", "u1")
	require.NoError(t, err)
	require.True(t, decision.Can(authz.CapManageInventory))
	require.Equal(t, authz.LevelOwner, decision.Level)
	require.Equal(t, 2, members.lookups)
}

func TestEffectivePermissionsNoMembership(t *testing.T) {
	members := &stubMembers{members: map[string]authz.Membership{}}
	svc, _ := newTestService(t, members, fixtureRoles())

	_, err := svc.EffectivePermissions(context.Background(), "t1", "ghost")
	require.ErrorIs(t, err, authz.ErrMembershipNotActive)
}

func TestEffectivePermissionsInactiveMembership(t *testing.T) {
	m := activeMembership("t1", "u1", "cashier-t1")
	m.Status = authz.StatusSuspended
	members := &stubMembers{members: map[string]authz.Membership{"t1/u1": m}}
	svc, _ := newTestService(t, members, fixtureRoles())

	_, err := svc.EffectivePermissions(context.Background(), "t1", "u1")
	require.ErrorIs(t, err, authz.ErrMembershipNotActive)

	// Failures are never cached; reactivating takes effect immediately.
	m.Status = authz.StatusActive
	members.members["t1/u1"] = m
	decision, err := svc.EffectivePermissions(context.Background(), "t1", "u1")
	require.NoError(t, err)
	require.True(t, decision.Can(authz.CapViewOrders))
}

func TestEffectivePermissionsDanglingRole(t *testing.T) {
	members := &stubMembers{members: map[string]authz.Membership{
		"t1/u1": activeMembership("t1", "u1", "deleted-role"),
	}}
	svc, _ := newTestService(t, members, fixtureRoles())

	_, err := svc.EffectivePermissions(context.Background(), "t1", "u1")
	require.ErrorIs(t, err, authz.ErrRoleNotFound)
}

func TestEffectivePermissionsCycleFailsClosed(t *testing.T) {
	roles := fixtureRoles()
	roles.roles["a"] = authz.Role{
		ID: "a", Kind: authz.KindTenant, TenantID: "t1", Name: "A",
		Level: 40, IsActive: true, InheritsFrom: "b",
	}
	roles.roles["b"] = authz.Role{
		ID: "b", Kind: authz.KindTenant, TenantID: "t1", Name: "B",
		Level: 30, IsActive: true, InheritsFrom: "a",
	}
	members := &stubMembers{members: map[string]authz.Membership{
		"t1/u1": activeMembership("t1", "u1", "a"),
	}}
	svc, _ := newTestService(t, members, roles)

	_, err := svc.EffectivePermissions(context.Background(), "t1", "u1")
	require.ErrorIs(t, err, authz.ErrInheritanceCycle)
}
