package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storehub-platform/storehub/internal/authz"
	"github.com/storehub-platform/storehub/internal/observability"
)

type stubRoleStore struct {
	roles map[string]authz.Role
}

func (s *stubRoleStore) RoleByID(ctx context.Context, tenantID, roleID string) (authz.Role, bool, error) {
	role, ok := s.roles[roleID]
	if !ok {
		return authz.Role{}, false, nil
	}
	if role.Kind == authz.KindTenant && role.TenantID != tenantID {
		return authz.Role{}, false, nil
	}
	return role, true, nil
}

func (s *stubRoleStore) ListRoles(ctx context.Context, tenantID string) ([]authz.Role, error) {
	var roles []authz.Role
	for _, role := range s.roles {
		if role.Kind == authz.KindSystem || role.TenantID == tenantID {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

type stubRefs struct {
	refs map[string][]string
}

func (s *stubRefs) RoleReferences(ctx context.Context) (map[string][]string, error) {
	return s.refs, nil
}

func TestIntegrityScanCleanStore(t *testing.T) {
	store := &stubRoleStore{roles: map[string]authz.Role{
		"r1": {ID: "r1", Kind: authz.KindTenant, TenantID: "t1", Name: "A", Level: 40, IsActive: true},
		"r2": {ID: "r2", Kind: authz.KindTenant, TenantID: "t1", Name: "B", Level: 30, IsActive: true, InheritsFrom: "r1"},
	}}
	refs := &stubRefs{refs: map[string][]string{"t1": {"r1", "r2"}}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	scanner := NewScanner(store, refs, observability.NewMetrics(), logger)
	require.NoError(t, scanner.Run(context.Background()))
}

func TestIntegrityScanFindsFaults(t *testing.T) {
	store := &stubRoleStore{roles: map[string]authz.Role{
		// Cycle between a and b.
		"a": {ID: "a", Kind: authz.KindTenant, TenantID: "t1", Name: "A", Level: 40, IsActive: true, InheritsFrom: "b"},
		"b": {ID: "b", Kind: authz.KindTenant, TenantID: "t1", Name: "B", Level: 30, IsActive: true, InheritsFrom: "a"},
		// Dangling parent.
		"c": {ID: "c", Kind: authz.KindTenant, TenantID: "t1", Name: "C", Level: 20, IsActive: true, InheritsFrom: "gone"},
	}}
	refs := &stubRefs{refs: map[string][]string{
		"t1": {"a", "deleted-role"},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	scanner := NewScanner(store, refs, observability.NewMetrics(), logger)
	// Faults are reported, not fatal.
	require.NoError(t, scanner.Run(context.Background()))
}
