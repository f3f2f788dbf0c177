package seed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/storehub-platform/storehub/internal/authz"
)

type memoryStore struct {
	roles   map[string]authz.Role
	upserts int
}

func (s *memoryStore) UpsertSystemRole(ctx context.Context, role authz.Role, at time.Time) error {
	s.upserts++
	existing, ok := s.roles[role.ID]
	if ok {
		role.CreatedAt = existing.CreatedAt
	} else {
		role.CreatedAt = at
	}
	role.UpdatedAt = at
	s.roles[role.ID] = role
	return nil
}

func TestBootstrapSeedsSystemRoles(t *testing.T) {
	store := &memoryStore{roles: make(map[string]authz.Role)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	b := NewBootstrap(store, logger)
	require.NoError(t, b.Run(context.Background()))

	require.Len(t, store.roles, 3)
	require.Equal(t, authz.LevelSuperAdmin, store.roles[authz.RoleSuperAdmin].Level)
	require.Equal(t, authz.LevelOwner, store.roles[authz.RoleOwner].Level)
	require.Equal(t, authz.LevelViewer, store.roles[authz.RoleMember].Level)
	require.True(t, store.roles[authz.RoleOwner].Permissions.Granted(authz.CapManageSettings))
	require.False(t, store.roles[authz.RoleMember].Permissions.Granted(authz.CapViewReports))
}

func TestBootstrapIdempotent(t *testing.T) {
	store := &memoryStore{roles: make(map[string]authz.Role)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	b := NewBootstrap(store, logger)
	require.NoError(t, b.Run(context.Background()))
	created := store.roles[authz.RoleOwner].CreatedAt

	require.NoError(t, b.Run(context.Background()))
	require.Len(t, store.roles, 3)
	require.Equal(t, 6, store.upserts)
	require.Equal(t, created, store.roles[authz.RoleOwner].CreatedAt)
}
