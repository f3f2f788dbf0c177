// Package seed installs the fixed platform records. Seeding is an explicit
// step invoked by the operator, never an import side effect.
package seed

import (
	"context"
	"log/slog"
	"time"

	"github.com/storehub-platform/storehub/internal/authz"
)

// SystemRoleStore persists system roles.
type SystemRoleStore interface {
	UpsertSystemRole(ctx context.Context, role authz.Role, at time.Time) error
}

// Bootstrap writes the three system roles. Safe to run on every deploy:
// existing rows are refreshed in place, created_at is preserved.
type Bootstrap struct {
	roles  SystemRoleStore
	logger *slog.Logger
	now    func() time.Time
}

// NewBootstrap builds Bootstrap instance.
func NewBootstrap(roles SystemRoleStore, logger *slog.Logger) *Bootstrap {
	return &Bootstrap{
		roles:  roles,
		logger: logger,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Run upserts every system role definition.
func (b *Bootstrap) Run(ctx context.Context) error {
	at := b.now()
	for _, role := range authz.SystemRoleDefinitions() {
		if err := b.roles.UpsertSystemRole(ctx, role, at); err != nil {
			return err
		}
		b.logger.Info("system role seeded",
			slog.String("role_id", role.ID),
			slog.Int("level", role.Level))
	}
	return nil
}
