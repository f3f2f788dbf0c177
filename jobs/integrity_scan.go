package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/storehub-platform/storehub/internal/authz"
	"github.com/storehub-platform/storehub/internal/observability"
)

// RoleStore provides the role lookups the scan needs.
type RoleStore interface {
	authz.RoleSource
	ListRoles(ctx context.Context, tenantID string) ([]authz.Role, error)
}

// RoleReferenceSource lists the (tenant, role) pairs active memberships
// reference.
type RoleReferenceSource interface {
	RoleReferences(ctx context.Context) (map[string][]string, error)
}

// Scanner audits stored roles and memberships for integrity faults that the
// admin services should have made impossible: dangling role references,
// cross-tenant parents, inheritance cycles. Findings are logged and counted;
// the engine already fails closed on them at resolution time.
type Scanner struct {
	roles   RoleStore
	refs    RoleReferenceSource
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewScanner builds Scanner instance.
func NewScanner(roles RoleStore, refs RoleReferenceSource, metrics *observability.Metrics, logger *slog.Logger) *Scanner {
	return &Scanner{roles: roles, refs: refs, metrics: metrics, logger: logger}
}

// HandleTask processes TaskRoleIntegrityScan tasks.
func (s *Scanner) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload SweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	return s.Run(ctx)
}

// Run performs one scan over every tenant referenced by an active membership.
func (s *Scanner) Run(ctx context.Context) error {
	refs, err := s.refs.RoleReferences(ctx)
	if err != nil {
		return err
	}

	faults := 0
	for tenantID, roleIDs := range refs {
		for _, roleID := range roleIDs {
			_, ok, err := s.roles.RoleByID(ctx, tenantID, roleID)
			if err != nil {
				return err
			}
			if !ok {
				faults++
				s.metrics.IntegrityAlert("missing_role")
				s.logger.Error("active membership references missing role",
					slog.String("tenant_id", tenantID),
					slog.String("role_id", roleID))
			}
		}
		faults += s.scanTenantRoles(ctx, tenantID)
	}

	s.logger.Info("role integrity scan finished",
		slog.Int("tenants", len(refs)),
		slog.Int("faults", faults))
	return nil
}

func (s *Scanner) scanTenantRoles(ctx context.Context, tenantID string) int {
	roles, err := s.roles.ListRoles(ctx, tenantID)
	if err != nil {
		s.logger.Error("list roles for scan", slog.String("tenant_id", tenantID), slog.Any("error", err))
		return 0
	}

	faults := 0
	for _, role := range roles {
		if role.Kind != authz.KindTenant {
			continue
		}
		if role.TenantID != tenantID {
			faults++
			s.metrics.IntegrityAlert("cross_tenant")
			s.logger.Error("role stored outside its tenant scope",
				slog.String("tenant_id", tenantID),
				slog.String("role_id", role.ID))
			continue
		}
		if role.InheritsFrom == "" {
			continue
		}
		_, err := authz.ChainFor(ctx, s.roles, tenantID, role)
		switch {
		case errors.Is(err, authz.ErrInheritanceCycle):
			faults++
			s.metrics.IntegrityAlert("cycle")
			s.logger.Error("inheritance cycle in stored roles",
				slog.String("tenant_id", tenantID),
				slog.String("role_id", role.ID))
		case errors.Is(err, authz.ErrRoleNotFound):
			faults++
			s.metrics.IntegrityAlert("missing_role")
			s.logger.Error("role chain references missing parent",
				slog.String("tenant_id", tenantID),
				slog.String("role_id", role.ID),
				slog.String("parent_id", role.InheritsFrom))
		case err != nil:
			s.logger.Error("walk role chain", slog.String("role_id", role.ID), slog.Any("error", err))
		}
	}
	return faults
}
