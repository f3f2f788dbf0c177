package access

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/storehub-platform/storehub/internal/authz"
	"github.com/storehub-platform/storehub/internal/observability"
)

// MembershipSource looks up one user's membership in one tenant.
type MembershipSource interface {
	MembershipByUser(ctx context.Context, tenantID, userID string) (authz.Membership, bool, error)
}

// Service resolves effective permissions for (tenant, user) pairs. Decisions
// are cached under a global version; any role or membership mutation bumps
// the version, so staleness is bounded by the TTL only between bump and
// propagation.
type Service struct {
	members MembershipSource
	roles   authz.RoleSource
	cache   *Cache
	metrics *observability.Metrics
	logger  *slog.Logger
	group   singleflight.Group
	now     func() time.Time
}

// NewService builds Service instance.
func NewService(members MembershipSource, roles authz.RoleSource, cache *Cache, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{
		members: members,
		roles:   roles,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// EffectivePermissions returns the resolved decision for a user in a tenant.
// Concurrent identical lookups collapse onto one resolution.
func (s *Service) EffectivePermissions(ctx context.Context, tenantID, userID string) (authz.Decision, error) {
	key, err := s.cache.BuildKey(ctx, decisionKey(tenantID, userID)...)
	if err != nil {
		return authz.Decision{}, err
	}

	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		var decision authz.Decision
		err := s.cache.FetchJSON(ctx, key, &decision, func(ctx context.Context) (interface{}, error) {
			return s.resolve(ctx, tenantID, userID)
		})
		return decision, err
	})
	if err != nil {
		return authz.Decision{}, err
	}
	return result.(authz.Decision), nil
}

// Invalidator returns the decision cache as a mutation hook for the admin
// services.
func (s *Service) Invalidator() *Cache {
	return s.cache
}

func (s *Service) resolve(ctx context.Context, tenantID, userID string) (authz.Decision, error) {
	membership, ok, err := s.members.MembershipByUser(ctx, tenantID, userID)
	if err != nil {
		s.metrics.ObserveDecision("error")
		return authz.Decision{}, err
	}
	if !ok {
		s.metrics.ObserveDecision("not_active")
		return authz.Decision{}, authz.ErrMembershipNotActive
	}

	start := s.now()
	decision, err := authz.Resolve(ctx, membership, s.roles, start)
	s.metrics.ObserveResolution(time.Since(start))
	if err != nil {
		s.observeFailure(ctx, tenantID, userID, err)
		return authz.Decision{}, err
	}
	return decision, nil
}

// observeFailure classifies a resolution failure. Cycles and dangling role
// references mean the stores were corrupted behind the admin services' back,
// so they log at error level and raise an integrity alert.
func (s *Service) observeFailure(ctx context.Context, tenantID, userID string, err error) {
	switch {
	case errors.Is(err, authz.ErrInheritanceCycle):
		s.metrics.ObserveDecision("integrity_fault")
		s.metrics.IntegrityAlert("cycle")
		s.logger.Error("inheritance cycle hit at resolution time",
			slog.String("tenant_id", tenantID),
			slog.String("user_id", userID),
			slog.Any("error", err))
	case errors.Is(err, authz.ErrRoleNotFound):
		s.metrics.ObserveDecision("integrity_fault")
		s.metrics.IntegrityAlert("missing_role")
		s.logger.Error("membership references missing role",
			slog.String("tenant_id", tenantID),
			slog.String("user_id", userID),
			slog.Any("error", err))
	case errors.Is(err, authz.ErrMembershipNotActive):
		s.metrics.ObserveDecision("not_active")
	default:
		s.metrics.ObserveDecision("error")
		s.logger.Error("permission resolution failed",
			slog.String("tenant_id", tenantID),
			slog.String("user_id", userID),
			slog.Any("error", err))
	}
}
