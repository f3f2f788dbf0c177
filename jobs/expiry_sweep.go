package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/storehub-platform/storehub/internal/authz"
	"github.com/storehub-platform/storehub/internal/shared"
)

// ExpirySource retires active memberships whose expiry has passed.
type ExpirySource interface {
	ExpireDue(ctx context.Context, now time.Time) ([]authz.Membership, error)
}

// AuditRecorder captures audit events.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DecisionInvalidator drops cached authorization decisions after a mutation.
type DecisionInvalidator interface {
	Bump(ctx context.Context) error
}

// Sweeper runs the membership expiry sweep. The resolution engine already
// denies expired memberships; the sweep settles the stored status so listings
// and counts agree with what resolution enforces.
type Sweeper struct {
	members     ExpirySource
	audit       AuditRecorder
	invalidator DecisionInvalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewSweeper builds Sweeper instance.
func NewSweeper(members ExpirySource, audit AuditRecorder, invalidator DecisionInvalidator, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		members:     members,
		audit:       audit,
		invalidator: invalidator,
		logger:      logger,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// HandleTask processes TaskMembershipExpirySweep tasks.
func (s *Sweeper) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload SweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	return s.Run(ctx)
}

// Run performs one sweep.
func (s *Sweeper) Run(ctx context.Context) error {
	now := s.now()
	expired, err := s.members.ExpireDue(ctx, now)
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		s.logger.Info("membership expiry sweep: nothing due")
		return nil
	}

	for _, m := range expired {
		if s.audit == nil {
			continue
		}
		err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  "system",
			TenantID: m.TenantID,
			Action:   "member_expired",
			Entity:   "memberships",
			EntityID: m.TenantID + "/" + m.UserID,
			Meta:     map[string]any{"expired_at": m.ExpiresAt},
			At:       now,
		})
		if err != nil {
			s.logger.Warn("record expiry audit", slog.Any("error", err))
		}
	}
	if s.invalidator != nil {
		if err := s.invalidator.Bump(ctx); err != nil {
			s.logger.Warn("invalidate decisions", slog.Any("error", err))
		}
	}

	s.logger.Info("membership expiry sweep finished", slog.Int("expired", len(expired)))
	return nil
}
