package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/storehub-platform/storehub/internal/authz"
	"github.com/storehub-platform/storehub/internal/shared"
)

type stubExpirySource struct {
	due []authz.Membership
}

func (s *stubExpirySource) ExpireDue(ctx context.Context, now time.Time) ([]authz.Membership, error) {
	return s.due, nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type countingInvalidator struct {
	bumps int
}

func (c *countingInvalidator) Bump(ctx context.Context) error {
	c.bumps++
	return nil
}

func TestExpirySweep(t *testing.T) {
	expiry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	source := &stubExpirySource{due: []authz.Membership{
		{TenantID: "t1", UserID: "u1", Status: authz.StatusInactive, ExpiresAt: &expiry},
		{TenantID: "t2", UserID: "u2", Status: authz.StatusInactive, ExpiresAt: &expiry},
	}}
	audit := &recordingAudit{}
	invalidator := &countingInvalidator{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sweeper := NewSweeper(source, audit, invalidator, logger)
	require.NoError(t, sweeper.Run(context.Background()))

	require.Len(t, audit.logs, 2)
	require.Equal(t, "member_expired", audit.logs[0].Action)
	require.Equal(t, "system", audit.logs[0].ActorID)
	require.Equal(t, 1, invalidator.bumps)
}

func TestExpirySweepNothingDue(t *testing.T) {
	audit := &recordingAudit{}
	invalidator := &countingInvalidator{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sweeper := NewSweeper(&stubExpirySource{}, audit, invalidator, logger)
	require.NoError(t, sweeper.Run(context.Background()))
	require.Empty(t, audit.logs)
	require.Zero(t, invalidator.bumps)
}
