package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskMembershipExpirySweep flips expired active memberships to inactive.
	TaskMembershipExpirySweep = "memberships:expiry_sweep"
	// TaskRoleIntegrityScan looks for dangling role references, cross-tenant
	// parents and inheritance cycles.
	TaskRoleIntegrityScan = "authz:integrity_scan"
)

// SweepPayload carries scheduling metadata for periodic tasks.
type SweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewMembershipExpirySweepTask constructs an Asynq task for the expiry sweep.
func NewMembershipExpirySweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMembershipExpirySweep, body, asynq.Queue(QueueDefault)), nil
}

// NewRoleIntegrityScanTask constructs an Asynq task for the integrity scan.
func NewRoleIntegrityScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRoleIntegrityScan, body, asynq.Queue(QueueDefault)), nil
}
