package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/learnhub/console/internal/staff"
)

// Queues. Audit entries outrank housekeeping.
const (
	QueueAudit       = "audit"
	QueueMaintenance = "maintenance"
)

const (
	// TaskPermissionChanged records a staff permission change in the audit log.
	TaskPermissionChanged = "staff:permission-changed"
	// TaskPurgeExpiredTokens removes expired bearer credentials.
	TaskPurgeExpiredTokens = "auth:purge-expired-tokens"
)

// FlagChange is one capability flip inside a permission change.
type FlagChange struct {
	Capability string `json:"capability"`
	Granted    bool   `json:"granted"`
}

// PermissionChangedPayload describes one successful permission write.
type PermissionChangedPayload struct {
	ActorID  int64        `json:"actor_id"`
	TargetID int64        `json:"target_id"`
	Changes  []FlagChange `json:"changes"`
	At       time.Time    `json:"at"`
}

// PayloadFromChange converts the service-level change into the task payload.
func PayloadFromChange(change staff.PermissionChange, at time.Time) PermissionChangedPayload {
	changes := make([]FlagChange, 0, len(change.Diff))
	for _, c := range change.Diff {
		changes = append(changes, FlagChange{Capability: string(c.Capability), Granted: c.Granted})
	}
	return PermissionChangedPayload{ActorID: change.ActorID, TargetID: change.TargetID, Changes: changes, At: at.UTC()}
}

// NewPermissionChangedTask constructs an Asynq task.
func NewPermissionChangedTask(payload PermissionChangedPayload) (*asynq.Task, error) {
	if payload.TargetID <= 0 {
		return nil, fmt.Errorf("permission changed task: target id required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionChanged, data, asynq.MaxRetry(5), asynq.Queue(QueueAudit), asynq.Timeout(30*time.Second)), nil
}

// NewPurgeExpiredTokensTask constructs the nightly credential cleanup task.
func NewPurgeExpiredTokensTask() *asynq.Task {
	return asynq.NewTask(TaskPurgeExpiredTokens, nil, asynq.Queue(QueueMaintenance), asynq.MaxRetry(3))
}
