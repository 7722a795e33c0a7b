package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/learnhub/console/internal/jobs"
	"github.com/learnhub/console/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// PermissionAuditJob writes permission changes to the audit log.
type PermissionAuditJob struct {
	Audit   AuditRecorder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPermissionAuditJob wires dependencies for the audit handler.
func NewPermissionAuditJob(audit AuditRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *PermissionAuditJob {
	return &PermissionAuditJob{Audit: audit, Logger: logger, Metrics: metrics}
}

// Handle processes TaskPermissionChanged tasks.
func (j *PermissionAuditJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Audit == nil {
		return errors.New("permission audit: handler not configured")
	}
	run := j.metrics().Start(ctx, TaskPermissionChanged)
	defer func() {
		resultErr = run.Finish(resultErr)
	}()

	var payload PermissionChangedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	changes := make([]map[string]any, 0, len(payload.Changes))
	for _, c := range payload.Changes {
		changes = append(changes, map[string]any{"capability": c.Capability, "granted": c.Granted})
	}
	err := j.Audit.Record(ctx, shared.AuditLog{
		ActorID:  payload.ActorID,
		Action:   shared.AuditPermissionsUpdated,
		Entity:   "staff",
		EntityID: strconv.FormatInt(payload.TargetID, 10),
		Meta:     map[string]any{"changes": changes},
		At:       payload.At,
	})
	if err != nil {
		j.logger().Error("record permission audit", slog.Int64("target_id", payload.TargetID), slog.Any("error", err))
		return err
	}
	j.logger().Info("permission change audited", slog.Int64("actor_id", payload.ActorID), slog.Int64("target_id", payload.TargetID), slog.Int("changes", len(changes)))
	return nil
}

func (j *PermissionAuditJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *PermissionAuditJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
