package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/studentlms/lms/internal/jobs"
)

const (
	// TaskAuditPurge removes audit records past the retention window.
	TaskAuditPurge = "audit:purge"
)

// AuditPurgePayload optionally overrides the retention window.
type AuditPurgePayload struct {
	RetentionDays int `json:"retention_days,omitempty"`
}

// NewAuditPurgeTask creates an Asynq task for the retention sweep.
func NewAuditPurgeTask(retentionDays int) (*asynq.Task, error) {
	body, err := json.Marshal(AuditPurgePayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPurge, body, asynq.Queue(QueueDefault)), nil
}

// AuditPurger deletes audit records older than a cutoff.
type AuditPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditPurgeJob coordinates the retention sweep.
type AuditPurgeJob struct {
	Store     AuditPurger
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewAuditPurgeJob constructs the job handler.
func NewAuditPurgeJob(store AuditPurger, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditPurgeJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditPurgeJob{
		Store:     store,
		Retention: retention,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the retention sweep.
func (j *AuditPurgeJob) Handle(ctx context.Context, task *asynq.Task) error {
	tracker := j.Metrics.Track(TaskAuditPurge)
	if j == nil || j.Store == nil {
		return tracker.End(errors.New("audit purge job not configured"))
	}
	retention := j.Retention
	var payload AuditPurgePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err == nil && payload.RetentionDays > 0 {
			retention = time.Duration(payload.RetentionDays) * 24 * time.Hour
		}
	}
	if retention <= 0 {
		j.Logger.Info("audit purge skipped, retention disabled")
		return tracker.End(nil)
	}
	cutoff := j.clock().Add(-retention)
	removed, err := j.Store.PurgeBefore(ctx, cutoff)
	if err != nil {
		return tracker.End(err)
	}
	j.Logger.Info("audit logs purged", slog.Int64("removed", removed), slog.Time("cutoff", cutoff))
	return tracker.End(nil)
}
