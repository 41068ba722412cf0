package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/studentlms/lms/internal/jobs"
	"github.com/studentlms/lms/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit records written after successful requests.
	QueueAudit = "audit"
	// TaskTypeAuditRecord persists one audit log entry.
	TaskTypeAuditRecord = "audit:record"

	auditMaxRetry = 3
)

// AuditPayload describes a successful authenticated request.
type AuditPayload struct {
	ActorID    string         `json:"actor_id"`
	ActorType  shared.Role    `json:"actor_type"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Details    map[string]any `json:"details,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewAuditTask constructs an Asynq task for an audit record.
func NewAuditTask(payload AuditPayload) (*asynq.Task, error) {
	if payload.ActorID == "" || payload.Action == "" {
		return nil, errors.New("jobs: audit payload requires actor and action")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditRecord, data, asynq.Queue(QueueAudit), asynq.MaxRetry(auditMaxRetry)), nil
}

// AuditStore persists audit records.
type AuditStore interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AuditRecordJob writes queued audit records to the store.
type AuditRecordJob struct {
	Store   AuditStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditRecordJob constructs the job handler.
func NewAuditRecordJob(store AuditStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRecordJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRecordJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeAuditRecord tasks.
func (j *AuditRecordJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track(TaskTypeAuditRecord)
	var payload AuditPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.Logger.Warn("discard malformed audit task", slog.Any("error", err))
		return tracker.End(fmt.Errorf("decode audit payload: %v: %w", err, asynq.SkipRetry))
	}
	err := j.Store.Record(ctx, shared.AuditLog{
		ActorID:   payload.ActorID,
		ActorType: payload.ActorType,
		Action:    payload.Action,
		Resource:  payload.Resource,
		Meta:      payload.Details,
		IPAddress: payload.IPAddress,
		UserAgent: payload.UserAgent,
		At:        payload.OccurredAt,
	})
	if err != nil {
		j.Logger.Error("record audit log", slog.String("action", payload.Action), slog.Any("error", err))
		return tracker.End(err)
	}
	return tracker.End(nil)
}
