// Package jobs hosts the background worker: audit log persistence and the
// nightly expired-assignment sweep.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/casedesk/casedesk/internal/authz"
)

const (
	// QueueAudit carries decision audit events.
	QueueAudit = authz.QueueAudit
	// QueueDefault is the queue for housekeeping tasks.
	QueueDefault = "default"
	// TaskAssignmentSweep deactivates role assignments whose expiry passed.
	TaskAssignmentSweep = "roles:assignment-sweep"
)

// AuditJob persists audit events dequeued from Redis.
type AuditJob struct {
	writer authz.AuditWriter
	logger *slog.Logger
}

// NewAuditJob constructs the audit persistence job.
func NewAuditJob(writer authz.AuditWriter, logger *slog.Logger) *AuditJob {
	return &AuditJob{writer: writer, logger: logger}
}

// Handle processes one authz:audit task. Undecodable payloads are dropped
// rather than retried; store failures are retried by asynq up to the task's
// retry budget.
func (j *AuditJob) Handle(ctx context.Context, t *asynq.Task) error {
	var event authz.Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		if j.logger != nil {
			j.logger.Error("drop undecodable audit task", slog.Any("error", err))
		}
		return asynq.SkipRetry
	}
	if err := j.writer.InsertAuditEvent(ctx, event); err != nil {
		if j.logger != nil {
			j.logger.Warn("audit insert failed, will retry", slog.String("event_id", event.ID), slog.Any("error", err))
		}
		return err
	}
	return nil
}

// AssignmentSweeper deactivates expired user-role assignment rows.
type AssignmentSweeper interface {
	ExpireAssignments(ctx context.Context) (int64, error)
}

// SweepJob runs the nightly assignment sweep.
type SweepJob struct {
	sweeper AssignmentSweeper
	logger  *slog.Logger
}

// NewSweepJob constructs the sweep job.
func NewSweepJob(sweeper AssignmentSweeper, logger *slog.Logger) *SweepJob {
	return &SweepJob{sweeper: sweeper, logger: logger}
}

// NewAssignmentSweepTask constructs the cron task payload.
func NewAssignmentSweepTask() *asynq.Task {
	return asynq.NewTask(TaskAssignmentSweep, nil, asynq.Queue(QueueDefault))
}

// Handle processes one sweep task. The sweep is cosmetic: expired rows are
// already excluded from every grant computation by the validity rule.
func (j *SweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	n, err := j.sweeper.ExpireAssignments(ctx)
	if err != nil {
		return err
	}
	if j.logger != nil {
		j.logger.Info("assignment sweep complete", slog.Int64("deactivated", n))
	}
	return nil
}
