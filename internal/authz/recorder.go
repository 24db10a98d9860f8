package authz

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// EventTypeCheck is the audit event type for authorization checks.
const EventTypeCheck = "authorization.check"

// TaskTypeAuditWrite is the asynq task type carrying audit events to the
// worker.
const TaskTypeAuditWrite = "authz:audit"

// QueueAudit is the asynq queue audit events are enqueued on.
const QueueAudit = "audit"

// Event is one append-only audit record of a rendered decision.
type Event struct {
	ID           string         `json:"id"`
	EventType    string         `json:"event_type"`
	OccurredAt   time.Time      `json:"occurred_at"`
	UserID       string         `json:"user_id"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Action       string         `json:"action"`
	Decision     Outcome        `json:"decision"`
	Reason       string         `json:"reason"`
	Engine       EngineType     `json:"engine"`
	RequestMeta  map[string]any `json:"request_meta,omitempty"`
	ResponseMeta map[string]any `json:"response_meta,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	IP           string         `json:"ip,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
}

// Recorder persists decision events. Implementations are best effort: a
// failure to record must never change or delay the decision already rendered,
// so Record returns nothing and swallows errors after logging them.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// AuditWriter is the durable sink behind the recorders.
type AuditWriter interface {
	InsertAuditEvent(ctx context.Context, event Event) error
}

// NewAuditWriteTask wraps an event for the background worker.
func NewAuditWriteTask(event Event) (*asynq.Task, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditWrite, payload, asynq.Queue(QueueAudit), asynq.MaxRetry(5)), nil
}

// SyncRecorder writes events straight to the store, detached from the
// decision path: the write runs on its own goroutine with its own deadline so
// a slow audit store degrades audit latency, not decision latency.
type SyncRecorder struct {
	writer  AuditWriter
	logger  *slog.Logger
	onError func()
	timeout time.Duration
}

// NewSyncRecorder constructs a SyncRecorder. onError is invoked once per
// failed write (for metrics) and may be nil.
func NewSyncRecorder(writer AuditWriter, logger *slog.Logger, onError func()) *SyncRecorder {
	return &SyncRecorder{
		writer:  writer,
		logger:  logger,
		onError: onError,
		timeout: 5 * time.Second,
	}
}

// Record implements Recorder.
func (r *SyncRecorder) Record(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		writeCtx, cancel := context.WithTimeout(detached, r.timeout)
		defer cancel()
		if err := r.writer.InsertAuditEvent(writeCtx, event); err != nil {
			if r.onError != nil {
				r.onError()
			}
			if r.logger != nil {
				r.logger.Error("audit write failed", slog.String("event_id", event.ID), slog.Any("error", err))
			}
		}
	}()
}

// AsyncRecorder hands events to the background worker through Redis. When the
// queue is unreachable it falls back to the synchronous recorder rather than
// dropping the event outright.
type AsyncRecorder struct {
	client   *asynq.Client
	fallback Recorder
	logger   *slog.Logger
}

// NewAsyncRecorder constructs an AsyncRecorder. fallback may be nil.
func NewAsyncRecorder(client *asynq.Client, fallback Recorder, logger *slog.Logger) *AsyncRecorder {
	return &AsyncRecorder{client: client, fallback: fallback, logger: logger}
}

// Record implements Recorder.
func (r *AsyncRecorder) Record(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	task, err := NewAuditWriteTask(event)
	if err == nil {
		if _, err = r.client.EnqueueContext(ctx, task); err == nil {
			return
		}
	}
	if r.logger != nil {
		r.logger.Warn("audit enqueue failed", slog.String("event_id", event.ID), slog.Any("error", err))
	}
	if r.fallback != nil {
		r.fallback.Record(ctx, event)
	}
}
