package eventbus

import (
	"context"
	"time"

	"github.com/jordanhubbard/counsel/internal/models"
)

// Subjects published by the engine.
const (
	SubjectTaskCompleted = "counsel.task.completed"
	SubjectTaskEscalated = "counsel.task.escalated"
	SubjectTaskFailed    = "counsel.task.failed"
)

// TaskEvent is the payload published on every task lifecycle subject.
type TaskEvent struct {
	TaskID    string            `json:"task_id"`
	Tier      models.Tier       `json:"tier"`
	Success   bool              `json:"success"`
	CacheUsed bool              `json:"cache_used"`
	Error     string            `json:"error,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Publisher abstracts event publishing for testability. The engine itself
// performs no network I/O; publishing is best effort and never blocks the
// pipeline outcome.
type Publisher interface {
	Publish(ctx context.Context, subject string, event *TaskEvent) error
	Close()
}

// NoopPublisher discards all events. It is the default when no bus is
// configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, subject string, event *TaskEvent) error {
	return nil
}

func (NoopPublisher) Close() {}

var _ Publisher = NoopPublisher{}
