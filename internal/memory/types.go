package memory

import (
	"context"
	"time"

	"github.com/jordanhubbard/counsel/internal/models"
)

// ContextSnapshot is one append-only, monotonically versioned view of the
// project's accumulated decisions and constraints.
type ContextSnapshot struct {
	Version     int64             `json:"version"`
	Decisions   []string          `json:"decisions,omitempty"`
	State       map[string]string `json:"state,omitempty"`
	Constraints []string          `json:"constraints,omitempty"`
	Objectives  []string          `json:"objectives,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// EventType classifies an analytics event.
type EventType string

const (
	EventCacheHit      EventType = "cache_hit"
	EventCacheMiss     EventType = "cache_miss"
	EventConsultation  EventType = "consultation"
	EventPatternReuse  EventType = "pattern_reuse"
	EventPatternStored EventType = "pattern_stored"
)

// Event is one analytics record.
type Event struct {
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SpecialistMetrics is a per-specialist running aggregate.
type SpecialistMetrics struct {
	SpecialistID  string  `json:"specialist_id"`
	Consultations int64   `json:"consultations"`
	Successes     int64   `json:"successes"`
	AvgQuality    float64 `json:"avg_quality"` // incremental average
}

// SuccessRate returns the historical success ratio, and false when there is
// no history yet.
func (m *SpecialistMetrics) SuccessRate() (float64, bool) {
	if m.Consultations == 0 {
		return 0, false
	}
	return float64(m.Successes) / float64(m.Consultations), true
}

// ContextStore persists versioned project context snapshots.
type ContextStore interface {
	Append(ctx context.Context, snapshot *ContextSnapshot) (int64, error)
	Latest(ctx context.Context) (*ContextSnapshot, error)
	History(ctx context.Context, limit int) ([]*ContextSnapshot, error)
}

// PatternStore persists reusable task patterns. Update must apply fn
// atomically per pattern id.
type PatternStore interface {
	Save(ctx context.Context, p *models.Pattern) error
	Get(ctx context.Context, id string) (*models.Pattern, error)
	List(ctx context.Context) ([]*models.Pattern, error)
	Update(ctx context.Context, id string, fn func(*models.Pattern) error) error
	Trim(ctx context.Context, keep int) error
}

// AnalyticsStore persists events and specialist aggregates. UpdateSpecialist
// must apply fn atomically per specialist id.
type AnalyticsStore interface {
	RecordEvent(ctx context.Context, event Event) error
	Events(ctx context.Context, limit int) ([]Event, error)
	UpdateSpecialist(ctx context.Context, id string, fn func(*SpecialistMetrics)) error
	SpecialistMetrics(ctx context.Context) ([]*SpecialistMetrics, error)
}
