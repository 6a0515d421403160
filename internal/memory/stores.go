package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jordanhubbard/counsel/internal/models"
)

// InMemoryContextStore is the default ContextStore.
type InMemoryContextStore struct {
	mu        sync.RWMutex
	snapshots []*ContextSnapshot
}

// NewInMemoryContextStore creates an empty context store.
func NewInMemoryContextStore() *InMemoryContextStore {
	return &InMemoryContextStore{}
}

// Append assigns the next version and stores the snapshot. Versions are
// strictly monotonic; snapshots are never mutated after append.
func (s *InMemoryContextStore) Append(ctx context.Context, snapshot *ContextSnapshot) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot.Version = int64(len(s.snapshots)) + 1
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now()
	}
	s.snapshots = append(s.snapshots, snapshot)
	return snapshot.Version, nil
}

// Latest returns the most recent snapshot, or nil when none exist.
func (s *InMemoryContextStore) Latest(ctx context.Context) (*ContextSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return nil, nil
	}
	return s.snapshots[len(s.snapshots)-1], nil
}

// History returns up to limit snapshots, newest first.
func (s *InMemoryContextStore) History(ctx context.Context, limit int) ([]*ContextSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.snapshots)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*ContextSnapshot, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.snapshots[i])
	}
	return out, nil
}

// InMemoryPatternStore is the default PatternStore.
type InMemoryPatternStore struct {
	mu       sync.RWMutex
	patterns map[string]*models.Pattern
	order    []string // insertion order, oldest first
}

// NewInMemoryPatternStore creates an empty pattern store.
func NewInMemoryPatternStore() *InMemoryPatternStore {
	return &InMemoryPatternStore{patterns: make(map[string]*models.Pattern)}
}

// Save stores or replaces a pattern.
func (s *InMemoryPatternStore) Save(ctx context.Context, p *models.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.patterns[p.ID]; !exists {
		s.order = append(s.order, p.ID)
	}
	s.patterns[p.ID] = p
	return nil
}

// Get retrieves a pattern by id.
func (s *InMemoryPatternStore) Get(ctx context.Context, id string) (*models.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.patterns[id]
	if !exists {
		return nil, fmt.Errorf("pattern %s not found", id)
	}
	return p, nil
}

// List returns all patterns in insertion order.
func (s *InMemoryPatternStore) List(ctx context.Context) ([]*models.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Pattern, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.patterns[id])
	}
	return out, nil
}

// Update applies fn to the pattern under the store lock, making the
// read-modify-write atomic per pattern id.
func (s *InMemoryPatternStore) Update(ctx context.Context, id string, fn func(*models.Pattern) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.patterns[id]
	if !exists {
		return fmt.Errorf("pattern %s not found", id)
	}
	if err := fn(p); err != nil {
		return err
	}
	p.UpdatedAt = time.Now()
	return nil
}

// Trim drops the oldest patterns, keeping the most recent keep entries.
func (s *InMemoryPatternStore) Trim(ctx context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	excess := len(s.order) - keep
	if excess <= 0 {
		return nil
	}
	for _, id := range s.order[:excess] {
		delete(s.patterns, id)
	}
	s.order = append([]string(nil), s.order[excess:]...)
	return nil
}

// InMemoryAnalyticsStore is the default AnalyticsStore.
type InMemoryAnalyticsStore struct {
	mu          sync.RWMutex
	events      []Event
	maxEvents   int
	specialists map[string]*SpecialistMetrics
}

// NewInMemoryAnalyticsStore creates an analytics store capped at maxEvents
// records (0 means the default of 10000).
func NewInMemoryAnalyticsStore(maxEvents int) *InMemoryAnalyticsStore {
	if maxEvents <= 0 {
		maxEvents = 10000
	}
	return &InMemoryAnalyticsStore{
		maxEvents:   maxEvents,
		specialists: make(map[string]*SpecialistMetrics),
	}
}

// RecordEvent appends an event, dropping the oldest half when capacity is
// reached so recording stays O(1) amortized.
func (s *InMemoryAnalyticsStore) RecordEvent(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if len(s.events) >= s.maxEvents {
		keep := s.maxEvents / 2
		s.events = append([]Event(nil), s.events[len(s.events)-keep:]...)
	}
	s.events = append(s.events, event)
	return nil
}

// Events returns up to limit events, newest first.
func (s *InMemoryAnalyticsStore) Events(ctx context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Event, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

// UpdateSpecialist applies fn to the specialist's aggregate under the store
// lock, creating it on first use.
func (s *InMemoryAnalyticsStore) UpdateSpecialist(ctx context.Context, id string, fn func(*SpecialistMetrics)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.specialists[id]
	if !exists {
		m = &SpecialistMetrics{SpecialistID: id}
		s.specialists[id] = m
	}
	fn(m)
	return nil
}

// SpecialistMetrics returns all aggregates sorted by specialist id.
func (s *InMemoryAnalyticsStore) SpecialistMetrics(ctx context.Context) ([]*SpecialistMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*SpecialistMetrics, 0, len(s.specialists))
	for _, m := range s.specialists {
		copied := *m
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpecialistID < out[j].SpecialistID })
	return out, nil
}
