package memory

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jordanhubbard/counsel/internal/cache"
	"github.com/jordanhubbard/counsel/internal/models"
)

// Pattern relevance scoring.
const (
	patternDomainBonus    = 10
	patternTechBonus      = 2
	patternProximityBonus = 5  // maximum; decays with complexity distance
	patternScoreScale     = 15 // similarityThreshold is a fraction of this
)

// knownDomains is the fixed domain vocabulary used for decision-driven
// pattern extraction.
var knownDomains = []string{"backend", "frontend", "infrastructure", "data", "security", "integration"}

// Config tunes the context manager.
type Config struct {
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"` // fraction of the max pattern score
	MaxPatterns         int     `json:"max_patterns" yaml:"max_patterns"`                 // bounded retention
}

// DefaultConfig returns the default manager tuning.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.6,
		MaxPatterns:         500,
	}
}

// Manager is the context manager: versioned project context, the
// consultation cache, the pattern library and the analytics log. All four
// stores are injectable so durable backends can replace the in-memory
// defaults without algorithm changes.
type Manager struct {
	config    Config
	contexts  ContextStore
	cache     *cache.Cache
	cacheCfg  *cache.Config
	patterns  PatternStore
	analytics AnalyticsStore
}

// NewManager wires a context manager from its stores. Nil stores fall back
// to in-memory defaults.
func NewManager(config Config, contexts ContextStore, consultations *cache.Cache, cacheCfg *cache.Config, patterns PatternStore, analytics AnalyticsStore) *Manager {
	if contexts == nil {
		contexts = NewInMemoryContextStore()
	}
	if cacheCfg == nil {
		cacheCfg = cache.DefaultConfig()
	}
	if consultations == nil {
		consultations = cache.New(cacheCfg)
	}
	if patterns == nil {
		patterns = NewInMemoryPatternStore()
	}
	if analytics == nil {
		analytics = NewInMemoryAnalyticsStore(0)
	}
	return &Manager{
		config:    config,
		contexts:  contexts,
		cache:     consultations,
		cacheCfg:  cacheCfg,
		patterns:  patterns,
		analytics: analytics,
	}
}

// NewDefaultManager creates a fully in-memory manager.
func NewDefaultManager() *Manager {
	return NewManager(DefaultConfig(), nil, nil, nil, nil, nil)
}

// UpdateProjectContext appends a new snapshot and returns its version.
// New decisions trigger pattern extraction.
func (m *Manager) UpdateProjectContext(ctx context.Context, snapshot *ContextSnapshot) (int64, error) {
	version, err := m.contexts.Append(ctx, snapshot)
	if err != nil {
		return 0, fmt.Errorf("failed to append context snapshot: %w", err)
	}

	for _, decision := range snapshot.Decisions {
		if p := patternFromDecision(decision); p != nil {
			if err := m.patterns.Save(ctx, p); err != nil {
				log.Printf("[Memory] Failed to store decision pattern: %v", err)
				continue
			}
			m.record(ctx, Event{Type: EventPatternStored, Detail: p.Domain})
		}
	}
	m.trimPatterns(ctx)

	return version, nil
}

// ProjectContext returns the latest snapshot, or nil when none exist.
func (m *Manager) ProjectContext(ctx context.Context) (*ContextSnapshot, error) {
	return m.contexts.Latest(ctx)
}

// specialistKey normalizes the cache namespace; DIRECT work has no
// specialist.
func specialistKey(id string) string {
	if id == "" {
		return "direct"
	}
	return id
}

// CacheConsultation stores a validated consultation under the task's
// fingerprint. TTL scales with complexity.
func (m *Manager) CacheConsultation(ctx context.Context, task *models.Task, consultation *models.Consultation, complexity float64) error {
	key := cache.Key(specialistKey(consultation.SpecialistID), cache.Fingerprint(task, complexity))
	return m.cache.Set(ctx, key, consultation, m.cacheCfg.TTLFor(complexity))
}

// RetrieveConsultation looks up a cached consultation for an equivalent
// task. Hits and misses are recorded as analytics events.
func (m *Manager) RetrieveConsultation(ctx context.Context, task *models.Task, specialistID string, complexity float64) (*models.Consultation, bool) {
	key := cache.Key(specialistKey(specialistID), cache.Fingerprint(task, complexity))
	consultation, found := m.cache.Get(ctx, key)

	eventType := EventCacheMiss
	if found {
		eventType = EventCacheHit
	}
	m.record(ctx, Event{Type: eventType, TaskID: task.ID})

	return consultation, found
}

// CacheKey exposes the derived key for a task, used by the orchestrator's
// per-fingerprint inflight guard.
func (m *Manager) CacheKey(task *models.Task, specialistID string, complexity float64) string {
	return cache.Key(specialistKey(specialistID), cache.Fingerprint(task, complexity))
}

// RelevantPatterns scores stored patterns against a task and returns those
// at or above the similarity threshold, most relevant first.
func (m *Manager) RelevantPatterns(ctx context.Context, task *models.Task, domain string, complexity float64) ([]*models.Pattern, error) {
	all, err := m.patterns.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}

	threshold := m.config.SimilarityThreshold * patternScoreScale

	type scored struct {
		pattern *models.Pattern
		score   float64
	}
	var relevant []scored
	for _, p := range all {
		score := patternScore(p, task, domain, complexity)
		if score >= threshold {
			relevant = append(relevant, scored{pattern: p, score: score})
		}
	}

	sort.SliceStable(relevant, func(i, j int) bool { return relevant[i].score > relevant[j].score })

	out := make([]*models.Pattern, 0, len(relevant))
	for _, s := range relevant {
		out = append(out, s.pattern)
	}
	return out, nil
}

// StoreSuccessPattern records a successful consultation as a reusable
// pattern. Failed outcomes are never stored.
func (m *Manager) StoreSuccessPattern(ctx context.Context, task *models.Task, domain string, complexity float64, consultation *models.Consultation) error {
	p := &models.Pattern{
		ID:           uuid.New().String(),
		Domain:       domain,
		Technologies: append([]string(nil), task.Technologies...),
		Complexity:   complexity,
		SpecialistID: consultation.SpecialistID,
		Approach:     consultation.Recommendation.Approach,
		SuccessRate:  1.0,
		UsageCount:   1,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := m.patterns.Save(ctx, p); err != nil {
		return fmt.Errorf("failed to store success pattern: %w", err)
	}
	m.record(ctx, Event{Type: EventPatternStored, TaskID: task.ID, Detail: domain})
	m.trimPatterns(ctx)
	return nil
}

// RecordPatternUse folds one observed outcome into the pattern's running
// success rate. The update is atomic per pattern id and the rate stays in
// [0,1]; the final value after n uses is order-independent.
func (m *Manager) RecordPatternUse(ctx context.Context, patternID string, success bool) error {
	err := m.patterns.Update(ctx, patternID, func(p *models.Pattern) error {
		value := 0.0
		if success {
			value = 1.0
		}
		p.UsageCount++
		p.SuccessRate += (value - p.SuccessRate) / float64(p.UsageCount)
		if p.SuccessRate < 0 {
			p.SuccessRate = 0
		}
		if p.SuccessRate > 1 {
			p.SuccessRate = 1
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.record(ctx, Event{Type: EventPatternReuse, Detail: patternID})
	return nil
}

// RecordConsultation folds one consultation outcome into the specialist's
// running metrics.
func (m *Manager) RecordConsultation(ctx context.Context, specialistID string, success bool, qualityScore float64) {
	if specialistID == "" {
		return
	}
	err := m.analytics.UpdateSpecialist(ctx, specialistID, func(sm *SpecialistMetrics) {
		sm.Consultations++
		if success {
			sm.Successes++
		}
		sm.AvgQuality += (qualityScore - sm.AvgQuality) / float64(sm.Consultations)
	})
	if err != nil {
		log.Printf("[Memory] Failed to update specialist metrics: %v", err)
	}
	m.record(ctx, Event{Type: EventConsultation, Detail: specialistID})
}

// SpecialistSuccessRate implements the router's SuccessRates lookup.
func (m *Manager) SpecialistSuccessRate(id string) (float64, bool) {
	all, err := m.analytics.SpecialistMetrics(context.Background())
	if err != nil {
		return 0, false
	}
	for _, sm := range all {
		if sm.SpecialistID == id {
			return sm.SuccessRate()
		}
	}
	return 0, false
}

// Report summarizes cache and consultation analytics.
type Report struct {
	Cache       cache.Stats          `json:"cache"`
	Specialists []*SpecialistMetrics `json:"specialists"`
	Patterns    int                  `json:"patterns"`
	Events      []Event              `json:"recent_events"`
}

// Analytics builds the current analytics report.
func (m *Manager) Analytics(ctx context.Context, eventLimit int) (*Report, error) {
	specialists, err := m.analytics.SpecialistMetrics(ctx)
	if err != nil {
		return nil, err
	}
	events, err := m.analytics.Events(ctx, eventLimit)
	if err != nil {
		return nil, err
	}
	patterns, err := m.patterns.List(ctx)
	if err != nil {
		return nil, err
	}

	return &Report{
		Cache:       m.cache.GetStats(),
		Specialists: specialists,
		Patterns:    len(patterns),
		Events:      events,
	}, nil
}

func (m *Manager) record(ctx context.Context, event Event) {
	if err := m.analytics.RecordEvent(ctx, event); err != nil {
		log.Printf("[Memory] Failed to record analytics event: %v", err)
	}
}

func (m *Manager) trimPatterns(ctx context.Context) {
	if m.config.MaxPatterns <= 0 {
		return
	}
	if err := m.patterns.Trim(ctx, m.config.MaxPatterns); err != nil {
		log.Printf("[Memory] Failed to trim pattern library: %v", err)
	}
}

// patternScore rates a stored pattern's relevance to a task: +10 for a
// domain match, +2 per overlapping technology, and up to +5 for complexity
// proximity.
func patternScore(p *models.Pattern, task *models.Task, domain string, complexity float64) float64 {
	score := 0.0

	if strings.EqualFold(p.Domain, domain) {
		score += patternDomainBonus
	}

	for _, t := range task.Technologies {
		for _, pt := range p.Technologies {
			if strings.EqualFold(t, pt) {
				score += patternTechBonus
				break
			}
		}
	}

	proximity := patternProximityBonus - math.Abs(p.Complexity-complexity)
	if proximity > 0 {
		score += proximity
	}

	return score
}

// patternFromDecision extracts a proto-pattern from a recorded decision of
// the form "<domain>: <approach>". Decisions outside the known domain
// vocabulary produce no pattern.
func patternFromDecision(decision string) *models.Pattern {
	parts := strings.SplitN(decision, ":", 2)
	if len(parts) != 2 {
		return nil
	}
	domain := strings.ToLower(strings.TrimSpace(parts[0]))
	approach := strings.TrimSpace(parts[1])
	if approach == "" {
		return nil
	}

	for _, known := range knownDomains {
		if domain == known {
			return &models.Pattern{
				ID:          uuid.New().String(),
				Domain:      domain,
				Approach:    approach,
				SuccessRate: 0.5, // unproven until reused
				CreatedAt:   time.Now(),
				UpdatedAt:   time.Now(),
			}
		}
	}
	return nil
}
