package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jordanhubbard/counsel/internal/analyzer"
	"github.com/jordanhubbard/counsel/internal/eventbus"
	"github.com/jordanhubbard/counsel/internal/memory"
	"github.com/jordanhubbard/counsel/internal/metrics"
	"github.com/jordanhubbard/counsel/internal/models"
	"github.com/jordanhubbard/counsel/internal/quality"
	"github.com/jordanhubbard/counsel/internal/recovery"
	"github.com/jordanhubbard/counsel/internal/registry"
	"github.com/jordanhubbard/counsel/internal/router"
	"github.com/jordanhubbard/counsel/internal/telemetry"
)

// ErrTaskNotFound is returned by ProcessFeedback for an unrecorded task id.
var ErrTaskNotFound = errors.New("task not found")

const (
	// maxEscalationDepth bounds the tier loop. The escalation matrix has
	// four promotable levels; the loop makes the guarantee structural.
	maxEscalationDepth = 4

	historyCap   = 1000
	historyTrim  = 500
	statusWindow = 100

	dissatisfactionBar = 0.6
)

// Config tunes the engine.
type Config struct {
	// RevalidateOnHit re-runs the quality gate on cached consultations
	// instead of trusting the original verdict. Default trust-cache.
	RevalidateOnHit bool `json:"revalidate_on_hit" yaml:"revalidate_on_hit"`

	// Environment is recorded on escalation events.
	Environment string `json:"environment" yaml:"environment"`
}

// DefaultConfig returns the default engine tuning.
func DefaultConfig() Config {
	return Config{Environment: "production"}
}

// Deps are the engine's injectable collaborators. Nil fields get defaults.
type Deps struct {
	Registry    *registry.Registry
	Memory      *memory.Manager
	Synthesizer Synthesizer
	Bus         eventbus.Publisher
	Metrics     *metrics.Metrics
}

// TaskMetric is one entry in the rolling performance history.
type TaskMetric struct {
	TaskID      string      `json:"task_id"`
	Tier        models.Tier `json:"tier"`
	Success     bool        `json:"success"`
	CacheUsed   bool        `json:"cache_used"`
	DurationMs  int64       `json:"duration_ms"`
	Quality     float64     `json:"quality"`
	Escalations int         `json:"escalations"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Engine drives the consultation pipeline: analyze, route, cache-check,
// execute, quality-gate, then escalate or finish. One instance serves
// concurrent tasks; each task's pipeline is strictly sequential.
type Engine struct {
	cfg       Config
	analyzer  *analyzer.Analyzer
	registry  *registry.Registry
	router    *router.Router
	validator *quality.Validator
	memory    *memory.Manager
	recovery  *recovery.System
	synth     Synthesizer
	bus       eventbus.Publisher
	metrics   *metrics.Metrics

	inflight keyedMutex

	mu       sync.Mutex
	history  []TaskMetric
	outcomes map[string]*models.Outcome
}

// New wires an engine. Nil deps fall back to in-memory defaults.
func New(cfg Config, deps Deps) *Engine {
	if deps.Registry == nil {
		deps.Registry = registry.Default()
	}
	if deps.Memory == nil {
		deps.Memory = memory.NewDefaultManager()
	}
	if deps.Synthesizer == nil {
		deps.Synthesizer = RuleBasedSynthesizer{}
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.NoopPublisher{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics()
	}

	a := analyzer.New()
	return &Engine{
		cfg:       cfg,
		analyzer:  a,
		registry:  deps.Registry,
		router:    router.New(a, deps.Registry, deps.Memory),
		validator: quality.New(),
		memory:    deps.Memory,
		recovery:  recovery.NewSystem(a),
		synth:     deps.Synthesizer,
		bus:       deps.Bus,
		metrics:   deps.Metrics,
		outcomes:  make(map[string]*models.Outcome),
	}
}

// Analyzer exposes the shared analyzer so configuration can adjust tier
// thresholds at runtime.
func (e *Engine) Analyzer() *analyzer.Analyzer { return e.analyzer }

// Memory exposes the context manager for context updates and analytics.
func (e *Engine) Memory() *memory.Manager { return e.memory }

// Recovery exposes the learning system for domain-mapping refinement.
func (e *Engine) Recovery() *recovery.System { return e.recovery }

// ProcessTask runs the full pipeline for one task and always returns an
// outcome; failures are reported, never swallowed.
func (e *Engine) ProcessTask(ctx context.Context, task *models.Task) *models.Outcome {
	start := time.Now()
	if task.ID == "" {
		task.ID = uuid.New().String()
	}

	if telemetry.Tracer != nil {
		var span trace.Span
		ctx, span = telemetry.Tracer.Start(ctx, "orchestrator.process_task",
			trace.WithAttributes(attribute.String("task.id", task.ID)))
		defer span.End()
		telemetry.TasksSubmitted.Add(ctx, 1)
	}

	outcome := e.runWithRecovery(ctx, task)
	outcome.Metadata.ExecutionTimeMs = time.Since(start).Milliseconds()

	e.recordOutcome(outcome)
	e.publish(ctx, outcome)

	tier := outcome.Metadata.Routing.Complexity.Tier
	e.metrics.TasksProcessed.WithLabelValues(string(tier), fmt.Sprintf("%t", outcome.Success)).Inc()
	e.metrics.TaskDuration.WithLabelValues(string(tier)).Observe(time.Since(start).Seconds())

	if telemetry.Tracer != nil {
		attrs := metric.WithAttributes(attribute.String("tier", string(tier)))
		if outcome.Success {
			telemetry.TasksCompleted.Add(ctx, 1, attrs)
		} else {
			telemetry.TasksFailed.Add(ctx, 1, attrs)
		}
		telemetry.ConsultLatency.Record(ctx, float64(outcome.Metadata.ExecutionTimeMs), attrs)
	}

	return outcome
}

// runWithRecovery attempts the pipeline and, on a pipeline-level error,
// makes at most one recovery attempt before reporting a terminal failure.
func (e *Engine) runWithRecovery(ctx context.Context, task *models.Task) *models.Outcome {
	outcome, err := e.pipeline(ctx, task)
	if err == nil {
		return outcome
	}

	analysis := recovery.AnalyzeFailure(err.Error())
	log.Printf("[Engine] Task %s failed (severity %d): %v", task.ID, analysis.Severity, err)

	strategy, recoverable := recovery.SuggestStrategy(analysis)
	if recoverable {
		overall := e.analyzer.Analyze(task).OverallScore
		recovered, applyErr := recovery.Apply(strategy, task, overall)
		if applyErr == nil {
			retried, retryErr := e.pipeline(ctx, recovered)
			if retryErr == nil {
				retried.RecoveryAttempted = true
				e.metrics.Recoveries.WithLabelValues(string(strategy), "success").Inc()
				return retried
			}
			analysis = recovery.AnalyzeFailure(retryErr.Error())
			err = retryErr
		}
		e.metrics.Recoveries.WithLabelValues(string(strategy), "failed").Inc()
	}

	outcome = &models.Outcome{
		TaskID:            task.ID,
		Success:           false,
		Error:             err.Error(),
		FailureAnalysis:   analysis,
		RecoveryAttempted: recoverable,
	}
	if analysis.EscalationNeeded {
		// The failure itself demands deeper expertise; hand the caller a
		// ready escalation envelope with the context preserved.
		tier := e.analyzer.Analyze(task).Tier
		outcome.Metadata.Escalations = []models.EscalationEvent{
			recovery.Escalate(tier, task, analysis, "", e.cfg.Environment),
		}
	}
	return outcome
}

// pipeline is the explicit tier loop. Panics anywhere in the pipeline are
// converted to errors for failure handling.
func (e *Engine) pipeline(ctx context.Context, task *models.Task) (outcome *models.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline failure: %v", r)
		}
	}()

	var trail []models.EscalationEvent
	current := e.withRefinedDomain(task)

	for depth := 0; depth < maxEscalationDepth; depth++ {
		routing := e.router.Route(current)
		analysis := routing.Complexity
		e.metrics.TierRoutings.WithLabelValues(string(analysis.Tier)).Inc()

		done, consultation, result := e.attemptTier(ctx, current, routing)
		if done != nil {
			done.Metadata.Escalations = trail
			return done, nil
		}

		// Gate failed. Escalate if the rubric demands it, otherwise
		// report the failure with its quality issues.
		e.memory.RecordConsultation(ctx, routing.SpecialistID, false, result.OverallScore)
		e.recovery.RecordRoutingOutcome(current.ID, analysis.Tier, false)
		e.metrics.GateResults.WithLabelValues("failed").Inc()

		if !result.EscalationNeeded {
			return e.failedOutcome(current, routing, consultation, trail,
				"quality gate failed: "+strings.Join(result.Suggestions, "; ")), nil
		}

		next, ok := analysis.Tier.Next()
		event := models.EscalationEvent{
			FromTier:    analysis.Tier,
			ToTier:      next,
			CanEscalate: ok,
			Cause:       "quality_gate",
			Task:        task,
			AttemptedApproach: consultation.Recommendation.Approach,
			ErrorDetail: strings.Join(result.Suggestions, "; "),
			Environment: e.cfg.Environment,
			Timestamp:   time.Now(),
		}
		trail = append(trail, event)
		e.metrics.Escalations.WithLabelValues(string(analysis.Tier)).Inc()

		if !ok || next == models.TierExternal {
			return e.failedOutcome(current, routing, consultation, trail,
				"escalation exhausted: external consultation required"), nil
		}

		clone := *current
		clone.Escalation = &models.EscalationEnvelope{
			FromTier:      analysis.Tier,
			ForcedTier:    next,
			Reason:        "quality_gate",
			Previous:      consultation,
			QualityIssues: result.Suggestions,
		}
		current = &clone
		log.Printf("[Engine] Task %s escalated %s -> %s", current.ID, analysis.Tier, next)
	}

	return e.failedOutcome(current, e.router.Route(current), nil, trail,
		"escalation depth exhausted"), nil
}

// attemptTier runs one tier attempt: cache check, execute, quality gate.
// It returns a terminal outcome, or nil plus the gate result when the
// attempt failed the gate. The cache read-check-then-write is atomic per
// fingerprint.
func (e *Engine) attemptTier(ctx context.Context, task *models.Task, routing models.RoutingDecision) (*models.Outcome, *models.Consultation, models.QualityResult) {
	analysis := routing.Complexity

	unlock := e.inflight.lock(e.memory.CacheKey(task, routing.SpecialistID, analysis.OverallScore))
	defer unlock()

	if cached, hit := e.memory.RetrieveConsultation(ctx, task, routing.SpecialistID, analysis.OverallScore); hit {
		if e.trustHit(task, cached, routing) {
			e.metrics.CacheHits.Inc()
			return &models.Outcome{
				TaskID:  task.ID,
				Success: true,
				Result:  cached,
				Metadata: models.OutcomeMetadata{
					Complexity: analysis,
					Routing:    routing,
					Quality:    cached.Quality,
					CacheUsed:  true,
				},
			}, nil, models.QualityResult{}
		}
	}
	e.metrics.CacheMisses.Inc()

	if analysis.Tier == models.TierDirect {
		rec := DirectPlan(task)
		consultation := e.newConsultation(task, routing, rec, nil)
		if err := e.memory.CacheConsultation(ctx, task, consultation, analysis.OverallScore); err != nil {
			log.Printf("[Engine] Failed to cache consultation for task %s: %v", task.ID, err)
		}
		return &models.Outcome{
			TaskID:  task.ID,
			Success: true,
			Result:  consultation,
			Metadata: models.OutcomeMetadata{
				Complexity: analysis,
				Routing:    routing,
			},
		}, nil, models.QualityResult{}
	}

	specialist, err := e.registry.Get(routing.SpecialistID)
	if err != nil {
		log.Printf("[Engine] Specialist lookup failed for task %s: %v", task.ID, err)
	}
	patterns, err := e.memory.RelevantPatterns(ctx, task, routing.Domain, analysis.OverallScore)
	if err != nil {
		log.Printf("[Engine] Pattern lookup failed for task %s: %v", task.ID, err)
	}
	if len(patterns) > 0 {
		e.metrics.PatternsReused.Inc()
	}

	rec := e.synth.Synthesize(task, routing, specialist, patterns)
	result := e.validator.Validate(quality.Request{
		Task:           task,
		Recommendation: &rec,
		Routing:        &routing,
		Specialist:     specialist,
	})
	e.metrics.QualityScore.Observe(result.OverallScore)

	consultation := e.newConsultation(task, routing, rec, &result)

	if !result.Passed {
		return nil, consultation, result
	}

	// Success: cache, learn, record.
	e.metrics.GateResults.WithLabelValues("passed").Inc()
	if err := e.memory.CacheConsultation(ctx, task, consultation, analysis.OverallScore); err != nil {
		log.Printf("[Engine] Failed to cache consultation for task %s: %v", task.ID, err)
	}
	if err := e.memory.StoreSuccessPattern(ctx, task, routing.Domain, analysis.OverallScore, consultation); err != nil {
		log.Printf("[Engine] Failed to store success pattern for task %s: %v", task.ID, err)
	} else {
		e.metrics.PatternsStored.Inc()
	}
	if len(patterns) > 0 {
		if err := e.memory.RecordPatternUse(ctx, patterns[0].ID, true); err != nil {
			log.Printf("[Engine] Failed to record pattern use: %v", err)
		}
	}
	e.memory.RecordConsultation(ctx, routing.SpecialistID, true, result.OverallScore)
	e.recovery.RecordRoutingOutcome(task.ID, analysis.Tier, true)

	return &models.Outcome{
		TaskID:  task.ID,
		Success: true,
		Result:  consultation,
		Metadata: models.OutcomeMetadata{
			Complexity: analysis,
			Routing:    routing,
			Quality:    &result,
		},
	}, nil, models.QualityResult{}
}

// trustHit decides whether a cached consultation may be served. With
// RevalidateOnHit the original verdict is not trusted; the gate re-runs
// against the current task.
func (e *Engine) trustHit(task *models.Task, cached *models.Consultation, routing models.RoutingDecision) bool {
	if !e.cfg.RevalidateOnHit || cached.Tier == models.TierDirect {
		return true
	}
	specialist, err := e.registry.Get(cached.SpecialistID)
	if err != nil {
		return false
	}
	result := e.validator.Validate(quality.Request{
		Task:           task,
		Recommendation: &cached.Recommendation,
		Routing:        &routing,
		Specialist:     specialist,
	})
	return result.Passed
}

func (e *Engine) newConsultation(task *models.Task, routing models.RoutingDecision, rec models.Recommendation, result *models.QualityResult) *models.Consultation {
	return &models.Consultation{
		ID:             uuid.New().String(),
		TaskID:         task.ID,
		SpecialistID:   routing.SpecialistID,
		Tier:           routing.Complexity.Tier,
		Recommendation: rec,
		Quality:        result,
		Routing:        routing,
		CreatedAt:      time.Now(),
	}
}

func (e *Engine) failedOutcome(task *models.Task, routing models.RoutingDecision, consultation *models.Consultation, trail []models.EscalationEvent, detail string) *models.Outcome {
	outcome := &models.Outcome{
		TaskID:  task.ID,
		Success: false,
		Result:  consultation,
		Error:   detail,
		Metadata: models.OutcomeMetadata{
			Complexity:  routing.Complexity,
			Routing:     routing,
			Escalations: trail,
		},
	}
	if consultation != nil {
		outcome.Metadata.Quality = consultation.Quality
	}
	return outcome
}

// withRefinedDomain applies a learned domain mapping to tasks with no
// explicit domain.
func (e *Engine) withRefinedDomain(task *models.Task) *models.Task {
	if task.Domain != "" {
		return task
	}
	domain, ok := e.recovery.RefinedDomain(task.Description)
	if !ok {
		return task
	}
	clone := *task
	clone.Domain = domain
	return &clone
}

// recordOutcome appends to the rolling history and indexes the outcome for
// feedback lookup. Trimming never races inserts; both run under the lock.
func (e *Engine) recordOutcome(outcome *models.Outcome) {
	score := 0.0
	if outcome.Metadata.Quality != nil {
		score = outcome.Metadata.Quality.OverallScore
	}
	metric := TaskMetric{
		TaskID:      outcome.TaskID,
		Tier:        outcome.Metadata.Routing.Complexity.Tier,
		Success:     outcome.Success,
		CacheUsed:   outcome.Metadata.CacheUsed,
		DurationMs:  outcome.Metadata.ExecutionTimeMs,
		Quality:     score,
		Escalations: len(outcome.Metadata.Escalations),
		Timestamp:   time.Now(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, metric)
	e.outcomes[outcome.TaskID] = outcome

	if len(e.history) > historyCap {
		dropped := e.history[:len(e.history)-historyTrim]
		for _, m := range dropped {
			delete(e.outcomes, m.TaskID)
		}
		e.history = append([]TaskMetric(nil), e.history[len(e.history)-historyTrim:]...)
	}
}

func (e *Engine) publish(ctx context.Context, outcome *models.Outcome) {
	subject := eventbus.SubjectTaskCompleted
	if !outcome.Success {
		subject = eventbus.SubjectTaskFailed
	}
	event := &eventbus.TaskEvent{
		TaskID:    outcome.TaskID,
		Tier:      outcome.Metadata.Routing.Complexity.Tier,
		Success:   outcome.Success,
		CacheUsed: outcome.Metadata.CacheUsed,
		Error:     outcome.Error,
	}
	if err := e.bus.Publish(ctx, subject, event); err != nil {
		log.Printf("[Engine] Failed to publish %s for task %s: %v", subject, outcome.TaskID, err)
	}

	for _, esc := range outcome.Metadata.Escalations {
		escEvent := &eventbus.TaskEvent{
			TaskID:  outcome.TaskID,
			Tier:    esc.ToTier,
			Success: false,
			Detail:  map[string]string{"from_tier": string(esc.FromTier), "cause": esc.Cause},
		}
		if err := e.bus.Publish(ctx, eventbus.SubjectTaskEscalated, escEvent); err != nil {
			log.Printf("[Engine] Failed to publish escalation for task %s: %v", outcome.TaskID, err)
		}
		if telemetry.Tracer != nil {
			telemetry.EscalationsTotal.Add(ctx, 1,
				metric.WithAttributes(attribute.String("to_tier", string(esc.ToTier))))
		}
	}
}

// ProcessFeedback records a caller's judgment of an outcome. Unknown task
// ids fail fast with ErrTaskNotFound. Low satisfaction feeds the
// dissatisfaction-learning path.
func (e *Engine) ProcessFeedback(ctx context.Context, taskID string, feedback *models.Feedback) error {
	e.mu.Lock()
	outcome, known := e.outcomes[taskID]
	e.mu.Unlock()
	if !known {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	feedback.TaskID = taskID
	if feedback.ReceivedAt.IsZero() {
		feedback.ReceivedAt = time.Now()
	}

	tier := outcome.Metadata.Routing.Complexity.Tier
	if feedback.Satisfaction < dissatisfactionBar {
		e.recovery.RecordDissatisfaction(taskID, feedback)
		e.recovery.RecordRoutingOutcome(taskID, tier, false)
	} else {
		e.recovery.RecordRoutingOutcome(taskID, tier, true)
	}
	return nil
}

// SystemStatus aggregates the most recent task metrics with analytics and
// learning state.
type SystemStatus struct {
	WindowSize     int                         `json:"window_size"`
	SuccessRate    float64                     `json:"success_rate"`
	AvgDurationMs  float64                     `json:"avg_duration_ms"`
	AvgQuality     float64                     `json:"avg_quality"`
	CacheHitRate   float64                     `json:"cache_hit_rate"`
	TierCounts     map[models.Tier]int         `json:"tier_counts"`
	Escalations    int                         `json:"escalations"`
	Patterns       int                         `json:"patterns"`
	Specialists    []*memory.SpecialistMetrics `json:"specialists"`
	LearningEvents []recovery.LearningEvent    `json:"learning_events,omitempty"`
	Thresholds     analyzer.Thresholds         `json:"thresholds"`
}

// GetSystemStatus summarizes the most recent 100 task metrics.
func (e *Engine) GetSystemStatus(ctx context.Context) (*SystemStatus, error) {
	e.mu.Lock()
	window := e.history
	if len(window) > statusWindow {
		window = window[len(window)-statusWindow:]
	}
	window = append([]TaskMetric(nil), window...)
	e.mu.Unlock()

	status := &SystemStatus{
		WindowSize: len(window),
		TierCounts: make(map[models.Tier]int),
		Thresholds: e.analyzer.Thresholds(),
	}

	var successes, gated int
	var durationSum, qualitySum float64
	for _, m := range window {
		if m.Success {
			successes++
		}
		durationSum += float64(m.DurationMs)
		if m.Quality > 0 {
			qualitySum += m.Quality
			gated++
		}
		status.TierCounts[m.Tier]++
		status.Escalations += m.Escalations
	}
	if len(window) > 0 {
		status.SuccessRate = float64(successes) / float64(len(window))
		status.AvgDurationMs = durationSum / float64(len(window))
	}
	if gated > 0 {
		status.AvgQuality = qualitySum / float64(gated)
	}

	report, err := e.memory.Analytics(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to build analytics report: %w", err)
	}
	status.CacheHitRate = report.Cache.HitRate
	status.Patterns = report.Patterns
	status.Specialists = report.Specialists
	status.LearningEvents = e.recovery.Events(20)

	return status, nil
}

// keyedMutex provides one mutex per cache key so that concurrent tasks
// with the same fingerprint serialize, while unrelated tasks do not.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
