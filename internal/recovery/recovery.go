package recovery

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jordanhubbard/counsel/internal/analyzer"
	"github.com/jordanhubbard/counsel/internal/models"
)

// Failure categories detected by the heuristic scanners.
const (
	FailureSyntax      = "syntax"
	FailureLogic       = "logic"
	FailureIntegration = "integration"
	FailurePerformance = "performance"
	FailureSecurity    = "security"
)

// Severity buckets. Overall severity is the max across detectors, so a
// single catastrophic signal dominates.
const (
	severityNone     = 0
	severityLow      = 3
	severityMedium   = 5
	severityHigh     = 8
	severityCritical = 10
)

// escalationSeverity is the bucket at or above which a failure forces a
// tier promotion instead of an in-place recovery attempt.
const escalationSeverity = severityHigh

// detector scans failure text for one category. Rules are checked in
// order; the first match sets the bucket.
type detector struct {
	category string
	rules    []detectRule
}

type detectRule struct {
	keywords []string
	severity int
}

var detectors = []detector{
	{
		category: FailureSyntax,
		rules: []detectRule{
			{keywords: []string{"parse error", "unexpected token", "compilation failed"}, severity: severityHigh},
			{keywords: []string{"syntax error", "undefined symbol", "missing import"}, severity: severityMedium},
			{keywords: []string{"typo", "formatting"}, severity: severityLow},
		},
	},
	{
		category: FailureLogic,
		rules: []detectRule{
			{keywords: []string{"data corruption", "invariant violated"}, severity: severityCritical},
			{keywords: []string{"wrong result", "incorrect output", "off-by-one", "infinite loop"}, severity: severityHigh},
			{keywords: []string{"logic error", "unexpected behavior", "edge case"}, severity: severityMedium},
		},
	},
	{
		category: FailureIntegration,
		rules: []detectRule{
			{keywords: []string{"connection refused", "service unavailable", "handshake failed"}, severity: severityHigh},
			{keywords: []string{"timeout", "api error", "version mismatch", "schema mismatch"}, severity: severityMedium},
			{keywords: []string{"deprecated endpoint", "retry succeeded"}, severity: severityLow},
		},
	},
	{
		category: FailurePerformance,
		rules: []detectRule{
			{keywords: []string{"out of memory", "resource exhausted"}, severity: severityCritical},
			{keywords: []string{"deadlock", "thrashing", "unbounded growth"}, severity: severityHigh},
			{keywords: []string{"slow query", "high latency", "memory leak"}, severity: severityMedium},
		},
	},
	{
		category: FailureSecurity,
		rules: []detectRule{
			{keywords: []string{"data breach", "credentials leaked", "privilege escalation", "injection"}, severity: severityCritical},
			{keywords: []string{"vulnerability", "unauthorized access", "exposed secret"}, severity: severityHigh},
			{keywords: []string{"weak cipher", "missing audit log"}, severity: severityMedium},
		},
	},
}

// requiredExpertise maps a failure category to the expertise tags carried
// on the escalation event.
var requiredExpertise = map[string][]string{
	FailureSyntax:      {"code-review", "tooling"},
	FailureLogic:       {"domain-modeling", "testing"},
	FailureIntegration: {"api-design", "distributed-systems"},
	FailurePerformance: {"profiling", "capacity-planning"},
	FailureSecurity:    {"security-audit", "threat-modeling"},
}

// AnalyzeFailure runs all five detectors over the failure detail and
// aggregates their verdicts. Severity is the max across categories.
func AnalyzeFailure(detail string) *models.FailureAnalysis {
	text := strings.ToLower(detail)

	analysis := &models.FailureAnalysis{Detail: detail}
	for _, d := range detectors {
		severity := d.scan(text)
		if severity == severityNone {
			continue
		}
		analysis.FailureTypes = append(analysis.FailureTypes, d.category)
		if severity > analysis.Severity {
			analysis.Severity = severity
		}
	}
	analysis.EscalationNeeded = analysis.Severity >= escalationSeverity
	return analysis
}

func (d detector) scan(text string) int {
	for _, rule := range d.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.severity
			}
		}
	}
	return severityNone
}

// Escalate builds the escalation event for a failed attempt. The original
// task, attempted approach, error detail and environment are preserved
// verbatim; expertise tags derive from the failure categories. Escalating
// from a terminal tier returns CanEscalate false.
func Escalate(from models.Tier, task *models.Task, analysis *models.FailureAnalysis, approach, environment string) models.EscalationEvent {
	next, ok := from.Next()

	event := models.EscalationEvent{
		FromTier:          from,
		ToTier:            next,
		CanEscalate:       ok,
		Cause:             strings.Join(analysis.FailureTypes, ","),
		Severity:          analysis.Severity,
		Task:              task,
		AttemptedApproach: approach,
		ErrorDetail:       analysis.Detail,
		Environment:       environment,
		Timestamp:         time.Now(),
	}

	seen := make(map[string]bool)
	for _, category := range analysis.FailureTypes {
		for _, tag := range requiredExpertise[category] {
			if !seen[tag] {
				seen[tag] = true
				event.RequiredExpertise = append(event.RequiredExpertise, tag)
			}
		}
	}
	return event
}

// Strategy names a recovery action.
type Strategy string

const (
	StrategyRetry    Strategy = "retry"
	StrategySimplify Strategy = "simplify"
)

// SuggestStrategy picks the recovery action for a failure. Failures severe
// enough to force escalation get no in-place recovery.
func SuggestStrategy(analysis *models.FailureAnalysis) (Strategy, bool) {
	if analysis.EscalationNeeded {
		return "", false
	}
	if analysis.Severity >= severityMedium {
		return StrategySimplify, true
	}
	return StrategyRetry, true
}

// Apply produces the task for a recovery re-run. retry re-runs unchanged;
// simplify lowers the effective complexity by 2 with a floor of 1. The
// input task is never mutated. Unknown strategies fail immediately.
func Apply(strategy Strategy, task *models.Task, effectiveComplexity float64) (*models.Task, error) {
	switch strategy {
	case StrategyRetry:
		clone := *task
		return &clone, nil
	case StrategySimplify:
		clone := *task
		current := clone.Complexity
		if current == 0 {
			current = effectiveComplexity
		}
		clone.Complexity = current - 2
		if clone.Complexity < 1 {
			clone.Complexity = 1
		}
		return &clone, nil
	default:
		return nil, fmt.Errorf("unknown recovery strategy %q", strategy)
	}
}

// LearningEventType classifies a recorded learning update.
type LearningEventType string

const (
	LearnFailure         LearningEventType = "failure"
	LearnDissatisfaction LearningEventType = "dissatisfaction"
	LearnQualityProblem  LearningEventType = "quality_problem"
	LearnThresholdAdjust LearningEventType = "threshold_adjust"
	LearnDomainRefine    LearningEventType = "domain_refine"
)

// LearningEvent is one entry in the capped learning log.
type LearningEvent struct {
	Type      LearningEventType `json:"type"`
	TaskID    string            `json:"task_id,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Threshold learning tuning. Adjustments are small fixed steps, applied
// only once enough routing observations exist for a tier.
const (
	thresholdStep  = 0.1
	accuracyFloor  = 0.8
	minTierSamples = 5
	maxLogEvents   = 200
)

// ThresholdTuner is the slice of the analyzer the learner adjusts.
type ThresholdTuner interface {
	Thresholds() analyzer.Thresholds
	SetThresholds(analyzer.Thresholds)
}

// System accumulates failure and feedback signals and turns them into
// heuristic adjustments: tier-threshold nudges, learned domain mappings
// and a capped learning-event log. Not a trained model.
type System struct {
	mu     sync.Mutex
	tuner  ThresholdTuner
	log    []LearningEvent
	tiers  map[models.Tier]*tierAccuracy
	domain map[string]string // learned keyword -> domain
}

type tierAccuracy struct {
	observations int
	accurate     int
}

// NewSystem creates a recovery learner bound to the analyzer's thresholds.
func NewSystem(tuner ThresholdTuner) *System {
	return &System{
		tuner:  tuner,
		tiers:  make(map[models.Tier]*tierAccuracy),
		domain: make(map[string]string),
	}
}

// RecordRoutingOutcome feeds one observed routing result into the tier
// accuracy stats. When a tier's accuracy drops below the floor, its upper
// cut point shifts down one fixed step so comparable tasks route deeper.
func (s *System) RecordRoutingOutcome(taskID string, tier models.Tier, accurate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.tiers[tier]
	if !ok {
		acc = &tierAccuracy{}
		s.tiers[tier] = acc
	}
	acc.observations++
	if accurate {
		acc.accurate++
		return
	}

	s.append(LearningEvent{Type: LearnFailure, TaskID: taskID, Detail: string(tier)})

	if acc.observations < minTierSamples {
		return
	}
	if float64(acc.accurate)/float64(acc.observations) >= accuracyFloor {
		return
	}

	if s.tuner != nil && s.nudgeThreshold(tier) {
		// Reset the window so one bad streak produces one nudge.
		acc.observations = 0
		acc.accurate = 0
		s.append(LearningEvent{Type: LearnThresholdAdjust, TaskID: taskID, Detail: string(tier)})
	}
}

// nudgeThreshold lowers the failing tier's upper cut point by one step,
// preserving DIRECT < TIER_1 < TIER_2 ordering with a gap of at least one
// step between cut points.
func (s *System) nudgeThreshold(tier models.Tier) bool {
	t := s.tuner.Thresholds()
	switch tier {
	case models.TierDirect:
		if t.Direct-thresholdStep < 1 {
			return false
		}
		t.Direct -= thresholdStep
	case models.Tier1:
		if t.Tier1-thresholdStep <= t.Direct {
			return false
		}
		t.Tier1 -= thresholdStep
	case models.Tier2:
		if t.Tier2-thresholdStep <= t.Tier1 {
			return false
		}
		t.Tier2 -= thresholdStep
	default:
		return false
	}
	s.tuner.SetThresholds(t)
	log.Printf("[Recovery] Adjusted tier thresholds after inaccurate %s routing: %+v", tier, t)
	return true
}

// RecordDissatisfaction logs a low-satisfaction feedback signal. A named
// quality issue is logged separately as a quality problem.
func (s *System) RecordDissatisfaction(taskID string, feedback *models.Feedback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.append(LearningEvent{
		Type:   LearnDissatisfaction,
		TaskID: taskID,
		Detail: fmt.Sprintf("satisfaction=%.2f", feedback.Satisfaction),
	})
	if feedback.QualityIssue != "" {
		s.append(LearningEvent{Type: LearnQualityProblem, TaskID: taskID, Detail: feedback.QualityIssue})
	}
}

// LearnDomainMapping records that tasks mentioning keyword belong to
// domain, refining future routing for tasks with no explicit domain.
func (s *System) LearnDomainMapping(keyword, domain string) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	domain = strings.ToLower(strings.TrimSpace(domain))
	if keyword == "" || domain == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.domain[keyword] = domain
	s.append(LearningEvent{Type: LearnDomainRefine, Detail: keyword + "->" + domain})
}

// RefinedDomain returns a learned domain for the text, if any mapping
// matches.
func (s *System) RefinedDomain(text string) (string, bool) {
	lower := strings.ToLower(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	for keyword, domain := range s.domain {
		if strings.Contains(lower, keyword) {
			return domain, true
		}
	}
	return "", false
}

// Events returns the learning log, newest first.
func (s *System) Events(limit int) []LearningEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.log)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]LearningEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.log[i])
	}
	return out
}

// append adds to the capped log; callers hold the lock.
func (s *System) append(event LearningEvent) {
	event.Timestamp = time.Now()
	if len(s.log) >= maxLogEvents {
		keep := maxLogEvents / 2
		s.log = append([]LearningEvent(nil), s.log[len(s.log)-keep:]...)
	}
	s.log = append(s.log, event)
}
