package models

import "time"

// Tier represents a consultation depth. Tiers only ever advance forward
// within a single escalation chain.
type Tier string

const (
	TierDirect   Tier = "DIRECT"
	Tier1        Tier = "TIER_1"
	Tier2        Tier = "TIER_2"
	Tier3        Tier = "TIER_3"
	TierExternal Tier = "EXTERNAL" // terminal; cannot escalate further
)

// Rank returns the ordinal position of a tier in the escalation matrix.
// Unknown tiers rank as DIRECT.
func (t Tier) Rank() int {
	switch t {
	case Tier1:
		return 1
	case Tier2:
		return 2
	case Tier3:
		return 3
	case TierExternal:
		return 4
	default:
		return 0
	}
}

// Next returns the next tier in the escalation matrix and whether
// escalation is possible. EXTERNAL is terminal.
func (t Tier) Next() (Tier, bool) {
	switch t {
	case TierDirect:
		return Tier1, true
	case Tier1:
		return Tier2, true
	case Tier2:
		return Tier3, true
	case Tier3:
		return TierExternal, true
	default:
		return TierExternal, false
	}
}

// Task is an immutable unit of work submitted for consultation.
// All fields besides Description are optional; missing fields degrade to
// neutral defaults during analysis rather than causing rejection.
type Task struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	Domain       string   `json:"domain,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
	PatternTags  []string `json:"pattern_tags,omitempty"`

	// Complexity hints
	Complexity   float64 `json:"complexity,omitempty"` // explicit override, 0 = unset
	Scope        string  `json:"scope,omitempty"`      // single-file, module, system, enterprise
	FileCount    int     `json:"file_count,omitempty"`
	Integrations int     `json:"integrations,omitempty"`
	Compliance   []string `json:"compliance,omitempty"` // e.g. gdpr, hipaa, pci-dss

	// Risk hints
	DataSensitivity    string `json:"data_sensitivity,omitempty"`    // low, medium, high
	SystemCriticality  string `json:"system_criticality,omitempty"`  // low, medium, high
	ImplementationRisk string `json:"implementation_risk,omitempty"` // low, medium, high
	TimelinePressure   bool   `json:"timeline_pressure,omitempty"`

	// Feature flags
	Performance   bool `json:"performance,omitempty"`
	Scalability   bool `json:"scalability,omitempty"`
	BusinessLogic bool `json:"business_logic,omitempty"`

	// Escalation is set internally when a task re-enters the pipeline at a
	// forced tier. Never supplied by callers.
	Escalation *EscalationEnvelope `json:"escalation,omitempty"`
}

// EscalationEnvelope carries prior-attempt context when a task is promoted
// to a deeper tier.
type EscalationEnvelope struct {
	FromTier     Tier          `json:"from_tier"`
	ForcedTier   Tier          `json:"forced_tier"`
	Reason       string        `json:"reason"`
	Previous     *Consultation `json:"previous,omitempty"`
	QualityIssues []string     `json:"quality_issues,omitempty"`
}

// ComplexityAnalysis is the output of the complexity analyzer. All four
// sub-scores are clamped to [1,10].
type ComplexityAnalysis struct {
	ScopeScore     float64 `json:"scope_score"`
	TechnicalScore float64 `json:"technical_score"`
	DomainScore    float64 `json:"domain_score"`
	RiskScore      float64 `json:"risk_score"`
	OverallScore   float64 `json:"overall_score"`
	Tier           Tier    `json:"tier"`
	Confidence     float64 `json:"confidence"`
	Advisory       string  `json:"advisory,omitempty"`
}

// SpecialistProfile describes a consultation role: its tier, affinities and
// the complexity band it handles best.
type SpecialistProfile struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Tier            Tier     `json:"tier"`
	Domains         []string `json:"domains"`
	Technologies    []string `json:"technologies"`
	MinComplexity   float64  `json:"min_complexity"`
	MaxComplexity   float64  `json:"max_complexity"`
	Prerequisites   []string `json:"prerequisites,omitempty"`
	HandoffCriteria []string `json:"handoff_criteria,omitempty"`
}

// InComplexityRange reports whether a score falls inside the specialist's
// preferred complexity band.
func (p *SpecialistProfile) InComplexityRange(score float64) bool {
	return score >= p.MinComplexity && score <= p.MaxComplexity
}

// RoutingDecision is the router's verdict for a task.
type RoutingDecision struct {
	Complexity       ComplexityAnalysis `json:"complexity"`
	Domain           string             `json:"domain"`
	SpecialistID     string             `json:"specialist_id,omitempty"` // empty for DIRECT
	Protocol         string             `json:"protocol"`
	EstimatedMinutes float64            `json:"estimated_minutes"`
	QualityChecklist []string           `json:"quality_checklist"`
	Timestamp        time.Time          `json:"timestamp"`
}

// Recommendation is a synthesized consultation result.
type Recommendation struct {
	Approach        string   `json:"approach"`
	Steps           []string `json:"steps"`
	Technologies    []string `json:"technologies,omitempty"`
	Considerations  []string `json:"considerations,omitempty"`
	Rationale       string   `json:"rationale,omitempty"`
	Risks           []string `json:"risks,omitempty"`
	Timeline        string   `json:"timeline,omitempty"`
	Resources       []string `json:"resources,omitempty"`
	TestingStrategy string   `json:"testing_strategy,omitempty"`
	Confidence      float64  `json:"confidence"`
}

// QualityCheck is a single rubric check result.
type QualityCheck struct {
	Score  float64 `json:"score"` // normalized to [0,1]
	Passed bool    `json:"passed"`
}

// QualityResult aggregates the six rubric checks. Passed requires every
// individual bar to be met; the weighted average alone is not sufficient.
type QualityResult struct {
	Checks           map[string]QualityCheck `json:"checks"`
	OverallScore     float64                 `json:"overall_score"`
	Grade            string                  `json:"grade"`
	Passed           bool                    `json:"passed"`
	EscalationNeeded bool                    `json:"escalation_needed"`
	Suggestions      []string                `json:"suggestions,omitempty"`
}

// Consultation is the cached/stored unit: a routed task plus its validated
// recommendation.
type Consultation struct {
	ID             string          `json:"id"`
	TaskID         string          `json:"task_id"`
	SpecialistID   string          `json:"specialist_id,omitempty"`
	Tier           Tier            `json:"tier"`
	Recommendation Recommendation  `json:"recommendation"`
	Quality        *QualityResult  `json:"quality,omitempty"`
	Routing        RoutingDecision `json:"routing"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Pattern is a reusable task shape with a running success rate. Patterns
// persist for the process lifetime, bounded to the most recent N entries.
type Pattern struct {
	ID           string    `json:"id"`
	Domain       string    `json:"domain"`
	Technologies []string  `json:"technologies"`
	Complexity   float64   `json:"complexity"`
	SpecialistID string    `json:"specialist_id"`
	Approach     string    `json:"approach"`
	SuccessRate  float64   `json:"success_rate"` // bounded running average in [0,1]
	UsageCount   int64     `json:"usage_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EscalationEvent records one tier promotion with its preserved context.
type EscalationEvent struct {
	FromTier          Tier      `json:"from_tier"`
	ToTier            Tier      `json:"to_tier"`
	CanEscalate       bool      `json:"can_escalate"`
	Cause             string    `json:"cause"`
	Severity          int       `json:"severity"`
	Task              *Task     `json:"task,omitempty"`
	AttemptedApproach string    `json:"attempted_approach,omitempty"`
	ErrorDetail       string    `json:"error_detail,omitempty"`
	Environment       string    `json:"environment,omitempty"`
	RequiredExpertise []string  `json:"required_expertise,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// OutcomeMetadata captures the pipeline trace attached to every outcome.
type OutcomeMetadata struct {
	Complexity      ComplexityAnalysis `json:"complexity"`
	Routing         RoutingDecision    `json:"routing"`
	Quality         *QualityResult     `json:"quality,omitempty"`
	ExecutionTimeMs int64              `json:"execution_time_ms"`
	CacheUsed       bool               `json:"cache_used"`
	Escalations     []EscalationEvent  `json:"escalations,omitempty"`
}

// Outcome is the terminal result of processing one task.
type Outcome struct {
	TaskID            string           `json:"task_id"`
	Success           bool             `json:"success"`
	Result            *Consultation    `json:"result,omitempty"`
	Metadata          OutcomeMetadata  `json:"metadata"`
	Error             string           `json:"error,omitempty"`
	FailureAnalysis   *FailureAnalysis `json:"failure_analysis,omitempty"`
	RecoveryAttempted bool             `json:"recovery_attempted"`
}

// FailureAnalysis is the recovery system's assessment of a failed attempt.
type FailureAnalysis struct {
	FailureTypes     []string `json:"failure_types"`
	Severity         int      `json:"severity"` // 0 (none) to 10 (critical)
	EscalationNeeded bool     `json:"escalation_needed"`
	Detail           string   `json:"detail,omitempty"`
}

// Feedback is a caller's post-hoc judgment of an outcome.
type Feedback struct {
	TaskID       string    `json:"task_id"`
	Satisfaction float64   `json:"satisfaction"` // [0,1]
	QualityIssue string    `json:"quality_issue,omitempty"`
	Comment      string    `json:"comment,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}
