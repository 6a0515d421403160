package quality

import (
	"strings"

	"github.com/jordanhubbard/counsel/internal/models"
)

// Check names. Every validation runs all six; a single failure never
// aborts the pass.
const (
	CheckAlignment   = "expertise_alignment"
	CheckQuality     = "recommendation_quality"
	CheckViability   = "implementation_viability"
	CheckRisk        = "risk_assessment"
	CheckConsistency = "consistency"
	CheckSecurity    = "security"
)

// Per-check pass bars. Passed requires every bar to be met; the weighted
// average alone is never sufficient.
var passBars = map[string]float64{
	CheckAlignment:   0.70,
	CheckQuality:     0.80,
	CheckViability:   0.80,
	CheckRisk:        0.40, // below this the risk level is "high"
	CheckConsistency: 0.90,
	CheckSecurity:    0.95, // strictest gate
}

// Weights for the overall score.
var checkWeights = map[string]float64{
	CheckAlignment:   0.20,
	CheckQuality:     0.25,
	CheckViability:   0.20,
	CheckRisk:        0.15,
	CheckConsistency: 0.10,
	CheckSecurity:    0.10,
}

// adviceTable maps a failed check to its improvement suggestion.
var adviceTable = map[string]string{
	CheckAlignment:   "Route to a specialist whose domain and technology affinity match the task, or adjust the task's declared domain.",
	CheckQuality:     "Expand the recommendation: concrete steps, rationale, considerations and a testing strategy are all expected.",
	CheckViability:   "Add missing delivery detail: timeline, required resources, dependencies, skills and tooling must all be addressed.",
	CheckRisk:        "Identify and mitigate the highest-severity risks before proceeding; pair each listed risk with a mitigation.",
	CheckConsistency: "Align the proposed technologies and approach with the task's existing stack and established patterns.",
	CheckSecurity:    "Remove insecure shortcuts and add explicit security handling: validation, authentication and data protection.",
}

// gradeBreakpoints maps overall score floors to letter grades, highest first.
var gradeBreakpoints = []struct {
	floor float64
	grade string
}{
	{0.95, "A+"},
	{0.90, "A"},
	{0.85, "B+"},
	{0.80, "B"},
	{0.75, "C+"},
	{0.70, "C"},
	{0.50, "D"},
	{0, "F"},
}

// securityRedFlags are phrases that immediately degrade the security check.
var securityRedFlags = []string{
	"hardcode", "hard-code", "plaintext password", "disable validation",
	"skip auth", "disable tls", "ignore certificate", "world-readable",
}

// Request carries everything the rubric needs for one validation pass.
type Request struct {
	Task           *models.Task
	Recommendation *models.Recommendation
	Routing        *models.RoutingDecision
	Specialist     *models.SpecialistProfile // nil for DIRECT work
}

// Validator runs the six-check rubric.
type Validator struct{}

// New creates a Validator.
func New() *Validator {
	return &Validator{}
}

// Validate runs all six checks and aggregates the result. Checks are
// independent: each produces a score and pass flag regardless of the others.
func (v *Validator) Validate(req Request) models.QualityResult {
	checks := map[string]models.QualityCheck{
		CheckAlignment:   scored(CheckAlignment, v.checkAlignment(req)),
		CheckQuality:     scored(CheckQuality, v.checkQuality(req)),
		CheckViability:   scored(CheckViability, v.checkViability(req)),
		CheckRisk:        scored(CheckRisk, v.checkRisk(req)),
		CheckConsistency: scored(CheckConsistency, v.checkConsistency(req)),
		CheckSecurity:    scored(CheckSecurity, v.checkSecurity(req)),
	}

	overall := 0.0
	passed := true
	var suggestions []string
	for name, check := range checks {
		overall += checkWeights[name] * check.Score
		if !check.Passed {
			passed = false
		}
	}
	// Deterministic suggestion order.
	for _, name := range []string{CheckAlignment, CheckQuality, CheckViability, CheckRisk, CheckConsistency, CheckSecurity} {
		if !checks[name].Passed {
			suggestions = append(suggestions, adviceTable[name])
		}
	}

	escalation := !checks[CheckSecurity].Passed || !checks[CheckRisk].Passed || overall < 0.60

	return models.QualityResult{
		Checks:           checks,
		OverallScore:     overall,
		Grade:            gradeFor(overall),
		Passed:           passed,
		EscalationNeeded: escalation,
		Suggestions:      suggestions,
	}
}

func scored(name string, score float64) models.QualityCheck {
	return models.QualityCheck{Score: score, Passed: score >= passBars[name]}
}

// checkAlignment measures domain, technology and complexity fit between the
// routed specialist and the task.
func (v *Validator) checkAlignment(req Request) float64 {
	if req.Specialist == nil {
		// Nothing to misalign with; DIRECT work gets a neutral pass.
		return 1.0
	}

	score := 0.0

	for _, d := range req.Specialist.Domains {
		if strings.EqualFold(d, req.Routing.Domain) {
			score += 0.4
			break
		}
	}

	if len(req.Task.Technologies) == 0 {
		score += 0.3
	} else {
		matched := 0
		for _, t := range req.Task.Technologies {
			for _, pt := range req.Specialist.Technologies {
				if strings.EqualFold(t, pt) {
					matched++
					break
				}
			}
		}
		score += 0.3 * float64(matched) / float64(len(req.Task.Technologies))
	}

	if req.Specialist.InComplexityRange(req.Routing.Complexity.OverallScore) {
		score += 0.3
	}

	return score
}

// checkQuality averages six completeness/clarity facets of the recommendation.
func (v *Validator) checkQuality(req Request) float64 {
	rec := req.Recommendation
	facets := []bool{
		rec.Approach != "" && len(rec.Steps) > 0,       // completeness
		len(rec.Approach) >= 20 && len(rec.Steps) >= 2, // clarity
		rec.Confidence >= 0.5,                          // feasibility
		len(rec.Considerations) > 0,                    // best practices
		rec.Rationale != "",                            // documentation
		rec.TestingStrategy != "",                      // testability
	}
	return fraction(facets)
}

// checkViability runs the five delivery sub-checks: resources, timeline,
// dependencies, skills, tooling.
func (v *Validator) checkViability(req Request) float64 {
	rec := req.Recommendation
	text := recText(rec)
	facets := []bool{
		len(rec.Resources) > 0,
		rec.Timeline != "",
		len(rec.Considerations) > 0 || strings.Contains(text, "depend"),
		len(rec.Technologies) > 0 || req.Specialist == nil,
		len(rec.Steps) > 0,
	}
	return fraction(facets)
}

// checkRisk inverts the average of five risk categories. A score below the
// bar means the residual risk level is "high".
func (v *Validator) checkRisk(req Request) float64 {
	task := req.Task
	rec := req.Recommendation

	categories := []float64{
		riskHintLevel(task.DataSensitivity),
		riskHintLevel(task.SystemCriticality),
		riskHintLevel(task.ImplementationRisk),
		boolRisk(task.TimelinePressure),
		unmitigatedRisk(rec),
	}

	sum := 0.0
	for _, c := range categories {
		sum += c
	}
	return 1 - sum/float64(len(categories))
}

// checkConsistency verifies architecture, standards, naming and pattern
// agreement between the recommendation and the task.
func (v *Validator) checkConsistency(req Request) float64 {
	rec := req.Recommendation
	facets := []bool{
		techSubsetOfKnown(rec, req),                    // architecture: no surprise stack
		rec.Approach != "",                             // standards: stated approach
		!strings.Contains(recText(rec), "rewrite from scratch"), // pattern agreement
		rec.Confidence > 0 && rec.Confidence <= 1,      // sane self-assessment
	}
	return fraction(facets)
}

// checkSecurity runs six sub-checks. This is the strictest gate: any red
// flag phrase fails it outright.
func (v *Validator) checkSecurity(req Request) float64 {
	rec := req.Recommendation
	text := recText(rec)

	for _, flag := range securityRedFlags {
		if strings.Contains(text, flag) {
			return 0
		}
	}

	sensitive := strings.EqualFold(req.Task.DataSensitivity, "high") ||
		len(req.Task.Compliance) > 0 ||
		strings.EqualFold(req.Routing.Domain, "security")

	mentionsSecurity := strings.Contains(text, "security") ||
		strings.Contains(text, "auth") ||
		strings.Contains(text, "encrypt") ||
		strings.Contains(text, "validat")

	facets := []bool{
		true, // no red flags (checked above)
		!sensitive || mentionsSecurity,               // sensitive work addresses security
		!sensitive || len(rec.Considerations) > 0,    // sensitive work lists considerations
		rec.Confidence < 1.0 || !sensitive,           // no absolute certainty on sensitive work
		!strings.Contains(text, "temporary workaround") || !sensitive,
		true, // reserved: dependency provenance, not inferable from text
	}
	return fraction(facets)
}

func gradeFor(overall float64) string {
	for _, bp := range gradeBreakpoints {
		if overall >= bp.floor {
			return bp.grade
		}
	}
	return "F"
}

func fraction(facets []bool) float64 {
	passed := 0
	for _, ok := range facets {
		if ok {
			passed++
		}
	}
	return float64(passed) / float64(len(facets))
}

func recText(rec *models.Recommendation) string {
	parts := []string{rec.Approach, rec.Rationale, rec.Timeline, rec.TestingStrategy}
	parts = append(parts, rec.Steps...)
	parts = append(parts, rec.Considerations...)
	parts = append(parts, rec.Risks...)
	return strings.ToLower(strings.Join(parts, " "))
}

func riskHintLevel(hint string) float64 {
	switch strings.ToLower(hint) {
	case "high":
		return 1.0
	case "medium":
		return 0.5
	case "low":
		return 0.2
	default:
		return 0.2
	}
}

func boolRisk(b bool) float64 {
	if b {
		return 0.8
	}
	return 0.2
}

// unmitigatedRisk is high when risks are listed without any considerations
// to counter them.
func unmitigatedRisk(rec *models.Recommendation) float64 {
	if len(rec.Risks) == 0 {
		return 0.2
	}
	if len(rec.Considerations) == 0 {
		return 0.9
	}
	return 0.4
}

// techSubsetOfKnown reports whether the recommendation introduces no
// technologies outside the task's and specialist's declared stacks.
func techSubsetOfKnown(rec *models.Recommendation, req Request) bool {
	if len(rec.Technologies) == 0 {
		return true
	}
	known := make(map[string]bool)
	for _, t := range req.Task.Technologies {
		known[strings.ToLower(t)] = true
	}
	if req.Specialist != nil {
		for _, t := range req.Specialist.Technologies {
			known[strings.ToLower(t)] = true
		}
	}
	for _, t := range rec.Technologies {
		if !known[strings.ToLower(t)] {
			return false
		}
	}
	return true
}
