package orchestrator

import (
	"fmt"
	"strings"

	"github.com/jordanhubbard/counsel/internal/models"
)

// directConfidence is the fixed confidence of a DIRECT plan. DIRECT work
// skips the quality gate entirely.
const directConfidence = 0.95

// Synthesizer turns a routed task into a recommendation. The default is
// rule-based text generation; a real consultation mechanism can be
// substituted without touching routing, quality or caching.
type Synthesizer interface {
	Synthesize(task *models.Task, routing models.RoutingDecision, profile *models.SpecialistProfile, patterns []*models.Pattern) models.Recommendation
}

// DirectPlan synthesizes the trivial plan for DIRECT-tier work.
func DirectPlan(task *models.Task) models.Recommendation {
	return models.Recommendation{
		Approach:   "Handle directly without specialist consultation: " + summarize(task),
		Steps:      []string{"Implement the change", "Verify the result"},
		Rationale:  "Complexity is below the consultation threshold.",
		Confidence: directConfidence,
	}
}

// RuleBasedSynthesizer is the default Synthesizer. It assembles a
// recommendation from registry metadata and previously successful patterns.
type RuleBasedSynthesizer struct{}

func (RuleBasedSynthesizer) Synthesize(task *models.Task, routing models.RoutingDecision, profile *models.SpecialistProfile, patterns []*models.Pattern) models.Recommendation {
	rec := models.Recommendation{
		Steps: []string{
			"Clarify requirements, constraints and acceptance criteria",
			"Design the change within the existing architecture",
			"Implement incrementally with peer review at each step",
			"Validate the result against the routing quality checklist",
			"Document decisions and hand off",
		},
		Timeline:        fmt.Sprintf("Approximately %.0f minutes of specialist effort", routing.EstimatedMinutes),
		TestingStrategy: "Unit and integration tests per step; validate edge cases and failure modes before rollout.",
	}

	specialistName := "the assigned specialist"
	if profile != nil {
		specialistName = profile.Name
		rec.Resources = []string{profile.Name, "Peer reviewer"}
		rec.Considerations = append(rec.Considerations, profile.Prerequisites...)
	} else {
		rec.Resources = []string{"Engineering lead", "Peer reviewer"}
	}
	rec.Considerations = append(rec.Considerations,
		"Review existing dependencies before introducing changes",
		"Coordinate rollout with dependent teams")

	if len(patterns) > 0 {
		rec.Approach = fmt.Sprintf("Adapt the proven %s approach: %s", routing.Domain, patterns[0].Approach)
		rec.Rationale = fmt.Sprintf("A prior %s consultation with %.0f%% success covers a closely matching task shape.",
			routing.Domain, patterns[0].SuccessRate*100)
	} else {
		rec.Approach = fmt.Sprintf("Phased %s implementation led by %s", routing.Domain, specialistName)
		rec.Rationale = fmt.Sprintf("Complexity %.1f routes this to %s; %s has the closest domain and technology fit.",
			routing.Complexity.OverallScore, routing.Complexity.Tier, specialistName)
	}

	// Stay within the declared stacks; surprise technologies fail review.
	if len(task.Technologies) > 0 {
		rec.Technologies = append([]string(nil), task.Technologies...)
	} else if profile != nil && len(profile.Technologies) > 0 {
		n := len(profile.Technologies)
		if n > 3 {
			n = 3
		}
		rec.Technologies = append([]string(nil), profile.Technologies[:n]...)
	}

	rec.Risks = riskList(task)

	// An escalated task carries the previous attempt's gate feedback.
	if task.Escalation != nil {
		rec.Considerations = append(rec.Considerations, task.Escalation.QualityIssues...)
	}

	rec.Confidence = 0.7 + 0.05*float64(min(len(patterns), 4))
	return rec
}

func riskList(task *models.Task) []string {
	var risks []string
	if strings.EqualFold(task.ImplementationRisk, "high") {
		risks = append(risks, "High implementation risk declared; stage the rollout behind a flag")
	}
	if strings.EqualFold(task.DataSensitivity, "high") {
		risks = append(risks, "Sensitive data in scope; apply encryption and access auditing")
	}
	if task.TimelinePressure {
		risks = append(risks, "Timeline pressure may force scope cuts")
	}
	if len(risks) == 0 {
		risks = append(risks, "Scope growth during implementation")
	}
	return risks
}

func summarize(task *models.Task) string {
	if len(task.Description) <= 60 {
		return task.Description
	}
	return task.Description[:57] + "..."
}

var _ Synthesizer = RuleBasedSynthesizer{}
