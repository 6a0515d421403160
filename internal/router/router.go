package router

import (
	"strings"
	"time"

	"github.com/jordanhubbard/counsel/internal/analyzer"
	"github.com/jordanhubbard/counsel/internal/models"
	"github.com/jordanhubbard/counsel/internal/registry"
)

// Routing score bonuses.
const (
	bonusDomainMatch = 10
	bonusPerTech     = 2
	bonusInRange     = 5
	bonusSuccessRate = 5 // scaled by the historical success rate
)

// tierBaseMinutes is the base time estimate per tier, scaled by complexity.
var tierBaseMinutes = map[models.Tier]float64{
	models.TierDirect: 30,
	models.Tier1:      120,
	models.Tier2:      480,
	models.Tier3:      1440,
}

// domainKeywords maps domains to the free-text keywords that imply them.
// First match wins, in this fixed order.
var domainKeywordOrder = []string{"security", "infrastructure", "data", "frontend", "backend", "integration"}

var domainKeywords = map[string][]string{
	"security":       {"security", "auth", "encryption", "vulnerability", "compliance", "audit"},
	"infrastructure": {"deploy", "kubernetes", "docker", "terraform", "cluster", "infrastructure", "ci/cd"},
	"data":           {"database", "schema", "migration", "etl", "pipeline", "analytics", "warehouse"},
	"frontend":       {"ui", "frontend", "react", "css", "component", "browser", "accessibility"},
	"backend":        {"api", "endpoint", "server", "backend", "service", "rest", "grpc"},
	"integration":    {"integration", "webhook", "third-party", "sync", "connector"},
}

// qualityChecklists grow monotonically with tier, from 2 checks for DIRECT
// to 8 for TIER_3.
var qualityChecklists = map[models.Tier][]string{
	models.TierDirect: {
		"output matches the request",
		"no obvious errors",
	},
	models.Tier1: {
		"output matches the request",
		"no obvious errors",
		"follows existing conventions",
		"edge cases considered",
	},
	models.Tier2: {
		"output matches the request",
		"no obvious errors",
		"follows existing conventions",
		"edge cases considered",
		"performance impact assessed",
		"rollback plan exists",
	},
	models.Tier3: {
		"output matches the request",
		"no obvious errors",
		"follows existing conventions",
		"edge cases considered",
		"performance impact assessed",
		"rollback plan exists",
		"cross-team impact reviewed",
		"long-term maintenance plan",
	},
}

// SuccessRates exposes historical per-specialist success rates for routing.
// Implemented by the analytics side of the context manager.
type SuccessRates interface {
	SpecialistSuccessRate(id string) (float64, bool)
}

// Router maps a task to a specialist, protocol and time estimate.
type Router struct {
	analyzer *analyzer.Analyzer
	registry *registry.Registry
	rates    SuccessRates
}

// New creates a router. rates may be nil when no history is available.
func New(a *analyzer.Analyzer, r *registry.Registry, rates SuccessRates) *Router {
	return &Router{analyzer: a, registry: r, rates: rates}
}

// Route always returns a decision, even for empty or neutral tasks.
func (r *Router) Route(task *models.Task) models.RoutingDecision {
	analysis := r.analyzer.Analyze(task)

	// A forced tier from an escalation envelope overrides the analyzed tier.
	if task.Escalation != nil && task.Escalation.ForcedTier != "" {
		analysis.Tier = task.Escalation.ForcedTier
	}

	domain := r.InferDomain(task)

	var specialistID string
	if analysis.Tier != models.TierDirect {
		if best := r.selectSpecialist(task, analysis, domain); best != nil {
			specialistID = best.ID
		}
	}

	return models.RoutingDecision{
		Complexity:       analysis,
		Domain:           domain,
		SpecialistID:     specialistID,
		Protocol:         protocolFor(analysis.Tier),
		EstimatedMinutes: tierBaseMinutes[analysis.Tier] * (1 + analysis.OverallScore/10),
		QualityChecklist: checklistFor(analysis.Tier),
		Timestamp:        time.Now(),
	}
}

// InferDomain resolves a task's domain: explicit field wins, else the first
// keyword match over the task's free text, else "general".
func (r *Router) InferDomain(task *models.Task) string {
	if task.Domain != "" {
		return strings.ToLower(task.Domain)
	}

	text := strings.ToLower(task.Description + " " + strings.Join(task.Technologies, " "))
	for _, domain := range domainKeywordOrder {
		for _, kw := range domainKeywords[domain] {
			if strings.Contains(text, kw) {
				return domain
			}
		}
	}
	return "general"
}

// selectSpecialist scores each candidate and returns the highest. Ties are
// broken by catalog order: the first candidate to reach the best score wins.
func (r *Router) selectSpecialist(task *models.Task, analysis models.ComplexityAnalysis, domain string) *models.SpecialistProfile {
	candidates := r.registry.Candidates(analysis.Tier, domain)
	if len(candidates) == 0 {
		return nil
	}

	var best *models.SpecialistProfile
	bestScore := -1.0

	for _, p := range candidates {
		score := r.scoreSpecialist(p, task, analysis, domain)
		if score > bestScore {
			bestScore = score
			best = p
		}
	}
	return best
}

func (r *Router) scoreSpecialist(p *models.SpecialistProfile, task *models.Task, analysis models.ComplexityAnalysis, domain string) float64 {
	score := 0.0

	for _, d := range p.Domains {
		if strings.EqualFold(d, domain) {
			score += bonusDomainMatch
			break
		}
	}

	for _, t := range task.Technologies {
		for _, pt := range p.Technologies {
			if strings.EqualFold(t, pt) {
				score += bonusPerTech
				break
			}
		}
	}

	if p.InComplexityRange(analysis.OverallScore) {
		score += bonusInRange
	}

	if r.rates != nil {
		if rate, ok := r.rates.SpecialistSuccessRate(p.ID); ok {
			score += bonusSuccessRate * rate
		}
	}

	return score
}

func protocolFor(tier models.Tier) string {
	switch tier {
	case models.TierDirect:
		return "direct-execution"
	case models.Tier1:
		return "single-consultation"
	case models.Tier2:
		return "senior-consultation"
	default:
		return "principal-review"
	}
}

func checklistFor(tier models.Tier) []string {
	list, ok := qualityChecklists[tier]
	if !ok {
		list = qualityChecklists[models.Tier3]
	}
	out := make([]string, len(list))
	copy(out, list)
	return out
}
