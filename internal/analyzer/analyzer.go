package analyzer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jordanhubbard/counsel/internal/models"
)

// Sub-score weights for the overall complexity score. They sum to 1.0.
const (
	weightScope     = 0.30
	weightTechnical = 0.30
	weightDomain    = 0.25
	weightRisk      = 0.15
)

// Thresholds are the tier cut points over the overall score. They are
// mutable process configuration; the defaults match the shipped behavior.
type Thresholds struct {
	Direct float64 `json:"direct" yaml:"direct"` // <= Direct -> DIRECT
	Tier1  float64 `json:"tier1" yaml:"tier1"`   // <= Tier1 -> TIER_1
	Tier2  float64 `json:"tier2" yaml:"tier2"`   // <= Tier2 -> TIER_2, else TIER_3
}

// DefaultThresholds returns the default tier cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{Direct: 3, Tier1: 6, Tier2: 8}
}

// complexTechnologies are technologies and patterns that raise the
// technical sub-score when a task mentions them.
var complexTechnologies = map[string]float64{
	"distributed-systems": 3,
	"microservices":       2.5,
	"event-sourcing":      2.5,
	"kubernetes":          2,
	"kafka":               2,
	"machine-learning":    3,
	"blockchain":          3,
	"real-time":           2,
	"graphql":             1.5,
	"websockets":          1.5,
	"oauth":               1.5,
	"caching":             1,
	"search":              1,
}

// domainDifficulty is the fixed base difficulty per domain.
var domainDifficulty = map[string]float64{
	"backend":        3,
	"frontend":       2.5,
	"infrastructure": 4,
	"data":           4,
	"security":       5,
	"integration":    3.5,
	"general":        2,
}

// complianceWeights add domain difficulty per compliance tag.
var complianceWeights = map[string]float64{
	"gdpr":    2,
	"hipaa":   3,
	"pci-dss": 3,
	"sox":     2.5,
	"soc2":    1.5,
}

// riskLevels maps low/medium/high hints to additive risk points.
var riskLevels = map[string]float64{
	"low":    1,
	"medium": 2.5,
	"high":   4,
}

// scopeBreadth maps the scope hint to a base scope score.
var scopeBreadth = map[string]float64{
	"single-file": 1,
	"module":      3,
	"system":      6,
	"enterprise":  9,
}

// Analyzer computes a complexity analysis for a task. Scoring is pure and
// table-driven; the only mutable state is the tier thresholds, which may be
// adjusted at runtime by configuration or recovery learning.
type Analyzer struct {
	mu         sync.RWMutex
	thresholds Thresholds
}

// New creates an Analyzer with default thresholds.
func New() *Analyzer {
	return &Analyzer{thresholds: DefaultThresholds()}
}

// Thresholds returns the current tier cut points.
func (a *Analyzer) Thresholds() Thresholds {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.thresholds
}

// SetThresholds replaces the tier cut points.
func (a *Analyzer) SetThresholds(t Thresholds) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.thresholds = t
}

// Analyze scores a task. Missing fields default to neutral (1); there are
// no error paths.
func (a *Analyzer) Analyze(task *models.Task) models.ComplexityAnalysis {
	scope := a.scoreScope(task)
	technical := a.scoreTechnical(task)
	domain := a.scoreDomain(task)
	risk := a.scoreRisk(task)

	overall := weightScope*scope + weightTechnical*technical +
		weightDomain*domain + weightRisk*risk

	// An explicit complexity hint overrides the computed score.
	if task.Complexity > 0 {
		overall = clamp(task.Complexity)
	}

	tier := a.TierFor(overall)

	informative := 0
	for _, s := range []float64{scope, technical, domain, risk} {
		if s > 1 {
			informative++
		}
	}
	confidence := 0.25 * float64(informative)
	if confidence > 1.0 {
		confidence = 1.0
	}

	return models.ComplexityAnalysis{
		ScopeScore:     scope,
		TechnicalScore: technical,
		DomainScore:    domain,
		RiskScore:      risk,
		OverallScore:   overall,
		Tier:           tier,
		Confidence:     confidence,
		Advisory:       advisory(tier, overall),
	}
}

// TierFor maps an overall score to a tier using the current thresholds.
func (a *Analyzer) TierFor(overall float64) models.Tier {
	a.mu.RLock()
	t := a.thresholds
	a.mu.RUnlock()

	switch {
	case overall <= t.Direct:
		return models.TierDirect
	case overall <= t.Tier1:
		return models.Tier1
	case overall <= t.Tier2:
		return models.Tier2
	default:
		return models.Tier3
	}
}

func (a *Analyzer) scoreScope(task *models.Task) float64 {
	score := 1.0
	if base, ok := scopeBreadth[strings.ToLower(task.Scope)]; ok {
		score = base
	}
	if task.FileCount > 0 {
		score += float64(task.FileCount) / 10.0
	}
	if task.Integrations > 0 {
		score += float64(task.Integrations) * 1.5
	}
	return clamp(score)
}

func (a *Analyzer) scoreTechnical(task *models.Task) float64 {
	score := 1.0
	text := strings.ToLower(task.Description)
	for _, tech := range task.Technologies {
		if pts, ok := complexTechnologies[strings.ToLower(tech)]; ok {
			score += pts
		} else {
			score += 0.5
		}
	}
	for name, pts := range complexTechnologies {
		if strings.Contains(text, name) {
			score += pts / 2
		}
	}
	score += float64(task.Integrations)
	if task.Performance {
		score += 1.5
	}
	if task.Scalability {
		score += 1.5
	}
	return clamp(score)
}

func (a *Analyzer) scoreDomain(task *models.Task) float64 {
	score := 1.0
	if base, ok := domainDifficulty[strings.ToLower(task.Domain)]; ok {
		score = base
	}
	for _, tag := range task.Compliance {
		if pts, ok := complianceWeights[strings.ToLower(tag)]; ok {
			score += pts
		} else {
			score += 1
		}
	}
	if task.BusinessLogic {
		score += 1.5
	}
	return clamp(score)
}

func (a *Analyzer) scoreRisk(task *models.Task) float64 {
	score := 1.0
	if pts, ok := riskLevels[strings.ToLower(task.DataSensitivity)]; ok {
		score += pts
	}
	if pts, ok := riskLevels[strings.ToLower(task.SystemCriticality)]; ok {
		score += pts
	}
	if pts, ok := riskLevels[strings.ToLower(task.ImplementationRisk)]; ok {
		score += pts
	}
	if task.TimelinePressure {
		score += 1.5
	}
	return clamp(score)
}

func advisory(tier models.Tier, overall float64) string {
	switch tier {
	case models.TierDirect:
		return "Simple task; handle directly without consultation."
	case models.Tier1:
		return "Moderate complexity; a single specialist consultation is sufficient."
	case models.Tier2:
		return fmt.Sprintf("High complexity (%.1f); senior specialist consultation recommended.", overall)
	default:
		return fmt.Sprintf("Very high complexity (%.1f); principal-level consultation with staged review.", overall)
	}
}

// clamp bounds a sub-score to [1,10].
func clamp(v float64) float64 {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}
