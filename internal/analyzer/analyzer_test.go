package analyzer

import (
	"testing"

	"github.com/jordanhubbard/counsel/internal/models"
)

func TestAnalyzeEmptyTask(t *testing.T) {
	a := New()

	analysis := a.Analyze(&models.Task{})

	// All sub-scores degrade to neutral, never rejected.
	for name, score := range map[string]float64{
		"scope":     analysis.ScopeScore,
		"technical": analysis.TechnicalScore,
		"domain":    analysis.DomainScore,
		"risk":      analysis.RiskScore,
	} {
		if score < 1 || score > 10 {
			t.Errorf("%s score %.2f out of [1,10]", name, score)
		}
	}

	if analysis.Tier != models.TierDirect {
		t.Errorf("Expected DIRECT for empty task, got %s", analysis.Tier)
	}
	if analysis.Confidence != 0 {
		t.Errorf("Expected zero confidence for all-neutral scores, got %.2f", analysis.Confidence)
	}
}

func TestScoreBounds(t *testing.T) {
	a := New()

	// A maximally loaded task must still clamp to [1,10].
	task := &models.Task{
		Description:        "distributed-systems kafka kubernetes machine-learning blockchain",
		Domain:             "security",
		Technologies:       []string{"distributed-systems", "microservices", "kafka", "kubernetes", "machine-learning", "blockchain"},
		Scope:              "enterprise",
		FileCount:          200,
		Integrations:       12,
		Compliance:         []string{"gdpr", "hipaa", "pci-dss", "sox"},
		DataSensitivity:    "high",
		SystemCriticality:  "high",
		ImplementationRisk: "high",
		TimelinePressure:   true,
		Performance:        true,
		Scalability:        true,
		BusinessLogic:      true,
	}

	analysis := a.Analyze(task)
	if analysis.OverallScore < 1 || analysis.OverallScore > 10 {
		t.Errorf("Overall score %.2f out of [1,10]", analysis.OverallScore)
	}
	if analysis.Tier != models.Tier3 {
		t.Errorf("Expected TIER_3 for maximal task, got %s", analysis.Tier)
	}
	if analysis.Confidence != 1.0 {
		t.Errorf("Expected full confidence, got %.2f", analysis.Confidence)
	}
}

func TestTierThresholds(t *testing.T) {
	a := New()

	tests := []struct {
		overall float64
		want    models.Tier
	}{
		{1, models.TierDirect},
		{3, models.TierDirect},
		{3.1, models.Tier1},
		{6, models.Tier1},
		{6.1, models.Tier2},
		{8, models.Tier2},
		{8.1, models.Tier3},
		{10, models.Tier3},
	}

	for _, tt := range tests {
		if got := a.TierFor(tt.overall); got != tt.want {
			t.Errorf("TierFor(%.1f) = %s, want %s", tt.overall, got, tt.want)
		}
	}
}

func TestTierIsDeterministic(t *testing.T) {
	a := New()
	task := &models.Task{
		Description:  "Add caching to the search endpoint",
		Technologies: []string{"caching", "search"},
		Domain:       "backend",
	}

	first := a.Analyze(task)
	for i := 0; i < 10; i++ {
		again := a.Analyze(task)
		if again != first {
			t.Fatalf("Analysis is not deterministic: %+v vs %+v", again, first)
		}
	}
}

func TestExplicitComplexityOverride(t *testing.T) {
	a := New()

	analysis := a.Analyze(&models.Task{Description: "Get campaign list", Complexity: 2})
	if analysis.OverallScore != 2 {
		t.Errorf("Expected explicit complexity 2, got %.2f", analysis.OverallScore)
	}
	if analysis.Tier != models.TierDirect {
		t.Errorf("Expected DIRECT, got %s", analysis.Tier)
	}

	analysis = a.Analyze(&models.Task{Complexity: 9, Scope: "enterprise",
		Technologies: []string{"distributed-systems", "microservices"}})
	if analysis.Tier != models.Tier3 {
		t.Errorf("Expected TIER_3 for complexity 9, got %s", analysis.Tier)
	}
}

func TestAdjustedThresholds(t *testing.T) {
	a := New()
	a.SetThresholds(Thresholds{Direct: 1, Tier1: 2, Tier2: 3})

	if got := a.TierFor(2.5); got != models.Tier2 {
		t.Errorf("Expected TIER_2 under adjusted thresholds, got %s", got)
	}
	if got := a.TierFor(5); got != models.Tier3 {
		t.Errorf("Expected TIER_3 under adjusted thresholds, got %s", got)
	}
}

func TestConfidenceScaling(t *testing.T) {
	a := New()

	// Two informative sub-scores -> confidence 0.5.
	analysis := a.Analyze(&models.Task{
		Scope:  "system",
		Domain: "backend",
	})
	if analysis.Confidence != 0.5 {
		t.Errorf("Expected confidence 0.5, got %.2f", analysis.Confidence)
	}
}
