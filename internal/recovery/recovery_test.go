package recovery

import (
	"testing"

	"github.com/jordanhubbard/counsel/internal/analyzer"
	"github.com/jordanhubbard/counsel/internal/models"
)

func TestAnalyzeFailureSeverityIsMax(t *testing.T) {
	// Medium integration signal plus critical security signal: the
	// catastrophic one dominates, it is not summed.
	analysis := AnalyzeFailure("timeout talking to auth service, possible privilege escalation detected")

	if analysis.Severity != severityCritical {
		t.Errorf("Expected severity %d, got %d", severityCritical, analysis.Severity)
	}
	if !analysis.EscalationNeeded {
		t.Error("Critical failures must need escalation")
	}

	types := make(map[string]bool)
	for _, ft := range analysis.FailureTypes {
		types[ft] = true
	}
	if !types[FailureIntegration] || !types[FailureSecurity] {
		t.Errorf("Expected integration and security categories, got %v", analysis.FailureTypes)
	}
}

func TestAnalyzeFailureClean(t *testing.T) {
	analysis := AnalyzeFailure("everything completed normally")
	if analysis.Severity != severityNone {
		t.Errorf("Expected severity 0, got %d", analysis.Severity)
	}
	if analysis.EscalationNeeded {
		t.Error("Clean failures must not need escalation")
	}
	if len(analysis.FailureTypes) != 0 {
		t.Errorf("Expected no failure types, got %v", analysis.FailureTypes)
	}
}

func TestAnalyzeFailureDetectorTable(t *testing.T) {
	tests := []struct {
		detail   string
		category string
		severity int
	}{
		{"compilation failed on module build", FailureSyntax, severityHigh},
		{"found a typo in the config", FailureSyntax, severityLow},
		{"the batch job produced the wrong result", FailureLogic, severityHigh},
		{"data corruption in the ledger table", FailureLogic, severityCritical},
		{"connection refused by payment gateway", FailureIntegration, severityHigh},
		{"slow query on the reporting dashboard", FailurePerformance, severityMedium},
		{"process killed, out of memory", FailurePerformance, severityCritical},
		{"exposed secret in the build logs", FailureSecurity, severityHigh},
	}

	for _, tt := range tests {
		analysis := AnalyzeFailure(tt.detail)
		if analysis.Severity != tt.severity {
			t.Errorf("%q: expected severity %d, got %d", tt.detail, tt.severity, analysis.Severity)
		}
		found := false
		for _, ft := range analysis.FailureTypes {
			if ft == tt.category {
				found = true
			}
		}
		if !found {
			t.Errorf("%q: expected category %s in %v", tt.detail, tt.category, analysis.FailureTypes)
		}
	}
}

func TestEscalationMatrixForwardOnly(t *testing.T) {
	task := &models.Task{ID: "task-1", Description: "deploy the billing service"}
	analysis := AnalyzeFailure("connection refused by billing backend")

	steps := []struct {
		from        models.Tier
		wantTo      models.Tier
		canEscalate bool
	}{
		{models.TierDirect, models.Tier1, true},
		{models.Tier1, models.Tier2, true},
		{models.Tier2, models.Tier3, true},
		{models.Tier3, models.TierExternal, true},
		{models.TierExternal, models.TierExternal, false},
	}

	for _, step := range steps {
		event := Escalate(step.from, task, analysis, "restart and redeploy", "staging")
		if event.ToTier != step.wantTo {
			t.Errorf("Escalate from %s: expected %s, got %s", step.from, step.wantTo, event.ToTier)
		}
		if event.CanEscalate != step.canEscalate {
			t.Errorf("Escalate from %s: expected canEscalate=%v", step.from, step.canEscalate)
		}
	}
}

func TestEscalationPreservesContext(t *testing.T) {
	task := &models.Task{ID: "task-1", Description: "migrate user data"}
	analysis := AnalyzeFailure("schema mismatch during migration")

	event := Escalate(models.Tier1, task, analysis, "run migration script v2", "production")

	if event.Task != task {
		t.Error("Escalation must preserve the original task verbatim")
	}
	if event.AttemptedApproach != "run migration script v2" {
		t.Errorf("Attempted approach not preserved: %q", event.AttemptedApproach)
	}
	if event.ErrorDetail != "schema mismatch during migration" {
		t.Errorf("Error detail not preserved: %q", event.ErrorDetail)
	}
	if event.Environment != "production" {
		t.Errorf("Environment not preserved: %q", event.Environment)
	}
	if len(event.RequiredExpertise) == 0 {
		t.Error("Expected derived expertise tags for an integration failure")
	}
}

func TestSuggestStrategy(t *testing.T) {
	if _, ok := SuggestStrategy(&models.FailureAnalysis{Severity: 9, EscalationNeeded: true}); ok {
		t.Error("Escalation-level failures get no in-place recovery")
	}
	if s, ok := SuggestStrategy(&models.FailureAnalysis{Severity: 5}); !ok || s != StrategySimplify {
		t.Errorf("Expected simplify for medium severity, got %q", s)
	}
	if s, ok := SuggestStrategy(&models.FailureAnalysis{Severity: 3}); !ok || s != StrategyRetry {
		t.Errorf("Expected retry for low severity, got %q", s)
	}
}

func TestApplyRetryLeavesTaskUnchanged(t *testing.T) {
	task := &models.Task{ID: "task-1", Complexity: 7}

	clone, err := Apply(StrategyRetry, task, 7)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if clone == task {
		t.Error("Apply must return a copy, not the original")
	}
	if clone.Complexity != 7 {
		t.Errorf("Retry must not change complexity, got %.1f", clone.Complexity)
	}
}

func TestApplySimplifyLowersComplexity(t *testing.T) {
	tests := []struct {
		explicit  float64
		effective float64
		want      float64
	}{
		{7, 0, 5},
		{2, 0, 1},   // floor 1
		{0, 6.5, 4.5}, // falls back to the analyzed score
		{0, 2, 1},
	}

	for _, tt := range tests {
		task := &models.Task{Complexity: tt.explicit}
		clone, err := Apply(StrategySimplify, task, tt.effective)
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if clone.Complexity != tt.want {
			t.Errorf("simplify(%.1f/%.1f): expected %.1f, got %.1f",
				tt.explicit, tt.effective, tt.want, clone.Complexity)
		}
		if task.Complexity != tt.explicit {
			t.Error("Apply must not mutate the input task")
		}
	}
}

func TestApplyUnknownStrategyFails(t *testing.T) {
	if _, err := Apply(Strategy("meditate"), &models.Task{}, 5); err == nil {
		t.Error("Unknown strategies must fail immediately")
	}
}

func TestThresholdNudgeAfterInaccurateStreak(t *testing.T) {
	a := analyzer.New()
	s := NewSystem(a)

	before := a.Thresholds()
	for i := 0; i < minTierSamples; i++ {
		s.RecordRoutingOutcome("task-1", models.Tier1, false)
	}

	after := a.Thresholds()
	if after.Tier1 >= before.Tier1 {
		t.Errorf("Expected Tier1 cut point lowered, got %.2f -> %.2f", before.Tier1, after.Tier1)
	}
	if before.Tier1-after.Tier1 > thresholdStep+1e-9 {
		t.Error("One bad streak must produce exactly one fixed-step nudge")
	}
	if after.Direct != before.Direct || after.Tier2 != before.Tier2 {
		t.Error("Only the inaccurate tier's cut point may move")
	}
}

func TestThresholdNudgePreservesOrdering(t *testing.T) {
	a := analyzer.New()
	a.SetThresholds(analyzer.Thresholds{Direct: 3, Tier1: 3.05, Tier2: 8})
	s := NewSystem(a)

	for i := 0; i < minTierSamples*3; i++ {
		s.RecordRoutingOutcome("task-1", models.Tier1, false)
	}

	after := a.Thresholds()
	if after.Tier1 <= after.Direct {
		t.Errorf("Cut points must stay ordered: direct=%.2f tier1=%.2f", after.Direct, after.Tier1)
	}
}

func TestAccurateRoutingDoesNotNudge(t *testing.T) {
	a := analyzer.New()
	s := NewSystem(a)

	before := a.Thresholds()
	for i := 0; i < 20; i++ {
		s.RecordRoutingOutcome("task-1", models.Tier2, true)
	}
	if a.Thresholds() != before {
		t.Error("Accurate routing must leave thresholds untouched")
	}
}

func TestDomainMappingRefinement(t *testing.T) {
	s := NewSystem(nil)

	s.LearnDomainMapping("payment gateway", "integration")

	domain, ok := s.RefinedDomain("Fix retries when the Payment Gateway times out")
	if !ok || domain != "integration" {
		t.Errorf("Expected learned integration mapping, got %q (%v)", domain, ok)
	}

	if _, ok := s.RefinedDomain("render the settings page"); ok {
		t.Error("Unrelated text must not match a learned mapping")
	}
}

func TestLearningLogIsCapped(t *testing.T) {
	s := NewSystem(nil)

	for i := 0; i < maxLogEvents*2; i++ {
		s.RecordDissatisfaction("task-1", &models.Feedback{Satisfaction: 0.2})
	}

	events := s.Events(0)
	if len(events) > maxLogEvents {
		t.Errorf("Learning log exceeded cap: %d entries", len(events))
	}
	if len(events) == 0 {
		t.Fatal("Expected retained learning events")
	}
}

func TestDissatisfactionRecordsQualityProblem(t *testing.T) {
	s := NewSystem(nil)
	s.RecordDissatisfaction("task-1", &models.Feedback{
		Satisfaction: 0.3,
		QualityIssue: "timeline was unrealistic",
	})

	events := s.Events(0)
	var sawDissatisfaction, sawQuality bool
	for _, e := range events {
		switch e.Type {
		case LearnDissatisfaction:
			sawDissatisfaction = true
		case LearnQualityProblem:
			sawQuality = true
		}
	}
	if !sawDissatisfaction || !sawQuality {
		t.Errorf("Expected both dissatisfaction and quality events, got %v", events)
	}
}
