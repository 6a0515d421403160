package quality

import (
	"testing"

	"github.com/jordanhubbard/counsel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backendSpecialist() *models.SpecialistProfile {
	return &models.SpecialistProfile{
		ID:            "t1-backend",
		Tier:          models.Tier1,
		Domains:       []string{"backend"},
		Technologies:  []string{"caching", "rest"},
		MinComplexity: 3, MaxComplexity: 6,
	}
}

func goodRequest() Request {
	return Request{
		Task: &models.Task{
			Description:  "Add caching to the search endpoint",
			Domain:       "backend",
			Technologies: []string{"caching"},
		},
		Recommendation: &models.Recommendation{
			Approach:        "Introduce a read-through cache in front of the search endpoint",
			Steps:           []string{"add cache layer", "wire invalidation", "measure hit ratio"},
			Technologies:    []string{"caching"},
			Considerations:  []string{"cache invalidation on writes"},
			Rationale:       "Search queries are read-heavy and repeat frequently",
			Risks:           []string{"stale results"},
			Timeline:        "2 days",
			Resources:       []string{"one backend engineer"},
			TestingStrategy: "integration tests around cache hit and invalidation paths",
			Confidence:      0.8,
		},
		Routing: &models.RoutingDecision{
			Domain:     "backend",
			Complexity: models.ComplexityAnalysis{OverallScore: 5, Tier: models.Tier1},
		},
		Specialist: backendSpecialist(),
	}
}

func TestWellFormedRecommendationPasses(t *testing.T) {
	v := New()

	result := v.Validate(goodRequest())

	assert.True(t, result.Passed)
	assert.False(t, result.EscalationNeeded)
	assert.Empty(t, result.Suggestions)
	assert.Equal(t, "A+", result.Grade)
	require.Len(t, result.Checks, 6)
	for name, check := range result.Checks {
		assert.True(t, check.Passed, "check %s should pass: %.2f", name, check.Score)
	}
}

func TestMissingTimelineAndResourcesFailViability(t *testing.T) {
	v := New()

	req := goodRequest()
	req.Recommendation.Timeline = ""
	req.Recommendation.Resources = nil

	result := v.Validate(req)

	// The viability sub-checks for timeline and resources fail; other
	// checks may still pass, but the aggregate cannot.
	assert.False(t, result.Checks[CheckViability].Passed)
	assert.InDelta(t, 0.6, result.Checks[CheckViability].Score, 0.001)
	assert.True(t, result.Checks[CheckQuality].Passed)
	assert.True(t, result.Checks[CheckSecurity].Passed)
	assert.False(t, result.Passed)
	assert.Contains(t, result.Suggestions, adviceTable[CheckViability])
}

func TestPassedRequiresEveryBarNotJustAverage(t *testing.T) {
	v := New()

	req := goodRequest()
	// Sink only the consistency check (weight 0.10) with an out-of-stack
	// technology and a from-scratch rewrite.
	req.Recommendation.Technologies = []string{"erlang"}
	req.Recommendation.Approach = "Rewrite from scratch using a new runtime for the endpoint"

	result := v.Validate(req)

	assert.False(t, result.Checks[CheckConsistency].Passed)
	assert.GreaterOrEqual(t, result.OverallScore, 0.60,
		"weighted average stays healthy while one bar fails")
	assert.False(t, result.Passed, "a single failed bar must fail the gate")
}

func TestSecurityRedFlagForcesEscalation(t *testing.T) {
	v := New()

	req := goodRequest()
	req.Recommendation.Steps = append(req.Recommendation.Steps, "hardcode the API token for now")

	result := v.Validate(req)

	assert.Equal(t, 0.0, result.Checks[CheckSecurity].Score)
	assert.False(t, result.Checks[CheckSecurity].Passed)
	assert.True(t, result.EscalationNeeded, "security failure always escalates")
	assert.Contains(t, result.Suggestions, adviceTable[CheckSecurity])
}

func TestHighRiskTaskForcesEscalation(t *testing.T) {
	v := New()

	req := goodRequest()
	req.Task.DataSensitivity = "high"
	req.Task.SystemCriticality = "high"
	req.Task.ImplementationRisk = "high"
	req.Task.TimelinePressure = true
	req.Recommendation.Considerations = nil // listed risks left unmitigated

	result := v.Validate(req)

	assert.False(t, result.Checks[CheckRisk].Passed, "residual risk is high")
	assert.True(t, result.EscalationNeeded)
}

func TestSensitiveTaskWithoutSecurityHandlingFails(t *testing.T) {
	v := New()

	req := goodRequest()
	req.Task.Compliance = []string{"hipaa"}
	// Recommendation text never mentions security, auth, encryption or
	// validation, and claims absolute certainty.
	req.Recommendation.Confidence = 1.0
	req.Recommendation.Rationale = "Search queries are read-heavy"
	req.Recommendation.TestingStrategy = "integration tests around cache behavior"

	result := v.Validate(req)

	assert.False(t, result.Checks[CheckSecurity].Passed)
	assert.True(t, result.EscalationNeeded)
}

func TestAllChecksAlwaysRun(t *testing.T) {
	v := New()

	// Worst-case input: empty recommendation. Every check still reports.
	req := Request{
		Task:           &models.Task{},
		Recommendation: &models.Recommendation{},
		Routing:        &models.RoutingDecision{Domain: "general"},
	}

	result := v.Validate(req)

	require.Len(t, result.Checks, 6)
	assert.False(t, result.Passed)
	assert.NotEmpty(t, result.Suggestions)
	assert.NotEmpty(t, result.Grade)
}

func TestGradeBreakpoints(t *testing.T) {
	tests := []struct {
		overall float64
		want    string
	}{
		{0.97, "A+"},
		{0.95, "A+"},
		{0.92, "A"},
		{0.83, "B"},
		{0.72, "C"},
		{0.55, "D"},
		{0.40, "F"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, gradeFor(tt.overall), "overall %.2f", tt.overall)
	}
}
