package registry

import (
	"testing"

	"github.com/jordanhubbard/counsel/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogLoads(t *testing.T) {
	r := Default()

	assert.Empty(t, r.ByTier(models.TierDirect), "DIRECT must have no specialists")
	assert.NotEmpty(t, r.ByTier(models.Tier1))
	assert.NotEmpty(t, r.ByTier(models.Tier2))
	assert.NotEmpty(t, r.ByTier(models.Tier3))
}

func TestRejectsDirectSpecialist(t *testing.T) {
	_, err := New([]*models.SpecialistProfile{
		{ID: "bad", Tier: models.TierDirect},
	})
	require.Error(t, err)
}

func TestRejectsDuplicateID(t *testing.T) {
	_, err := New([]*models.SpecialistProfile{
		{ID: "dup", Tier: models.Tier1},
		{ID: "dup", Tier: models.Tier2},
	})
	require.Error(t, err)
}

func TestGet(t *testing.T) {
	r := Default()

	p, err := r.Get("t2-security")
	require.NoError(t, err)
	assert.Equal(t, models.Tier2, p.Tier)

	_, err = r.Get("nonexistent")
	assert.Error(t, err)
}

func TestByDomainSubstringMatch(t *testing.T) {
	r := Default()

	matches := r.ByDomain("security")
	require.NotEmpty(t, matches)
	for _, p := range matches {
		assert.True(t, profileMatchesDomain(p, "security"), "profile %s should match security", p.ID)
	}
}

func TestCandidatesFallBackToTier(t *testing.T) {
	r := Default()

	// No specialist advertises this domain; every tier-1 specialist remains
	// a candidate so routing always has options above DIRECT.
	candidates := r.Candidates(models.Tier1, "astrophysics")
	assert.Equal(t, len(r.ByTier(models.Tier1)), len(candidates))

	assert.Nil(t, r.Candidates(models.TierDirect, "backend"))
}

func TestCandidatesPreserveCatalogOrder(t *testing.T) {
	r := Default()

	candidates := r.Candidates(models.Tier2, "backend")
	require.True(t, len(candidates) >= 2)
	assert.Equal(t, "t2-backend", candidates[0].ID, "catalog order is the documented tie-breaker")
}

func TestHandoffCriteria(t *testing.T) {
	r := Default()

	criteria, err := r.HandoffCriteria("t1-backend")
	require.NoError(t, err)
	assert.NotEmpty(t, criteria, "tier-2 prerequisites should surface for tier-1 handoff")

	// Tier-3 hands off to EXTERNAL.
	criteria, err = r.HandoffCriteria("t3-distributed")
	require.NoError(t, err)
	require.Len(t, criteria, 1)
	assert.Contains(t, criteria[0], "external consultation")
}
