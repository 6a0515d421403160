package registry

import (
	"fmt"
	"strings"

	"github.com/jordanhubbard/counsel/internal/models"
)

// Registry is an immutable catalog of specialist profiles grouped by tier.
// It is read-only at runtime; a configuration-backed implementation can be
// swapped in without changing callers.
type Registry struct {
	byID    map[string]*models.SpecialistProfile
	byTier  map[models.Tier][]*models.SpecialistProfile
	ordered []*models.SpecialistProfile
}

// New builds a registry from a catalog of profiles. Catalog order is
// preserved; it is the documented tie-breaker for equally scored
// specialists. DIRECT never has specialists.
func New(catalog []*models.SpecialistProfile) (*Registry, error) {
	r := &Registry{
		byID:   make(map[string]*models.SpecialistProfile),
		byTier: make(map[models.Tier][]*models.SpecialistProfile),
	}

	for _, p := range catalog {
		if p.ID == "" {
			return nil, fmt.Errorf("specialist profile missing id")
		}
		if p.Tier == models.TierDirect {
			return nil, fmt.Errorf("specialist %s: DIRECT tier has no specialists", p.ID)
		}
		if _, exists := r.byID[p.ID]; exists {
			return nil, fmt.Errorf("specialist %s already registered", p.ID)
		}
		r.byID[p.ID] = p
		r.byTier[p.Tier] = append(r.byTier[p.Tier], p)
		r.ordered = append(r.ordered, p)
	}

	return r, nil
}

// Default returns a registry loaded with the built-in roster.
func Default() *Registry {
	r, err := New(defaultCatalog)
	if err != nil {
		// The built-in catalog is static; a failure here is a programming error.
		panic(err)
	}
	return r
}

// Get retrieves a specialist by id.
func (r *Registry) Get(id string) (*models.SpecialistProfile, error) {
	p, exists := r.byID[id]
	if !exists {
		return nil, fmt.Errorf("specialist %s not found", id)
	}
	return p, nil
}

// ByTier returns the specialists registered at a tier, in catalog order.
func (r *Registry) ByTier(tier models.Tier) []*models.SpecialistProfile {
	return r.byTier[tier]
}

// ByDomain returns specialists whose domain tags match the given domain,
// by exact tag or substring in either direction, in catalog order.
func (r *Registry) ByDomain(domain string) []*models.SpecialistProfile {
	domain = strings.ToLower(domain)
	var matches []*models.SpecialistProfile
	for _, p := range r.ordered {
		if profileMatchesDomain(p, domain) {
			matches = append(matches, p)
		}
	}
	return matches
}

// Candidates returns the specialists at a tier that match a domain. A
// domain with no matches falls back to every specialist at the tier, so
// routing always has candidates above DIRECT.
func (r *Registry) Candidates(tier models.Tier, domain string) []*models.SpecialistProfile {
	if tier == models.TierDirect {
		return nil
	}
	domain = strings.ToLower(domain)

	var matches []*models.SpecialistProfile
	for _, p := range r.byTier[tier] {
		if profileMatchesDomain(p, domain) {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		return r.byTier[tier]
	}
	return matches
}

// HandoffCriteria surfaces what the next tier expects before accepting a
// handoff from the given specialist. Used by the consultation flow to
// prepare escalations.
func (r *Registry) HandoffCriteria(fromID string) ([]string, error) {
	from, err := r.Get(fromID)
	if err != nil {
		return nil, err
	}

	next, ok := from.Tier.Next()
	if !ok || next == models.TierExternal {
		return []string{"external consultation: provide full context, attempted approaches, and failure detail"}, nil
	}

	var criteria []string
	for _, p := range r.byTier[next] {
		if overlaps(p.Domains, from.Domains) {
			criteria = append(criteria, p.Prerequisites...)
		}
	}
	if len(criteria) == 0 {
		for _, p := range r.byTier[next] {
			criteria = append(criteria, p.Prerequisites...)
		}
	}
	return criteria, nil
}

// List returns every profile in catalog order.
func (r *Registry) List() []*models.SpecialistProfile {
	out := make([]*models.SpecialistProfile, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func profileMatchesDomain(p *models.SpecialistProfile, domain string) bool {
	for _, d := range p.Domains {
		d = strings.ToLower(d)
		if d == domain || strings.Contains(d, domain) || strings.Contains(domain, d) {
			return true
		}
	}
	return false
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if strings.EqualFold(x, y) {
				return true
			}
		}
	}
	return false
}
