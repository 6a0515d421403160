package registry

import "github.com/jordanhubbard/counsel/internal/models"

// defaultCatalog is the built-in specialist roster. It covers the fixed
// domain set at the three consultation tiers; DIRECT work never consults a
// specialist. Order matters: it is the tie-breaker for equal routing scores.
var defaultCatalog = []*models.SpecialistProfile{
	// TIER_1: generalist consultations for moderate complexity.
	{
		ID:            "t1-backend",
		Name:          "Backend Engineer",
		Tier:          models.Tier1,
		Domains:       []string{"backend", "integration"},
		Technologies:  []string{"rest", "graphql", "caching", "search", "postgresql", "redis"},
		MinComplexity: 3, MaxComplexity: 6,
		Prerequisites:   []string{"task description", "affected endpoints"},
		HandoffCriteria: []string{"unresolved cross-service impact", "performance regression risk"},
	},
	{
		ID:            "t1-frontend",
		Name:          "Frontend Engineer",
		Tier:          models.Tier1,
		Domains:       []string{"frontend"},
		Technologies:  []string{"react", "typescript", "websockets", "accessibility"},
		MinComplexity: 3, MaxComplexity: 6,
		Prerequisites:   []string{"ui mockups or affected views"},
		HandoffCriteria: []string{"state management redesign", "cross-platform rendering issues"},
	},
	{
		ID:            "t1-data",
		Name:          "Data Engineer",
		Tier:          models.Tier1,
		Domains:       []string{"data"},
		Technologies:  []string{"sql", "etl", "kafka", "postgresql"},
		MinComplexity: 3, MaxComplexity: 6,
		Prerequisites:   []string{"schema of affected tables"},
		HandoffCriteria: []string{"pipeline redesign", "data migration at scale"},
	},
	{
		ID:            "t1-general",
		Name:          "Generalist",
		Tier:          models.Tier1,
		Domains:       []string{"general"},
		Technologies:  []string{},
		MinComplexity: 3, MaxComplexity: 6,
		Prerequisites:   []string{"task description"},
		HandoffCriteria: []string{"domain expertise required"},
	},

	// TIER_2: senior consultations for high complexity.
	{
		ID:            "t2-backend",
		Name:          "Senior Backend Architect",
		Tier:          models.Tier2,
		Domains:       []string{"backend", "integration"},
		Technologies:  []string{"microservices", "event-sourcing", "caching", "kafka", "grpc"},
		MinComplexity: 6, MaxComplexity: 8,
		Prerequisites:   []string{"service dependency map", "load profile"},
		HandoffCriteria: []string{"multi-region consistency", "organization-wide architectural change"},
	},
	{
		ID:            "t2-infrastructure",
		Name:          "Infrastructure Architect",
		Tier:          models.Tier2,
		Domains:       []string{"infrastructure"},
		Technologies:  []string{"kubernetes", "terraform", "observability", "networking"},
		MinComplexity: 6, MaxComplexity: 8,
		Prerequisites:   []string{"current deployment topology"},
		HandoffCriteria: []string{"capacity planning beyond single cluster"},
	},
	{
		ID:            "t2-security",
		Name:          "Security Engineer",
		Tier:          models.Tier2,
		Domains:       []string{"security", "backend"},
		Technologies:  []string{"oauth", "encryption", "audit-logging"},
		MinComplexity: 6, MaxComplexity: 8,
		Prerequisites:   []string{"data classification", "threat surface"},
		HandoffCriteria: []string{"compliance certification scope", "cryptographic protocol design"},
	},
	{
		ID:            "t2-data",
		Name:          "Senior Data Architect",
		Tier:          models.Tier2,
		Domains:       []string{"data"},
		Technologies:  []string{"kafka", "spark", "warehousing", "real-time"},
		MinComplexity: 6, MaxComplexity: 8,
		Prerequisites:   []string{"data volume estimates", "consistency requirements"},
		HandoffCriteria: []string{"company-wide data platform decisions"},
	},

	// TIER_3: principal-level consultations for very high complexity.
	{
		ID:            "t3-distributed",
		Name:          "Principal Distributed Systems Engineer",
		Tier:          models.Tier3,
		Domains:       []string{"backend", "infrastructure", "integration"},
		Technologies:  []string{"distributed-systems", "microservices", "consensus", "kafka", "real-time"},
		MinComplexity: 8, MaxComplexity: 10,
		Prerequisites:   []string{"full system context", "prior consultation results"},
		HandoffCriteria: []string{"requires external vendor or standards-body engagement"},
	},
	{
		ID:            "t3-platform",
		Name:          "Principal Platform Architect",
		Tier:          models.Tier3,
		Domains:       []string{"infrastructure", "data", "general"},
		Technologies:  []string{"kubernetes", "distributed-systems", "multi-region", "machine-learning"},
		MinComplexity: 8, MaxComplexity: 10,
		Prerequisites:   []string{"business constraints", "full system context"},
		HandoffCriteria: []string{"requires executive or external decision"},
	},
	{
		ID:            "t3-security",
		Name:          "Principal Security Architect",
		Tier:          models.Tier3,
		Domains:       []string{"security"},
		Technologies:  []string{"cryptography", "zero-trust", "compliance"},
		MinComplexity: 8, MaxComplexity: 10,
		Prerequisites:   []string{"threat model", "compliance obligations", "prior consultation results"},
		HandoffCriteria: []string{"requires external audit or certification body"},
	},
}
