package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/config"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func relevanceConfig() config.RelevanceConfig {
	return config.RelevanceConfig{
		DefaultScore:    0.2,
		PriorityWeight:  0.25,
		SecondaryWeight: 0.1,
		NationalBonus:   0.2,
		Sector: config.KeywordRuleSet{
			Priority:   []string{"broadband", "telecommunications"},
			Secondary:  []string{"technology", "infrastructure"},
			Exclusions: []string{"pharmaceutical"},
		},
		Geographic: config.KeywordRuleSet{
			Priority:  []string{"louisiana", "natchitoches"},
			Secondary: []string{"rural"},
		},
		Operational: config.KeywordRuleSet{
			Priority:  []string{"small business"},
			Secondary: []string{"capacity building"},
		},
	}
}

func scoredGrant(t *testing.T, title, description string) *model.EnrichedGrant {
	t.Helper()
	g, err := model.NewGrant(model.RawCandidate{
		Title:       title,
		Description: description,
		SourceURL:   "https://example.org/apply",
	})
	require.NoError(t, err)
	return g
}

func TestRelevanceScore_CreditsKeywordMatches(t *testing.T) {
	s := NewRelevanceScorer(relevanceConfig())
	g := scoredGrant(t, "Broadband Infrastructure Grant", "Serving rural Louisiana communities.")

	s.Score(g)

	require.True(t, g.ResearchContext.Computed())
	// Sector: 0.2 default + 0.25 (broadband) + 0.1 (infrastructure).
	assert.InDelta(t, 0.55, *g.ResearchContext.SectorRelevance, 1e-9)
	// Geographic: 0.2 + 0.25 (louisiana) + 0.1 (rural).
	assert.InDelta(t, 0.55, *g.ResearchContext.GeographicRelevance, 1e-9)
	// Operational: no matches, stays at the default.
	assert.InDelta(t, 0.2, *g.ResearchContext.OperationalAlignment, 1e-9)
}

func TestRelevanceScore_ClampedToOne(t *testing.T) {
	cfg := relevanceConfig()
	cfg.PriorityWeight = 0.9
	s := NewRelevanceScorer(cfg)
	g := scoredGrant(t, "Broadband Telecommunications Grant", "")

	s.Score(g)

	assert.Equal(t, 1.0, *g.ResearchContext.SectorRelevance)
}

func TestRelevanceScore_ExclusionForcesFloor(t *testing.T) {
	s := NewRelevanceScorer(relevanceConfig())
	g := scoredGrant(t, "Broadband and Pharmaceutical Research Grant", "")

	s.Score(g)

	// The broadband credit is wiped by the pharmaceutical exclusion.
	assert.InDelta(t, exclusionFloor, *g.ResearchContext.SectorRelevance, 1e-9)
}

func TestRelevanceScore_NationalBonus(t *testing.T) {
	s := NewRelevanceScorer(relevanceConfig())
	g := scoredGrant(t, "Nationwide Connectivity Program", "Open to applicants in any state.")

	s.Score(g)

	// Geographic: 0.2 default + 0.2 national bonus, no place-name match.
	assert.InDelta(t, 0.4, *g.ResearchContext.GeographicRelevance, 1e-9)
}

func TestRelevanceScore_FederalTextAloneGetsNoBonus(t *testing.T) {
	s := NewRelevanceScorer(relevanceConfig())
	g := scoredGrant(t, "Federal Agency Grant", "Administered by a federal agency.")

	s.Score(g)

	// Only "national"/"nationwide" signal the scope bonus.
	assert.InDelta(t, 0.2, *g.ResearchContext.GeographicRelevance, 1e-9)
}

func TestRelevanceScore_EmptyTableDegradesToDefault(t *testing.T) {
	cfg := relevanceConfig()
	cfg.Operational = config.KeywordRuleSet{}
	s := NewRelevanceScorer(cfg)
	g := scoredGrant(t, "Some Grant", "small business capacity building")

	s.Score(g)

	assert.InDelta(t, 0.2, *g.ResearchContext.OperationalAlignment, 1e-9)
}

func TestRelevanceScore_AllSubScoresInRange(t *testing.T) {
	s := NewRelevanceScorer(relevanceConfig())
	grants := []*model.EnrichedGrant{
		scoredGrant(t, "Broadband Telecommunications Infrastructure Technology", "louisiana natchitoches rural small business capacity building nationwide"),
		scoredGrant(t, "Pharmaceutical Grant", ""),
		scoredGrant(t, "Unrelated Arts Grant", "theatre"),
	}

	for _, g := range grants {
		s.Score(g)
		for _, v := range []*float64{
			g.ResearchContext.SectorRelevance,
			g.ResearchContext.GeographicRelevance,
			g.ResearchContext.OperationalAlignment,
		} {
			require.NotNil(t, v)
			assert.GreaterOrEqual(t, *v, 0.0)
			assert.LessOrEqual(t, *v, 1.0)
		}
	}
}

func TestRelevanceScore_AppendsEnrichmentLog(t *testing.T) {
	s := NewRelevanceScorer(relevanceConfig())
	g := scoredGrant(t, "Broadband Grant", "")
	before := len(g.EnrichmentLog)

	s.Score(g)

	assert.Len(t, g.EnrichmentLog, before+1)
	assert.Contains(t, g.EnrichmentLog[before], "research context scored")
}
