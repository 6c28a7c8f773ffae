package planner

import (
	"strings"
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

func TestPlan_CartesianProductWithKeywordCap(t *testing.T) {
	p := New(config.ScoringConfig{
		FocusAreas: map[string][]string{
			"tech": {"kw1", "kw2", "kw3", "kw4"},
		},
		GeoTiers: map[string][]string{
			"local":   {"g1"},
			"federal": {"g2"},
		},
	})

	chunks := p.Plan(nil)
	require.Len(t, chunks, 2)

	local := chunks[0]
	assert.Equal(t, 1, local.Priority)
	assert.Equal(t, model.GeoLocal, local.GeographicFocus)
	// Topic keywords are truncated to leave room for the geo keyword.
	assert.Equal(t, []string{"kw1", "kw2", "g1"}, local.Keywords)

	federal := chunks[1]
	assert.Equal(t, 4, federal.Priority)
	assert.Equal(t, []string{"kw1", "kw2", "g2"}, federal.Keywords)
}

func TestPlan_SortedByPriorityThenID(t *testing.T) {
	p := New(config.ScoringConfig{
		FocusAreas: map[string][]string{
			"b_sector": {"x"},
			"a_sector": {"y"},
		},
		GeoTiers: map[string][]string{
			"federal": {"g"},
			"local":   {"g"},
		},
	})

	chunks := p.Plan(nil)
	require.Len(t, chunks, 4)
	assert.Equal(t, "a_sector-local", chunks[0].ID)
	assert.Equal(t, "b_sector-local", chunks[1].ID)
	assert.Equal(t, "a_sector-federal", chunks[2].ID)
	assert.Equal(t, "b_sector-federal", chunks[3].ID)
}

func TestPlan_EmptyTablesYieldEmptyPlan(t *testing.T) {
	p := New(config.ScoringConfig{})
	assert.Empty(t, p.Plan([]string{"broadband"}))
}

func TestPlan_SkipsUnknownTier(t *testing.T) {
	p := New(config.ScoringConfig{
		FocusAreas: map[string][]string{"tech": {"kw"}},
		GeoTiers: map[string][]string{
			"local":    {"g1"},
			"galactic": {"g9"},
		},
	})
	chunks := p.Plan(nil)
	require.Len(t, chunks, 1)
	assert.Equal(t, model.GeoLocal, chunks[0].GeographicFocus)
}

func TestPlan_BaseKeywordsFillRemainingSlots(t *testing.T) {
	p := New(config.ScoringConfig{
		FocusAreas: map[string][]string{"tech": {"kw1"}},
		GeoTiers:   map[string][]string{"state": {"g1"}},
	})
	chunks := p.Plan([]string{"base1", "base2"})
	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"kw1", "g1", "base1"}, chunks[0].Keywords)
}

func TestBuildSearchPrompt(t *testing.T) {
	chunk := model.SearchChunk{
		ID:              "telecommunications-local",
		Keywords:        []string{"broadband", "rural connectivity", "Natchitoches Parish"},
		GeographicFocus: model.GeoLocal,
		SectorFocus:     "telecommunications",
		Priority:        1,
	}

	prompt := BuildSearchPrompt(chunk)

	for _, kw := range chunk.Keywords {
		assert.Contains(t, prompt, kw)
	}
	assert.Contains(t, prompt, "parish")
	assert.Contains(t, prompt, "step by step")
	assert.Contains(t, prompt, "Title:")
	assert.Contains(t, prompt, "URL:")
	// The URL requirement is a hard instruction, not a suggestion.
	assert.Contains(t, prompt, "omit any opportunity")
	assert.Contains(t, prompt, "absolute http(s)")
}

func TestBuildSearchPrompt_UnknownSectorFallsBack(t *testing.T) {
	prompt := BuildSearchPrompt(model.SearchChunk{
		Keywords:        []string{"arts"},
		GeographicFocus: model.GeoFederal,
		SectorFocus:     "performing_arts",
	})
	assert.Contains(t, prompt, defaultStrategy)
}

func TestBuildDetailPrompt(t *testing.T) {
	prompt := BuildDetailPrompt(model.RawCandidate{
		Title:      "Rural Broadband Fund",
		FunderName: "USDA",
		SourceURL:  "https://grants.gov/apply",
	})
	assert.Contains(t, prompt, "Rural Broadband Fund")
	assert.Contains(t, prompt, "USDA")
	assert.Contains(t, prompt, "https://grants.gov/apply")
	assert.True(t, strings.Contains(prompt, "eligibility requirements"))
}
