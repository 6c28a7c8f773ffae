package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGrant_RejectsMissingURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"relative path", "/grants/apply"},
		{"no scheme", "www.grants.gov/apply"},
		{"ftp scheme", "ftp://grants.gov/apply"},
		{"whitespace inside", "https://grants.gov/apply now"},
		{"scheme only", "https://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGrant(RawCandidate{Title: "Rural Broadband Fund", SourceURL: tt.url})
			assert.ErrorIs(t, err, ErrMissingURL)
		})
	}
}

func TestNewGrant_RejectsEmptyTitle(t *testing.T) {
	_, err := NewGrant(RawCandidate{Title: "  ", SourceURL: "https://grants.gov/apply"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingURL)
}

func TestNewGrant_StampsProvenance(t *testing.T) {
	g, err := NewGrant(RawCandidate{
		Title:           "Rural Broadband Fund",
		Description:     "Broadband deployment for rural parishes.",
		SourceURL:       "https://grants.gov/apply",
		SearchChunkID:   "telecommunications-local",
		SectorFocus:     "telecommunications",
		GeographicFocus: GeoLocal,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, g.ID)
	assert.Equal(t, "telecommunications", g.Sector)
	assert.Equal(t, "local", g.GeographicScope)
	require.Len(t, g.EnrichmentLog, 1)
	assert.Contains(t, g.EnrichmentLog[0], "telecommunications-local")
}

func TestLogStage_AppendOnly(t *testing.T) {
	g, err := NewGrant(RawCandidate{Title: "Fund", SourceURL: "https://example.org/fund"})
	require.NoError(t, err)

	g.LogStage("research context scored")
	g.LogStage("compliance scored")

	require.Len(t, g.EnrichmentLog, 3)
	assert.Contains(t, g.EnrichmentLog[1], "research context scored")
	assert.Contains(t, g.EnrichmentLog[2], "compliance scored")
}

func TestFieldCount_IgnoresPlaceholders(t *testing.T) {
	full := &EnrichedGrant{
		Title:                "Rural Broadband Fund",
		Description:          "Broadband deployment.",
		FunderName:           "USDA",
		Deadline:             "2026-10-01",
		Eligibility:          "Nonprofits",
		FundingAmountDisplay: "$50,000",
		FundingAmountExact:   50000,
	}
	sparse := &EnrichedGrant{
		Title:                "Rural Broadband Fund",
		Description:          "N/A",
		FunderName:           "tbd",
		Deadline:             "",
		Eligibility:          "Not specified",
		FundingAmountDisplay: "Varies",
	}

	assert.Equal(t, 7, full.FieldCount())
	assert.Equal(t, 1, sparse.FieldCount())
}

func TestIsAbsoluteURL(t *testing.T) {
	assert.True(t, IsAbsoluteURL("https://grants.gov/apply"))
	assert.True(t, IsAbsoluteURL("http://example.org"))
	assert.False(t, IsAbsoluteURL("grants.gov"))
	assert.False(t, IsAbsoluteURL("mailto:info@grants.gov"))
	assert.False(t, IsAbsoluteURL(""))
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"HTTPS://Grants.Gov/Apply/", "https://grants.gov/Apply"},
		{"https://grants.gov:443/apply", "https://grants.gov/apply"},
		{"http://grants.gov:80/apply", "http://grants.gov/apply"},
		{"https://grants.gov/apply?id=7", "https://grants.gov/apply?id=7"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeURL(tt.in), tt.in)
	}
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "rural broadband fund",
		NormalizeTitle("  Rural   Broadband\tFund "))
}

func TestSearchBlob_Lowercased(t *testing.T) {
	g := &EnrichedGrant{Title: "Broadband", Description: "RURAL", Eligibility: "Nonprofit"}
	blob := g.SearchBlob()
	assert.Equal(t, strings.ToLower(blob), blob)
	assert.Contains(t, blob, "broadband")
	assert.Contains(t, blob, "rural")
	assert.Contains(t, blob, "nonprofit")
}

func TestGeographicFocusPriority(t *testing.T) {
	assert.Equal(t, 1, GeoLocal.Priority())
	assert.Equal(t, 2, GeoState.Priority())
	assert.Equal(t, 3, GeoRegional.Priority())
	assert.Equal(t, 4, GeoFederal.Priority())
	assert.False(t, GeographicFocus("galactic").Valid())
}

func TestScores_Computed(t *testing.T) {
	var r ResearchContextScores
	assert.False(t, r.Computed())
	v := 0.0
	r.SectorRelevance = &v
	// A computed zero is still computed.
	assert.True(t, r.Computed())

	var c ComplianceScores
	assert.False(t, c.Computed())
	c.FeasibilityScore = &v
	assert.True(t, c.Computed())
}
