package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var testChunk = model.SearchChunk{
	ID:              "telecommunications-local",
	GeographicFocus: model.GeoLocal,
	SectorFocus:     "telecommunications",
}

func TestParse_LabeledFields(t *testing.T) {
	content := `Title: Rural Broadband Expansion Grant
Funder: USDA Rural Development
Amount: $1,250,000
Deadline: September 30, 2026
URL: https://www.rd.usda.gov/programs/broadband
Description: Funds last-mile broadband in unserved rural areas.
Eligibility: Nonprofits and cooperatives.`

	candidates := Parse(content, testChunk)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, "Rural Broadband Expansion Grant", c.Title)
	assert.Equal(t, "USDA Rural Development", c.FunderName)
	assert.Equal(t, "$1,250,000", c.FundingAmountDisplay)
	assert.Equal(t, 1250000.0, c.FundingAmount)
	assert.Equal(t, "September 30, 2026", c.Deadline)
	assert.Equal(t, "https://www.rd.usda.gov/programs/broadband", c.SourceURL)
	assert.Equal(t, "Funds last-mile broadband in unserved rural areas.", c.Description)
	assert.Equal(t, "Nonprofits and cooperatives.", c.Eligibility)

	// Chunk provenance is stamped on every candidate.
	assert.Equal(t, "telecommunications-local", c.SearchChunkID)
	assert.Equal(t, model.GeoLocal, c.GeographicFocus)
	assert.Equal(t, "telecommunications", c.SectorFocus)
}

func TestParse_MultipleBlocks(t *testing.T) {
	content := `Title: Grant One
URL: https://example.org/one

Title: Grant Two
URL: https://example.org/two`

	candidates := Parse(content, testChunk)
	require.Len(t, candidates, 2)
	assert.Equal(t, "Grant One", candidates[0].Title)
	assert.Equal(t, "Grant Two", candidates[1].Title)
}

func TestParse_DropsBlocksWithoutURL(t *testing.T) {
	content := `Title: Promising Grant With No Link
Funder: Somebody
Description: Looks great but has no application URL.

Title: Grant With Link
URL: https://example.org/apply`

	candidates := Parse(content, testChunk)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Grant With Link", candidates[0].Title)
}

func TestParse_DropsBlocksWithoutTitle(t *testing.T) {
	content := `URL: https://example.org/apply
Description: A link with no title.`

	assert.Empty(t, Parse(content, testChunk))
}

func TestParse_RejectsNonAbsoluteURLs(t *testing.T) {
	tests := []string{
		"URL: grants.gov/apply",
		"URL: /relative/path",
		"URL: see the program website",
	}
	for _, line := range tests {
		content := "Title: Some Grant\n" + line
		assert.Empty(t, Parse(content, testChunk), line)
	}
}

func TestParse_CleansMarkdownURL(t *testing.T) {
	content := `Title: Wrapped URL Grant
URL: [Apply here](https://example.org/apply)`

	candidates := Parse(content, testChunk)
	require.Len(t, candidates, 1)
	assert.Equal(t, "https://example.org/apply", candidates[0].SourceURL)
}

func TestParse_TrimsTrailingPunctuation(t *testing.T) {
	content := `Title: Punctuated Grant
URL: <https://example.org/apply>.`

	candidates := Parse(content, testChunk)
	require.Len(t, candidates, 1)
	assert.Equal(t, "https://example.org/apply", candidates[0].SourceURL)
}

func TestParse_AlternateLabelsAndMarkup(t *testing.T) {
	content := `Title: **Emphasized Grant**
Organization: Delta Regional Authority
Funding Amount: up to $75,000 per award
Due Date: 2026-11-15
Link: https://dra.gov/apply
Summary: Community infrastructure support.`

	candidates := Parse(content, testChunk)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, "Emphasized Grant", c.Title)
	assert.Equal(t, "Delta Regional Authority", c.FunderName)
	assert.Equal(t, 75000.0, c.FundingAmount)
	assert.Equal(t, "2026-11-15", c.Deadline)
	assert.Equal(t, "https://dra.gov/apply", c.SourceURL)
	assert.Equal(t, "Community infrastructure support.", c.Description)
}

func TestParse_EmptyOrProseContent(t *testing.T) {
	assert.Empty(t, Parse("", testChunk))
	assert.Empty(t, Parse("I could not find any matching opportunities.", testChunk))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"$1,250,000", 1250000},
		{"up to $75,000 per award", 75000},
		{"$2.5 million", 2.5},
		{"varies", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseAmount(tt.in), tt.in)
	}
}
