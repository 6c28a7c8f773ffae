package model

// GeographicFocus identifies the geographic tier a search chunk targets.
type GeographicFocus string

const (
	GeoLocal    GeographicFocus = "local"
	GeoState    GeographicFocus = "state"
	GeoRegional GeographicFocus = "regional"
	GeoFederal  GeographicFocus = "federal"
)

// Priority returns the dispatch priority for the tier (1 = highest).
// Local opportunities are dispatched first; federal last.
func (g GeographicFocus) Priority() int {
	switch g {
	case GeoLocal:
		return 1
	case GeoState:
		return 2
	case GeoRegional:
		return 3
	case GeoFederal:
		return 4
	default:
		return 5
	}
}

// Valid reports whether g is one of the four known tiers.
func (g GeographicFocus) Valid() bool {
	switch g {
	case GeoLocal, GeoState, GeoRegional, GeoFederal:
		return true
	}
	return false
}

// SearchChunk is a single bounded sub-query: at most three effective
// keywords, one geographic tier, one sector focus. Chunks are immutable
// once planned and live for one pipeline run.
type SearchChunk struct {
	ID              string          `json:"chunk_id"`
	Keywords        []string        `json:"keywords"`
	GeographicFocus GeographicFocus `json:"geographic_focus"`
	SectorFocus     string          `json:"sector_focus"`
	Priority        int             `json:"priority"`
}

// ChunkedSearchResult is the output of executing one chunk: the raw
// candidates extracted from the model reply plus search metadata.
type ChunkedSearchResult struct {
	Candidates []RawCandidate `json:"grants"`
	Metadata   SearchMetadata `json:"search_metadata"`
	Chunk      SearchChunk    `json:"chunk_info"`
}

// SearchMetadata records how a chunk's query went.
type SearchMetadata struct {
	QueryLength   int    `json:"query_length"`
	ResponseChars int    `json:"response_chars"`
	Attempts      int    `json:"attempts"`
	Refined       bool   `json:"refined"`
	Failed        bool   `json:"failed"`
	FailureReason string `json:"failure_reason,omitempty"`
	InputTokens   int64  `json:"input_tokens"`
	OutputTokens  int64  `json:"output_tokens"`
}
