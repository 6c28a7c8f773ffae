package model

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// ErrMissingURL is returned when a candidate lacks a direct, absolute
// http(s) application URL. A grant without one must not exist; the rule
// is enforced here at creation time and again by the persistence gateway.
var ErrMissingURL = eris.New("grant: missing or non-absolute source URL")

// RawCandidate is the unvalidated field set extracted from one block of
// model output, plus provenance from the chunk that produced it. It is
// transient: it either converts to an EnrichedGrant or is discarded.
type RawCandidate struct {
	Title                string  `json:"title"`
	Description          string  `json:"description"`
	FunderName           string  `json:"funder_name"`
	FundingAmount        float64 `json:"funding_amount"`
	FundingAmountDisplay string  `json:"funding_amount_display"`
	Deadline             string  `json:"deadline"`
	SourceURL            string  `json:"source_url"`
	Eligibility          string  `json:"eligibility"`

	// Chunk provenance.
	SearchChunkID   string          `json:"search_chunk_id"`
	GeographicFocus GeographicFocus `json:"geographic_focus"`
	SectorFocus     string          `json:"sector_focus"`
}

// ResearchContextScores holds the sector / geography / operational
// sub-scores. Each is absent (nil) until its scorer runs; zero is a
// computed value, not a default.
type ResearchContextScores struct {
	SectorRelevance      *float64 `json:"sector_relevance,omitempty"`
	GeographicRelevance  *float64 `json:"geographic_relevance,omitempty"`
	OperationalAlignment *float64 `json:"operational_alignment,omitempty"`
}

// Computed reports whether any research-context sub-score has been set.
func (s ResearchContextScores) Computed() bool {
	return s.SectorRelevance != nil || s.GeographicRelevance != nil || s.OperationalAlignment != nil
}

// ComplianceScores holds the business-logic / feasibility / synergy
// sub-scores and the derived composite. FinalWeightedScore is only ever
// produced by the fusion step, never set directly.
type ComplianceScores struct {
	BusinessLogicAlignment *float64 `json:"business_logic_alignment,omitempty"`
	FeasibilityScore       *float64 `json:"feasibility_score,omitempty"`
	StrategicSynergy       *float64 `json:"strategic_synergy,omitempty"`
	FinalWeightedScore     float64  `json:"final_weighted_score"`
}

// Computed reports whether any compliance sub-score has been set.
func (s ComplianceScores) Computed() bool {
	return s.BusinessLogicAlignment != nil || s.FeasibilityScore != nil || s.StrategicSynergy != nil
}

// EnrichedGrant is the canonical funding-opportunity record. Scorer
// stages are additive: they fill empty score fields and append to the
// enrichment log, never overwrite or delete.
type EnrichedGrant struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id,omitempty"`

	Title                string   `json:"title"`
	Description          string   `json:"description"`
	FunderName           string   `json:"funder_name"`
	FundingAmountMin     float64  `json:"funding_amount_min,omitempty"`
	FundingAmountMax     float64  `json:"funding_amount_max,omitempty"`
	FundingAmountExact   float64  `json:"funding_amount_exact,omitempty"`
	FundingAmountDisplay string   `json:"funding_amount_display,omitempty"`
	Deadline             string   `json:"deadline,omitempty"`
	SourceURL            string   `json:"source_url"`
	Eligibility          string   `json:"eligibility,omitempty"`
	Keywords             []string `json:"keywords,omitempty"`
	Sector               string   `json:"sector,omitempty"`
	SubSector            string   `json:"sub_sector,omitempty"`
	GeographicScope      string   `json:"geographic_scope,omitempty"`

	ResearchContext ResearchContextScores `json:"research_context_scores"`
	Compliance      ComplianceScores      `json:"compliance_scores"`
	CompositeScore  float64               `json:"composite_score"`

	// EnrichmentLog is an append-only trace of the stages that touched
	// this record, in order.
	EnrichmentLog []string `json:"enrichment_log"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewGrant validates a raw candidate and promotes it to an EnrichedGrant.
// Candidates without an absolute http(s) source URL are rejected with
// ErrMissingURL; there is no way to construct a grant without one.
func NewGrant(c RawCandidate) (*EnrichedGrant, error) {
	if strings.TrimSpace(c.Title) == "" {
		return nil, eris.New("grant: missing title")
	}
	if !IsAbsoluteURL(c.SourceURL) {
		return nil, ErrMissingURL
	}

	now := time.Now().UTC()
	g := &EnrichedGrant{
		ID:                   uuid.NewString(),
		Title:                strings.TrimSpace(c.Title),
		Description:          strings.TrimSpace(c.Description),
		FunderName:           strings.TrimSpace(c.FunderName),
		FundingAmountExact:   c.FundingAmount,
		FundingAmountDisplay: c.FundingAmountDisplay,
		Deadline:             strings.TrimSpace(c.Deadline),
		SourceURL:            strings.TrimSpace(c.SourceURL),
		Eligibility:          strings.TrimSpace(c.Eligibility),
		Sector:               c.SectorFocus,
		GeographicScope:      string(c.GeographicFocus),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	g.LogStage(fmt.Sprintf("parsed from chunk %s (%s/%s)", c.SearchChunkID, c.SectorFocus, c.GeographicFocus))
	return g, nil
}

// LogStage appends a human-readable trace entry with a UTC timestamp.
func (g *EnrichedGrant) LogStage(entry string) {
	g.EnrichmentLog = append(g.EnrichmentLog,
		fmt.Sprintf("%s %s", time.Now().UTC().Format(time.RFC3339), entry))
	g.UpdatedAt = time.Now().UTC()
}

// SearchBlob returns the combined text the keyword scorers match against.
func (g *EnrichedGrant) SearchBlob() string {
	return strings.ToLower(g.Title + " " + g.Description + " " + g.Eligibility)
}

// FieldCount counts the non-empty, non-placeholder descriptive fields.
// Used to pick the richer of two colliding duplicates.
func (g *EnrichedGrant) FieldCount() int {
	n := 0
	for _, v := range []string{g.Title, g.Description, g.FunderName, g.Deadline, g.Eligibility, g.FundingAmountDisplay} {
		if !isPlaceholder(v) {
			n++
		}
	}
	if g.FundingAmountExact > 0 || g.FundingAmountMax > 0 {
		n++
	}
	return n
}

// placeholderValues are strings the model emits when it has no data.
var placeholderValues = map[string]bool{
	"": true, "n/a": true, "na": true, "none": true, "unknown": true,
	"not specified": true, "not available": true, "tbd": true, "varies": true,
}

func isPlaceholder(v string) bool {
	return placeholderValues[strings.ToLower(strings.TrimSpace(v))]
}

// IsAbsoluteURL reports whether raw is a parseable absolute http or
// https URL with a host and no embedded whitespace.
func IsAbsoluteURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t\n") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// NormalizeURL canonicalizes a source URL for identity comparison:
// scheme and host are lowercased, default ports and trailing slashes
// dropped. Unparseable input falls back to lowercased trimming.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(strings.ToLower(raw), "/")
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	path := strings.TrimRight(u.Path, "/")
	out := scheme + "://" + host + path
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	return out
}

// NormalizeTitle lowercases and collapses whitespace for identity
// comparison.
func NormalizeTitle(t string) string {
	return strings.Join(strings.Fields(strings.ToLower(t)), " ")
}
