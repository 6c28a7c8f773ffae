package planner

import (
	"fmt"
	"strings"

	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/model"
)

// sectorStrategies are canned reasoning hints keyed by sector focus.
// Unknown sectors fall back to defaultStrategy.
var sectorStrategies = map[string]string{
	"telecommunications":    "Prioritize infrastructure and connectivity programs: broadband deployment funds, digital equity programs, FCC and USDA initiatives, and state broadband offices.",
	"community_development": "Prioritize place-based programs: community foundations, CDBG-style block grants, rural development initiatives, and economic revitalization funds.",
	"women_owned_nonprofit": "Prioritize capacity-building and demographic-targeted programs: women's business centers, minority-serving intermediaries, and nonprofit operating support.",
}

const defaultStrategy = "Prioritize programs whose stated purpose directly matches the keywords, from government agencies, foundations, and corporate giving programs."

// geoScope renders the geographic-scope instruction for a tier.
func geoScope(chunk model.SearchChunk) string {
	switch chunk.GeographicFocus {
	case model.GeoLocal:
		return "Restrict results to opportunities available at the city, parish, or county level."
	case model.GeoState:
		return "Restrict results to state-level opportunities, including state agency and state foundation programs."
	case model.GeoRegional:
		return "Restrict results to multi-state regional opportunities covering the applicant's region."
	case model.GeoFederal:
		return "Include federal and nationwide opportunities open to applicants in any state."
	default:
		return "Include opportunities at any geographic level."
	}
}

// BuildSearchPrompt renders a chunk into the first-pass search prompt.
// The prompt instructs the model to reason step by step and to emit
// labeled fields the parser extracts; opportunities without a direct
// application URL must be omitted entirely.
func BuildSearchPrompt(chunk model.SearchChunk) string {
	strategy, ok := sectorStrategies[chunk.SectorFocus]
	if !ok {
		strategy = defaultStrategy
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Find currently open funding opportunities (grants) matching these keywords: %s.\n\n",
		strings.Join(chunk.Keywords, ", "))
	fmt.Fprintf(&b, "Geographic scope: %s\n", geoScope(chunk))
	fmt.Fprintf(&b, "Sector strategy: %s\n\n", strategy)

	b.WriteString(`Work through this step by step:
1. Search for opportunities that directly match the keywords.
2. Expand the search to close synonyms and related program names.
3. Cross-reference each candidate against the geographic scope and sector constraints.
4. Validate that the funding amount and deadline of each candidate are plausible; drop anything stale or implausible.

For every opportunity you keep, output a paragraph with these labeled fields, one per line:
Title: <program name>
Funder: <funding organization>
Amount: <dollar amount or range>
Deadline: <application deadline>
URL: <direct application or program URL>
Description: <one to three sentences>
Eligibility: <who can apply>

Hard requirement: omit any opportunity for which you cannot provide a direct, absolute http(s) application URL. Do not substitute a homepage or a search page.`)

	return b.String()
}

// BuildDetailPrompt renders the refinement-pass prompt for a single
// candidate. The reply is merged into the candidate as free-text
// context; it is not re-parsed for structured fields.
func BuildDetailPrompt(c model.RawCandidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Provide detailed context for this funding opportunity:\n\nTitle: %s\n", c.Title)
	if c.FunderName != "" {
		fmt.Fprintf(&b, "Funder: %s\n", c.FunderName)
	}
	fmt.Fprintf(&b, "URL: %s\n\n", c.SourceURL)
	b.WriteString(`Describe, in plain prose: the full eligibility requirements, the application process and typical timeline, reporting obligations, and any match or cost-share requirements. If the opportunity has closed or the URL no longer resolves, say so explicitly.`)
	return b.String()
}
