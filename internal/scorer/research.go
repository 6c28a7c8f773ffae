// Package scorer implements the two enrichment scoring stages and the
// weighted fusion that produces the final composite score.
package scorer

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/config"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/model"
)

// exclusionFloor is the cap applied when an exclusion keyword matches.
// The sub-score can end below the floor from its own arithmetic but can
// never rise above it once an exclusion has hit.
const exclusionFloor = 0.1

// RelevanceScorer computes the research-context sub-scores from
// configurable keyword tables. It is additive: scores start low and
// earn credit per matched keyword.
type RelevanceScorer struct {
	cfg config.RelevanceConfig
}

// NewRelevanceScorer creates a RelevanceScorer from the loaded tables.
func NewRelevanceScorer(cfg config.RelevanceConfig) *RelevanceScorer {
	return &RelevanceScorer{cfg: cfg}
}

// Score fills the grant's research-context sub-scores in place. Missing
// rule tables score at the default with a warning rather than failing
// the grant.
func (s *RelevanceScorer) Score(g *model.EnrichedGrant) {
	blob := g.SearchBlob()

	sector := s.applyRules(blob, s.cfg.Sector, "sector")
	geo := s.applyRules(blob, s.cfg.Geographic, "geographic")
	ops := s.applyRules(blob, s.cfg.Operational, "operational")

	// Nationwide programs stay relevant even when no local place name
	// appears in the text.
	if strings.Contains(blob, "national") || strings.Contains(blob, "nationwide") {
		geo = clamp01(geo + s.cfg.NationalBonus)
	}

	g.ResearchContext.SectorRelevance = &sector
	g.ResearchContext.GeographicRelevance = &geo
	g.ResearchContext.OperationalAlignment = &ops
	g.LogStage(fmt.Sprintf("research context scored: sector=%.2f geographic=%.2f operational=%.2f", sector, geo, ops))
}

// applyRules runs one keyword table against the text: start at the
// default, credit each priority and secondary hit, then cap at the
// exclusion floor if any exclusion keyword appears.
func (s *RelevanceScorer) applyRules(blob string, rules config.KeywordRuleSet, dimension string) float64 {
	if len(rules.Priority) == 0 && len(rules.Secondary) == 0 && len(rules.Exclusions) == 0 {
		zap.L().Warn("scorer: empty relevance rule table, scoring at default",
			zap.String("dimension", dimension))
		return clamp01(s.cfg.DefaultScore)
	}

	score := s.cfg.DefaultScore
	for _, kw := range rules.Priority {
		if containsKeyword(blob, kw) {
			score += s.cfg.PriorityWeight
		}
	}
	for _, kw := range rules.Secondary {
		if containsKeyword(blob, kw) {
			score += s.cfg.SecondaryWeight
		}
	}

	for _, kw := range rules.Exclusions {
		if containsKeyword(blob, kw) {
			if score > exclusionFloor {
				score = exclusionFloor
			}
			break
		}
	}

	return clamp01(score)
}

func containsKeyword(blob, kw string) bool {
	kw = strings.ToLower(strings.TrimSpace(kw))
	return kw != "" && strings.Contains(blob, kw)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
