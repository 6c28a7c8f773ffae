// Package planner turns a broad search intent into an ordered set of
// small, bounded sub-queries and renders each into a structured prompt.
package planner

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/config"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/model"
)

// maxEffectiveKeywords caps how many keywords a single chunk carries.
// Small keyword sets keep each model query focused and parseable.
const maxEffectiveKeywords = 3

// Planner expands focus areas × geographic tiers into search chunks.
type Planner struct {
	focusAreas map[string][]string
	geoTiers   map[string][]string
}

// New creates a Planner from the loaded scoring tables.
func New(cfg config.ScoringConfig) *Planner {
	return &Planner{
		focusAreas: cfg.FocusAreas,
		geoTiers:   cfg.GeoTiers,
	}
}

// Plan emits one chunk per (sector, tier) pair, sorted ascending by
// priority (local first). Each chunk gets at most three effective
// keywords: topic keywords first, then one tier keyword, then any
// caller-supplied base keywords filling the remaining slots. Empty
// tables yield an empty plan, not an error.
func (p *Planner) Plan(baseKeywords []string) []model.SearchChunk {
	var chunks []model.SearchChunk

	sectors := sortedKeys(p.focusAreas)
	tiers := sortedKeys(p.geoTiers)

	for _, sector := range sectors {
		topics := p.focusAreas[sector]
		for _, tier := range tiers {
			focus := model.GeographicFocus(tier)
			if !focus.Valid() {
				zap.L().Warn("planner: skipping unknown geographic tier", zap.String("tier", tier))
				continue
			}

			keywords := assembleKeywords(topics, p.geoTiers[tier], baseKeywords)
			chunks = append(chunks, model.SearchChunk{
				ID:              fmt.Sprintf("%s-%s", sector, tier),
				Keywords:        keywords,
				GeographicFocus: focus,
				SectorFocus:     sector,
				Priority:        focus.Priority(),
			})
		}
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Priority != chunks[j].Priority {
			return chunks[i].Priority < chunks[j].Priority
		}
		return chunks[i].ID < chunks[j].ID
	})

	zap.L().Info("planner: search plan built",
		zap.Int("chunks", len(chunks)),
		zap.Int("sectors", len(sectors)),
		zap.Int("tiers", len(tiers)),
	)
	return chunks
}

// assembleKeywords fills the slot budget: topic keywords are truncated
// to leave room for one geo keyword, then base keywords take whatever
// slots remain.
func assembleKeywords(topics, tierKeywords, base []string) []string {
	budget := maxEffectiveKeywords

	geoSlot := 0
	if len(tierKeywords) > 0 {
		geoSlot = 1
	}

	keywords := make([]string, 0, budget)
	for _, t := range topics {
		if len(keywords) >= budget-geoSlot {
			break
		}
		keywords = append(keywords, t)
	}
	if geoSlot == 1 {
		keywords = append(keywords, tierKeywords[0])
	}
	for _, b := range base {
		if len(keywords) >= budget {
			break
		}
		keywords = append(keywords, b)
	}
	return keywords
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
