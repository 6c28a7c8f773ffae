package parser

import (
	"go.uber.org/zap"

	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/model"
)

const (
	// FuzzyThreshold is the title-similarity ratio at or above which two
	// grants are considered the same opportunity.
	FuzzyThreshold = 0.85
	// MinFuzzyTitleLen excludes short titles from fuzzy matching; below
	// this length the ratio produces too many false positives.
	MinFuzzyTitleLen = 30
)

// Deduplicator collapses grants arriving from different chunks into a
// unique set using a layered identity strategy.
type Deduplicator struct {
	threshold float64
	minLen    int
}

// NewDeduplicator returns a Deduplicator with the default thresholds.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{threshold: FuzzyThreshold, minLen: MinFuzzyTitleLen}
}

// Dedupe returns the unique grants in input order plus the number of
// duplicates dropped. When two grants collide, the one with more
// non-empty fields is kept; the loser is discarded without merging
// (cross-run field merges belong to the persistence gateway).
// Dedupe is idempotent: running it on its own output drops nothing.
func (d *Deduplicator) Dedupe(grants []*model.EnrichedGrant) ([]*model.EnrichedGrant, int) {
	var kept []*model.EnrichedGrant
	byURL := make(map[string]int)
	byTitleDeadline := make(map[[2]string]int)
	dropped := 0

	for _, g := range grants {
		idx := d.findMatch(g, kept, byURL, byTitleDeadline)
		if idx < 0 {
			kept = append(kept, g)
			d.index(g, len(kept)-1, byURL, byTitleDeadline)
			continue
		}

		dropped++
		if g.FieldCount() > kept[idx].FieldCount() {
			// Richer newcomer wins the slot. It can match kept records
			// its predecessor did not, so fold those in now; otherwise a
			// second pass could still collapse the output.
			kept[idx] = g
			folded := 0
			kept, folded = d.recollapse(kept, idx)
			dropped += folded
			if folded > 0 {
				byURL = make(map[string]int)
				byTitleDeadline = make(map[[2]string]int)
				for i, k := range kept {
					d.index(k, i, byURL, byTitleDeadline)
				}
			} else {
				d.index(g, idx, byURL, byTitleDeadline)
			}
		}
	}

	if dropped > 0 {
		zap.L().Info("dedup: collapsed duplicates",
			zap.Int("input", len(grants)),
			zap.Int("unique", len(kept)),
			zap.Int("dropped", dropped),
		)
	}
	return kept, dropped
}

// findMatch applies the identity tiers in precedence order: normalized
// URL, then (title, deadline), then fuzzy title similarity.
func (d *Deduplicator) findMatch(g *model.EnrichedGrant, kept []*model.EnrichedGrant, byURL map[string]int, byTD map[[2]string]int) int {
	if idx, ok := byURL[model.NormalizeURL(g.SourceURL)]; ok {
		return idx
	}

	if g.Deadline != "" {
		if idx, ok := byTD[[2]string{model.NormalizeTitle(g.Title), g.Deadline}]; ok {
			return idx
		}
	}

	if len(g.Title) > d.minLen {
		for idx, other := range kept {
			if len(other.Title) <= d.minLen {
				continue
			}
			if TitleSimilarity(g.Title, other.Title) >= d.threshold {
				return idx
			}
		}
	}

	return -1
}

// recollapse folds every kept record that matches the replacement at
// idx into one slot, keeping the richest record at the earliest slot
// involved. Folding can change which record occupies the slot, exposing
// further matches, so it repeats until nothing folds.
func (d *Deduplicator) recollapse(kept []*model.EnrichedGrant, idx int) ([]*model.EnrichedGrant, int) {
	total := 0
	for {
		winner := kept[idx]
		slot := idx
		matched := make(map[int]bool)
		for i, g := range kept {
			if i == idx || !d.SameOpportunity(winner, g) {
				continue
			}
			matched[i] = true
			if i < slot {
				slot = i
			}
			if g.FieldCount() > winner.FieldCount() {
				winner = g
			}
		}
		if len(matched) == 0 {
			return kept, total
		}
		total += len(matched)

		out := make([]*model.EnrichedGrant, 0, len(kept)-len(matched))
		for i, g := range kept {
			switch {
			case i == slot:
				out = append(out, winner)
			case i == idx || matched[i]:
				// folded away
			default:
				out = append(out, g)
			}
		}
		kept = out
		idx = slot
	}
}

func (d *Deduplicator) index(g *model.EnrichedGrant, idx int, byURL map[string]int, byTD map[[2]string]int) {
	byURL[model.NormalizeURL(g.SourceURL)] = idx
	if g.Deadline != "" {
		byTD[[2]string{model.NormalizeTitle(g.Title), g.Deadline}] = idx
	}
}

// SameOpportunity reports whether two grants refer to the same
// opportunity under the layered identity strategy. The persistence
// gateway uses this for its store-side duplicate check.
func (d *Deduplicator) SameOpportunity(a, b *model.EnrichedGrant) bool {
	if model.NormalizeURL(a.SourceURL) == model.NormalizeURL(b.SourceURL) {
		return true
	}
	if a.Deadline != "" && a.Deadline == b.Deadline &&
		model.NormalizeTitle(a.Title) == model.NormalizeTitle(b.Title) {
		return true
	}
	if len(a.Title) > d.minLen && len(b.Title) > d.minLen &&
		TitleSimilarity(a.Title, b.Title) >= d.threshold {
		return true
	}
	return false
}
