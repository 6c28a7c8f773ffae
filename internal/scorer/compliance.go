package scorer

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/config"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/model"
)

// Business-logic debit weights.
const (
	prohibitedPenalty  = 0.5
	orgMismatchPenalty = 0.3
	ethicalFlagPenalty = 0.4
)

// Feasibility debit when the grant's reporting cadence exceeds the
// profile's capacity.
const cadencePenalty = 0.4

// Synergy credit and debit weights.
const (
	objectiveCredit    = 0.25
	targetSectorCredit = 0.25
	synergisticCredit  = 0.15
	misalignedPenalty  = 0.3
)

// cadenceRank orders reporting cadences by demand. A grant requiring a
// higher rank than the profile's capacity is penalized.
var cadenceRank = map[string]int{"annual": 1, "quarterly": 2, "monthly": 3}

// creditRule is one data-driven scoring rule: each matched keyword
// adjusts the sub-score by weight. When stopOnFirst is set only the
// first hit counts.
type creditRule struct {
	name        string
	keywords    []string
	weight      float64
	stopOnFirst bool
}

// apply scans blob for the rule's keywords and returns the total
// adjustment plus the matched keywords.
func (r creditRule) apply(blob string) (float64, []string) {
	var delta float64
	var hits []string
	for _, kw := range r.keywords {
		if !containsKeyword(blob, kw) {
			continue
		}
		delta += r.weight
		hits = append(hits, kw)
		if r.stopOnFirst {
			break
		}
	}
	return delta, hits
}

// ComplianceScorer computes the business-logic, feasibility, and
// synergy sub-scores and fuses all three into the composite. Business
// logic and feasibility start at 1.0 and are debited for red flags;
// synergy starts at 0.0 and is credited for alignment signals.
type ComplianceScorer struct {
	cfg config.ComplianceConfig
	w   config.CompositeWeights
}

// NewComplianceScorer creates a ComplianceScorer from the loaded rules.
func NewComplianceScorer(cfg config.ComplianceConfig, weights config.CompositeWeights) *ComplianceScorer {
	return &ComplianceScorer{cfg: cfg, w: weights}
}

// Score fills the grant's compliance sub-scores in place, then fuses
// the composite.
func (s *ComplianceScorer) Score(g *model.EnrichedGrant) {
	blob := g.SearchBlob()

	business := s.scoreBusinessLogic(blob)
	feasibility := s.scoreFeasibility(blob)
	synergy := s.scoreSynergy(blob)

	g.Compliance.BusinessLogicAlignment = &business
	g.Compliance.FeasibilityScore = &feasibility
	g.Compliance.StrategicSynergy = &synergy
	g.LogStage(fmt.Sprintf("compliance scored: business=%.2f feasibility=%.2f synergy=%.2f", business, feasibility, synergy))

	s.Fuse(g)
}

// scoreBusinessLogic starts at 1.0 and debits red flags: one
// prohibited-keyword hit (first only), an organization-type mismatch,
// and any ethical flags.
func (s *ComplianceScorer) scoreBusinessLogic(blob string) float64 {
	score := 1.0

	prohibited := creditRule{name: "prohibited", keywords: s.cfg.ProhibitedKeywords, weight: -prohibitedPenalty, stopOnFirst: true}
	if delta, hits := prohibited.apply(blob); len(hits) > 0 {
		score += delta
		zap.L().Debug("scorer: prohibited keyword hit", zap.Strings("keywords", hits))
	}

	if s.orgTypeMismatch(blob) {
		score -= orgMismatchPenalty
	}

	ethical := creditRule{name: "ethical", keywords: s.cfg.EthicalFlags, weight: -ethicalFlagPenalty, stopOnFirst: true}
	if delta, hits := ethical.apply(blob); len(hits) > 0 {
		score += delta
		zap.L().Debug("scorer: ethical flag hit", zap.Strings("keywords", hits))
	}

	return clamp01(score)
}

// orgTypeMismatch reports whether the grant text demands an
// organization type the business profile does not have. The required
// keywords are nonprofit-status phrases; the profile satisfies them
// only when its org types include a nonprofit designation.
func (s *ComplianceScorer) orgTypeMismatch(blob string) bool {
	required := false
	for _, kw := range s.cfg.RequiredOrgKeywords {
		if containsKeyword(blob, kw) {
			required = true
			break
		}
	}
	if !required {
		return false
	}
	for _, t := range s.cfg.Profile.OrgTypes {
		t = strings.ToLower(t)
		if strings.Contains(t, "nonprofit") || strings.Contains(t, "non-profit") || strings.Contains(t, "501") {
			return false
		}
	}
	return true
}

// scoreFeasibility starts at 1.0 and debits when the grant's implied
// reporting cadence exceeds the profile's capacity. No cadence language
// means no penalty.
func (s *ComplianceScorer) scoreFeasibility(blob string) float64 {
	required := 0
	for cadence, rank := range cadenceRank {
		if strings.Contains(blob, cadence) && rank > required {
			required = rank
		}
	}
	if required == 0 {
		return 1.0
	}

	capacity, ok := cadenceRank[s.cfg.Profile.ReportingCapacity]
	if !ok {
		// Unstated capacity: assume the profile can meet any cadence.
		return 1.0
	}

	score := 1.0
	if required > capacity {
		score -= cadencePenalty
	}
	return clamp01(score)
}

// scoreSynergy starts at 0.0 and credits alignment signals. Unlike the
// business-logic rule, every misaligned keyword is scanned and every
// penalty applied.
func (s *ComplianceScorer) scoreSynergy(blob string) float64 {
	rules := []creditRule{
		{name: "objectives", keywords: s.cfg.Profile.PrimaryObjectives, weight: objectiveCredit},
		{name: "target sectors", keywords: s.cfg.Profile.TargetSectors, weight: targetSectorCredit},
		{name: "synergistic", keywords: s.cfg.SynergisticKeywords, weight: synergisticCredit},
		{name: "misaligned", keywords: s.cfg.MisalignedKeywords, weight: -misalignedPenalty},
	}

	score := 0.0
	for _, r := range rules {
		delta, _ := r.apply(blob)
		score += delta
	}
	return clamp01(score)
}

// Fuse computes the final weighted score from the compliance
// sub-scores and stamps it as the grant's composite. A missing
// sub-score contributes 0.0 to the sum; if no scorer has run at all the
// composite is 0.0 and a diagnostic is logged rather than an error.
func (s *ComplianceScorer) Fuse(g *model.EnrichedGrant) {
	if !g.ResearchContext.Computed() && !g.Compliance.Computed() {
		zap.L().Warn("scorer: fusing unscored grant, composite defaults to 0.0",
			zap.String("grant_id", g.ID),
			zap.String("title", g.Title))
		g.Compliance.FinalWeightedScore = 0.0
		g.CompositeScore = 0.0
		return
	}

	final := s.w.BusinessLogic*deref(g.Compliance.BusinessLogicAlignment) +
		s.w.Feasibility*deref(g.Compliance.FeasibilityScore) +
		s.w.Synergy*deref(g.Compliance.StrategicSynergy)

	final = round4(final)
	g.Compliance.FinalWeightedScore = final
	g.CompositeScore = final
	g.LogStage(fmt.Sprintf("composite score fused: %.4f", final))
}

func deref(p *float64) float64 {
	if p == nil {
		return 0.0
	}
	return *p
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
