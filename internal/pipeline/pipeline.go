// Package pipeline wires the discovery stages together: plan chunks,
// execute them against the provider, parse and deduplicate candidates,
// score, and persist. Partial failures never raise out of Run; they are
// reflected in the run record instead.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/config"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/model"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/parser"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/planner"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/ratelimit"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/resilience"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/scorer"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/searcher"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/store"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/pkg/anthropic"
)

// RunResult is what a pipeline run hands downstream: the scored,
// persisted grants plus the run accounting.
type RunResult struct {
	Run    model.RunRecord        `json:"run"`
	Grants []*model.EnrichedGrant `json:"grants"`
}

// chunkExecutor is the executor surface the pipeline drives.
type chunkExecutor interface {
	Execute(ctx context.Context, chunks []model.SearchChunk) ([]model.ChunkedSearchResult, error)
}

// Pipeline orchestrates one discovery run end to end.
type Pipeline struct {
	cfg        *config.Config
	planner    *planner.Planner
	executor   chunkExecutor
	deduper    *parser.Deduplicator
	relevance  *scorer.RelevanceScorer
	compliance *scorer.ComplianceScorer
	gateway    store.Gateway
}

// New assembles a Pipeline from validated configuration. The limiter
// and executor are created here so each run shares one budget.
func New(cfg *config.Config, gateway store.Gateway) (*Pipeline, error) {
	completer, err := searcher.FromConfig(cfg, cfg.Search.Provider)
	if err != nil {
		return nil, err
	}

	refiner := completer
	if cfg.Search.RefineProvider != "" && cfg.Search.RefineProvider != cfg.Search.Provider {
		refiner, err = searcher.FromConfig(cfg, cfg.Search.RefineProvider)
		if err != nil {
			return nil, err
		}
	}

	limiter := ratelimit.New(
		cfg.Search.RequestsPerMinute,
		cfg.Search.RequestsPerDay,
		time.Second,
		secs(cfg.Search.BackoffCeilingSecs),
	)

	return &Pipeline{
		cfg:        cfg,
		planner:    planner.New(cfg.Scoring),
		executor:   searcher.NewExecutor(completer, refiner, limiter, cfg.Search),
		deduper:    parser.NewDeduplicator(),
		relevance:  scorer.NewRelevanceScorer(cfg.Scoring.Relevance),
		compliance: scorer.NewComplianceScorer(cfg.Scoring.Compliance, cfg.Scoring.Weights),
		gateway:    gateway,
	}, nil
}

// Run executes one full discovery run. It always returns a result; the
// error is non-nil only for context cancellation and persistence of the
// run record itself. Quota exhaustion is reported through the run
// status, not an error.
func (p *Pipeline) Run(ctx context.Context, baseKeywords []string) (*RunResult, error) {
	run, err := p.gateway.CreateRun(ctx)
	if err != nil {
		return nil, err
	}

	result := &RunResult{Run: *run}

	chunks := p.planner.Plan(baseKeywords)
	result.Run.ChunksPlanned = len(chunks)
	if len(chunks) == 0 {
		zap.L().Warn("pipeline: empty search plan, nothing to do")
		result.Run.Status = model.RunCompleted
		return result, p.gateway.CompleteRun(ctx, &result.Run)
	}

	chunkResults, execErr := p.executor.Execute(ctx, chunks)
	grants := p.aggregate(chunkResults, &result.Run)

	unique, dropped := p.deduper.Dedupe(grants)
	result.Run.Duplicates = dropped

	for _, g := range unique {
		p.relevance.Score(g)
		p.compliance.Score(g)
	}

	result.Grants = p.persist(ctx, unique, &result.Run)
	result.Run.EstimatedCostUSD = p.estimateCost(result.Run.InputTokens, result.Run.OutputTokens)

	switch {
	case resilience.IsDailyQuotaExceeded(execErr):
		result.Run.Status = model.RunQuotaExhausted
	case execErr != nil && errors.Is(execErr, context.Canceled):
		result.Run.Status = model.RunFailed
	case execErr != nil:
		result.Run.Status = model.RunFailed
	default:
		result.Run.Status = model.RunCompleted
	}

	if err := p.gateway.CompleteRun(ctx, &result.Run); err != nil {
		zap.L().Error("pipeline: failed to record run completion", zap.Error(err))
	}

	zap.L().Info("pipeline: run finished",
		zap.String("run_id", result.Run.ID),
		zap.String("status", string(result.Run.Status)),
		zap.Int("chunks_planned", result.Run.ChunksPlanned),
		zap.Int("chunks_failed", result.Run.ChunksFailed),
		zap.Int("candidates", result.Run.CandidatesParsed),
		zap.Int("duplicates", result.Run.Duplicates),
		zap.Int("stored", result.Run.Stored),
	)

	if execErr != nil && ctx.Err() != nil {
		return result, execErr
	}
	return result, nil
}

// aggregate converts chunk candidates into grants, enforcing the URL
// gate, and tallies chunk and token accounting into the run record.
func (p *Pipeline) aggregate(results []model.ChunkedSearchResult, run *model.RunRecord) []*model.EnrichedGrant {
	var grants []*model.EnrichedGrant

	for _, r := range results {
		if r.Metadata.Failed {
			run.ChunksFailed++
		} else {
			run.ChunksSucceeded++
		}
		run.InputTokens += r.Metadata.InputTokens
		run.OutputTokens += r.Metadata.OutputTokens

		for _, c := range r.Candidates {
			run.CandidatesParsed++
			g, err := model.NewGrant(c)
			if err != nil {
				// Missing-URL and titleless candidates are filtered by
				// design, not errors.
				zap.L().Debug("pipeline: candidate rejected",
					zap.String("chunk", r.Chunk.ID),
					zap.Error(err))
				continue
			}
			grants = append(grants, g)
		}
	}
	return grants
}

// persist upserts each scored grant individually. A failed upsert skips
// that grant only; already-saved siblings are unaffected.
func (p *Pipeline) persist(ctx context.Context, grants []*model.EnrichedGrant, run *model.RunRecord) []*model.EnrichedGrant {
	var stored []*model.EnrichedGrant
	for _, g := range grants {
		saved, err := p.gateway.Upsert(ctx, g)
		if err != nil {
			zap.L().Warn("pipeline: persistence failed for grant, skipping",
				zap.String("title", g.Title),
				zap.Error(err))
			continue
		}
		stored = append(stored, saved)
		run.Stored++
	}
	return stored
}

// estimateCost prices the run's tokens when the provider has a known
// pricing table; unknown providers cost out at zero.
func (p *Pipeline) estimateCost(inputTokens, outputTokens int64) float64 {
	if p.cfg.Search.Provider != "anthropic" {
		return 0
	}
	usage := anthropic.TokenUsage{InputTokens: inputTokens, OutputTokens: outputTokens}
	return usage.EstimateCost(p.cfg.Anthropic.Model)
}

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
