package searcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/config"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/model"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/parser"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/planner"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/ratelimit"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/resilience"
)

// Executor fans planned chunks out to the provider in bounded batches.
// Each chunk is staggered by its priority, retried through the shared
// retry policy, and isolated: a failed chunk yields an empty result and
// never aborts its siblings. Only day-window quota exhaustion halts the
// run.
type Executor struct {
	completer Completer
	refiner   Completer
	limiter   *ratelimit.Limiter
	// pacer smooths dispatch within the minute window so the budget is
	// not burned in one burst at the top of each window.
	pacer *rate.Limiter
	cfg   config.SearchConfig
	retry resilience.RetryConfig

	mu   sync.Mutex
	seen map[string]bool
}

// NewExecutor creates an Executor. refiner may equal completer; it must
// not be nil when cfg.RefineThreshold > 0.
func NewExecutor(completer, refiner Completer, limiter *ratelimit.Limiter, cfg config.SearchConfig) *Executor {
	retry := resilience.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	retry.OnRetry = resilience.RetryLogger(completer.Name(), "chat completion")

	pacer := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		burst := max(cfg.MaxConcurrent, 1)
		pacer = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst)
	}

	return &Executor{
		completer: completer,
		refiner:   refiner,
		limiter:   limiter,
		pacer:     pacer,
		cfg:       cfg,
		retry:     retry,
		seen:      make(map[string]bool),
	}
}

// Execute runs every chunk and returns one result per chunk, in chunk
// order. The returned error is non-nil only for terminal conditions
// (day quota, context cancellation); per-chunk failures are recorded in
// the corresponding result's metadata instead.
func (e *Executor) Execute(ctx context.Context, chunks []model.SearchChunk) ([]model.ChunkedSearchResult, error) {
	results := make([]model.ChunkedSearchResult, len(chunks))
	for i, c := range chunks {
		results[i] = model.ChunkedSearchResult{Chunk: c}
	}

	batchSize := e.cfg.MaxConcurrent
	if batchSize <= 0 {
		batchSize = 1
	}

	for start := 0; start < len(chunks); start += batchSize {
		if start > 0 {
			if err := sleepCtx(ctx, secs(e.cfg.InterBatchSecs)); err != nil {
				e.markRemaining(results, start, "run cancelled")
				return results, err
			}
		}

		end := min(start+batchSize, len(chunks))
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				return e.runChunk(gctx, &results[i])
			})
		}

		if err := g.Wait(); err != nil {
			if resilience.IsDailyQuotaExceeded(err) {
				zap.L().Error("executor: daily quota exhausted, halting run",
					zap.Int("chunks_completed", end),
					zap.Int("chunks_remaining", len(chunks)-end))
				e.markRemaining(results, end, "daily quota exhausted")
				return results, err
			}
			e.markRemaining(results, end, "run cancelled")
			return results, err
		}
	}

	return results, nil
}

// runChunk executes one chunk into res. It returns an error only for
// terminal conditions; ordinary failures set res.Metadata.Failed.
func (e *Executor) runChunk(ctx context.Context, res *model.ChunkedSearchResult) error {
	chunk := res.Chunk

	// Stagger: lower-priority (higher-number) chunks wait longer so the
	// provider sees requests spread out within the batch.
	stagger := time.Duration(float64(chunk.Priority) * e.cfg.BaseStaggerSecs * float64(time.Second))
	if err := sleepCtx(ctx, stagger); err != nil {
		res.Metadata.Failed = true
		res.Metadata.FailureReason = "run cancelled"
		return err
	}

	prompt := planner.BuildSearchPrompt(chunk)
	res.Metadata.QueryLength = len(prompt)

	content, usage, err := e.complete(ctx, prompt, &res.Metadata.Attempts)
	res.Metadata.InputTokens += usage.InputTokens
	res.Metadata.OutputTokens += usage.OutputTokens
	if err != nil {
		if resilience.IsDailyQuotaExceeded(err) || ctx.Err() != nil {
			res.Metadata.Failed = true
			res.Metadata.FailureReason = err.Error()
			return err
		}
		zap.L().Warn("executor: chunk failed, continuing with siblings",
			zap.String("chunk", chunk.ID),
			zap.Error(err))
		res.Metadata.Failed = true
		res.Metadata.FailureReason = err.Error()
		return nil
	}
	res.Metadata.ResponseChars = len(content)

	res.Candidates = parser.Parse(content, chunk)
	newCount := e.markNew(res.Candidates)

	zap.L().Info("executor: chunk completed",
		zap.String("chunk", chunk.ID),
		zap.Int("candidates", len(res.Candidates)),
		zap.Int("new", newCount))

	if e.cfg.RefineThreshold > 0 && newCount >= e.cfg.RefineThreshold && e.refiner != nil {
		if err := e.refine(ctx, res); err != nil {
			if resilience.IsDailyQuotaExceeded(err) {
				return err
			}
			zap.L().Warn("executor: refinement pass abandoned",
				zap.String("chunk", chunk.ID),
				zap.Error(err))
		}
	}

	return nil
}

// complete issues one completion through the limiter and retry policy.
func (e *Executor) complete(ctx context.Context, prompt string, attempts *int) (string, Usage, error) {
	type reply struct {
		content string
		usage   Usage
	}

	r, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (reply, error) {
		if err := e.limiter.Acquire(ctx); err != nil {
			return reply{}, err
		}
		if err := e.pacer.Wait(ctx); err != nil {
			return reply{}, err
		}
		*attempts++

		content, usage, err := e.completer.Complete(ctx, prompt)
		if err != nil {
			var te *resilience.TransientError
			if errors.As(err, &te) && te.StatusCode == 429 {
				e.limiter.Record(ratelimit.Throttled)
			}
			return reply{usage: usage}, err
		}
		e.limiter.Record(ratelimit.Success)
		return reply{content: content, usage: usage}, nil
	})
	return r.content, r.usage, err
}

// refine re-queries the top new candidates individually and merges each
// detailed answer into the candidate as free-text context. Refinement
// is best effort: a failed detail query skips that candidate only.
func (e *Executor) refine(ctx context.Context, res *model.ChunkedSearchResult) error {
	topN := min(e.cfg.RefineTopN, len(res.Candidates))
	for i := 0; i < topN; i++ {
		prompt := planner.BuildDetailPrompt(res.Candidates[i])

		content, usage, err := e.refineComplete(ctx, prompt, &res.Metadata.Attempts)
		res.Metadata.InputTokens += usage.InputTokens
		res.Metadata.OutputTokens += usage.OutputTokens
		if err != nil {
			if resilience.IsDailyQuotaExceeded(err) || ctx.Err() != nil {
				return err
			}
			zap.L().Warn("executor: detail query failed",
				zap.String("chunk", res.Chunk.ID),
				zap.String("title", res.Candidates[i].Title),
				zap.Error(err))
			continue
		}
		if content == "" {
			continue
		}

		if res.Candidates[i].Description != "" {
			res.Candidates[i].Description += "\n\n"
		}
		res.Candidates[i].Description += "Additional context: " + content
		res.Metadata.Refined = true
	}
	return nil
}

func (e *Executor) refineComplete(ctx context.Context, prompt string, attempts *int) (string, Usage, error) {
	type reply struct {
		content string
		usage   Usage
	}
	r, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (reply, error) {
		if err := e.limiter.Acquire(ctx); err != nil {
			return reply{}, err
		}
		if err := e.pacer.Wait(ctx); err != nil {
			return reply{}, err
		}
		*attempts++
		content, usage, err := e.refiner.Complete(ctx, prompt)
		if err != nil {
			return reply{usage: usage}, err
		}
		e.limiter.Record(ratelimit.Success)
		return reply{content: content, usage: usage}, nil
	})
	return r.content, r.usage, err
}

// markNew counts candidates whose normalized URL has not been seen in
// this run and records them. The seen set is shared across chunks and
// guarded; batch goroutines touch it concurrently.
func (e *Executor) markNew(candidates []model.RawCandidate) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	newCount := 0
	for _, c := range candidates {
		key := model.NormalizeURL(c.SourceURL)
		if !e.seen[key] {
			e.seen[key] = true
			newCount++
		}
	}
	return newCount
}

// markRemaining flags every result from index start on as failed with
// the given reason, leaving already-completed results untouched.
func (e *Executor) markRemaining(results []model.ChunkedSearchResult, start int, reason string) {
	for i := start; i < len(results); i++ {
		if results[i].Metadata.Failed || results[i].Metadata.ResponseChars > 0 {
			continue
		}
		results[i].Metadata.Failed = true
		results[i].Metadata.FailureReason = fmt.Sprintf("not dispatched: %s", reason)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
