// Package store persists enriched grants and run records. The gateway
// is the second enforcement point for the absolute-URL rule and owns
// cross-run duplicate detection and field merging.
package store

import (
	"context"

	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/model"
)

// GrantFilter specifies criteria for listing stored grants. A zero
// Limit applies the default page size; a negative Limit means no limit.
type GrantFilter struct {
	MinScore float64 `json:"min_score,omitempty"`
	Sector   string  `json:"sector,omitempty"`
	Limit    int     `json:"limit,omitempty"`
}

// Gateway defines the persistence interface for the pipeline.
type Gateway interface {
	// Upsert stores a scored grant. Inputs without a valid absolute URL
	// are rejected with model.ErrMissingURL. When the grant duplicates a
	// stored record under the three-tier identity strategy, new fields
	// are merged into the existing record only where they are non-empty
	// and strictly longer than what is stored; the canonical stored form
	// is returned either way.
	Upsert(ctx context.Context, g *model.EnrichedGrant) (*model.EnrichedGrant, error)

	// ListByScore returns stored grants ordered by composite score
	// descending.
	ListByScore(ctx context.Context, filter GrantFilter) ([]model.EnrichedGrant, error)

	// UpdateScores rewrites a stored grant's score fields and enrichment
	// log after a re-score, leaving descriptive fields untouched.
	UpdateScores(ctx context.Context, g *model.EnrichedGrant) error

	// Runs
	CreateRun(ctx context.Context) (*model.RunRecord, error)
	CompleteRun(ctx context.Context, run *model.RunRecord) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
