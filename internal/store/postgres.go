package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/config"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/db"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/model"
	"github.com/chiziuwaga/kevin-smart-grant-finder-sub000/internal/parser"
)

// PostgresGateway implements Gateway using a pgx pool.
type PostgresGateway struct {
	pool db.Pool
	// dedupWindow bounds how many recent rows the fuzzy duplicate check
	// scans per upsert.
	dedupWindow int
	deduper     *parser.Deduplicator
}

// NewPostgres wraps an existing pool. Tests inject a mock pool here.
func NewPostgres(pool db.Pool, dedupWindow int) *PostgresGateway {
	if dedupWindow <= 0 {
		dedupWindow = 500
	}
	return &PostgresGateway{
		pool:        pool,
		dedupWindow: dedupWindow,
		deduper:     parser.NewDeduplicator(),
	}
}

// Connect opens a pooled connection from config and wraps it.
func Connect(ctx context.Context, cfg config.StoreConfig) (*PostgresGateway, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.MaxConns)
	if err != nil {
		return nil, err
	}
	return NewPostgres(pool, cfg.DedupWindow), nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS grants (
	id              TEXT PRIMARY KEY,
	external_id     TEXT,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	funder_name     TEXT NOT NULL DEFAULT '',
	funding_min     DOUBLE PRECISION NOT NULL DEFAULT 0,
	funding_max     DOUBLE PRECISION NOT NULL DEFAULT 0,
	funding_exact   DOUBLE PRECISION NOT NULL DEFAULT 0,
	funding_display TEXT NOT NULL DEFAULT '',
	deadline        TEXT NOT NULL DEFAULT '',
	source_url      TEXT NOT NULL,
	url_normalized  TEXT NOT NULL UNIQUE,
	eligibility     TEXT NOT NULL DEFAULT '',
	sector          TEXT NOT NULL DEFAULT '',
	geographic_scope TEXT NOT NULL DEFAULT '',
	research_scores   JSONB NOT NULL DEFAULT '{}',
	compliance_scores JSONB NOT NULL DEFAULT '{}',
	composite_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	enrichment_log  JSONB NOT NULL DEFAULT '[]',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_grants_composite_score ON grants(composite_score DESC);
CREATE INDEX IF NOT EXISTS idx_grants_sector ON grants(sector);
CREATE INDEX IF NOT EXISTS idx_grants_updated_at ON grants(updated_at DESC);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	stats        JSONB NOT NULL DEFAULT '{}',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

// Migrate applies the schema. Statements are idempotent.
func (s *PostgresGateway) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "store: migrate")
	}
	return nil
}

// Close releases the pool.
func (s *PostgresGateway) Close() error {
	s.pool.Close()
	return nil
}

const grantColumns = `id, external_id, title, description, funder_name, funding_min, funding_max, funding_exact, funding_display, deadline, source_url, eligibility, sector, geographic_scope, research_scores, compliance_scores, composite_score, enrichment_log, created_at, updated_at`

// Upsert stores a grant, running the persisted-store duplicate check
// first. It is the gateway-side half of the URL gate: a grant without a
// valid absolute URL is rejected here even if it somehow survived the
// parser.
func (s *PostgresGateway) Upsert(ctx context.Context, g *model.EnrichedGrant) (*model.EnrichedGrant, error) {
	if g == nil || !model.IsAbsoluteURL(g.SourceURL) {
		return nil, model.ErrMissingURL
	}

	existing, err := s.findDuplicate(ctx, g)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		merged := mergeGrant(existing, g)
		if err := s.update(ctx, merged); err != nil {
			return nil, err
		}
		zap.L().Debug("store: merged into existing record",
			zap.String("id", merged.ID),
			zap.String("title", merged.Title))
		return merged, nil
	}

	if err := s.insert(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// findDuplicate applies the three-tier identity strategy against stored
// history: an exact normalized-URL lookup first, then a bounded scan of
// recent rows for title/deadline and fuzzy matches.
func (s *PostgresGateway) findDuplicate(ctx context.Context, g *model.EnrichedGrant) (*model.EnrichedGrant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+grantColumns+` FROM grants WHERE url_normalized = $1`,
		model.NormalizeURL(g.SourceURL))
	existing, err := scanGrant(row)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(err, "store: duplicate lookup by url")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+grantColumns+` FROM grants ORDER BY updated_at DESC LIMIT $1`,
		s.dedupWindow)
	if err != nil {
		return nil, eris.Wrap(err, "store: duplicate window scan")
	}
	defer rows.Close()

	for rows.Next() {
		candidate, err := scanGrant(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan window row")
		}
		if s.deduper.SameOpportunity(g, candidate) {
			return candidate, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: duplicate window scan")
	}
	return nil, nil
}

func (s *PostgresGateway) insert(ctx context.Context, g *model.EnrichedGrant) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now

	research, compliance, log, err := marshalScoreFields(g)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO grants (
			id, external_id, title, description, funder_name,
			funding_min, funding_max, funding_exact, funding_display, deadline,
			source_url, url_normalized, eligibility, sector, geographic_scope,
			research_scores, compliance_scores, composite_score, enrichment_log,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		g.ID, g.ExternalID, g.Title, g.Description, g.FunderName,
		g.FundingAmountMin, g.FundingAmountMax, g.FundingAmountExact, g.FundingAmountDisplay, g.Deadline,
		g.SourceURL, model.NormalizeURL(g.SourceURL), g.Eligibility, g.Sector, g.GeographicScope,
		research, compliance, g.CompositeScore, log,
		g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return eris.Wrap(err, "store: insert grant")
	}
	return nil
}

func (s *PostgresGateway) update(ctx context.Context, g *model.EnrichedGrant) error {
	g.UpdatedAt = time.Now().UTC()

	research, compliance, log, err := marshalScoreFields(g)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE grants SET
			title = $1, description = $2, funder_name = $3,
			funding_min = $4, funding_max = $5, funding_exact = $6, funding_display = $7,
			deadline = $8, eligibility = $9,
			research_scores = $10, compliance_scores = $11, composite_score = $12,
			enrichment_log = $13, updated_at = $14
		WHERE id = $15`,
		g.Title, g.Description, g.FunderName,
		g.FundingAmountMin, g.FundingAmountMax, g.FundingAmountExact, g.FundingAmountDisplay,
		g.Deadline, g.Eligibility,
		research, compliance, g.CompositeScore,
		log, g.UpdatedAt, g.ID)
	if err != nil {
		return eris.Wrap(err, "store: update grant")
	}
	return nil
}

// ListByScore returns stored grants ordered by composite score
// descending.
func (s *PostgresGateway) ListByScore(ctx context.Context, filter GrantFilter) ([]model.EnrichedGrant, error) {
	// A nil limit argument is LIMIT ALL; negative means unbounded.
	var limit any = filter.Limit
	if filter.Limit == 0 {
		limit = 50
	} else if filter.Limit < 0 {
		limit = nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+grantColumns+` FROM grants
		WHERE composite_score >= $1 AND ($2 = '' OR sector = $2)
		ORDER BY composite_score DESC, updated_at DESC
		LIMIT $3`,
		filter.MinScore, filter.Sector, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list grants")
	}
	defer rows.Close()

	var grants []model.EnrichedGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan grant")
		}
		grants = append(grants, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: list grants")
	}
	return grants, nil
}

// UpdateScores rewrites only the score columns and enrichment log for a
// stored grant. Used by the re-score path after weight or keyword
// config changes.
func (s *PostgresGateway) UpdateScores(ctx context.Context, g *model.EnrichedGrant) error {
	if g == nil || g.ID == "" {
		return eris.New("store: update scores requires a stored grant id")
	}
	g.UpdatedAt = time.Now().UTC()

	research, compliance, log, err := marshalScoreFields(g)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE grants SET research_scores = $1, compliance_scores = $2, composite_score = $3, enrichment_log = $4, updated_at = $5 WHERE id = $6`,
		research, compliance, g.CompositeScore, log, g.UpdatedAt, g.ID)
	if err != nil {
		return eris.Wrap(err, "store: update scores")
	}
	return nil
}

// CreateRun inserts a run record in the running state.
func (s *PostgresGateway) CreateRun(ctx context.Context) (*model.RunRecord, error) {
	run := &model.RunRecord{
		ID:        uuid.NewString(),
		Status:    model.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES ($1, $2, $3)`,
		run.ID, string(run.Status), run.StartedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: create run")
	}
	return run, nil
}

// CompleteRun stamps the run's final status and stats.
func (s *PostgresGateway) CompleteRun(ctx context.Context, run *model.RunRecord) error {
	now := time.Now().UTC()
	run.CompletedAt = &now

	stats, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "store: marshal run stats")
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, stats = $2, completed_at = $3 WHERE id = $4`,
		string(run.Status), stats, now, run.ID)
	if err != nil {
		return eris.Wrap(err, "store: complete run")
	}
	return nil
}

// mergeGrant folds new data into the stored record: a new field wins
// only when it is non-empty and strictly longer than what is stored.
// Scores fill gaps, never overwrite.
func mergeGrant(existing, incoming *model.EnrichedGrant) *model.EnrichedGrant {
	merged := *existing

	mergeText(&merged.Title, incoming.Title)
	mergeText(&merged.Description, incoming.Description)
	mergeText(&merged.FunderName, incoming.FunderName)
	mergeText(&merged.Deadline, incoming.Deadline)
	mergeText(&merged.Eligibility, incoming.Eligibility)
	mergeText(&merged.FundingAmountDisplay, incoming.FundingAmountDisplay)

	if merged.FundingAmountExact == 0 && incoming.FundingAmountExact > 0 {
		merged.FundingAmountExact = incoming.FundingAmountExact
	}
	if merged.FundingAmountMin == 0 && incoming.FundingAmountMin > 0 {
		merged.FundingAmountMin = incoming.FundingAmountMin
	}
	if merged.FundingAmountMax == 0 && incoming.FundingAmountMax > 0 {
		merged.FundingAmountMax = incoming.FundingAmountMax
	}

	if merged.ResearchContext.SectorRelevance == nil {
		merged.ResearchContext.SectorRelevance = incoming.ResearchContext.SectorRelevance
	}
	if merged.ResearchContext.GeographicRelevance == nil {
		merged.ResearchContext.GeographicRelevance = incoming.ResearchContext.GeographicRelevance
	}
	if merged.ResearchContext.OperationalAlignment == nil {
		merged.ResearchContext.OperationalAlignment = incoming.ResearchContext.OperationalAlignment
	}
	if merged.Compliance.BusinessLogicAlignment == nil {
		merged.Compliance.BusinessLogicAlignment = incoming.Compliance.BusinessLogicAlignment
	}
	if merged.Compliance.FeasibilityScore == nil {
		merged.Compliance.FeasibilityScore = incoming.Compliance.FeasibilityScore
	}
	if merged.Compliance.StrategicSynergy == nil {
		merged.Compliance.StrategicSynergy = incoming.Compliance.StrategicSynergy
	}
	if merged.CompositeScore == 0 && incoming.CompositeScore > 0 {
		merged.CompositeScore = incoming.CompositeScore
		merged.Compliance.FinalWeightedScore = incoming.Compliance.FinalWeightedScore
	}

	merged.LogStage("merged fields from duplicate candidate")
	return &merged
}

// mergeText replaces dst only with strictly longer non-empty input.
func mergeText(dst *string, src string) {
	if src != "" && len(src) > len(*dst) {
		*dst = src
	}
}

func marshalScoreFields(g *model.EnrichedGrant) (research, compliance, log []byte, err error) {
	research, err = json.Marshal(g.ResearchContext)
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "store: marshal research scores")
	}
	compliance, err = json.Marshal(g.Compliance)
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "store: marshal compliance scores")
	}
	if g.EnrichmentLog == nil {
		log = []byte("[]")
	} else {
		log, err = json.Marshal(g.EnrichmentLog)
		if err != nil {
			return nil, nil, nil, eris.Wrap(err, "store: marshal enrichment log")
		}
	}
	return research, compliance, log, nil
}

// scanGrant reads one grant row. Works for both pgx.Row and pgx.Rows.
func scanGrant(row pgx.Row) (*model.EnrichedGrant, error) {
	var g model.EnrichedGrant
	var research, compliance, log []byte

	err := row.Scan(
		&g.ID, &g.ExternalID, &g.Title, &g.Description, &g.FunderName,
		&g.FundingAmountMin, &g.FundingAmountMax, &g.FundingAmountExact, &g.FundingAmountDisplay, &g.Deadline,
		&g.SourceURL, &g.Eligibility, &g.Sector, &g.GeographicScope,
		&research, &compliance, &g.CompositeScore, &log,
		&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(research) > 0 {
		if err := json.Unmarshal(research, &g.ResearchContext); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal research scores")
		}
	}
	if len(compliance) > 0 {
		if err := json.Unmarshal(compliance, &g.Compliance); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal compliance scores")
		}
	}
	if len(log) > 0 {
		if err := json.Unmarshal(log, &g.EnrichmentLog); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal enrichment log")
		}
	}
	return &g, nil
}
