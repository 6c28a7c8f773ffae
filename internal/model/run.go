package model

import "time"

// RunStatus tracks the lifecycle of one pipeline run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	// RunQuotaExhausted marks a run cut short by the day-window request
	// budget. The caller decides whether to schedule a retry later.
	RunQuotaExhausted RunStatus = "quota_exhausted"
	RunFailed         RunStatus = "failed"
)

// RunRecord summarizes one pipeline run for persistence and reporting.
type RunRecord struct {
	ID     string    `json:"id"`
	Status RunStatus `json:"status"`

	ChunksPlanned    int `json:"chunks_planned"`
	ChunksSucceeded  int `json:"chunks_succeeded"`
	ChunksFailed     int `json:"chunks_failed"`
	CandidatesParsed int `json:"candidates_parsed"`
	Duplicates       int `json:"duplicates"`
	Stored           int `json:"stored"`

	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
