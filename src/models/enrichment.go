package models

import "time"

// Enrichment outcome states for a single asset within one pass.
const (
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// EnrichOutcome records what happened to one asset during an enrichment pass.
type EnrichOutcome struct {
	AssetID     string `json:"asset_id"`
	PortfolioID string `json:"portfolio_id,omitempty"`
	StockName   string `json:"stock_name,omitempty"`
	TickerEOD   string `json:"ticker_eod,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// EnrichmentJobResult summarizes one enrichment invocation. Transient: held in
// the report cache for polling, never persisted. Results keep the source order
// of the input asset list so repeated polls render identically.
type EnrichmentJobResult struct {
	JobID    string          `json:"job_id,omitempty"`
	Status   string          `json:"status"` // "pending" or "completed"
	Total    int             `json:"total"`
	Enriched int             `json:"enriched"`
	Skipped  int             `json:"skipped"`
	Errors   int             `json:"errors"`
	Results  []EnrichOutcome `json:"results"`
	// Error is set when the whole pass failed before any asset was touched,
	// e.g. the scope matched nothing.
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Job lifecycle states.
const (
	JobPending   = "pending"
	JobCompleted = "completed"
)
