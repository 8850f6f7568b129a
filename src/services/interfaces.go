package services

import (
	"context"
	"errors"

	"github.com/username/briefingdesk/backend/src/models"
	"github.com/username/briefingdesk/backend/src/processors"
)

// Sentinel errors for the import/enrichment pipeline. Handlers translate them
// into HTTP statuses; everything else is an internal error.
var (
	// Extraction gateway taxonomy (never retried automatically here).
	ErrExtractionUnavailable = errors.New("extraction service unavailable")
	ErrExtractionFailed      = errors.New("document parsing failed")
	ErrExtractionBadResponse = errors.New("unexpected extraction response format")

	ErrValidationFailed = errors.New("validation failed")
	ErrAssetNotFound    = errors.New("asset not found")
	ErrVersionConflict  = errors.New("asset modified concurrently")
	ErrNoAssetsInScope  = errors.New("no assets found in scope")
)

// ExtractionService submits encoded document bytes to the external extraction
// workflow and returns raw holding records.
type ExtractionService interface {
	ExtractHoldings(ctx context.Context, fileContents []byte, filename, mimetype string) ([]models.RawHoldingRecord, error)
}

// BulkImportResult reports one bulk insert.
type BulkImportResult struct {
	Inserted int      `json:"inserted"`
	AssetIDs []string `json:"ids"`
	// JobID is set when auto-enrichment was scheduled; poll the job endpoint.
	JobID string `json:"job_id,omitempty"`
}

// AssetPatch carries a partial update for one asset. Pointer fields distinguish
// "not sent" from "clear this". Numeric fields arrive as string or number and
// are coerced with the edit-time rule (empty means NULL).
type AssetPatch struct {
	Ticker     *string     `json:"ticker,omitempty"`
	StockName  *string     `json:"stock_name,omitempty"`
	ISIN       *string     `json:"isin,omitempty"`
	AssetClass *string     `json:"asset_class,omitempty"`
	Category   *string     `json:"category,omitempty"`
	Currency   *string     `json:"currency,omitempty"`
	Shares     interface{} `json:"shares,omitempty"`
	AvgCost    interface{} `json:"avg_cost,omitempty"`
	// Version the client last read. Zero means "no precondition" is NOT
	// allowed; stale versions are rejected with ErrVersionConflict.
	Version int64 `json:"version"`
}

// AssetService owns reconciliation and persistence of portfolio assets.
type AssetService interface {
	BulkImport(ctx context.Context, portfolioID string, companyID *int64, rows []models.RawHoldingRecord, autoEnrich bool) (*BulkImportResult, error)
	ListByPortfolio(ctx context.Context, portfolioID string) ([]models.PortfolioAsset, error)
	ListByCompany(ctx context.Context, companyID int64) ([]models.PortfolioAsset, error)
	GetAsset(ctx context.Context, id string) (*models.PortfolioAsset, error)
	UpdateAsset(ctx context.Context, id string, patch AssetPatch) (*models.PortfolioAsset, error)
	// MarkReviewed accepts the current enrichment state as-is, recording who
	// signed it off. Used to close out assets enrichment could not resolve.
	MarkReviewed(ctx context.Context, id, reviewedBy string) (*models.PortfolioAsset, error)
	DeleteAsset(ctx context.Context, id string) error
}

// EnrichScope selects the assets one enrichment pass operates on.
type EnrichScope struct {
	PortfolioID string
	CompanyID   *int64
	// AssetIDs restricts the pass to specific assets (used by auto-enrich
	// after bulk import). Empty means the whole portfolio/company scope.
	AssetIDs     []string
	SkipEnriched bool
}

// EnrichmentService fills the enrichment marker pair from market data.
type EnrichmentService interface {
	EnrichScope(ctx context.Context, scope EnrichScope) (*models.EnrichmentJobResult, error)
	// EnrichSingle re-runs resolution for exactly one asset, optionally with a
	// manually corrected ticker. Same resolution logic as the bulk pass.
	EnrichSingle(ctx context.Context, assetID, tickerOverride string) (*models.EnrichOutcome, error)
	// ScheduleScope runs EnrichScope asynchronously and returns a job ID the
	// caller polls; completion is observed only via GetJob.
	ScheduleScope(scope EnrichScope) string
	GetJob(jobID string) (*models.EnrichmentJobResult, bool)
}

// Normalizer is the piece of the pipeline shared by import paths.
type Normalizer interface {
	Process(rows []models.RawHoldingRecord) []processors.NormalizedHolding
}

// EmailService sends operator account emails.
type EmailService interface {
	SendVerificationEmail(toEmail, username, token string) error
	SendPasswordResetEmail(toEmail, username, token string) error
}
