package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Asset classes accepted by the importer. Anything else is normalized to Other.
const (
	AssetClassStocks = "Stocks"
	AssetClassETF    = "ETF"
	AssetClassCrypto = "Crypto"
	AssetClassOther  = "Other"
)

// Enrichment completeness tiers. Always derived from the current field values,
// never stored, so the badge can not drift from the underlying data.
const (
	EnrichmentComplete    = "Complete"
	EnrichmentPartial     = "Partial"
	EnrichmentNotEnriched = "Not Enriched"
)

// PortfolioAsset is one holding within one portfolio.
type PortfolioAsset struct {
	ID          string   `json:"id"`
	PortfolioID string   `json:"portfolio_id"`
	CompanyID   *int64   `json:"company_id,omitempty"`
	Ticker      string   `json:"ticker,omitempty"`
	StockName   string   `json:"stock_name,omitempty"`
	ISIN        string   `json:"isin,omitempty"`
	AssetClass  string   `json:"asset_class"`
	Category    string   `json:"category,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	Shares      *float64 `json:"shares,omitempty"`
	AvgCost     *float64 `json:"avg_cost,omitempty"`

	// Enrichment marker pair. TickerEOD is the external market-data ticker
	// (e.g. "AAPL.US"); Description is the enrichment text attached to it.
	TickerEOD   string `json:"ticker_eod,omitempty"`
	Description string `json:"description,omitempty"`

	// Manual review acceptance: an operator marked this asset's enrichment
	// state as acceptable, errors included. Set via the mark-reviewed endpoint.
	EnrichmentReviewed   bool       `json:"enrichment_reviewed"`
	EnrichmentReviewedAt *time.Time `json:"enrichment_reviewed_at,omitempty"`
	EnrichmentReviewedBy string     `json:"enrichment_reviewed_by,omitempty"`

	// Version increments on every write and guards concurrent edits.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Derived, see EnrichmentStatus. Populated for API responses only.
	EnrichmentStatus string `json:"enrichment_status,omitempty"`
}

// EnrichmentStatus classifies the asset by which enrichment fields are set.
func (a *PortfolioAsset) EnrichmentStatusValue() string {
	switch {
	case a.TickerEOD != "" && a.Description != "":
		return EnrichmentComplete
	case a.TickerEOD != "":
		return EnrichmentPartial
	default:
		return EnrichmentNotEnriched
	}
}

// IsComplete reports whether both enrichment markers are populated.
func (a *PortfolioAsset) IsComplete() bool {
	return a.EnrichmentStatusValue() == EnrichmentComplete
}

// NumericString carries a numeric field before normalization. Upstream sources
// emit figures either as locale strings ("1.234,56") or as bare JSON numbers;
// both decode into the string form the locale parser expects, with a JSON
// number's decimal point rewritten to a comma.
type NumericString string

func (n *NumericString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = NumericString(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("numeric field must be a string or number, got %s", data)
	}
	*n = NumericString(strings.ReplaceAll(num.String(), ".", ","))
	return nil
}

// RawHoldingRecord is the pre-normalization row shape returned by the document
// extraction service or the local CSV parser. Numeric fields stay strings here;
// normalization owns their interpretation. Never persisted as-is.
type RawHoldingRecord struct {
	Name       string        `json:"name"`
	Ticker     string        `json:"ticker,omitempty"`
	ISIN       string        `json:"isin,omitempty"`
	Currency   string        `json:"currency,omitempty"`
	AssetClass string        `json:"asset_class,omitempty"`
	Category   string        `json:"category,omitempty"`
	Shares     NumericString `json:"shares,omitempty"`
	AvgCost    NumericString `json:"avgCost,omitempty"`

	// Review hints passed through from the extraction workflow when present.
	Confidence  string `json:"confidence,omitempty"`
	NeedsReview bool   `json:"needs_review,omitempty"`
	ReviewNote  string `json:"review_note,omitempty"`
}
