// backend/src/services/asset_service.go
package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/username/briefingdesk/backend/src/database"
	"github.com/username/briefingdesk/backend/src/logger"
	"github.com/username/briefingdesk/backend/src/models"
	"github.com/username/briefingdesk/backend/src/processors"
)

const (
	ckPortfolioAssets = "res_portfolio_assets_%s"
	ckCompanyAssets   = "res_company_assets_%d"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

const assetColumns = `id, portfolio_id, company_id, ticker, stock_name, isin, asset_class, category, currency, shares, avg_cost, ticker_eod, description, enrichment_reviewed, enrichment_reviewed_at, enrichment_reviewed_by, version, created_at, updated_at`

type assetServiceImpl struct {
	normalizer  Normalizer
	enricher    EnrichmentService
	reportCache *cache.Cache
}

func NewAssetService(normalizer Normalizer, enricher EnrichmentService, reportCache *cache.Cache) AssetService {
	return &assetServiceImpl{
		normalizer:  normalizer,
		enricher:    enricher,
		reportCache: reportCache,
	}
}

func (s *assetServiceImpl) BulkImport(ctx context.Context, portfolioID string, companyID *int64, rows []models.RawHoldingRecord, autoEnrich bool) (*BulkImportResult, error) {
	if strings.TrimSpace(portfolioID) == "" {
		return nil, fmt.Errorf("%w: portfolio_id is required", ErrValidationFailed)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: non-empty assets array is required", ErrValidationFailed)
	}

	start := time.Now()
	logger.L.Info("BulkImport START", "portfolioID", portfolioID, "rows", len(rows), "autoEnrich", autoEnrich)

	normalized := s.normalizer.Process(rows)
	if len(normalized) == 0 {
		return nil, fmt.Errorf("%w: no usable rows after normalization", ErrValidationFailed)
	}

	// Single transaction: a failed batch leaves the store unmodified.
	dbTx, err := database.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx, `INSERT INTO portfolio_assets (id, portfolio_id, company_id, ticker, stock_name, isin, asset_class, category, currency, shares, avg_cost, version) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`)
	if err != nil {
		return nil, fmt.Errorf("error preparing insert statement: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, 0, len(normalized))
	for _, h := range normalized {
		id := uuid.NewString()
		_, err := stmt.ExecContext(ctx, id, portfolioID, companyID, h.Ticker, h.Name, h.ISIN, h.AssetClass, h.Category, h.Currency, h.Shares, h.AvgCost)
		if err != nil {
			return nil, fmt.Errorf("error inserting asset (name: %s): %w", h.Name, err)
		}
		ids = append(ids, id)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing asset import: %w", err)
	}

	s.invalidateScopeCaches(portfolioID, companyID)

	result := &BulkImportResult{Inserted: len(ids), AssetIDs: ids}
	if autoEnrich && s.enricher != nil {
		result.JobID = s.enricher.ScheduleScope(EnrichScope{
			PortfolioID:  portfolioID,
			CompanyID:    companyID,
			AssetIDs:     ids,
			SkipEnriched: true,
		})
		logger.L.Info("Scheduled auto-enrichment job", "portfolioID", portfolioID, "jobID", result.JobID)
	}

	logger.L.Info("BulkImport END", "portfolioID", portfolioID, "inserted", len(ids), "duration", time.Since(start))
	return result, nil
}

func (s *assetServiceImpl) ListByPortfolio(ctx context.Context, portfolioID string) ([]models.PortfolioAsset, error) {
	cacheKey := fmt.Sprintf(ckPortfolioAssets, portfolioID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		logger.L.Debug("Cache hit for portfolio assets", "portfolioID", portfolioID)
		return cached.([]models.PortfolioAsset), nil
	}

	assets, err := fetchAssets(ctx, `SELECT `+assetColumns+` FROM portfolio_assets WHERE portfolio_id = ? ORDER BY rowid ASC`, portfolioID)
	if err != nil {
		return nil, err
	}
	s.reportCache.Set(cacheKey, assets, DefaultCacheExpiration)
	return assets, nil
}

func (s *assetServiceImpl) ListByCompany(ctx context.Context, companyID int64) ([]models.PortfolioAsset, error) {
	cacheKey := fmt.Sprintf(ckCompanyAssets, companyID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		logger.L.Debug("Cache hit for company assets", "companyID", companyID)
		return cached.([]models.PortfolioAsset), nil
	}

	assets, err := fetchAssets(ctx, `SELECT `+assetColumns+` FROM portfolio_assets WHERE company_id = ? ORDER BY rowid ASC`, companyID)
	if err != nil {
		return nil, err
	}
	s.reportCache.Set(cacheKey, assets, DefaultCacheExpiration)
	return assets, nil
}

func (s *assetServiceImpl) GetAsset(ctx context.Context, id string) (*models.PortfolioAsset, error) {
	return fetchAssetByID(ctx, id)
}

func (s *assetServiceImpl) UpdateAsset(ctx context.Context, id string, patch AssetPatch) (*models.PortfolioAsset, error) {
	current, err := fetchAssetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Version != current.Version {
		return nil, fmt.Errorf("%w: have version %d, expected %d", ErrVersionConflict, current.Version, patch.Version)
	}

	set := []string{}
	args := []interface{}{}

	if patch.Ticker != nil {
		set = append(set, "ticker = ?")
		args = append(args, strings.ToUpper(strings.TrimSpace(*patch.Ticker)))
	}
	if patch.StockName != nil {
		set = append(set, "stock_name = ?")
		args = append(args, strings.TrimSpace(*patch.StockName))
	}
	if patch.ISIN != nil {
		set = append(set, "isin = ?")
		args = append(args, strings.ToUpper(strings.TrimSpace(*patch.ISIN)))
	}
	if patch.AssetClass != nil {
		set = append(set, "asset_class = ?")
		args = append(args, processors.NormalizeAssetClass(*patch.AssetClass))
	}
	if patch.Category != nil {
		set = append(set, "category = ?")
		args = append(args, strings.TrimSpace(*patch.Category))
	}
	if patch.Currency != nil {
		set = append(set, "currency = ?")
		args = append(args, strings.ToUpper(strings.TrimSpace(*patch.Currency)))
	}
	// Edit-time numeric rule: empty becomes NULL, never 0.
	if patch.Shares != nil {
		shares := processors.ParseOptionalNumber(patch.Shares)
		if shares != nil && *shares < 0 {
			return nil, fmt.Errorf("%w: shares must be non-negative", ErrValidationFailed)
		}
		set = append(set, "shares = ?")
		args = append(args, nullableFloat(shares))
	}
	if patch.AvgCost != nil {
		avgCost := processors.ParseOptionalNumber(patch.AvgCost)
		if avgCost != nil && *avgCost < 0 {
			return nil, fmt.Errorf("%w: avg_cost must be non-negative", ErrValidationFailed)
		}
		set = append(set, "avg_cost = ?")
		args = append(args, nullableFloat(avgCost))
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("%w: no editable fields in request", ErrValidationFailed)
	}

	set = append(set, "version = version + 1", "updated_at = CURRENT_TIMESTAMP")
	query := "UPDATE portfolio_assets SET " + strings.Join(set, ", ") + " WHERE id = ? AND version = ?"
	args = append(args, id, patch.Version)

	res, err := database.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error updating asset %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Lost the race between the read above and the write.
		return nil, fmt.Errorf("%w: asset %s", ErrVersionConflict, id)
	}

	s.invalidateScopeCaches(current.PortfolioID, current.CompanyID)
	return fetchAssetByID(ctx, id)
}

// MarkReviewed accepts the asset's current enrichment state permanently, error
// state included. No version precondition: review acceptance is idempotent and
// touches no holdings figures, but it still counts as a write and bumps version.
func (s *assetServiceImpl) MarkReviewed(ctx context.Context, id, reviewedBy string) (*models.PortfolioAsset, error) {
	current, err := fetchAssetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reviewedBy) == "" {
		return nil, fmt.Errorf("%w: reviewed_by is required", ErrValidationFailed)
	}

	_, err = database.DB.ExecContext(ctx, `UPDATE portfolio_assets SET enrichment_reviewed = 1, enrichment_reviewed_at = CURRENT_TIMESTAMP, enrichment_reviewed_by = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, strings.TrimSpace(reviewedBy), id)
	if err != nil {
		return nil, fmt.Errorf("error marking asset %s reviewed: %w", id, err)
	}

	s.invalidateScopeCaches(current.PortfolioID, current.CompanyID)
	logger.L.Info("Asset marked reviewed", "assetID", id, "reviewedBy", reviewedBy)
	return fetchAssetByID(ctx, id)
}

func (s *assetServiceImpl) DeleteAsset(ctx context.Context, id string) error {
	current, err := fetchAssetByID(ctx, id)
	if err != nil {
		return err
	}

	res, err := database.DB.ExecContext(ctx, `DELETE FROM portfolio_assets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error deleting asset %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAssetNotFound
	}

	s.invalidateScopeCaches(current.PortfolioID, current.CompanyID)
	logger.L.Info("Asset deleted", "assetID", id, "portfolioID", current.PortfolioID)
	return nil
}

func (s *assetServiceImpl) invalidateScopeCaches(portfolioID string, companyID *int64) {
	s.reportCache.Delete(fmt.Sprintf(ckPortfolioAssets, portfolioID))
	if companyID != nil {
		s.reportCache.Delete(fmt.Sprintf(ckCompanyAssets, *companyID))
	}
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func fetchAssets(ctx context.Context, query string, arg interface{}) ([]models.PortfolioAsset, error) {
	rows, err := database.DB.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("error querying assets: %w", err)
	}
	defer rows.Close()

	assets := []models.PortfolioAsset{}
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over asset rows: %w", err)
	}
	return assets, nil
}

func fetchAssetByID(ctx context.Context, id string) (*models.PortfolioAsset, error) {
	row := database.DB.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM portfolio_assets WHERE id = ?`, id)
	asset, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching asset %s: %w", id, err)
	}
	return asset, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAsset(row rowScanner) (*models.PortfolioAsset, error) {
	var a models.PortfolioAsset
	var companyID sql.NullInt64
	var ticker, stockName, isin, category, currency, tickerEOD, description, reviewedBy sql.NullString
	var shares, avgCost sql.NullFloat64
	var reviewedAt sql.NullTime

	err := row.Scan(&a.ID, &a.PortfolioID, &companyID, &ticker, &stockName, &isin, &a.AssetClass, &category, &currency, &shares, &avgCost, &tickerEOD, &description, &a.EnrichmentReviewed, &reviewedAt, &reviewedBy, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if companyID.Valid {
		a.CompanyID = &companyID.Int64
	}
	a.Ticker = ticker.String
	a.StockName = stockName.String
	a.ISIN = isin.String
	a.Category = category.String
	a.Currency = currency.String
	a.TickerEOD = tickerEOD.String
	a.Description = description.String
	a.EnrichmentReviewedBy = reviewedBy.String
	if reviewedAt.Valid {
		a.EnrichmentReviewedAt = &reviewedAt.Time
	}
	if shares.Valid {
		a.Shares = &shares.Float64
	}
	if avgCost.Valid {
		a.AvgCost = &avgCost.Float64
	}
	a.EnrichmentStatus = a.EnrichmentStatusValue()
	return &a, nil
}
