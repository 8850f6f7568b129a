// backend/src/services/enrichment_service.go
package services

import (
	"context"
	"fmt"
	"regexp"
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
	ckEnrichmentJob = "job_enrichment_%s"

	// Search results scoring below this are treated as "no match" rather than
	// risking a wrong instrument on an operator's portfolio.
	minMatchScore = 0.25
)

type enrichmentServiceImpl struct {
	market      MarketDataClient
	reportCache *cache.Cache
	jobTTL      time.Duration
}

func NewEnrichmentService(market MarketDataClient, reportCache *cache.Cache, jobTTL time.Duration) EnrichmentService {
	return &enrichmentServiceImpl{
		market:      market,
		reportCache: reportCache,
		jobTTL:      jobTTL,
	}
}

// assetUpdate is the only thing an enrichment pass may write: the marker pair
// plus the asset class. Manual fields are never touched.
type assetUpdate struct {
	tickerEOD   string
	description string
	assetClass  string
}

func (s *enrichmentServiceImpl) EnrichScope(ctx context.Context, scope EnrichScope) (*models.EnrichmentJobResult, error) {
	assets, err := s.loadScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		return nil, ErrNoAssetsInScope
	}

	result := &models.EnrichmentJobResult{
		Status:    models.JobCompleted,
		Total:     len(assets),
		Results:   make([]models.EnrichOutcome, 0, len(assets)),
		StartedAt: time.Now(),
	}

	// Sequential pass in source order: per-asset results stay deterministic
	// for display, and one failing row never blocks the rest.
	touchedPortfolios := map[string]bool{}
	for i := range assets {
		asset := &assets[i]

		if scope.SkipEnriched && asset.IsComplete() {
			result.Skipped++
			result.Results = append(result.Results, models.EnrichOutcome{
				AssetID:     asset.ID,
				PortfolioID: asset.PortfolioID,
				StockName:   asset.StockName,
				TickerEOD:   asset.TickerEOD,
				Status:      models.OutcomeSkipped,
			})
			continue
		}

		outcome := s.enrichOne(ctx, asset, "")
		if outcome.Status == models.OutcomeUpdated {
			result.Enriched++
			touchedPortfolios[asset.PortfolioID] = true
		} else if outcome.Status == models.OutcomeError {
			result.Errors++
		}
		result.Results = append(result.Results, outcome)
	}

	for portfolioID := range touchedPortfolios {
		s.reportCache.Delete(fmt.Sprintf(ckPortfolioAssets, portfolioID))
	}
	if scope.CompanyID != nil {
		s.reportCache.Delete(fmt.Sprintf(ckCompanyAssets, *scope.CompanyID))
	}

	now := time.Now()
	result.FinishedAt = &now
	logger.L.Info("Enrichment pass complete",
		"total", result.Total, "enriched", result.Enriched, "skipped", result.Skipped, "errors", result.Errors)
	return result, nil
}

func (s *enrichmentServiceImpl) EnrichSingle(ctx context.Context, assetID, tickerOverride string) (*models.EnrichOutcome, error) {
	asset, err := fetchAssetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}

	outcome := s.enrichOne(ctx, asset, strings.TrimSpace(tickerOverride))
	if outcome.Status == models.OutcomeUpdated {
		s.reportCache.Delete(fmt.Sprintf(ckPortfolioAssets, asset.PortfolioID))
		if asset.CompanyID != nil {
			s.reportCache.Delete(fmt.Sprintf(ckCompanyAssets, *asset.CompanyID))
		}
	}
	return &outcome, nil
}

func (s *enrichmentServiceImpl) ScheduleScope(scope EnrichScope) string {
	jobID := uuid.NewString()
	s.reportCache.Set(fmt.Sprintf(ckEnrichmentJob, jobID), &models.EnrichmentJobResult{
		JobID:     jobID,
		Status:    models.JobPending,
		StartedAt: time.Now(),
	}, s.jobTTL)

	// The caller observes completion only by polling GetJob; a caller that
	// navigates away simply never polls again and the result expires.
	go func() {
		result, err := s.EnrichScope(context.Background(), scope)
		if err != nil {
			logger.L.Error("Async enrichment job failed", "jobID", jobID, "error", err)
			now := time.Now()
			result = &models.EnrichmentJobResult{
				JobID:      jobID,
				Status:     models.JobCompleted,
				Results:    []models.EnrichOutcome{},
				Error:      err.Error(),
				StartedAt:  time.Now(),
				FinishedAt: &now,
			}
		}
		result.JobID = jobID
		result.Status = models.JobCompleted
		s.reportCache.Set(fmt.Sprintf(ckEnrichmentJob, jobID), result, s.jobTTL)
	}()

	return jobID
}

func (s *enrichmentServiceImpl) GetJob(jobID string) (*models.EnrichmentJobResult, bool) {
	if cached, found := s.reportCache.Get(fmt.Sprintf(ckEnrichmentJob, jobID)); found {
		return cached.(*models.EnrichmentJobResult), true
	}
	return nil, false
}

// enrichOne runs resolution and persistence for a single asset. Both the bulk
// pass and the manual re-enrich path go through here; there is no divergent
// "manual" code path.
func (s *enrichmentServiceImpl) enrichOne(ctx context.Context, asset *models.PortfolioAsset, tickerOverride string) models.EnrichOutcome {
	outcome := models.EnrichOutcome{
		AssetID:     asset.ID,
		PortfolioID: asset.PortfolioID,
		StockName:   asset.StockName,
		TickerEOD:   asset.TickerEOD,
	}

	update, err := s.resolve(ctx, asset, tickerOverride)
	if err != nil {
		// Prior field values stay untouched on failure.
		outcome.Status = models.OutcomeError
		outcome.Error = err.Error()
		logger.L.Warn("Enrichment resolution failed", "assetID", asset.ID, "stockName", asset.StockName, "error", err)
		return outcome
	}

	_, err = database.DB.ExecContext(ctx,
		`UPDATE portfolio_assets SET ticker_eod = ?, description = ?, asset_class = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		update.tickerEOD, update.description, update.assetClass, asset.ID)
	if err != nil {
		outcome.Status = models.OutcomeError
		outcome.Error = err.Error()
		return outcome
	}

	outcome.Status = models.OutcomeUpdated
	outcome.TickerEOD = update.tickerEOD
	return outcome
}

// resolve finds the market-data identity for an asset. An existing ticker_eod
// (or a manual override) is used directly; otherwise the instrument search is
// scored against the asset's name/ticker/ISIN. Existing values are never
// downgraded: a field already populated survives an empty resolution result.
func (s *enrichmentServiceImpl) resolve(ctx context.Context, asset *models.PortfolioAsset, tickerOverride string) (*assetUpdate, error) {
	effectiveTicker := tickerOverride
	if effectiveTicker == "" {
		effectiveTicker = asset.TickerEOD
	}

	if effectiveTicker != "" {
		code, exchange, ok := splitEODTicker(effectiveTicker)
		if !ok {
			return nil, fmt.Errorf("invalid ticker_eod format %q (want CODE.EXCHANGE)", effectiveTicker)
		}
		fundamentals, err := s.market.Fundamentals(ctx, code+"."+exchange)
		if err != nil {
			return nil, err
		}
		return buildUpdate(asset, code+"."+exchange, fundamentals), nil
	}

	query := firstNonEmpty(asset.StockName, asset.Ticker, asset.ISIN)
	if query == "" {
		return nil, fmt.Errorf("asset has no name, ticker or ISIN to search by")
	}

	matches, err := s.market.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	best, bestScore := bestMatch(query, matches)
	if best == nil || bestScore < minMatchScore {
		return nil, fmt.Errorf("no confident market-data match for %q", query)
	}
	if best.Code == "" || best.Exchange == "" {
		return nil, fmt.Errorf("market-data match for %q is missing ticker or exchange code", query)
	}

	eodTicker := best.Code + "." + best.Exchange
	fundamentals, err := s.market.Fundamentals(ctx, eodTicker)
	if err != nil {
		return nil, err
	}
	return buildUpdate(asset, eodTicker, fundamentals), nil
}

func buildUpdate(asset *models.PortfolioAsset, eodTicker string, fundamentals *Fundamentals) *assetUpdate {
	update := &assetUpdate{
		tickerEOD:   pickValue(eodTicker, asset.TickerEOD),
		description: asset.Description,
		assetClass:  asset.AssetClass,
	}
	if fundamentals != nil {
		update.description = pickValue(fundamentals.Description, asset.Description)
		if fundamentals.Type != "" {
			update.assetClass = processors.NormalizeAssetClass(fundamentals.Type)
		}
	}
	return update
}

func splitEODTicker(ticker string) (code, exchange string, ok bool) {
	idx := strings.Index(ticker, ".")
	if idx <= 0 || idx == len(ticker)-1 {
		return "", "", false
	}
	return ticker[:idx], ticker[idx+1:], true
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

func normalizeText(value string) string {
	return strings.TrimSpace(nonAlnumRe.ReplaceAllString(strings.ToLower(value), " "))
}

// tokenScore is the Jaccard index over whitespace tokens.
func tokenScore(query, target string) float64 {
	if query == "" || target == "" {
		return 0
	}
	queryTokens := map[string]bool{}
	for _, t := range strings.Fields(query) {
		queryTokens[t] = true
	}
	targetTokens := map[string]bool{}
	for _, t := range strings.Fields(target) {
		targetTokens[t] = true
	}

	intersection := 0
	union := len(targetTokens)
	for t := range queryTokens {
		if targetTokens[t] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func scoreMatch(query string, match InstrumentMatch) float64 {
	queryNorm := normalizeText(query)
	codeNorm := normalizeText(match.Code)
	nameNorm := normalizeText(match.Name)
	isinNorm := normalizeText(match.ISIN)

	switch {
	case queryNorm != "" && queryNorm == codeNorm:
		return 1
	case queryNorm != "" && queryNorm == nameNorm:
		return 1
	case queryNorm != "" && isinNorm != "" && queryNorm == isinNorm:
		return 0.98
	case nameNorm != "" && queryNorm != "" && strings.Contains(nameNorm, queryNorm):
		return 0.94
	case codeNorm != "" && queryNorm != "" && strings.HasPrefix(codeNorm, queryNorm):
		return 0.9
	}

	nameScore := tokenScore(queryNorm, nameNorm)
	codeScore := tokenScore(queryNorm, codeNorm)
	if codeScore > nameScore {
		return codeScore
	}
	return nameScore
}

func bestMatch(query string, matches []InstrumentMatch) (*InstrumentMatch, float64) {
	var best *InstrumentMatch
	bestScore := -1.0
	for i := range matches {
		score := scoreMatch(query, matches[i])
		if score > bestScore {
			best = &matches[i]
			bestScore = score
		}
	}
	return best, bestScore
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func pickValue(values ...string) string {
	return firstNonEmpty(values...)
}

// loadScope fetches the assets an enrichment pass operates on, in stable
// creation order. When AssetIDs is set, only those assets qualify and the
// result keeps the order of the ID list.
func (s *enrichmentServiceImpl) loadScope(ctx context.Context, scope EnrichScope) ([]models.PortfolioAsset, error) {
	if len(scope.AssetIDs) > 0 {
		assets := make([]models.PortfolioAsset, 0, len(scope.AssetIDs))
		for _, id := range scope.AssetIDs {
			asset, err := fetchAssetByID(ctx, id)
			if err == ErrAssetNotFound {
				continue
			}
			if err != nil {
				return nil, err
			}
			assets = append(assets, *asset)
		}
		return assets, nil
	}

	if scope.PortfolioID != "" {
		return fetchAssets(ctx, `SELECT `+assetColumns+` FROM portfolio_assets WHERE portfolio_id = ? ORDER BY rowid ASC`, scope.PortfolioID)
	}
	if scope.CompanyID != nil {
		return fetchAssets(ctx, `SELECT `+assetColumns+` FROM portfolio_assets WHERE company_id = ? ORDER BY rowid ASC`, *scope.CompanyID)
	}
	return nil, fmt.Errorf("%w: portfolio_id or company_id is required", ErrValidationFailed)
}
