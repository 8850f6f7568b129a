// backend/src/services/marketdata_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/username/briefingdesk/backend/src/logger"
	"golang.org/x/net/publicsuffix"
)

// InstrumentMatch is one search result from the market-data service.
type InstrumentMatch struct {
	Code     string `json:"Code"`
	Exchange string `json:"Exchange"`
	Name     string `json:"Name"`
	Type     string `json:"Type"`
	ISIN     string `json:"ISIN"`
	Currency string `json:"Currency"`
}

// Fundamentals is the subset of the fundamentals payload the enrichment pass
// consumes. Everything else upstream sends is ignored at this boundary.
type Fundamentals struct {
	Name         string
	Description  string
	Type         string
	Exchange     string
	CurrencyCode string
	ISIN         string
}

// MarketDataClient is the outbound interface the enrichment pass resolves
// tickers and descriptions through. Tests substitute a fake.
type MarketDataClient interface {
	Search(ctx context.Context, query string) ([]InstrumentMatch, error)
	Fundamentals(ctx context.Context, eodTicker string) (*Fundamentals, error)
}

// marketDataClientImpl talks to an EODHD-compatible HTTP API.
type marketDataClientImpl struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewMarketDataClient(baseURL, apiKey string, timeout time.Duration) MarketDataClient {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar for market-data client", "error", err)
	}

	return &marketDataClientImpl{
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

func (c *marketDataClientImpl) Search(ctx context.Context, query string) ([]InstrumentMatch, error) {
	searchURL := fmt.Sprintf("%s/search/%s?api_token=%s&fmt=json&limit=15",
		c.baseURL, url.PathEscape(query), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market-data search call failed for %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market-data search returned status %d for %q", resp.StatusCode, query)
	}

	var matches []InstrumentMatch
	if err := json.NewDecoder(resp.Body).Decode(&matches); err != nil {
		return nil, fmt.Errorf("failed to decode market-data search response for %q: %w", query, err)
	}
	return matches, nil
}

// fundamentalsEnvelope mirrors upstream's {"General": {...}} nesting.
type fundamentalsEnvelope struct {
	General struct {
		Name         string `json:"Name"`
		Description  string `json:"Description"`
		Type         string `json:"Type"`
		Exchange     string `json:"Exchange"`
		CurrencyCode string `json:"CurrencyCode"`
		ISIN         string `json:"ISIN"`
	} `json:"General"`
}

func (c *marketDataClientImpl) Fundamentals(ctx context.Context, eodTicker string) (*Fundamentals, error) {
	fundamentalsURL := fmt.Sprintf("%s/fundamentals/%s?api_token=%s&fmt=json",
		c.baseURL, url.PathEscape(eodTicker), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fundamentalsURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market-data fundamentals call failed for %s: %w", eodTicker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market-data fundamentals returned status %d for %s", resp.StatusCode, eodTicker)
	}

	var envelope fundamentalsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode fundamentals response for %s: %w", eodTicker, err)
	}

	return &Fundamentals{
		Name:         envelope.General.Name,
		Description:  envelope.General.Description,
		Type:         envelope.General.Type,
		Exchange:     envelope.General.Exchange,
		CurrencyCode: envelope.General.CurrencyCode,
		ISIN:         envelope.General.ISIN,
	}, nil
}
