package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/username/briefingdesk/backend/src/models"
	"github.com/username/briefingdesk/backend/src/services"
)

// stubEnrichment records the scopes it was handed and serves canned results.
type stubEnrichment struct {
	lastScope    services.EnrichScope
	lastAssetID  string
	lastOverride string
	scopeErr     error
	jobs         map[string]*models.EnrichmentJobResult
}

func (s *stubEnrichment) EnrichScope(ctx context.Context, scope services.EnrichScope) (*models.EnrichmentJobResult, error) {
	s.lastScope = scope
	if s.scopeErr != nil {
		return nil, s.scopeErr
	}
	return &models.EnrichmentJobResult{
		Status: models.JobCompleted, Total: 2, Enriched: 1, Skipped: 1,
		Results: []models.EnrichOutcome{
			{AssetID: "a1", Status: models.OutcomeUpdated},
			{AssetID: "a2", Status: models.OutcomeSkipped},
		},
		StartedAt: time.Now(),
	}, nil
}

func (s *stubEnrichment) EnrichSingle(ctx context.Context, assetID, tickerOverride string) (*models.EnrichOutcome, error) {
	s.lastAssetID = assetID
	s.lastOverride = tickerOverride
	if s.scopeErr != nil {
		return nil, s.scopeErr
	}
	return &models.EnrichOutcome{AssetID: assetID, TickerEOD: "AAPL.US", Status: models.OutcomeUpdated}, nil
}

func (s *stubEnrichment) ScheduleScope(scope services.EnrichScope) string {
	s.lastScope = scope
	return "job-123"
}

func (s *stubEnrichment) GetJob(jobID string) (*models.EnrichmentJobResult, bool) {
	job, ok := s.jobs[jobID]
	return job, ok
}

func postEnrich(t *testing.T, h *EnrichHandler, payload map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(payload)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/portfolio-assets/enrich", bytes.NewReader(body)), 1)
	rec := httptest.NewRecorder()
	h.HandleEnrich(rec, req)
	return rec
}

func TestHandleEnrichModes(t *testing.T) {
	stub := &stubEnrichment{}
	h := NewEnrichHandler(stub)

	// Unknown mode.
	if rec := postEnrich(t, h, map[string]interface{}{"mode": "galaxy"}); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown mode, got %d", rec.Code)
	}

	// Single mode requires asset_id.
	if rec := postEnrich(t, h, map[string]interface{}{"mode": "single"}); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for single without asset_id, got %d", rec.Code)
	}

	rec := postEnrich(t, h, map[string]interface{}{"mode": "single", "asset_id": "a1", "ticker_override": "AAPL.US"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if stub.lastAssetID != "a1" || stub.lastOverride != "AAPL.US" {
		t.Errorf("override not forwarded: %q %q", stub.lastAssetID, stub.lastOverride)
	}

	// Portfolio mode returns the inline job result.
	rec = postEnrich(t, h, map[string]interface{}{"mode": "portfolio", "portfolio_id": "p1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result models.EnrichmentJobResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if result.Total != 2 || result.Enriched != 1 || result.Skipped != 1 {
		t.Errorf("unexpected inline result: %+v", result)
	}
	if stub.lastScope.PortfolioID != "p1" {
		t.Errorf("portfolio scope not forwarded: %+v", stub.lastScope)
	}
	// skipEnriched defaults to true when omitted.
	if !stub.lastScope.SkipEnriched {
		t.Error("skipEnriched must default to true")
	}

	// An explicit false survives.
	postEnrich(t, h, map[string]interface{}{"mode": "portfolio", "portfolio_id": "p1", "skipEnriched": false})
	if stub.lastScope.SkipEnriched {
		t.Error("explicit skipEnriched=false was ignored")
	}

	// Company mode requires company_id.
	if rec := postEnrich(t, h, map[string]interface{}{"mode": "company"}); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for company without company_id, got %d", rec.Code)
	}
	postEnrich(t, h, map[string]interface{}{"mode": "company", "company_id": 42})
	if stub.lastScope.CompanyID == nil || *stub.lastScope.CompanyID != 42 {
		t.Errorf("company scope not forwarded: %+v", stub.lastScope)
	}
}

func TestHandleEnrichAsync(t *testing.T) {
	stub := &stubEnrichment{}
	h := NewEnrichHandler(stub)

	rec := postEnrich(t, h, map[string]interface{}{"mode": "portfolio", "portfolio_id": "p1", "async": true})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for async, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body["job_id"] != "job-123" || body["status"] != models.JobPending {
		t.Errorf("unexpected async response: %v", body)
	}
}

func TestHandleEnrichEmptyScope(t *testing.T) {
	stub := &stubEnrichment{scopeErr: services.ErrNoAssetsInScope}
	h := NewEnrichHandler(stub)

	rec := postEnrich(t, h, map[string]interface{}{"mode": "portfolio", "portfolio_id": "p1"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for empty scope, got %d", rec.Code)
	}
}

func TestHandleGetEnrichmentJob(t *testing.T) {
	stub := &stubEnrichment{jobs: map[string]*models.EnrichmentJobResult{
		"job-123": {JobID: "job-123", Status: models.JobCompleted, Total: 1, Enriched: 1},
	}}
	h := NewEnrichHandler(stub)

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/enrichment-jobs/job-123", nil), 1)
	req.SetPathValue("id", "job-123")
	rec := httptest.NewRecorder()
	h.HandleGetEnrichmentJob(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var job models.EnrichmentJobResult
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if job.JobID != "job-123" || job.Status != models.JobCompleted {
		t.Errorf("unexpected job: %+v", job)
	}

	// Expired or unknown jobs are a 404.
	req = asUser(httptest.NewRequest(http.MethodGet, "/api/enrichment-jobs/gone", nil), 1)
	req.SetPathValue("id", "gone")
	rec = httptest.NewRecorder()
	h.HandleGetEnrichmentJob(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", rec.Code)
	}
}
