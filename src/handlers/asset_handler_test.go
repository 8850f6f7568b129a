package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/username/briefingdesk/backend/src/models"
	"github.com/username/briefingdesk/backend/src/processors"
	"github.com/username/briefingdesk/backend/src/services"
)

func newTestAssetHandler() *AssetHandler {
	svc := services.NewAssetService(processors.NewHoldingProcessor(nil), nil, cache.New(time.Minute, time.Minute))
	return NewAssetHandler(svc)
}

func doBulkImport(t *testing.T, h *AssetHandler, portfolioID string, assets []models.RawHoldingRecord) services.BulkImportResult {
	t.Helper()
	body, _ := json.Marshal(map[string]interface{}{
		"portfolio_id": portfolioID,
		"assets":       assets,
	})
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/portfolio-assets/bulk", bytes.NewReader(body)), 1)
	rec := httptest.NewRecorder()
	h.HandleBulkImport(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("bulk import: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var result services.BulkImportResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("bulk import: bad response body: %v", err)
	}
	return result
}

func TestHandleBulkImport(t *testing.T) {
	h := newTestAssetHandler()
	portfolioID := uuid.NewString()

	result := doBulkImport(t, h, portfolioID, []models.RawHoldingRecord{
		{Name: "Apple Inc.", Shares: "10", AvgCost: "150,00"},
	})
	if result.Inserted != 1 || len(result.AssetIDs) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	// Missing portfolio_id is a 400.
	body, _ := json.Marshal(map[string]interface{}{
		"assets": []models.RawHoldingRecord{{Name: "X"}},
	})
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/portfolio-assets/bulk", bytes.NewReader(body)), 1)
	rec := httptest.NewRecorder()
	h.HandleBulkImport(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing portfolio_id, got %d", rec.Code)
	}

	// Unauthenticated request is a 401.
	req = httptest.NewRequest(http.MethodPost, "/api/portfolio-assets/bulk", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	h.HandleBulkImport(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without auth context, got %d", rec.Code)
	}
}

func TestHandleListAssetsETag(t *testing.T) {
	h := newTestAssetHandler()
	portfolioID := uuid.NewString()
	doBulkImport(t, h, portfolioID, []models.RawHoldingRecord{{Name: "SAP SE"}})

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/portfolio-assets?portfolio_id="+portfolioID, nil), 1)
	rec := httptest.NewRecorder()
	h.HandleListAssets(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected an ETag header")
	}

	var assets []models.PortfolioAsset
	if err := json.Unmarshal(rec.Body.Bytes(), &assets); err != nil {
		t.Fatalf("bad list body: %v", err)
	}
	if len(assets) != 1 || assets[0].EnrichmentStatus != models.EnrichmentNotEnriched {
		t.Errorf("expected one asset with derived status, got %+v", assets)
	}

	// Replaying the ETag yields 304 with no body.
	req = asUser(httptest.NewRequest(http.MethodGet, "/api/portfolio-assets?portfolio_id="+portfolioID, nil), 1)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	h.HandleListAssets(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Errorf("expected 304 for matching ETag, got %d", rec.Code)
	}

	// No scope parameter is a 400.
	req = asUser(httptest.NewRequest(http.MethodGet, "/api/portfolio-assets", nil), 1)
	rec = httptest.NewRecorder()
	h.HandleListAssets(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without scope, got %d", rec.Code)
	}
}

func TestHandleUpdateAssetConflict(t *testing.T) {
	h := newTestAssetHandler()
	portfolioID := uuid.NewString()
	result := doBulkImport(t, h, portfolioID, []models.RawHoldingRecord{{Name: "Siemens AG"}})
	id := result.AssetIDs[0]

	patchReq := func(assetID string, payload map[string]interface{}) *httptest.ResponseRecorder {
		body, _ := json.Marshal(payload)
		req := asUser(httptest.NewRequest(http.MethodPatch, "/api/portfolio-assets/"+assetID, bytes.NewReader(body)), 1)
		req.SetPathValue("id", assetID)
		rec := httptest.NewRecorder()
		h.HandleUpdateAsset(rec, req)
		return rec
	}

	// Stale version is a 409.
	rec := patchReq(id, map[string]interface{}{"stock_name": "Siemens", "version": 7})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for stale version, got %d: %s", rec.Code, rec.Body.String())
	}

	// Correct version succeeds and returns the bumped row.
	rec = patchReq(id, map[string]interface{}{"stock_name": "Siemens", "version": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated models.PortfolioAsset
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("bad patch body: %v", err)
	}
	if updated.StockName != "Siemens" || updated.Version != 2 {
		t.Errorf("unexpected updated asset: %+v", updated)
	}

	// Unknown asset is a 404.
	rec = patchReq(uuid.NewString(), map[string]interface{}{"stock_name": "x", "version": 1})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown id, got %d", rec.Code)
	}
}

func TestHandleUpdateAssetClearsNumeric(t *testing.T) {
	h := newTestAssetHandler()
	portfolioID := uuid.NewString()
	result := doBulkImport(t, h, portfolioID, []models.RawHoldingRecord{{Name: "BASF SE", Shares: "7"}})
	id := result.AssetIDs[0]

	body := []byte(`{"shares": "", "version": 1}`)
	req := asUser(httptest.NewRequest(http.MethodPatch, "/api/portfolio-assets/"+id, bytes.NewReader(body)), 1)
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	h.HandleUpdateAsset(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var updated models.PortfolioAsset
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("bad patch body: %v", err)
	}
	if updated.Shares != nil {
		t.Errorf("clearing shares must yield null, got %v", *updated.Shares)
	}
}

func TestHandleMarkReviewed(t *testing.T) {
	h := newTestAssetHandler()
	portfolioID := uuid.NewString()
	result := doBulkImport(t, h, portfolioID, []models.RawHoldingRecord{{Name: "Obscure Family Office Vehicle"}})
	id := result.AssetIDs[0]

	markReviewed := func(assetID string, body []byte) *httptest.ResponseRecorder {
		req := asUser(httptest.NewRequest(http.MethodPost, "/api/portfolio-assets/"+assetID+"/mark-reviewed", bytes.NewReader(body)), 1)
		req.SetPathValue("id", assetID)
		rec := httptest.NewRecorder()
		h.HandleMarkReviewed(rec, req)
		return rec
	}

	// Without a body the reviewer defaults to the authenticated user.
	rec := markReviewed(id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var reviewed models.PortfolioAsset
	if err := json.Unmarshal(rec.Body.Bytes(), &reviewed); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if !reviewed.EnrichmentReviewed || reviewed.EnrichmentReviewedAt == nil {
		t.Errorf("expected reviewed markers set, got %+v", reviewed)
	}
	if reviewed.EnrichmentReviewedBy != "1" {
		t.Errorf("expected reviewer to default to the user, got %q", reviewed.EnrichmentReviewedBy)
	}
	if reviewed.Version != 2 {
		t.Errorf("expected version bump, got %d", reviewed.Version)
	}

	// An explicit reviewer in the body wins.
	rec = markReviewed(id, []byte(`{"reviewed_by": "compliance"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &reviewed); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if reviewed.EnrichmentReviewedBy != "compliance" {
		t.Errorf("expected explicit reviewer, got %q", reviewed.EnrichmentReviewedBy)
	}

	// Unknown asset is a 404.
	if rec := markReviewed(uuid.NewString(), nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown id, got %d", rec.Code)
	}
}

func TestHandleDeleteAsset(t *testing.T) {
	h := newTestAssetHandler()
	portfolioID := uuid.NewString()
	result := doBulkImport(t, h, portfolioID, []models.RawHoldingRecord{{Name: "Adidas AG"}})
	id := result.AssetIDs[0]

	req := asUser(httptest.NewRequest(http.MethodDelete, "/api/portfolio-assets/"+id, nil), 1)
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	h.HandleDeleteAsset(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	req = asUser(httptest.NewRequest(http.MethodDelete, "/api/portfolio-assets/"+id, nil), 1)
	req.SetPathValue("id", id)
	rec = httptest.NewRecorder()
	h.HandleDeleteAsset(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for repeated delete, got %d", rec.Code)
	}
}
