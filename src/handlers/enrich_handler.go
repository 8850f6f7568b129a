// backend/src/handlers/enrich_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/username/briefingdesk/backend/src/logger"
	"github.com/username/briefingdesk/backend/src/models"
	"github.com/username/briefingdesk/backend/src/services"
	"github.com/username/briefingdesk/backend/src/utils"
)

type EnrichHandler struct {
	enrichmentService services.EnrichmentService
}

func NewEnrichHandler(enrichmentService services.EnrichmentService) *EnrichHandler {
	return &EnrichHandler{enrichmentService: enrichmentService}
}

type enrichRequest struct {
	Mode        string `json:"mode"` // "single", "portfolio" or "company"
	AssetID     string `json:"asset_id,omitempty"`
	PortfolioID string `json:"portfolio_id,omitempty"`
	CompanyID   *int64 `json:"company_id,omitempty"`
	// SkipEnriched defaults to true; a pointer so an explicit false survives
	// JSON decoding.
	SkipEnriched   *bool  `json:"skipEnriched,omitempty"`
	TickerOverride string `json:"ticker_override,omitempty"`
	// Async schedules the pass and returns a job ID instead of running inline.
	Async bool `json:"async,omitempty"`
}

func (h *EnrichHandler) HandleEnrich(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var req enrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	skipEnriched := true
	if req.SkipEnriched != nil {
		skipEnriched = *req.SkipEnriched
	}

	switch req.Mode {
	case "single":
		if req.AssetID == "" {
			utils.SendJSONError(w, "asset_id is required for single mode", http.StatusBadRequest)
			return
		}
		outcome, err := h.enrichmentService.EnrichSingle(r.Context(), req.AssetID, req.TickerOverride)
		if err != nil {
			if errors.Is(err, services.ErrAssetNotFound) {
				utils.SendJSONError(w, "Asset not found", http.StatusNotFound)
				return
			}
			logger.L.Error("Single-asset enrichment failed", "userID", userID, "assetID", req.AssetID, "error", err)
			utils.SendJSONError(w, "Error enriching asset", http.StatusInternalServerError)
			return
		}
		utils.SendJSON(w, outcome, http.StatusOK)

	case "portfolio", "company":
		scope := services.EnrichScope{SkipEnriched: skipEnriched}
		if req.Mode == "portfolio" {
			if req.PortfolioID == "" {
				utils.SendJSONError(w, "portfolio_id is required for portfolio mode", http.StatusBadRequest)
				return
			}
			scope.PortfolioID = req.PortfolioID
		} else {
			if req.CompanyID == nil {
				utils.SendJSONError(w, "company_id is required for company mode", http.StatusBadRequest)
				return
			}
			scope.CompanyID = req.CompanyID
		}

		if req.Async {
			jobID := h.enrichmentService.ScheduleScope(scope)
			utils.SendJSON(w, map[string]string{"job_id": jobID, "status": models.JobPending}, http.StatusAccepted)
			return
		}

		result, err := h.enrichmentService.EnrichScope(r.Context(), scope)
		if err != nil {
			if errors.Is(err, services.ErrNoAssetsInScope) {
				utils.SendJSONError(w, "No assets found in the requested scope", http.StatusNotFound)
				return
			}
			if errors.Is(err, services.ErrValidationFailed) {
				utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
				return
			}
			logger.L.Error("Scoped enrichment failed", "userID", userID, "mode", req.Mode, "error", err)
			utils.SendJSONError(w, "Error enriching assets", http.StatusInternalServerError)
			return
		}
		utils.SendJSON(w, result, http.StatusOK)

	default:
		utils.SendJSONError(w, "mode must be one of: single, portfolio, company", http.StatusBadRequest)
	}
}

func (h *EnrichHandler) HandleGetEnrichmentJob(w http.ResponseWriter, r *http.Request) {
	if _, ok := GetUserIDFromContext(r.Context()); !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	job, found := h.enrichmentService.GetJob(r.PathValue("id"))
	if !found {
		// Unknown ID and TTL-expired results are indistinguishable here.
		utils.SendJSONError(w, "Enrichment job not found or expired", http.StatusNotFound)
		return
	}
	utils.SendJSON(w, job, http.StatusOK)
}
