// backend/src/handlers/asset_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/username/briefingdesk/backend/src/logger"
	"github.com/username/briefingdesk/backend/src/models"
	"github.com/username/briefingdesk/backend/src/services"
	"github.com/username/briefingdesk/backend/src/utils"
)

type AssetHandler struct {
	assetService services.AssetService
}

func NewAssetHandler(assetService services.AssetService) *AssetHandler {
	return &AssetHandler{assetService: assetService}
}

type bulkImportRequest struct {
	PortfolioID string                    `json:"portfolio_id"`
	CompanyID   *int64                    `json:"company_id,omitempty"`
	Assets      []models.RawHoldingRecord `json:"assets"`
	AutoEnrich  bool                      `json:"auto_enrich"`
}

func (h *AssetHandler) HandleBulkImport(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var req bulkImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.assetService.BulkImport(r.Context(), req.PortfolioID, req.CompanyID, req.Assets, req.AutoEnrich)
	if err != nil {
		if errors.Is(err, services.ErrValidationFailed) {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.L.Error("Bulk import failed", "userID", userID, "portfolioID", req.PortfolioID, "error", err)
		utils.SendJSONError(w, "An internal error occurred while importing assets.", http.StatusInternalServerError)
		return
	}

	utils.SendJSON(w, result, http.StatusCreated)
}

func (h *AssetHandler) HandleListAssets(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	portfolioID := r.URL.Query().Get("portfolio_id")
	companyIDStr := r.URL.Query().Get("company_id")

	var assets []models.PortfolioAsset
	var err error
	switch {
	case portfolioID != "":
		assets, err = h.assetService.ListByPortfolio(r.Context(), portfolioID)
	case companyIDStr != "":
		companyID, parseErr := strconv.ParseInt(companyIDStr, 10, 64)
		if parseErr != nil {
			utils.SendJSONError(w, "company_id must be an integer", http.StatusBadRequest)
			return
		}
		assets, err = h.assetService.ListByCompany(r.Context(), companyID)
	default:
		utils.SendJSONError(w, "portfolio_id or company_id query parameter is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		logger.L.Error("Error listing assets", "userID", userID, "error", err)
		utils.SendJSONError(w, "Error retrieving assets", http.StatusInternalServerError)
		return
	}
	if assets == nil {
		assets = []models.PortfolioAsset{}
	}

	w.Header().Set("Cache-Control", "no-cache, private")
	if etag, etagErr := utils.GenerateETag(assets); etagErr == nil && etag != "" {
		quotedETag := fmt.Sprintf("%q", etag)
		w.Header().Set("ETag", quotedETag)
		for _, clientETag := range strings.Split(r.Header.Get("If-None-Match"), ",") {
			if strings.TrimSpace(clientETag) == quotedETag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	} else if etagErr != nil {
		logger.L.Warn("Failed to generate ETag for asset list", "userID", userID, "error", etagErr)
	}

	utils.SendJSON(w, assets, http.StatusOK)
}

func (h *AssetHandler) HandleGetAsset(w http.ResponseWriter, r *http.Request) {
	if _, ok := GetUserIDFromContext(r.Context()); !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	asset, err := h.assetService.GetAsset(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, services.ErrAssetNotFound) {
			utils.SendJSONError(w, "Asset not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Error fetching asset", "assetID", r.PathValue("id"), "error", err)
		utils.SendJSONError(w, "Error retrieving asset", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, asset, http.StatusOK)
}

func (h *AssetHandler) HandleUpdateAsset(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("id")

	var patch services.AssetPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.assetService.UpdateAsset(r.Context(), id, patch)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAssetNotFound):
			utils.SendJSONError(w, "Asset not found", http.StatusNotFound)
		case errors.Is(err, services.ErrVersionConflict):
			// The client edited a stale copy; it must re-read and retry.
			utils.SendJSONError(w, "Asset was modified by someone else. Reload and try again.", http.StatusConflict)
		case errors.Is(err, services.ErrValidationFailed):
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			logger.L.Error("Error updating asset", "userID", userID, "assetID", id, "error", err)
			utils.SendJSONError(w, "Error updating asset", http.StatusInternalServerError)
		}
		return
	}

	utils.SendJSON(w, updated, http.StatusOK)
}

type markReviewedRequest struct {
	ReviewedBy string `json:"reviewed_by"`
}

// HandleMarkReviewed lets an operator accept an asset's enrichment state
// permanently, including a persistent error state. The body is optional; the
// reviewer defaults to the authenticated user.
func (h *AssetHandler) HandleMarkReviewed(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("id")

	var req markReviewedRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	reviewedBy := strings.TrimSpace(req.ReviewedBy)
	if reviewedBy == "" {
		reviewedBy = strconv.FormatInt(userID, 10)
	}

	asset, err := h.assetService.MarkReviewed(r.Context(), id, reviewedBy)
	if err != nil {
		if errors.Is(err, services.ErrAssetNotFound) {
			utils.SendJSONError(w, "Asset not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Error marking asset reviewed", "userID", userID, "assetID", id, "error", err)
		utils.SendJSONError(w, "Error marking asset reviewed", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, asset, http.StatusOK)
}

func (h *AssetHandler) HandleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("id")

	if err := h.assetService.DeleteAsset(r.Context(), id); err != nil {
		if errors.Is(err, services.ErrAssetNotFound) {
			utils.SendJSONError(w, "Asset not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Error deleting asset", "userID", userID, "assetID", id, "error", err)
		utils.SendJSONError(w, "Error deleting asset", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
