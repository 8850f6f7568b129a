// backend/src/handlers/import_handler.go
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/username/briefingdesk/backend/src/config"
	"github.com/username/briefingdesk/backend/src/logger"
	"github.com/username/briefingdesk/backend/src/models"
	"github.com/username/briefingdesk/backend/src/parsers"
	"github.com/username/briefingdesk/backend/src/security/validation"
	"github.com/username/briefingdesk/backend/src/services"
	"github.com/username/briefingdesk/backend/src/utils"
)

type ImportHandler struct {
	extractionService services.ExtractionService
	sheetParser       *parsers.AssetSheetParser
}

func NewImportHandler(extractionService services.ExtractionService, sheetParser *parsers.AssetSheetParser) *ImportHandler {
	return &ImportHandler{
		extractionService: extractionService,
		sheetParser:       sheetParser,
	}
}

// extractResponse is the preview payload: raw rows for the operator to review
// before committing them via the bulk endpoint. Nothing is persisted here.
type extractResponse struct {
	Holdings []models.RawHoldingRecord `json:"holdings"`
	Source   string                    `json:"source"` // "csv" or "extraction"
	Filename string                    `json:"filename"`
}

func (h *ImportHandler) HandleExtract(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		logger.L.Warn("Failed to parse multipart form or request too large", "userID", userID, "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		logger.L.Warn("Failed to retrieve file from request", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d MB", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	category, err := validation.ClassifyClientContentType(clientContentType)
	if err != nil {
		logger.L.Warn("Invalid client-declared file type", "userID", userID, "contentType", clientContentType, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	detectedContentType, err := validation.ValidateFileContentByMagicBytes(file, category)
	if err != nil {
		logger.L.Warn("Server-side file content validation failed", "userID", userID, "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	logger.L.Info("File content validated", "userID", userID, "filename", fileHeader.Filename, "clientType", clientContentType, "detectedType", detectedContentType, "category", category)

	var holdings []models.RawHoldingRecord
	source := "csv"

	switch category {
	case validation.CategoryCSV:
		holdings, err = h.sheetParser.Parse(file)
		if err != nil {
			logger.L.Warn("CSV parsing failed", "userID", userID, "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, fmt.Sprintf("Error parsing CSV file: %v", err), http.StatusBadRequest)
			return
		}
	case validation.CategoryDocument:
		source = "extraction"
		fileContents, readErr := io.ReadAll(file)
		if readErr != nil {
			logger.L.Error("Failed to read uploaded file", "userID", userID, "error", readErr)
			utils.SendJSONError(w, "Failed to read uploaded file", http.StatusInternalServerError)
			return
		}
		// Forward the validated client-declared type. Sniffing reports .xlsx
		// as its zip container, which the extraction workflow cannot route.
		holdings, err = h.extractionService.ExtractHoldings(r.Context(), fileContents, fileHeader.Filename, clientContentType)
		if err != nil {
			h.sendExtractionError(w, userID, fileHeader.Filename, err)
			return
		}
	}

	if holdings == nil {
		holdings = []models.RawHoldingRecord{}
	}

	utils.SendJSON(w, extractResponse{
		Holdings: holdings,
		Source:   source,
		Filename: fileHeader.Filename,
	}, http.StatusOK)
}

func (h *ImportHandler) sendExtractionError(w http.ResponseWriter, userID int64, filename string, err error) {
	switch {
	case errors.Is(err, services.ErrExtractionUnavailable):
		logger.L.Error("Extraction service unavailable", "userID", userID, "filename", filename, "error", err)
		utils.SendJSONError(w, "Document extraction service is unavailable. Please try again later.", http.StatusServiceUnavailable)
	case errors.Is(err, services.ErrExtractionBadResponse):
		logger.L.Error("Extraction service returned malformed response", "userID", userID, "filename", filename, "error", err)
		utils.SendJSONError(w, "Document extraction returned an unexpected response.", http.StatusBadGateway)
	case errors.Is(err, services.ErrExtractionFailed):
		logger.L.Warn("Extraction failed for document", "userID", userID, "filename", filename, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Document parsing failed: %v", err), http.StatusUnprocessableEntity)
	default:
		logger.L.Error("Internal error during extraction", "userID", userID, "filename", filename, "error", err)
		utils.SendJSONError(w, "An internal error occurred while processing the file.", http.StatusInternalServerError)
	}
}
