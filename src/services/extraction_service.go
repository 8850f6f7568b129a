// backend/src/services/extraction_service.go
package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/username/briefingdesk/backend/src/logger"
	"github.com/username/briefingdesk/backend/src/models"
)

// extractionServiceImpl forwards encoded file bytes to the external extraction
// workflow and maps its loose response onto typed records. No retries here;
// retry policy belongs to the caller.
type extractionServiceImpl struct {
	httpClient *http.Client
	webhookURL string
}

func NewExtractionService(webhookURL string, timeout time.Duration) ExtractionService {
	return &extractionServiceImpl{
		httpClient: &http.Client{Timeout: timeout},
		webhookURL: webhookURL,
	}
}

type extractionRequest struct {
	File     string `json:"file"`
	Filename string `json:"filename"`
	Mimetype string `json:"mimetype"`
}

type extractionResponse struct {
	Holdings []models.RawHoldingRecord `json:"holdings"`
	Error    string                    `json:"error"`
}

func (s *extractionServiceImpl) ExtractHoldings(ctx context.Context, fileContents []byte, filename, mimetype string) ([]models.RawHoldingRecord, error) {
	if s.webhookURL == "" {
		return nil, fmt.Errorf("%w: no extraction webhook configured", ErrExtractionUnavailable)
	}

	payload, err := json.Marshal(extractionRequest{
		File:     base64.StdEncoding.EncodeToString(fileContents),
		Filename: filename,
		Mimetype: mimetype,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		logger.L.Error("Extraction service transport failure", "filename", filename, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrExtractionUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.L.Warn("Extraction service returned non-2xx", "filename", filename, "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("%w: upstream status %d", ErrExtractionFailed, resp.StatusCode)
	}

	var parsed extractionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		logger.L.Warn("Extraction service returned malformed body", "filename", filename, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrExtractionBadResponse, err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrExtractionFailed, parsed.Error)
	}

	// Validate the boundary: drop records the pipeline cannot use. Zero
	// holdings is "nothing recognized", not a transport error.
	records := make([]models.RawHoldingRecord, 0, len(parsed.Holdings))
	for _, h := range parsed.Holdings {
		if h.Name == "" {
			continue
		}
		records = append(records, h)
	}

	logger.L.Info("Extraction complete", "filename", filename, "holdings", len(records), "duration", time.Since(start))
	return records, nil
}
