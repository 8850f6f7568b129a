package validation

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/username/briefingdesk/backend/src/logger"
)

// File categories the import endpoint can handle. CSV sheets are parsed
// locally; everything else is forwarded to the extraction workflow.
const (
	CategoryCSV      = "csv"
	CategoryDocument = "document"
)

// AllowedClientContentTypes maps client-declared MIME types to the category
// they are routed to. Absent or false entries are rejected.
var allowedClientContentTypes = map[string]string{
	"text/csv":                 CategoryCSV,
	"application/csv":          CategoryCSV,
	"text/plain":               CategoryCSV,
	"application/vnd.ms-excel": CategoryCSV, // older Excel exports declare this for CSV
	"application/pdf":          CategoryDocument,
	"image/png":                CategoryDocument,
	"image/jpeg":               CategoryDocument,
	"image/webp":               CategoryDocument,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": CategoryDocument, // .xlsx
}

// ClassifyClientContentType checks the Content-Type header provided by the
// client and returns the processing category for it.
func ClassifyClientContentType(contentType string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	category, ok := allowedClientContentTypes[normalized]
	if !ok {
		logger.L.Warn("Disallowed client-declared Content-Type", "contentType", contentType)
		return "", fmt.Errorf("file type '%s' is not supported for portfolio import", contentType)
	}
	return category, nil
}

// ValidateFileContentByMagicBytes checks the actual file content signature
// against the declared category. It returns the detected content type and an
// error if the content does not plausibly match.
func ValidateFileContentByMagicBytes(file io.ReadSeeker, category string) (string, error) {
	if file == nil {
		return "", fmt.Errorf("file is nil")
	}

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read file for content type checking: %w", err)
	}

	// Reset the read pointer so the actual parser sees the full file.
	if _, seekErr := file.Seek(0, io.SeekStart); seekErr != nil {
		return "", fmt.Errorf("failed to reset file read pointer: %w", seekErr)
	}

	detected := http.DetectContentType(buffer[:n])
	detected = strings.ToLower(strings.Split(detected, ";")[0])

	allowedDetected := map[string]bool{}
	switch category {
	case CategoryCSV:
		// CSV detection lands on text/plain almost always; octet-stream is a
		// generic fallback and the CSV parser will reject garbage anyway.
		allowedDetected["text/plain"] = true
		allowedDetected["text/csv"] = true
		allowedDetected["application/csv"] = true
		allowedDetected["application/octet-stream"] = true
	case CategoryDocument:
		allowedDetected["application/pdf"] = true
		allowedDetected["image/png"] = true
		allowedDetected["image/jpeg"] = true
		allowedDetected["image/webp"] = true
		allowedDetected["application/zip"] = true // .xlsx is a zip container
		allowedDetected["application/octet-stream"] = true
	default:
		return detected, fmt.Errorf("unknown file category '%s'", category)
	}

	if !allowedDetected[detected] {
		logger.L.Warn("Disallowed detected file content type (magic bytes)", "detectedContentType", detected, "category", category)
		return detected, fmt.Errorf("detected file content type '%s' is not consistent with the declared file type", detected)
	}

	logger.L.Debug("File content type (magic bytes) validated", "detectedContentType", detected, "category", category)
	return detected, nil
}
