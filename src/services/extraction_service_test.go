package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/username/briefingdesk/backend/src/models"
	"github.com/username/briefingdesk/backend/src/processors"
)

func TestExtractHoldingsSuccess(t *testing.T) {
	fileContents := []byte("%PDF-1.4 fake statement")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req extractionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("upstream received malformed request: %v", err)
		}
		decoded, err := base64.StdEncoding.DecodeString(req.File)
		if err != nil || string(decoded) != string(fileContents) {
			t.Errorf("upstream received wrong file payload: %v", err)
		}
		if req.Filename != "depot.pdf" || req.Mimetype != "application/pdf" {
			t.Errorf("unexpected metadata: %q %q", req.Filename, req.Mimetype)
		}

		json.NewEncoder(w).Encode(extractionResponse{
			Holdings: []models.RawHoldingRecord{
				{Name: "Apple Inc.", Shares: "10", AvgCost: "150,00"},
				{Name: "", Shares: "5"}, // nameless, dropped at the boundary
				{Name: "SAP SE", NeedsReview: true, ReviewNote: "low OCR confidence"},
			},
		})
	}))
	defer server.Close()

	svc := NewExtractionService(server.URL, 5*time.Second)
	records, err := svc.ExtractHoldings(context.Background(), fileContents, "depot.pdf", "application/pdf")
	if err != nil {
		t.Fatalf("ExtractHoldings failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 usable records, got %d", len(records))
	}
	if records[0].Name != "Apple Inc." || records[1].Name != "SAP SE" {
		t.Errorf("unexpected records: %+v", records)
	}
	if !records[1].NeedsReview || records[1].ReviewNote == "" {
		t.Errorf("review hints must pass through, got %+v", records[1])
	}
}

func TestExtractHoldingsAcceptsNumericFigures(t *testing.T) {
	// The extraction workflow emits shares and avgCost as bare JSON numbers for
	// some document layouts. They must decode, not fail the whole document.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"holdings":[{"name":"Apple Inc.","ticker":"AAPL","shares":10,"avgCost":150.5}]}`))
	}))
	defer server.Close()

	svc := NewExtractionService(server.URL, 5*time.Second)
	records, err := svc.ExtractHoldings(context.Background(), []byte("%PDF-1.4"), "depot.pdf", "application/pdf")
	if err != nil {
		t.Fatalf("ExtractHoldings failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Shares != "10" || records[0].AvgCost != "150,5" {
		t.Errorf("numeric figures must coerce to locale strings, got shares=%q avgCost=%q", records[0].Shares, records[0].AvgCost)
	}
	if got := processors.ParseLocaleNumber(string(records[0].AvgCost)); got != 150.5 {
		t.Errorf("coerced avg cost must normalize back to 150.5, got %v", got)
	}
}

func TestExtractHoldingsZeroHoldingsIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(extractionResponse{Holdings: []models.RawHoldingRecord{}})
	}))
	defer server.Close()

	svc := NewExtractionService(server.URL, 5*time.Second)
	records, err := svc.ExtractHoldings(context.Background(), []byte("scan"), "empty.png", "image/png")
	if err != nil {
		t.Fatalf("zero recognized holdings must succeed, got %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestExtractHoldingsUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	svc := NewExtractionService(server.URL, 5*time.Second)
	_, err := svc.ExtractHoldings(context.Background(), []byte("x"), "a.pdf", "application/pdf")
	if !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("expected ErrExtractionFailed for non-2xx, got %v", err)
	}
}

func TestExtractHoldingsErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(extractionResponse{Error: "unsupported document layout"})
	}))
	defer server.Close()

	svc := NewExtractionService(server.URL, 5*time.Second)
	_, err := svc.ExtractHoldings(context.Background(), []byte("x"), "a.pdf", "application/pdf")
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed for error body, got %v", err)
	}
}

func TestExtractHoldingsMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>definitely not json</html>"))
	}))
	defer server.Close()

	svc := NewExtractionService(server.URL, 5*time.Second)
	_, err := svc.ExtractHoldings(context.Background(), []byte("x"), "a.pdf", "application/pdf")
	if !errors.Is(err, ErrExtractionBadResponse) {
		t.Errorf("expected ErrExtractionBadResponse for malformed body, got %v", err)
	}
}

func TestExtractHoldingsTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	svc := NewExtractionService(server.URL, time.Second)
	_, err := svc.ExtractHoldings(context.Background(), []byte("x"), "a.pdf", "application/pdf")
	if !errors.Is(err, ErrExtractionUnavailable) {
		t.Errorf("expected ErrExtractionUnavailable for transport failure, got %v", err)
	}
}

func TestExtractHoldingsNotConfigured(t *testing.T) {
	svc := NewExtractionService("", time.Second)
	_, err := svc.ExtractHoldings(context.Background(), []byte("x"), "a.pdf", "application/pdf")
	if !errors.Is(err, ErrExtractionUnavailable) {
		t.Errorf("expected ErrExtractionUnavailable when unconfigured, got %v", err)
	}
}
