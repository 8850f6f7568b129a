// backend/src/parsers/csv_parser.go
package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/username/briefingdesk/backend/src/models"
	"github.com/username/briefingdesk/backend/src/security/validation"
)

// AssetSheetParser reads a comma-delimited asset sheet. The first row is a
// header naming columns that map directly onto asset fields; unknown columns
// are ignored. Rows with all-empty values are dropped before import.
type AssetSheetParser struct{}

func NewAssetSheetParser() *AssetSheetParser {
	return &AssetSheetParser{}
}

// Header names accepted for each field. Aliases match what customer sheets
// and the dashboard export actually use.
var columnAliases = map[string]string{
	"stock_name":  "stock_name",
	"name":        "stock_name",
	"ticker":      "ticker",
	"symbol":      "ticker",
	"isin":        "isin",
	"currency":    "currency",
	"asset_class": "asset_class",
	"assetclass":  "asset_class",
	"category":    "category",
	"sector":      "category",
	"shares":      "shares",
	"quantity":    "shares",
	"avg_cost":    "avgCost",
	"avgcost":     "avgCost",
	"cost":        "avgCost",
}

func (p *AssetSheetParser) Parse(file io.Reader) ([]models.RawHoldingRecord, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	fields := make([]string, len(header))
	for i, h := range header {
		fields[i] = columnAliases[strings.ToLower(strings.TrimSpace(h))]
	}

	var records []models.RawHoldingRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		record := models.RawHoldingRecord{}
		empty := true
		for i, raw := range row {
			if i >= len(fields) || fields[i] == "" {
				continue
			}
			value := cleanCell(raw)
			if value == "" {
				continue
			}
			empty = false
			switch fields[i] {
			case "stock_name":
				record.Name = validation.SanitizeForFormulaInjection(value)
			case "ticker":
				record.Ticker = value
			case "isin":
				record.ISIN = value
			case "currency":
				record.Currency = value
			case "asset_class":
				record.AssetClass = value
			case "category":
				record.Category = validation.SanitizeForFormulaInjection(value)
			case "shares":
				record.Shares = models.NumericString(value)
			case "avgCost":
				record.AvgCost = models.NumericString(value)
			}
		}
		if empty {
			continue
		}
		records = append(records, record)
	}

	return records, nil
}

// cleanCell strips unprintable characters before the value enters the
// pipeline. Free-text fields additionally get formula-injection treatment at
// the call site; numeric cells must stay untouched.
func cleanCell(raw string) string {
	return validation.StripUnprintable(strings.TrimSpace(raw))
}
