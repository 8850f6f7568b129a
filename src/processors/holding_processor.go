// backend/src/processors/holding_processor.go
package processors

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/username/briefingdesk/backend/src/models"
)

// TickerMapping pairs a lowercased company-name substring with the ticker it
// resolves to. Table order is the tie-break for ambiguous substrings, so the
// table is a slice, not a map.
type TickerMapping struct {
	Keyword string
	Ticker  string
}

type TickerTable []TickerMapping

// DefaultTickerTable covers the companies that show up in customer portfolio
// documents often enough that a name-only row should still get a usable ticker.
var DefaultTickerTable = TickerTable{
	{"shopify", "SHOP"},
	{"microsoft", "MSFT"},
	{"apple", "AAPL"},
	{"amazon", "AMZN"},
	{"alphabet", "GOOGL"},
	{"google", "GOOGL"},
	{"meta", "META"},
	{"facebook", "META"},
	{"nvidia", "NVDA"},
	{"tesla", "TSLA"},
	{"disney", "DIS"},
	{"coca-cola", "KO"},
	{"johnson", "JNJ"},
	{"ibm", "IBM"},
	{"intel", "INTC"},
	{"netflix", "NFLX"},
	{"paypal", "PYPL"},
	{"salesforce", "CRM"},
	{"adobe", "ADBE"},
	{"zoom", "ZM"},
	{"palantir", "PLTR"},
	{"airbnb", "ABNB"},
	{"berkshire", "BRK.B"},
	{"visa", "V"},
	{"mastercard", "MA"},
	{"jpmorgan", "JPM"},
	{"bank of america", "BAC"},
	{"lvmh", "MC"},
	{"moët", "MC"},
	{"alibaba", "BABA"},
	{"dbs group", "D05.SI"},
	{"advanced micro", "AMD"},
	{"amd", "AMD"},
	{"coinbase", "COIN"},
	{"crowdstrike", "CRWD"},
	{"intuitive surgical", "ISRG"},
	{"medpace", "MEDP"},
	{"roche", "ROG.SW"},
	{"servicenow", "NOW"},
	{"snowflake", "SNOW"},
	{"solaredge", "SEDG"},
	{"tencent", "TCEHY"},
	{"trade desk", "TTD"},
	{"zoetis", "ZTS"},
	{"ziprecruiter", "ZIP"},
	{"clinica baviera", "CBAV.MC"},
}

var (
	validTickerRe   = regexp.MustCompile(`^[A-Z.]+$`)
	firstTokenSplit = regexp.MustCompile(`[\s,.\-]+`)
	nonLetterRe     = regexp.MustCompile(`[^a-zA-Z]`)
	currencySymbols = strings.NewReplacer("€", "", "$", "", "£", "", "CHF", "")
	whitespaceRe    = regexp.MustCompile(`\s`)
)

// ParseLocaleNumber converts a locale-formatted numeric string ("1.234,56",
// "€ 1.234,56") to a float64. "." is treated as a thousands separator and ","
// as the decimal separator. Unparseable or negative input yields 0, a defined
// fallback for document ingestion, not an error. Holdings figures are
// non-negative; a negative value is an extraction artifact, not a position.
// Callers must not read a 0 result as proof the input was empty.
func ParseLocaleNumber(value string) float64 {
	normalized := whitespaceRe.ReplaceAllString(value, "")
	normalized = currencySymbols.Replace(normalized)
	normalized = strings.ReplaceAll(normalized, ".", "")
	normalized = strings.ReplaceAll(normalized, ",", ".")

	parsed, err := strconv.ParseFloat(normalized, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) || parsed < 0 {
		return 0
	}
	return parsed
}

// ParseOptionalNumber is the direct-edit variant: an empty or unparseable value
// becomes nil (NULL), never 0. Accepts the string-or-number looseness of the
// PATCH payload. Keeping this distinct from ParseLocaleNumber is deliberate;
// unifying the two would silently change figures recorded as zero-cost holdings.
func ParseOptionalNumber(value interface{}) *float64 {
	switch v := value.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return &v
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return nil
		}
		return &parsed
	default:
		return nil
	}
}

// DeriveTicker produces a best-effort ticker for a holding. An existing short
// uppercase candidate is kept as-is; otherwise the name is matched against the
// table (first entry wins); otherwise the first token of the name is truncated
// to five letters. Pure function, never fails: worst case is the "N/A" sentinel.
func DeriveTicker(name, existing string, table TickerTable) string {
	if existing != "" && len(existing) <= 5 && validTickerRe.MatchString(existing) {
		return existing
	}

	nameLower := strings.ToLower(name)
	for _, m := range table {
		if strings.Contains(nameLower, m.Keyword) {
			return m.Ticker
		}
	}

	firstWord := ""
	if tokens := firstTokenSplit.Split(name, -1); len(tokens) > 0 {
		firstWord = nonLetterRe.ReplaceAllString(tokens[0], "")
	}
	if len(firstWord) > 5 {
		firstWord = firstWord[:5]
	}
	if firstWord == "" {
		return "N/A"
	}
	return strings.ToUpper(firstWord)
}

// NormalizeAssetClass maps loose class labels onto the supported enumeration.
func NormalizeAssetClass(value string) string {
	cleaned := strings.ToLower(strings.TrimSpace(value))
	switch {
	case cleaned == "":
		return models.AssetClassOther
	case strings.Contains(cleaned, "crypto"):
		return models.AssetClassCrypto
	case strings.Contains(cleaned, "etf"):
		return models.AssetClassETF
	case strings.Contains(cleaned, "stock"), strings.Contains(cleaned, "equit"):
		return models.AssetClassStocks
	default:
		return models.AssetClassOther
	}
}

// NormalizedHolding is a raw record after the normalization stage: canonical
// ticker, canonical numerics, normalized asset class. Ready for insertion.
type NormalizedHolding struct {
	Ticker     string
	Name       string
	ISIN       string
	AssetClass string
	Category   string
	Currency   string
	Shares     float64
	AvgCost    float64
}

// HoldingProcessor normalizes raw holding records. The ticker table is
// injected so tests can substitute fixtures; a nil table means the default.
type HoldingProcessor struct {
	table TickerTable
}

func NewHoldingProcessor(table TickerTable) *HoldingProcessor {
	if table == nil {
		table = DefaultTickerTable
	}
	return &HoldingProcessor{table: table}
}

// Process normalizes every record. Records without a name are dropped; they
// cannot be persisted or enriched later.
func (p *HoldingProcessor) Process(rows []models.RawHoldingRecord) []NormalizedHolding {
	out := make([]NormalizedHolding, 0, len(rows))
	for _, row := range rows {
		name := strings.TrimSpace(row.Name)
		if name == "" {
			continue
		}
		out = append(out, NormalizedHolding{
			Ticker:     DeriveTicker(name, strings.TrimSpace(row.Ticker), p.table),
			Name:       name,
			ISIN:       strings.TrimSpace(row.ISIN),
			AssetClass: NormalizeAssetClass(row.AssetClass),
			Category:   strings.TrimSpace(row.Category),
			Currency:   strings.ToUpper(strings.TrimSpace(row.Currency)),
			Shares:     ParseLocaleNumber(string(row.Shares)),
			AvgCost:    ParseLocaleNumber(string(row.AvgCost)),
		})
	}
	return out
}
