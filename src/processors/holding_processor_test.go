package processors

import (
	"testing"

	"github.com/username/briefingdesk/backend/src/models"
)

func TestParseLocaleNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1.234,56", 1234.56},
		{"€ 1.234,56", 1234.56},
		{"0,00", 0},
		{"150,00", 150},
		{"10", 10},
		{"1.000.000,5", 1000000.5},
		{"  42,5  ", 42.5},
		{"", 0},
		{"n/a", 0},
		{"abc", 0},
		// Holdings figures are non-negative; negatives fall back to 0.
		{"-5", 0},
		{"-1.234,56", 0},
	}
	for _, c := range cases {
		if got := ParseLocaleNumber(c.in); got != c.want {
			t.Errorf("ParseLocaleNumber(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseOptionalNumber(t *testing.T) {
	if got := ParseOptionalNumber(""); got != nil {
		t.Errorf("empty string should yield nil, got %v", *got)
	}
	if got := ParseOptionalNumber("   "); got != nil {
		t.Errorf("blank string should yield nil, got %v", *got)
	}
	if got := ParseOptionalNumber(nil); got != nil {
		t.Errorf("nil should yield nil, got %v", *got)
	}
	if got := ParseOptionalNumber("not a number"); got != nil {
		t.Errorf("unparseable string should yield nil, got %v", *got)
	}
	if got := ParseOptionalNumber("12.5"); got == nil || *got != 12.5 {
		t.Errorf("expected 12.5, got %v", got)
	}
	if got := ParseOptionalNumber(float64(7)); got == nil || *got != 7 {
		t.Errorf("expected 7, got %v", got)
	}
}

func TestDeriveTickerPassthrough(t *testing.T) {
	// An existing short uppercase ticker wins regardless of the name.
	for _, name := range []string{"", "Apple Inc.", "Completely Unrelated GmbH"} {
		if got := DeriveTicker(name, "AAPL", DefaultTickerTable); got != "AAPL" {
			t.Errorf("DeriveTicker(%q, AAPL) = %q, want AAPL", name, got)
		}
	}
	// Dotted exchange-qualified candidates are also kept when short enough.
	if got := DeriveTicker("Roche Holding AG", "ROG.S", DefaultTickerTable); got != "ROG.S" {
		t.Errorf("expected ROG.S passthrough, got %q", got)
	}
	// Too long or lowercase candidates are not valid tickers.
	if got := DeriveTicker("Microsoft Corporation", "microsoft", DefaultTickerTable); got != "MSFT" {
		t.Errorf("expected table match MSFT, got %q", got)
	}
}

func TestDeriveTickerTableMatch(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Microsoft Corporation", "MSFT"},
		{"Apple Inc.", "AAPL"},
		{"Alphabet Inc. Class A", "GOOGL"},
		{"Berkshire Hathaway B", "BRK.B"},
		{"DBS Group Holdings", "D05.SI"},
	}
	for _, c := range cases {
		if got := DeriveTicker(c.name, "", DefaultTickerTable); got != c.want {
			t.Errorf("DeriveTicker(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestDeriveTickerFallback(t *testing.T) {
	if got := DeriveTicker("Unknown Startup Ltd.", "", DefaultTickerTable); got != "UNKNO" {
		t.Errorf("expected first-token fallback UNKNO, got %q", got)
	}
	// Only the first token is considered; a digits-only first token leaves
	// nothing to build a symbol from.
	if got := DeriveTicker("42 GmbH", "", DefaultTickerTable); got != "N/A" {
		t.Errorf("expected N/A for digits-only first token, got %q", got)
	}
	if got := DeriveTicker("", "", DefaultTickerTable); got != "N/A" {
		t.Errorf("expected N/A sentinel for empty name, got %q", got)
	}
}

func TestDeriveTickerDeterministic(t *testing.T) {
	first := DeriveTicker("Some Company AG", "", DefaultTickerTable)
	for i := 0; i < 10; i++ {
		if got := DeriveTicker("Some Company AG", "", DefaultTickerTable); got != first {
			t.Fatalf("DeriveTicker not deterministic: %q vs %q", got, first)
		}
	}
}

func TestDeriveTickerInjectedTable(t *testing.T) {
	table := TickerTable{
		{"acme", "ACM1"},
		{"acme widgets", "ACM2"}, // Never reached: earlier entry wins.
	}
	if got := DeriveTicker("Acme Widgets Inc", "", table); got != "ACM1" {
		t.Errorf("table order should break ties, got %q", got)
	}
}

func TestNormalizeAssetClass(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Stocks", models.AssetClassStocks},
		{"common equity", models.AssetClassStocks},
		{"ETF", models.AssetClassETF},
		{"crypto currency", models.AssetClassCrypto},
		{"Funds", models.AssetClassOther},
		{"", models.AssetClassOther},
		{"bond", models.AssetClassOther},
	}
	for _, c := range cases {
		if got := NormalizeAssetClass(c.in); got != c.want {
			t.Errorf("NormalizeAssetClass(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestProcessNormalizesRows(t *testing.T) {
	p := NewHoldingProcessor(nil)
	rows := []models.RawHoldingRecord{
		{Name: "Apple Inc.", Shares: "10", AvgCost: "150,00", AssetClass: "stocks", Currency: "eur"},
		{Name: ""},
		{Name: "Unknown Startup Ltd.", Shares: "", AvgCost: ""},
	}

	out := p.Process(rows)
	if len(out) != 2 {
		t.Fatalf("expected nameless row to be dropped, got %d rows", len(out))
	}

	apple := out[0]
	if apple.Ticker != "AAPL" || apple.Shares != 10 || apple.AvgCost != 150 {
		t.Errorf("unexpected apple normalization: %+v", apple)
	}
	if apple.AssetClass != models.AssetClassStocks || apple.Currency != "EUR" {
		t.Errorf("unexpected class/currency: %+v", apple)
	}

	unknown := out[1]
	if unknown.Ticker != "UNKNO" {
		t.Errorf("expected fallback ticker UNKNO, got %q", unknown.Ticker)
	}
	// Ingestion-time rule: missing numerics become 0, not NULL.
	if unknown.Shares != 0 || unknown.AvgCost != 0 {
		t.Errorf("expected zero fallback for empty numerics: %+v", unknown)
	}
}
