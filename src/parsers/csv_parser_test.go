package parsers

import (
	"strings"
	"testing"
)

func TestParseAssetSheet(t *testing.T) {
	csvData := strings.Join([]string{
		"stock_name,ticker,isin,currency,asset_class,shares,avg_cost",
		"Apple Inc.,,US0378331005,USD,Stocks,10,\"150,00\"",
		",,,,,,",
		"Unknown Startup Ltd.,,,,Stocks,5,\"12,50\"",
	}, "\n")

	p := NewAssetSheetParser()
	records, err := p.Parse(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records after dropping empty row, got %d", len(records))
	}

	apple := records[0]
	if apple.Name != "Apple Inc." || apple.ISIN != "US0378331005" || apple.Currency != "USD" {
		t.Errorf("unexpected first record: %+v", apple)
	}
	if apple.Shares != "10" || apple.AvgCost != "150,00" {
		t.Errorf("numeric cells must stay raw strings: %+v", apple)
	}
}

func TestParseAssetSheetHeaderAliases(t *testing.T) {
	csvData := "name,symbol,quantity,cost\nMicrosoft Corporation,MSFT,3,\"310,10\"\n"

	p := NewAssetSheetParser()
	records, err := p.Parse(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.Name != "Microsoft Corporation" || r.Ticker != "MSFT" || r.Shares != "3" || r.AvgCost != "310,10" {
		t.Errorf("alias mapping failed: %+v", r)
	}
}

func TestParseAssetSheetSanitizesFormulas(t *testing.T) {
	csvData := "stock_name,ticker\n=cmd|' /C calc'!A0,EVIL\n"

	p := NewAssetSheetParser()
	records, err := p.Parse(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if !strings.HasPrefix(records[0].Name, "'=") {
		t.Errorf("formula cell should be neutralized, got %q", records[0].Name)
	}
}

func TestParseAssetSheetEmptyBody(t *testing.T) {
	p := NewAssetSheetParser()
	records, err := p.Parse(strings.NewReader("stock_name,ticker\n"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestParseAssetSheetMissingHeader(t *testing.T) {
	p := NewAssetSheetParser()
	if _, err := p.Parse(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty input")
	}
}
