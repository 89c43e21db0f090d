package insight

import (
	"strings"
	"testing"
)

func TestSynthesizeNilOnFailureOrEmpty(t *testing.T) {
	if v := Synthesize("query_table", "", ToolResult{Success: false, Error: "boom"}); v != nil {
		t.Errorf("failed result should yield nil, got %+v", v)
	}
	if v := Synthesize("query_table", "", ToolResult{Success: true}); v != nil {
		t.Errorf("empty result should yield nil, got %+v", v)
	}
}

func TestSynthesizeStatCurrency(t *testing.T) {
	result := ToolResult{Success: true, Rows: []Row{{"total_spend": 12345.6}}}
	v := Synthesize("aggregate", `{"metric":"retail","aggregation":"sum"}`, result)
	if v == nil {
		t.Fatal("expected a visualization")
	}
	if v.Type != "stat" {
		t.Errorf("type = %s", v.Type)
	}
	if v.Config["format"] != "currency" {
		t.Errorf("format = %v", v.Config["format"])
	}
	if !strings.Contains(v.Title, "Spend") {
		t.Errorf("title %q missing Spend", v.Title)
	}
	data, ok := v.Data.(map[string]any)
	if !ok || data["value"] != 12345.6 {
		t.Errorf("data = %+v", v.Data)
	}
}

func TestSynthesizeStatPlainNumber(t *testing.T) {
	result := ToolResult{Success: true, Rows: []Row{{"shipment_count": float64(42)}}}
	v := Synthesize("aggregate", `{"metric":"shipment_count","aggregation":"count"}`, result)
	if v == nil {
		t.Fatal("expected a visualization")
	}
	if v.Config["format"] != "number" {
		t.Errorf("format = %v", v.Config["format"])
	}
}

func TestSynthesizeBarSortedDescending(t *testing.T) {
	result := ToolResult{Success: true, Rows: []Row{
		{"carrier_name": "A", "total_spend": 500.0},
		{"carrier_name": "B", "total_spend": 1000.0},
	}}
	v := Synthesize("query_table", "", result)
	if v == nil {
		t.Fatal("expected a visualization")
	}
	if v.Type != "bar" {
		t.Errorf("type = %s", v.Type)
	}
	entries, ok := v.Data.([]barEntry)
	if !ok {
		t.Fatalf("data shape = %T", v.Data)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Label != "B" || entries[1].Label != "A" {
		t.Errorf("not sorted descending: %+v", entries)
	}
	if !strings.Contains(v.Title, "by Carrier") {
		t.Errorf("title = %q", v.Title)
	}
}

func TestSynthesizeBarCapsAtFifteen(t *testing.T) {
	rows := make([]Row, 0, 20)
	for i := 0; i < 20; i++ {
		rows = append(rows, Row{"carrier_name": string(rune('A' + i)), "total_spend": float64(i)})
	}
	v := Synthesize("query_table", "", ToolResult{Success: true, Rows: rows})
	if v == nil {
		t.Fatal("expected a visualization")
	}
	entries := v.Data.([]barEntry)
	if len(entries) != 15 {
		t.Errorf("entries = %d, want 15", len(entries))
	}
	if !strings.Contains(v.Subtitle, "20") {
		t.Errorf("subtitle %q should carry the true row count", v.Subtitle)
	}
}

func TestSynthesizeLanes(t *testing.T) {
	result := ToolResult{Success: true, Rows: []Row{
		{"lane": "CA -> TX", "shipment_count": 40.0},
		{"lane": "IL -> OH", "shipment_count": 25.0},
	}}
	v := Synthesize("get_lanes", "", result)
	if v == nil {
		t.Fatal("expected a visualization")
	}
	if v.Type != "bar" || v.Config["orientation"] != "horizontal" {
		t.Errorf("viz = %+v", v)
	}
}

func TestSynthesizeLanesFromStatePairs(t *testing.T) {
	result := ToolResult{Success: true, Rows: []Row{
		{"origin_state": "CA", "destination_state": "TX", "shipment_count": 12.0},
	}}
	v := Synthesize("get_lanes", "", result)
	if v == nil {
		t.Fatal("expected a visualization")
	}
	entries := v.Data.([]barEntry)
	if entries[0].Label != "CA -> TX" {
		t.Errorf("label = %q", entries[0].Label)
	}
}

func TestSynthesizeNilWhenNoUsableColumns(t *testing.T) {
	result := ToolResult{Success: true, Rows: []Row{
		{"note": "free text only"},
		{"note": "still no numbers"},
	}}
	if v := Synthesize("query_table", "", result); v != nil {
		t.Errorf("expected nil, got %+v", v)
	}
}

func TestDisplayLabelFallback(t *testing.T) {
	if got := displayLabel("origin_city"); got != "Origin City" {
		t.Errorf("displayLabel = %q", got)
	}
	if got := displayLabel("mode_name"); got != "Mode" {
		t.Errorf("override lost: %q", got)
	}
}
