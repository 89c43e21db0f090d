package insight

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const maxBarEntries = 15

// Column priority lists for shape inference. These are heuristics carried
// over from how the dashboard names its aggregate outputs; order matters.
var valueColumnPriority = []string{
	"value", "total", "count", "sum", "avg",
	"total_cost", "total_spend", "total_retail",
	"shipment_count", "avg_cost", "avg_retail",
}

var labelColumnPriority = []string{
	"carrier_name", "mode_name", "equipment_name", "name",
	"state", "city", "mode", "status",
	"origin_state", "dest_state", "destination_state", "lane",
	"customer_name", "status_name",
}

var currencyKeywords = []string{
	"cost", "retail", "spend", "price", "margin", "revenue", "amount", "charge", "rate",
}

// displayLabels maps raw column names to dashboard-facing labels. Unmapped
// names fall back to underscore-to-title formatting.
var displayLabels = map[string]string{
	"mode_name":         "Mode",
	"carrier_name":      "Carrier",
	"customer_name":     "Customer",
	"equipment_name":    "Equipment",
	"status_name":       "Status",
	"origin_state":      "Origin State",
	"dest_state":        "Destination State",
	"destination_state": "Destination State",
	"retail":            "Spend",
	"total_retail":      "Total Spend",
	"avg_retail":        "Average Spend",
	"total_cost":        "Total Cost",
	"avg_cost":          "Average Cost",
	"carrier_cost":      "Carrier Cost",
	"shipment_count":    "Shipments",
	"lane":              "Lane",
}

var aggregationVerbs = map[string]string{
	"sum":   "Total",
	"count": "Total",
	"avg":   "Average",
	"min":   "Minimum",
	"max":   "Maximum",
}

// Synthesize derives a chart descriptor from one tool result. Pure: it never
// calls the model or the data service, and a nil return just means the
// textual answer stands alone.
func Synthesize(toolName, arguments string, result ToolResult) *Visualization {
	if !result.Success || len(result.Rows) == 0 {
		return nil
	}

	if toolName == "get_lanes" {
		return synthesizeLanes(result.Rows)
	}
	if len(result.Rows) == 1 {
		return synthesizeStat(arguments, result.Rows[0])
	}
	return synthesizeBar(arguments, result.Rows)
}

// barEntry is one labeled value in a bar visualization's data payload.
type barEntry struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

func synthesizeLanes(rows []Row) *Visualization {
	entries := make([]barEntry, 0, len(rows))
	for _, row := range rows {
		label := laneLabel(row)
		value, ok := firstNumeric(row, []string{"shipment_count", "count", "total_retail", "total_spend", "volume"})
		if label == "" || !ok {
			continue
		}
		entries = append(entries, barEntry{Label: label, Value: value})
	}
	if len(entries) == 0 {
		return nil
	}
	if len(entries) > maxBarEntries {
		entries = entries[:maxBarEntries]
	}
	return &Visualization{
		ID:    uuid.New().String(),
		Type:  "bar",
		Title: "Top Lanes",
		Data:  entries,
		Config: map[string]any{
			"orientation": "horizontal",
		},
	}
}

// firstNumeric returns the value of the first candidate column holding a
// numeric value.
func firstNumeric(row Row, candidates []string) (float64, bool) {
	for _, candidate := range candidates {
		if value, ok := toFloat(row[candidate]); ok {
			return value, true
		}
	}
	return 0, false
}

func laneLabel(row Row) string {
	if lane, ok := row["lane"].(string); ok && lane != "" {
		return lane
	}
	origin, _ := row["origin_state"].(string)
	dest, _ := row["destination_state"].(string)
	if dest == "" {
		dest, _ = row["dest_state"].(string)
	}
	if origin != "" && dest != "" {
		return origin + " -> " + dest
	}
	return ""
}

func synthesizeStat(arguments string, row Row) *Visualization {
	column, value, ok := pickValueColumn(row, "")
	if !ok {
		return nil
	}
	metric, verb := metricFromArguments(arguments)
	title := statTitle(column, metric, verb)

	format := "number"
	if isCurrency(metric) || isCurrency(column) {
		format = "currency"
	}
	return &Visualization{
		ID:    uuid.New().String(),
		Type:  "stat",
		Title: title,
		Data:  map[string]any{"value": value},
		Config: map[string]any{
			"format": format,
		},
	}
}

func synthesizeBar(arguments string, rows []Row) *Visualization {
	valueColumn, _, ok := pickValueColumn(rows[0], "")
	if !ok {
		return nil
	}
	labelColumn, ok := pickLabelColumn(rows[0], valueColumn)
	if !ok {
		return nil
	}

	entries := make([]barEntry, 0, len(rows))
	for _, row := range rows {
		value, numOK := toFloat(row[valueColumn])
		label := fmt.Sprintf("%v", row[labelColumn])
		if !numOK || label == "" || label == "<nil>" {
			continue
		}
		entries = append(entries, barEntry{Label: label, Value: value})
	}
	if len(entries) == 0 {
		return nil
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Value > entries[j].Value })

	totalRows := len(entries)
	if len(entries) > maxBarEntries {
		entries = entries[:maxBarEntries]
	}

	metric, verb := metricFromArguments(arguments)
	valueLabel := statTitle(valueColumn, metric, verb)
	dimensionLabel := displayLabel(labelColumn)

	format := "number"
	if isCurrency(metric) || isCurrency(valueColumn) {
		format = "currency"
	}
	return &Visualization{
		ID:       uuid.New().String(),
		Type:     "bar",
		Title:    valueLabel + " by " + dimensionLabel,
		Subtitle: fmt.Sprintf("%d %s", totalRows, pluralize(dimensionLabel)),
		Data:     entries,
		Config: map[string]any{
			"orientation": "horizontal",
			"format":      format,
		},
	}
}

// pickValueColumn finds the numeric column to plot: priority list first,
// then any numeric column.
func pickValueColumn(row Row, exclude string) (string, float64, bool) {
	for _, candidate := range valueColumnPriority {
		if candidate == exclude {
			continue
		}
		if value, ok := toFloat(row[candidate]); ok {
			return candidate, value, true
		}
	}
	keys := sortedKeys(row)
	for _, key := range keys {
		if key == exclude {
			continue
		}
		if value, ok := toFloat(row[key]); ok {
			return key, value, true
		}
	}
	return "", 0, false
}

func pickLabelColumn(row Row, valueColumn string) (string, bool) {
	for _, candidate := range labelColumnPriority {
		if candidate == valueColumn {
			continue
		}
		if s, ok := row[candidate].(string); ok && s != "" {
			return candidate, true
		}
	}
	for _, key := range sortedKeys(row) {
		if key == valueColumn {
			continue
		}
		if s, ok := row[key].(string); ok && s != "" {
			return key, true
		}
	}
	return "", false
}

func metricFromArguments(arguments string) (metric, verb string) {
	if arguments == "" {
		return "", ""
	}
	var input struct {
		Metric      string `json:"metric"`
		Aggregation string `json:"aggregation"`
	}
	if err := json.Unmarshal([]byte(arguments), &input); err != nil {
		return "", ""
	}
	return input.Metric, aggregationVerbs[strings.ToLower(input.Aggregation)]
}

func statTitle(column, metric, verb string) string {
	if metric != "" {
		label := displayLabel(metric)
		if verb != "" && !strings.HasPrefix(label, verb) {
			return verb + " " + label
		}
		return label
	}
	return displayLabel(column)
}

func isCurrency(name string) bool {
	name = strings.ToLower(name)
	for _, keyword := range currencyKeywords {
		if strings.Contains(name, keyword) {
			return true
		}
	}
	return false
}

func displayLabel(raw string) string {
	if label, ok := displayLabels[raw]; ok {
		return label
	}
	words := strings.Split(raw, "_")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func pluralize(label string) string {
	lower := strings.ToLower(label)
	if strings.HasSuffix(lower, "s") {
		return label
	}
	return label + "s"
}

func toFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case json.Number:
		f, err := value.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func sortedKeys(row Row) []string {
	keys := make([]string, 0, len(row))
	for key := range row {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
