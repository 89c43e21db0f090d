package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"freightline/api_compass/internal/access"
	"freightline/api_compass/internal/datasvc"
	"freightline/api_compass/pkg/llm"
	"freightline/api_compass/pkg/logging"
)

// CompiledFilters is the result of turning a natural-language prompt into
// structured dashboard filters.
type CompiledFilters struct {
	Success     bool             `json:"success"`
	Filters     []datasvc.Filter `json:"filters,omitempty"`
	Sort        string           `json:"sort,omitempty"`
	Limit       int              `json:"limit,omitempty"`
	Reasoning   string           `json:"reasoning,omitempty"`
	Confidence  float64          `json:"confidence,omitempty"`
	Suggestions []string         `json:"suggestions,omitempty"`
	Error       string           `json:"error,omitempty"`
}

var allowedOperators = map[string]bool{
	"eq": true, "neq": true,
	"gt": true, "gte": true, "lt": true, "lte": true,
	"in": true, "not_in": true,
	"contains": true, "between": true,
	"is_null": true, "is_not_null": true,
}

// regionStates expands informal region names into explicit state codes so a
// compiled filter never leaves the dashboard guessing.
var regionStates = map[string][]string{
	"west coast": {"CA", "OR", "WA"},
	"east coast": {"ME", "NH", "MA", "RI", "CT", "NY", "NJ", "DE", "MD", "VA", "NC", "SC", "GA", "FL"},
	"midwest":    {"OH", "MI", "IN", "IL", "WI", "MN", "IA", "MO", "ND", "SD", "NE", "KS"},
	"south":      {"TX", "OK", "AR", "LA", "MS", "AL", "TN", "KY", "GA", "FL", "SC", "NC", "VA", "WV"},
}

// FilterCompiler translates prompts like "delivered shipments over $500 from
// CA" into structured filters. The fast model tier is the primary translator;
// a deterministic pattern matcher covers model outages.
type FilterCompiler struct {
	fast   llm.Provider
	logger logging.Logger
}

func NewFilterCompiler(fast llm.Provider, logger logging.Logger) *FilterCompiler {
	return &FilterCompiler{fast: fast, logger: logger}
}

func (c *FilterCompiler) Compile(ctx context.Context, question, knowledgePrompt string, privileged bool) CompiledFilters {
	if c.fast != nil {
		out, err := c.compileWithModel(ctx, question, knowledgePrompt, privileged)
		if err == nil {
			return out
		}
		c.logger.WithFields(logging.Fields{
			"error": err.Error(),
		}).Warn("Model filter compilation failed, using local patterns")
	}

	filters, err := FallbackFilters(question)
	if err != nil {
		return CompiledFilters{Success: false, Error: err.Error()}
	}
	return CompiledFilters{
		Success:    true,
		Filters:    filters,
		Reasoning:  "Matched with local filter patterns.",
		Confidence: 0.6,
	}
}

const filterPromptHeader = `You translate dashboard filter requests into strict JSON. Respond with a single JSON object and nothing else:
{"filters": [{"field": string, "operator": string, "value": any}], "sort": string?, "limit": number?, "reasoning": string, "confidence": number, "suggestions": [string]}
Supported operators: eq, neq, gt, gte, lt, lte, in, not_in, contains, between, is_null, is_not_null.
Region names expand to explicit state codes: west coast = CA,OR,WA; east coast = ME,NH,MA,RI,CT,NY,NJ,DE,MD,VA,NC,SC,GA,FL; midwest = OH,MI,IN,IL,WI,MN,IA,MO,ND,SD,NE,KS; south = TX,OK,AR,LA,MS,AL,TN,KY,GA,FL,SC,NC,VA,WV.
Dollar amounts on "cost" or "spend" refer to the retail field.`

func (c *FilterCompiler) compileWithModel(ctx context.Context, question, knowledgePrompt string, privileged bool) (CompiledFilters, error) {
	system := filterPromptHeader
	if knowledgePrompt != "" {
		system += "\n\n" + knowledgePrompt
	}
	messages := []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: question},
	}

	stream, err := c.fast.Complete(ctx, messages, nil)
	if err != nil {
		return CompiledFilters{}, err
	}
	text, err := llm.CollectText(stream)
	if err != nil {
		return CompiledFilters{}, err
	}

	raw := extractJSONObject(text)
	if raw == "" {
		return CompiledFilters{}, errors.New("no JSON object in model response")
	}
	var out CompiledFilters
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return CompiledFilters{}, fmt.Errorf("malformed filter JSON: %w", err)
	}
	if len(out.Filters) == 0 {
		return CompiledFilters{}, errors.New("model produced no filters")
	}

	normalized, err := normalizeFilters(out.Filters, privileged)
	if err != nil {
		return CompiledFilters{}, err
	}
	out.Filters = normalized
	out.Success = true
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return out, nil
}

// normalizeFilters validates operators, expands region values, and rewrites
// restricted cost fields to retail for non-privileged callers.
func normalizeFilters(filters []datasvc.Filter, privileged bool) ([]datasvc.Filter, error) {
	normalized := make([]datasvc.Filter, 0, len(filters))
	for _, filter := range filters {
		filter.Operator = strings.ToLower(strings.TrimSpace(filter.Operator))
		if filter.Field == "" || !allowedOperators[filter.Operator] {
			return nil, fmt.Errorf("unsupported filter %q %q", filter.Field, filter.Operator)
		}
		if !privileged && access.IsRestrictedField(filter.Field) {
			filter.Field = "retail"
		}
		if states, ok := regionValue(filter); ok {
			filter.Operator = "in"
			filter.Value = states
		}
		normalized = append(normalized, filter)
	}
	return normalized, nil
}

func regionValue(filter datasvc.Filter) ([]string, bool) {
	if !strings.Contains(filter.Field, "state") {
		return nil, false
	}
	value, ok := filter.Value.(string)
	if !ok {
		return nil, false
	}
	states, ok := regionStates[strings.ToLower(strings.TrimSpace(value))]
	return states, ok
}

// extractJSONObject pulls the outermost {...} out of a model reply, tolerating
// prose or code fences around it.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

var (
	amountOverPattern  = regexp.MustCompile(`(?i)(?:over|greater than|more than|above)\s*\$?\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	amountUnderPattern = regexp.MustCompile(`(?i)(?:under|less than|below)\s*\$?\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	originPattern      = regexp.MustCompile(`(?i:\b(?:from|origin)\s+)([A-Z]{2})\b`)
	destPattern        = regexp.MustCompile(`(?i:\b(?:to|destination)\s+)([A-Z]{2})\b`)
	deliveredPattern   = regexp.MustCompile(`(?i)\bdelivered\b`)
	latePattern        = regexp.MustCompile(`(?i)\blate\b`)
)

// FallbackFilters is the deterministic path: a fixed set of English
// constructions, no model involved. It refuses to guess — an unrecognized
// prompt is an error, not an empty filter set.
func FallbackFilters(question string) ([]datasvc.Filter, error) {
	var filters []datasvc.Filter

	if match := amountOverPattern.FindStringSubmatch(question); match != nil {
		if amount, err := parseAmount(match[1]); err == nil {
			filters = append(filters, datasvc.Filter{Field: "retail", Operator: "gt", Value: amount})
		}
	}
	if match := amountUnderPattern.FindStringSubmatch(question); match != nil {
		if amount, err := parseAmount(match[1]); err == nil {
			filters = append(filters, datasvc.Filter{Field: "retail", Operator: "lt", Value: amount})
		}
	}
	if match := originPattern.FindStringSubmatch(question); match != nil {
		filters = append(filters, datasvc.Filter{Field: "origin_state", Operator: "eq", Value: match[1]})
	}
	if match := destPattern.FindStringSubmatch(question); match != nil {
		filters = append(filters, datasvc.Filter{Field: "destination_state", Operator: "eq", Value: match[1]})
	}
	if region, states := matchRegion(question); region != "" {
		filters = append(filters, datasvc.Filter{Field: "origin_state", Operator: "in", Value: states})
	}
	if deliveredPattern.MatchString(question) {
		filters = append(filters, datasvc.Filter{Field: "status_name", Operator: "eq", Value: "Delivered"})
	}
	if latePattern.MatchString(question) {
		filters = append(filters, datasvc.Filter{Field: "is_late", Operator: "eq", Value: true})
	}

	if len(filters) == 0 {
		return nil, errors.New("could not derive filters from the prompt")
	}
	return filters, nil
}

func matchRegion(question string) (string, []string) {
	lower := strings.ToLower(question)
	names := make([]string, 0, len(regionStates))
	for name := range regionStates {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.Contains(lower, name) {
			return name, regionStates[name]
		}
	}
	return "", nil
}

func parseAmount(raw string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
}
