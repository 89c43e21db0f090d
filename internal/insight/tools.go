package insight

import "freightline/api_compass/pkg/llm"

// ToolDefinitions is the closed catalog of data operations the model may
// invoke. The executor, not this catalog, is the authority on tenant scoping
// and field access; descriptions here only steer the model.
var ToolDefinitions = []llm.Tool{
	{
		Name:        "discover_tables",
		Description: "List the queryable tables and views, optionally filtered by category (operations, finance, partners).",
		Parameters: toolParams(
			map[string]any{
				"category": map[string]any{
					"type":        "string",
					"description": "Optional coarse category to filter by.",
				},
			},
			nil,
		),
	},
	{
		Name:        "discover_fields",
		Description: "List column names, types, and sample values for one table. Call this before querying an unfamiliar table.",
		Parameters: toolParams(
			map[string]any{
				"table": map[string]any{
					"type":        "string",
					"description": "Table name from discover_tables.",
				},
			},
			[]string{"table"},
		),
	},
	{
		Name:        "discover_joins",
		Description: "List known join paths from one table to related tables.",
		Parameters: toolParams(
			map[string]any{
				"table": map[string]any{
					"type":        "string",
					"description": "Table to list join paths from.",
				},
			},
			[]string{"table"},
		),
	},
	{
		Name:        "search_text",
		Description: "Full-text search across searchable columns (reference numbers, names, notes).",
		Parameters: toolParams(
			map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Text to search for.",
				},
				"match_type": map[string]any{
					"type":        "string",
					"description": "exact, prefix, or fuzzy (default fuzzy).",
				},
			},
			[]string{"query"},
		),
	},
	{
		Name:        "query_table",
		Description: "Filtered and optionally aggregated query against a single table.",
		Parameters: toolParams(
			map[string]any{
				"table":  map[string]any{"type": "string"},
				"select": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"filters": map[string]any{
					"type":        "array",
					"items":       filterSchema,
					"description": "Predicates applied before grouping.",
				},
				"group_by":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"aggregations": map[string]any{"type": "array", "items": aggregationSchema},
				"order_by":     map[string]any{"type": "string"},
				"order_dir":    map[string]any{"type": "string", "description": "asc or desc."},
				"limit":        map[string]any{"type": "integer"},
			},
			[]string{"table"},
		),
	},
	{
		Name:        "query_with_join",
		Description: "Query that joins one or more related tables before filtering and aggregating. Provide select so results carry readable labels instead of raw keys.",
		Parameters: toolParams(
			map[string]any{
				"base_table":   map[string]any{"type": "string"},
				"joins":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"select":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"filters":      map[string]any{"type": "array", "items": filterSchema},
				"group_by":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"aggregations": map[string]any{"type": "array", "items": aggregationSchema},
				"order_by":     map[string]any{"type": "string"},
				"limit":        map[string]any{"type": "integer"},
			},
			[]string{"base_table", "joins"},
		),
	},
	{
		Name:        "aggregate",
		Description: "Convenience single-table group-by: one metric, one aggregation, one dimension.",
		Parameters: toolParams(
			map[string]any{
				"table":       map[string]any{"type": "string"},
				"group_by":    map[string]any{"type": "string"},
				"metric":      map[string]any{"type": "string"},
				"aggregation": map[string]any{"type": "string", "description": "sum, count, avg, min, or max."},
				"filters":     map[string]any{"type": "array", "items": filterSchema},
				"limit":       map[string]any{"type": "integer"},
			},
			[]string{"table", "group_by", "metric", "aggregation"},
		),
	},
	{
		Name:        "get_lanes",
		Description: "Top origin-to-destination lanes by volume and spend for this customer.",
		Parameters: toolParams(
			map[string]any{
				"limit": map[string]any{"type": "integer", "description": "Max lanes to return (default 10)."},
			},
			nil,
		),
	},
}

var filterSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"field":    map[string]any{"type": "string"},
		"operator": map[string]any{"type": "string"},
		"value":    map[string]any{},
	},
	"required": []string{"field", "operator"},
}

var aggregationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"function": map[string]any{"type": "string"},
		"field":    map[string]any{"type": "string"},
		"alias":    map[string]any{"type": "string"},
	},
	"required": []string{"function", "field"},
}

func toolParams(properties map[string]any, required []string) map[string]any {
	params := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		params["required"] = required
	}
	return params
}
