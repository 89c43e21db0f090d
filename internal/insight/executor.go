package insight

import (
	"context"
	"encoding/json"
	"fmt"

	"freightline/api_compass/internal/access"
	"freightline/api_compass/internal/compass"
	"freightline/api_compass/internal/datasvc"
	"freightline/api_compass/pkg/llm"
	"freightline/api_compass/pkg/logging"
)

// DataService is the slice of the Ledger client the executor needs.
type DataService interface {
	DiscoverTables(ctx context.Context, tenantID, category string) ([]datasvc.TableInfo, error)
	DiscoverFields(ctx context.Context, tenantID, table string) ([]datasvc.FieldInfo, error)
	DiscoverJoins(ctx context.Context, tenantID, table string) ([]datasvc.JoinPath, error)
	SearchText(ctx context.Context, tenantID, query, matchType string) ([]datasvc.Row, error)
	QueryTable(ctx context.Context, q datasvc.TableQuery) ([]datasvc.Row, error)
	QueryWithJoin(ctx context.Context, q datasvc.JoinQuery) ([]datasvc.Row, error)
	Aggregate(ctx context.Context, q datasvc.AggregateQuery) ([]datasvc.Row, error)
	GetLanes(ctx context.Context, tenantID string, limit int) ([]datasvc.Row, error)
}

// Typed inputs, one per tool. The model's raw argument bag is decoded into
// the matching shape before anything touches the data service.
type discoverTablesInput struct {
	Category string `json:"category"`
}

type discoverFieldsInput struct {
	Table string `json:"table"`
}

type discoverJoinsInput struct {
	Table string `json:"table"`
}

type searchTextInput struct {
	Query     string `json:"query"`
	MatchType string `json:"match_type"`
}

type queryTableInput struct {
	Table        string                `json:"table"`
	Select       []string              `json:"select"`
	Filters      []datasvc.Filter      `json:"filters"`
	GroupBy      []string              `json:"group_by"`
	Aggregations []datasvc.Aggregation `json:"aggregations"`
	OrderBy      string                `json:"order_by"`
	OrderDir     string                `json:"order_dir"`
	Limit        int                   `json:"limit"`
}

type queryWithJoinInput struct {
	BaseTable    string                `json:"base_table"`
	Joins        []string              `json:"joins"`
	Select       []string              `json:"select"`
	Filters      []datasvc.Filter      `json:"filters"`
	GroupBy      []string              `json:"group_by"`
	Aggregations []datasvc.Aggregation `json:"aggregations"`
	OrderBy      string                `json:"order_by"`
	Limit        int                   `json:"limit"`
}

type aggregateInput struct {
	Table       string           `json:"table"`
	GroupBy     string           `json:"group_by"`
	Metric      string           `json:"metric"`
	Aggregation string           `json:"aggregation"`
	Filters     []datasvc.Filter `json:"filters"`
	Limit       int              `json:"limit"`
}

type getLanesInput struct {
	Limit int `json:"limit"`
}

type Executor struct {
	data   DataService
	logger logging.Logger
}

func NewExecutor(data DataService, logger logging.Logger) *Executor {
	return &Executor{data: data, logger: logger}
}

// Execute runs one tool call. It never returns a Go error: every failure is
// folded into ToolResult so the agent loop can feed it back to the model.
// The tenant filter comes from the request context, never from the model,
// and restricted fields are stripped for non-privileged callers before the
// query leaves this process and again from the rows that come back.
func (e *Executor) Execute(ctx context.Context, call llm.ToolCall) ToolResult {
	tenantID := compass.GetTenantID(ctx)
	if tenantID == "" {
		return failure("tenant id missing from request context")
	}
	privileged := compass.IsPrivileged(ctx)

	rows, err := e.dispatch(ctx, tenantID, privileged, call)
	if err != nil {
		if e.logger != nil {
			e.logger.WithFields(logging.Fields{
				"tool":      call.Name,
				"tenant_id": tenantID,
				"error":     err,
			}).Warn("Tool execution failed")
		}
		return failure(err.Error())
	}
	if !privileged {
		rows = scrubRows(rows)
	}
	return ToolResult{Success: true, Rows: rows}
}

func (e *Executor) dispatch(ctx context.Context, tenantID string, privileged bool, call llm.ToolCall) ([]Row, error) {
	switch call.Name {
	case "discover_tables":
		var input discoverTablesInput
		if err := decodeInput(call.Arguments, &input); err != nil {
			return nil, err
		}
		tables, err := e.data.DiscoverTables(ctx, tenantID, input.Category)
		if err != nil {
			return nil, err
		}
		rows := make([]Row, 0, len(tables))
		for _, table := range tables {
			rows = append(rows, Row{"name": table.Name, "category": table.Category, "description": table.Description})
		}
		return rows, nil

	case "discover_fields":
		var input discoverFieldsInput
		if err := decodeInput(call.Arguments, &input); err != nil {
			return nil, err
		}
		if input.Table == "" {
			return nil, fmt.Errorf("discover_fields: table is required")
		}
		fields, err := e.data.DiscoverFields(ctx, tenantID, input.Table)
		if err != nil {
			return nil, err
		}
		rows := make([]Row, 0, len(fields))
		for _, field := range fields {
			if !privileged && access.IsRestrictedField(field.Name) {
				continue
			}
			rows = append(rows, Row{"name": field.Name, "type": field.Type, "sample": field.Sample})
		}
		return rows, nil

	case "discover_joins":
		var input discoverJoinsInput
		if err := decodeInput(call.Arguments, &input); err != nil {
			return nil, err
		}
		if input.Table == "" {
			return nil, fmt.Errorf("discover_joins: table is required")
		}
		joins, err := e.data.DiscoverJoins(ctx, tenantID, input.Table)
		if err != nil {
			return nil, err
		}
		rows := make([]Row, 0, len(joins))
		for _, join := range joins {
			rows = append(rows, Row{"table": join.Table, "via": join.Via, "cardinality": join.Cardinality})
		}
		return rows, nil

	case "search_text":
		var input searchTextInput
		if err := decodeInput(call.Arguments, &input); err != nil {
			return nil, err
		}
		if input.Query == "" {
			return nil, fmt.Errorf("search_text: query is required")
		}
		return e.data.SearchText(ctx, tenantID, input.Query, input.MatchType)

	case "query_table":
		var input queryTableInput
		if err := decodeInput(call.Arguments, &input); err != nil {
			return nil, err
		}
		if input.Table == "" {
			return nil, fmt.Errorf("query_table: table is required")
		}
		query := datasvc.TableQuery{
			TenantID:     tenantID,
			Table:        input.Table,
			Select:       allowFields(input.Select, privileged),
			Filters:      allowFilters(input.Filters, privileged),
			GroupBy:      allowFields(input.GroupBy, privileged),
			Aggregations: allowAggregations(input.Aggregations, privileged),
			OrderBy:      input.OrderBy,
			OrderDir:     input.OrderDir,
			Limit:        input.Limit,
		}
		return e.data.QueryTable(ctx, query)

	case "query_with_join":
		var input queryWithJoinInput
		if err := decodeInput(call.Arguments, &input); err != nil {
			return nil, err
		}
		if input.BaseTable == "" || len(input.Joins) == 0 {
			return nil, fmt.Errorf("query_with_join: base_table and joins are required")
		}
		query := datasvc.JoinQuery{
			TenantID:     tenantID,
			BaseTable:    input.BaseTable,
			Joins:        input.Joins,
			Select:       allowFields(input.Select, privileged),
			Filters:      allowFilters(input.Filters, privileged),
			GroupBy:      allowFields(input.GroupBy, privileged),
			Aggregations: allowAggregations(input.Aggregations, privileged),
			OrderBy:      input.OrderBy,
			Limit:        input.Limit,
		}
		return e.data.QueryWithJoin(ctx, query)

	case "aggregate":
		var input aggregateInput
		if err := decodeInput(call.Arguments, &input); err != nil {
			return nil, err
		}
		if input.Table == "" || input.GroupBy == "" || input.Metric == "" || input.Aggregation == "" {
			return nil, fmt.Errorf("aggregate: table, group_by, metric, and aggregation are required")
		}
		if !privileged && access.IsRestrictedField(input.Metric) {
			input.Metric = "retail"
		}
		query := datasvc.AggregateQuery{
			TenantID:    tenantID,
			Table:       input.Table,
			GroupBy:     input.GroupBy,
			Metric:      input.Metric,
			Aggregation: input.Aggregation,
			Filters:     allowFilters(input.Filters, privileged),
			Limit:       input.Limit,
		}
		return e.data.Aggregate(ctx, query)

	case "get_lanes":
		var input getLanesInput
		if err := decodeInput(call.Arguments, &input); err != nil {
			return nil, err
		}
		return e.data.GetLanes(ctx, tenantID, input.Limit)

	default:
		return nil, fmt.Errorf("unknown tool %q", call.Name)
	}
}

func decodeInput(arguments string, out any) error {
	if arguments == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(arguments), out); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}

func failure(msg string) ToolResult {
	return ToolResult{Success: false, Error: msg}
}

func allowFields(fields []string, privileged bool) []string {
	if privileged {
		return fields
	}
	out := fields[:0:0]
	for _, field := range fields {
		if access.IsRestrictedField(field) {
			continue
		}
		out = append(out, field)
	}
	return out
}

func allowFilters(filters []datasvc.Filter, privileged bool) []datasvc.Filter {
	if privileged {
		return filters
	}
	out := filters[:0:0]
	for _, filter := range filters {
		if access.IsRestrictedField(filter.Field) {
			continue
		}
		out = append(out, filter)
	}
	return out
}

func allowAggregations(aggs []datasvc.Aggregation, privileged bool) []datasvc.Aggregation {
	if privileged {
		return aggs
	}
	out := aggs[:0:0]
	for _, agg := range aggs {
		if access.IsRestrictedField(agg.Field) {
			// cost language maps to the retail field for non-privileged callers
			agg.Field = "retail"
		}
		out = append(out, agg)
	}
	return out
}

func scrubRows(rows []Row) []Row {
	for _, row := range rows {
		for key := range row {
			if access.IsRestrictedField(key) {
				delete(row, key)
			}
		}
	}
	return rows
}
