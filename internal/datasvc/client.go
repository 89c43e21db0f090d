// Package datasvc is the HTTP client for Ledger, the tabular data service
// that owns shipment tables, schema discovery, filtered aggregation, and join
// resolution. Only the contract lives here; the service is owned elsewhere.
package datasvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"freightline/api_compass/pkg/clients"
	"freightline/api_compass/pkg/logging"
)

// Row is one result row keyed by column name. An alias so callers can hand
// rows around without converting slice types.
type Row = map[string]any

type TableInfo struct {
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
}

type FieldInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Sample  any    `json:"sample,omitempty"`
	Notes   string `json:"notes,omitempty"`
	Indexed bool   `json:"indexed,omitempty"`
}

type JoinPath struct {
	Table       string `json:"table"`
	Via         string `json:"via"`
	Cardinality string `json:"cardinality,omitempty"`
}

// Filter is one predicate in a query or aggregation.
type Filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

// TableQuery is the payload for a single-table query.
type TableQuery struct {
	TenantID     string        `json:"tenant_id"`
	Table        string        `json:"table"`
	Select       []string      `json:"select,omitempty"`
	Filters      []Filter      `json:"filters,omitempty"`
	GroupBy      []string      `json:"group_by,omitempty"`
	Aggregations []Aggregation `json:"aggregations,omitempty"`
	OrderBy      string        `json:"order_by,omitempty"`
	OrderDir     string        `json:"order_dir,omitempty"`
	Limit        int           `json:"limit,omitempty"`
}

type Aggregation struct {
	Function string `json:"function"`
	Field    string `json:"field"`
	Alias    string `json:"alias,omitempty"`
}

// JoinQuery is the payload for a multi-table query.
type JoinQuery struct {
	TenantID     string        `json:"tenant_id"`
	BaseTable    string        `json:"base_table"`
	Joins        []string      `json:"joins"`
	Select       []string      `json:"select,omitempty"`
	Filters      []Filter      `json:"filters,omitempty"`
	GroupBy      []string      `json:"group_by,omitempty"`
	Aggregations []Aggregation `json:"aggregations,omitempty"`
	OrderBy      string        `json:"order_by,omitempty"`
	Limit        int           `json:"limit,omitempty"`
}

// AggregateQuery is the convenience single-table group-by reducer.
type AggregateQuery struct {
	TenantID    string   `json:"tenant_id"`
	Table       string   `json:"table"`
	GroupBy     string   `json:"group_by"`
	Metric      string   `json:"metric"`
	Aggregation string   `json:"aggregation"`
	Filters     []Filter `json:"filters,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

// Config represents the configuration for the Ledger client
type Config struct {
	BaseURL      string
	ServiceToken string
	Timeout      time.Duration
	Logger       logging.Logger
}

type Client struct {
	baseURL      string
	httpClient   *http.Client
	serviceToken string
	logger       logging.Logger
	executor     failsafe.Executor[*http.Response]
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		serviceToken: cfg.ServiceToken,
		logger:       cfg.Logger,
		executor:     clients.NewHTTPExecutor(clients.DefaultHTTPExecutorConfig()),
	}
}

func (c *Client) DiscoverTables(ctx context.Context, tenantID, category string) ([]TableInfo, error) {
	var out struct {
		Tables []TableInfo `json:"tables"`
	}
	err := c.post(ctx, "/api/ledger/tables", map[string]any{
		"tenant_id": tenantID,
		"category":  category,
	}, &out)
	return out.Tables, err
}

func (c *Client) DiscoverFields(ctx context.Context, tenantID, table string) ([]FieldInfo, error) {
	var out struct {
		Fields []FieldInfo `json:"fields"`
	}
	err := c.post(ctx, "/api/ledger/fields", map[string]any{
		"tenant_id": tenantID,
		"table":     table,
	}, &out)
	return out.Fields, err
}

func (c *Client) DiscoverJoins(ctx context.Context, tenantID, table string) ([]JoinPath, error) {
	var out struct {
		Joins []JoinPath `json:"joins"`
	}
	err := c.post(ctx, "/api/ledger/joins", map[string]any{
		"tenant_id": tenantID,
		"table":     table,
	}, &out)
	return out.Joins, err
}

func (c *Client) SearchText(ctx context.Context, tenantID, query, matchType string) ([]Row, error) {
	var out rowsResponse
	err := c.post(ctx, "/api/ledger/search", map[string]any{
		"tenant_id":  tenantID,
		"query":      query,
		"match_type": matchType,
	}, &out)
	return out.Rows, err
}

func (c *Client) QueryTable(ctx context.Context, q TableQuery) ([]Row, error) {
	var out rowsResponse
	err := c.post(ctx, "/api/ledger/query", q, &out)
	return out.Rows, err
}

func (c *Client) QueryWithJoin(ctx context.Context, q JoinQuery) ([]Row, error) {
	var out rowsResponse
	err := c.post(ctx, "/api/ledger/query-join", q, &out)
	return out.Rows, err
}

func (c *Client) Aggregate(ctx context.Context, q AggregateQuery) ([]Row, error) {
	var out rowsResponse
	err := c.post(ctx, "/api/ledger/aggregate", q, &out)
	return out.Rows, err
}

func (c *Client) GetLanes(ctx context.Context, tenantID string, limit int) ([]Row, error) {
	var out rowsResponse
	err := c.post(ctx, "/api/ledger/lanes", map[string]any{
		"tenant_id": tenantID,
		"limit":     limit,
	}, &out)
	return out.Rows, err
}

type rowsResponse struct {
	Rows []Row `json:"rows"`
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := clients.ExecuteHTTP(ctx, c.executor, func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
		if reqErr != nil {
			return nil, fmt.Errorf("failed to create request: %w", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.serviceToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.serviceToken)
		}
		return c.httpClient.Do(req)
	})
	if err != nil {
		return fmt.Errorf("failed to call ledger: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ledger %s: status %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
