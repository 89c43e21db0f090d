package insight

import "encoding/json"

// Mode is the high-level task classification for a question.
const (
	ModeQuestion = "question"
	ModeWidget   = "widget"
	ModeReport   = "report"
	ModeAnalyze  = "analyze"
	ModeCompile  = "compile"
)

// Model tiers. Fast handles templated lookups; capable handles synthesis.
const (
	TierFast    = "fast"
	TierCapable = "capable"
)

// HistoryTurn is one prior conversation turn supplied by the caller.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Preferences are optional caller overrides.
type Preferences struct {
	Mode           string `json:"mode,omitempty"`
	ShowReasoning  bool   `json:"showReasoning,omitempty"`
	LegacyTierHint string `json:"legacyTierHint,omitempty"`
	MaxTokens      int    `json:"maxTokens,omitempty"`
}

// QueryContext is optional UI context forwarded with a question.
type QueryContext struct {
	AvailableFields []string `json:"availableFields,omitempty"`
	WidgetType      string   `json:"widgetType,omitempty"`
}

// Question is the immutable input for one run.
type Question struct {
	Question            string        `json:"question"`
	TenantID            string        `json:"tenantId"`
	UserID              string        `json:"userId"`
	ConversationHistory []HistoryTurn `json:"conversationHistory,omitempty"`
	Preferences         *Preferences  `json:"preferences,omitempty"`
	Context             *QueryContext `json:"context,omitempty"`
}

// RouteDecision is the mode router's output.
type RouteDecision struct {
	Mode       string
	Confidence float64
	Reason     string
}

// TierDecision is the model selector's output.
type TierDecision struct {
	Tier       string
	Reason     string
	Confidence float64
}

// Visualization is a chart/stat descriptor derived from one tool result.
type Visualization struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"` // stat | bar | table | lanes
	Title    string         `json:"title"`
	Subtitle string         `json:"subtitle,omitempty"`
	Data     any            `json:"data"`
	Config   map[string]any `json:"config,omitempty"`
}

// TraceStep is one diagnostic entry. Returned only when the caller asked for
// reasoning.
type TraceStep struct {
	Step    string `json:"step"`
	Detail  string `json:"detail"`
	Payload any    `json:"payload,omitempty"`
}

// TokenCounts are rough prompt/completion token totals for one run.
type TokenCounts struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// RunOutcome is what the agent loop hands back to the engine.
type RunOutcome struct {
	Answer         string
	Visualizations []Visualization
	Trace          []TraceStep
	ToolCallCount  int
	Tokens         TokenCounts
}

// ToolResult is the executor's uniform return shape. Failures are data, not
// errors, so the conversation can keep going.
type ToolResult struct {
	Success bool   `json:"success"`
	Rows    []Row  `json:"rows,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Row aliases the data-service row shape.
type Row = map[string]any

// FollowUp is one suggested next question.
type FollowUp struct {
	ID       string `json:"id"`
	Question string `json:"question"`
}

// Response is the wire shape returned by the query handler.
type Response struct {
	Success           bool             `json:"success"`
	Answer            string           `json:"answer"`
	Visualizations    []Visualization  `json:"visualizations"`
	Reasoning         []TraceStep      `json:"reasoning,omitempty"`
	Filters           *CompiledFilters `json:"filters,omitempty"`
	FollowUpQuestions []FollowUp       `json:"followUpQuestions"`
	Metadata          Metadata         `json:"metadata"`
	Error             string           `json:"error,omitempty"`
}

// Metadata is the per-run diagnostic block on every response.
type Metadata struct {
	ProcessingTimeMs   int64        `json:"processingTimeMs"`
	ToolCallCount      int          `json:"toolCallCount"`
	Mode               string       `json:"mode"`
	ModelTier          string       `json:"modelTier,omitempty"`
	ModelReason        string       `json:"modelReason,omitempty"`
	TokensUsed         *TokenCounts `json:"tokensUsed,omitempty"`
	ContextTokens      int          `json:"contextTokens"`
	KnowledgeItemsUsed int          `json:"knowledgeItemsUsed"`
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}
