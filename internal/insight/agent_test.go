package insight

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"freightline/api_compass/pkg/llm"
	"freightline/api_compass/pkg/logging"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []llm.ToolCall
	results map[string]ToolResult
}

func (f *fakeRunner) Execute(_ context.Context, call llm.ToolCall) ToolResult {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if result, ok := f.results[call.ID]; ok {
		return result
	}
	return ToolResult{Success: true, Rows: []Row{{"shipment_count": 1.0}}}
}

func userMessages(question string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: "You are Compass."},
		{Role: "user", Content: question},
	}
}

func TestAgentPlainAnswer(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llm.Chunk{textChunks("You moved ", "412 loads last week.")}}
	agent := NewAgent(AgentConfig{Executor: &fakeRunner{}, Logger: logging.NewLogger()})

	outcome, err := agent.Run(context.Background(), provider, ModeQuestion, userMessages("how many loads last week"))
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Answer != "You moved 412 loads last week." {
		t.Errorf("answer = %q", outcome.Answer)
	}
	if outcome.ToolCallCount != 0 {
		t.Errorf("tool calls = %d", outcome.ToolCallCount)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d", provider.calls)
	}
}

func TestAgentToolRoundThenAnswer(t *testing.T) {
	// arguments arrive split across stream chunks and must merge by id
	provider := &scriptedProvider{rounds: [][]llm.Chunk{
		{
			{ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "aggregate", Arguments: `{"table":`}}},
			{ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "aggregate", Arguments: `{"table":"shipments","group_by":"carrier_name","metric":"retail","aggregation":"sum"}`}}},
		},
		textChunks("Carrier B leads on spend."),
	}}
	runner := &fakeRunner{results: map[string]ToolResult{
		"call-1": {Success: true, Rows: []Row{
			{"carrier_name": "A", "total_retail": 500.0},
			{"carrier_name": "B", "total_retail": 1000.0},
		}},
	}}
	agent := NewAgent(AgentConfig{Executor: runner, Logger: logging.NewLogger()})

	outcome, err := agent.Run(context.Background(), provider, ModeQuestion, userMessages("spend by carrier"))
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Answer != "Carrier B leads on spend." {
		t.Errorf("answer = %q", outcome.Answer)
	}
	if outcome.ToolCallCount != 1 {
		t.Errorf("tool calls = %d", outcome.ToolCallCount)
	}
	if len(runner.calls) != 1 || !strings.Contains(runner.calls[0].Arguments, "group_by") {
		t.Errorf("merged call = %+v", runner.calls)
	}
	if len(outcome.Visualizations) != 1 || outcome.Visualizations[0].Type != "bar" {
		t.Errorf("visualizations = %+v", outcome.Visualizations)
	}

	// the second round must see the assistant tool turn and its paired result
	second := provider.transcripts[1]
	var sawAssistant, sawTool bool
	for _, msg := range second {
		if msg.Role == "assistant" && len(msg.ToolCalls) == 1 {
			sawAssistant = true
		}
		if msg.Role == "tool" && msg.ToolCallID == "call-1" {
			sawTool = true
		}
	}
	if !sawAssistant || !sawTool {
		t.Errorf("transcript pairing broken: %+v", second)
	}
}

func TestAgentToolsRunInRequestOrder(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llm.Chunk{
		{{ToolCalls: []llm.ToolCall{
			{ID: "call-a", Name: "get_lanes", Arguments: `{"limit":5}`},
			{ID: "call-b", Name: "aggregate", Arguments: `{"table":"shipments","group_by":"mode_name","metric":"retail","aggregation":"sum"}`},
		}}},
		textChunks("done"),
	}}
	agent := NewAgent(AgentConfig{Executor: &fakeRunner{}, Logger: logging.NewLogger()})

	outcome, err := agent.Run(context.Background(), provider, ModeQuestion, userMessages("lanes and spend"))
	if err != nil {
		t.Fatal(err)
	}
	if outcome.ToolCallCount != 2 {
		t.Errorf("tool calls = %d", outcome.ToolCallCount)
	}

	var toolIDs []string
	for _, msg := range provider.transcripts[1] {
		if msg.Role == "tool" {
			toolIDs = append(toolIDs, msg.ToolCallID)
		}
	}
	if len(toolIDs) != 2 || toolIDs[0] != "call-a" || toolIDs[1] != "call-b" {
		t.Errorf("tool result order = %v", toolIDs)
	}
}

func TestAgentBudgetExhaustionNonThrowing(t *testing.T) {
	// every round requests another tool call; the loop must stop at the
	// question-mode budget and still return an outcome
	rounds := make([][]llm.Chunk, turnBudgetDefault)
	for i := range rounds {
		rounds[i] = []llm.Chunk{{ToolCalls: []llm.ToolCall{{ID: "c", Name: "get_lanes", Arguments: `{}`}}}}
	}
	provider := &scriptedProvider{rounds: rounds}
	agent := NewAgent(AgentConfig{Executor: &fakeRunner{}, Logger: logging.NewLogger()})

	outcome, err := agent.Run(context.Background(), provider, ModeQuestion, userMessages("loop forever"))
	if err != nil {
		t.Fatalf("exhaustion must not error: %v", err)
	}
	if provider.calls != turnBudgetDefault {
		t.Errorf("provider calls = %d, want %d", provider.calls, turnBudgetDefault)
	}
	if outcome.ToolCallCount != turnBudgetDefault {
		t.Errorf("tool calls = %d", outcome.ToolCallCount)
	}
	if outcome.Answer != "" {
		t.Errorf("partial answer should be empty, got %q", outcome.Answer)
	}

	noteSeen := false
	for _, msg := range provider.transcripts[len(provider.transcripts)-1] {
		if msg.Role == "user" && strings.Contains(msg.Content, "[System note") {
			noteSeen = true
		}
	}
	if !noteSeen {
		t.Error("one-round-left note never reached the model")
	}
}

func TestAgentBudgetByMode(t *testing.T) {
	cases := map[string]int{
		ModeAnalyze:  10,
		ModeReport:   8,
		ModeQuestion: 6,
		ModeWidget:   6,
	}
	for mode, want := range cases {
		if got := turnBudget(mode); got != want {
			t.Errorf("budget(%s) = %d, want %d", mode, got, want)
		}
	}
}

func TestAgentProviderErrorSurfaces(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("gateway timeout")}
	agent := NewAgent(AgentConfig{Executor: &fakeRunner{}, Logger: logging.NewLogger()})

	if _, err := agent.Run(context.Background(), provider, ModeQuestion, userMessages("q")); err == nil {
		t.Fatal("transport error must surface to the caller")
	}
}
