package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"freightline/api_compass/pkg/llm"
	"freightline/api_compass/pkg/logging"
)

// Turn budgets per mode. A turn is one model round trip; analysis and report
// runs get more room to chain tool calls.
const (
	turnBudgetAnalyze = 10
	turnBudgetReport  = 8
	turnBudgetDefault = 6
)

const defaultToolConcurrency = 3

func turnBudget(mode string) int {
	switch mode {
	case ModeAnalyze:
		return turnBudgetAnalyze
	case ModeReport:
		return turnBudgetReport
	default:
		return turnBudgetDefault
	}
}

// ToolRunner executes one model-requested tool call.
type ToolRunner interface {
	Execute(ctx context.Context, call llm.ToolCall) ToolResult
}

type AgentConfig struct {
	Executor ToolRunner
	Logger   logging.Logger

	// ToolConcurrency caps parallel tool dispatch within one turn.
	ToolConcurrency int
}

// Agent drives the tool-calling conversation loop: send transcript, drain the
// stream, dispatch any requested tools concurrently, feed results back, repeat
// until the model answers in plain text or the turn budget runs out.
type Agent struct {
	executor    ToolRunner
	logger      logging.Logger
	concurrency int
}

func NewAgent(cfg AgentConfig) *Agent {
	concurrency := cfg.ToolConcurrency
	if concurrency <= 0 {
		concurrency = defaultToolConcurrency
	}
	return &Agent{executor: cfg.Executor, logger: cfg.Logger, concurrency: concurrency}
}

func (a *Agent) Run(ctx context.Context, provider llm.Provider, mode string, messages []llm.Message) (RunOutcome, error) {
	if provider == nil {
		return RunOutcome{}, errors.New("llm provider is required")
	}

	maxTurns := turnBudget(mode)
	var turnText strings.Builder
	var answer strings.Builder
	outcome := RunOutcome{}

	for turn := 0; turn < maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return RunOutcome{}, err
		}

		outcome.Tokens.Input += countMessageTokens(messages)
		modelStart := time.Now()
		stream, err := provider.Complete(ctx, messages, ToolDefinitions)
		if err != nil {
			modelCallsTotal.WithLabelValues("error").Inc()
			return RunOutcome{}, err
		}

		var pendingToolCalls []llm.ToolCall
		for {
			chunk, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				_ = stream.Close()
				modelCallsTotal.WithLabelValues("error").Inc()
				return RunOutcome{}, err
			}
			if chunk.Content != "" {
				turnText.WriteString(chunk.Content)
				answer.WriteString(chunk.Content)
			}
			if len(chunk.ToolCalls) > 0 {
				pendingToolCalls = mergeToolCalls(pendingToolCalls, chunk.ToolCalls)
			}
		}
		_ = stream.Close()
		modelCallsTotal.WithLabelValues("success").Inc()
		modelCallDuration.Observe(time.Since(modelStart).Seconds())
		outcome.Trace = append(outcome.Trace, TraceStep{
			Step:   "model_turn",
			Detail: fmt.Sprintf("turn %d: %d tool calls requested", turn+1, len(pendingToolCalls)),
		})

		if len(pendingToolCalls) == 0 {
			break
		}

		// The next round expects the assistant turn that requested the tools,
		// then one tool turn per call id, in the order the model emitted them.
		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   turnText.String(),
			ToolCalls: pendingToolCalls,
		})
		turnText.Reset()

		results := a.dispatchTools(ctx, pendingToolCalls)

		for i, call := range pendingToolCalls {
			result := results[i]
			outcome.ToolCallCount++
			outcome.Trace = append(outcome.Trace, toolTraceStep(call, result))
			if viz := Synthesize(call.Name, call.Arguments, result); viz != nil {
				outcome.Visualizations = append(outcome.Visualizations, *viz)
			}
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    string(mustJSON(result)),
				Name:       call.Name,
				ToolCallID: call.ID,
			})
		}

		if turn == maxTurns-2 {
			messages = append(messages, llm.Message{
				Role:    "user",
				Content: "[System note: one tool round remains. Answer now from the data already gathered; only call another tool if the answer is impossible without it.]",
			})
		}
	}

	// Budget exhaustion is not an error: hand back whatever text exists.
	outcome.Answer = strings.TrimSpace(answer.String())
	outcome.Tokens.Output = estimateTokens(outcome.Answer)
	return outcome, nil
}

// dispatchTools runs every call from one turn concurrently, bounded by the
// concurrency cap, and returns results positionally so transcript order is
// preserved.
func (a *Agent) dispatchTools(ctx context.Context, calls []llm.ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(a.concurrency)
	for i, call := range calls {
		group.Go(func() error {
			result := a.executor.Execute(groupCtx, call)
			if !result.Success && a.logger != nil {
				a.logger.WithFields(logging.Fields{
					"tool":  call.Name,
					"error": result.Error,
				}).Warn("Tool execution failed")
			}
			results[i] = result
			return nil
		})
	}
	_ = group.Wait()
	return results
}

func toolTraceStep(call llm.ToolCall, result ToolResult) TraceStep {
	detail := call.Name
	if !result.Success {
		detail = call.Name + ": " + result.Error
	}
	step := TraceStep{Step: "tool_call", Detail: detail}
	if call.Arguments != "" && json.Valid([]byte(call.Arguments)) {
		step.Payload = json.RawMessage(call.Arguments)
	}
	return step
}

// mergeToolCalls accumulates tool calls across streaming chunks. A chunk that
// repeats an id carries the completed arguments for that call; new ids append.
func mergeToolCalls(existing, incoming []llm.ToolCall) []llm.ToolCall {
	for _, inc := range incoming {
		found := false
		for i, ex := range existing {
			if ex.ID != "" && ex.ID == inc.ID {
				existing[i].Arguments = inc.Arguments
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, inc)
		}
	}
	return existing
}

func estimateTokens(text string) int {
	return len(strings.Fields(text))
}

func countMessageTokens(messages []llm.Message) int {
	total := 0
	for _, msg := range messages {
		total += estimateTokens(msg.Content)
	}
	return total
}
