package insight

import (
	"context"
	"fmt"
	"time"

	"freightline/api_compass/internal/compass"
	"freightline/api_compass/internal/knowledge"
	"freightline/api_compass/pkg/llm"
	"freightline/api_compass/pkg/logging"
)

const (
	apologyBreakerOpen = "Compass is catching its breath after a run of errors. Please try again in a minute."
	apologyRunFailed   = "Something went wrong while answering that. Your data is fine; please try again."
)

// ContextCompiler assembles the per-tenant system prompt.
type ContextCompiler interface {
	Compile(ctx context.Context, tenantID string, privileged bool) knowledge.CompiledContext
}

// PrivilegeChecker resolves cost-field visibility for a user.
type PrivilegeChecker interface {
	IsPrivileged(ctx context.Context, userID string) bool
}

// UsageStore increments knowledge usage counters.
type UsageStore interface {
	IncrementUsage(ctx context.Context, ids []string) error
}

// AgentRunner drives the tool-calling loop.
type AgentRunner interface {
	Run(ctx context.Context, provider llm.Provider, mode string, messages []llm.Message) (RunOutcome, error)
}

// RunRecorder receives per-run usage samples for metering. Optional.
type RunRecorder interface {
	RecordRun(tenantID, mode, tier string, tokens TokenCounts, toolCalls int)
}

type EngineConfig struct {
	Capable    llm.Provider
	Fast       llm.Provider
	Compiler   ContextCompiler
	Privileges PrivilegeChecker
	Usage      UsageStore
	Agent      AgentRunner
	Filters    *FilterCompiler
	Breaker    *Breaker
	Recorder   RunRecorder
	Logger     logging.Logger

	MaxHistoryTurns int
}

// Engine ties the whole pipeline together: route, select a model tier, check
// privileges, compile context, then either compile filters or run the agent
// loop. Every path returns a well-formed Response; nothing escapes as a
// transport error.
type Engine struct {
	cfg EngineConfig
}

func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) Answer(ctx context.Context, q Question) Response {
	start := time.Now()

	if q.Question == "" || q.TenantID == "" {
		return errorResponse(start, "error", "A question and tenant are required.", "question and tenantId are required")
	}

	route := Route(q.Question, q.Preferences)
	tier := SelectModel(q.Question, route.Mode)
	provider := e.providerFor(tier.Tier)
	if provider == nil {
		return errorResponse(start, route.Mode, "Compass is not configured with a language model yet.", "no model provider configured")
	}

	// Compile mode never consumes a breaker permit: filter compilation does
	// not record an outcome, and an unresolved half-open permit would wedge
	// the breaker open for good.
	if route.Mode != ModeCompile && e.cfg.Breaker != nil && !e.cfg.Breaker.CanExecute() {
		breakerRejectionsTotal.Inc()
		runsTotal.WithLabelValues(route.Mode, "rejected").Inc()
		return errorResponse(start, "error", apologyBreakerOpen, "service temporarily unavailable")
	}

	ctx = compass.WithTenantID(ctx, q.TenantID)
	ctx = compass.WithUserID(ctx, q.UserID)
	ctx = compass.WithMode(ctx, route.Mode)
	privileged := false
	if e.cfg.Privileges != nil {
		privileged = e.cfg.Privileges.IsPrivileged(ctx, q.UserID)
	}
	ctx = compass.WithPrivileged(ctx, privileged)

	compiled := e.cfg.Compiler.Compile(ctx, q.TenantID, privileged)
	defer e.incrementUsageOnce(ctx, compiled.KnowledgeIDs)

	if route.Mode == ModeCompile {
		return e.compileFilters(ctx, start, q, route, compiled, privileged)
	}

	systemPrompt := compiled.Prompt
	if instructions := modeInstructions(route.Mode, q.Context); instructions != "" {
		systemPrompt += "\n\n" + instructions
	}
	messages := buildTranscript(systemPrompt, q.ConversationHistory, q.Question, e.cfg.MaxHistoryTurns)

	outcome, err := e.cfg.Agent.Run(ctx, provider, route.Mode, messages)
	if err != nil {
		if e.cfg.Breaker != nil {
			e.cfg.Breaker.RecordFailure()
		}
		runsTotal.WithLabelValues(route.Mode, "degraded").Inc()
		e.cfg.Logger.WithFields(logging.Fields{
			"tenant_id": q.TenantID,
			"mode":      route.Mode,
			"error":     err.Error(),
		}).Error("Query run failed")
		resp := errorResponse(start, route.Mode, apologyRunFailed, err.Error())
		resp.Metadata.ModelTier = tier.Tier
		resp.Metadata.ContextTokens = compiled.TokenEstimate
		resp.Metadata.KnowledgeItemsUsed = len(compiled.KnowledgeIDs)
		return resp
	}

	if e.cfg.Breaker != nil {
		e.cfg.Breaker.RecordSuccess()
	}
	runsTotal.WithLabelValues(route.Mode, "success").Inc()
	runDuration.WithLabelValues(route.Mode).Observe(time.Since(start).Seconds())
	modelTokensTotal.WithLabelValues("input").Add(float64(outcome.Tokens.Input))
	modelTokensTotal.WithLabelValues("output").Add(float64(outcome.Tokens.Output))
	if e.cfg.Recorder != nil {
		e.cfg.Recorder.RecordRun(q.TenantID, route.Mode, tier.Tier, outcome.Tokens, outcome.ToolCallCount)
	}

	resp := Response{
		Success:           true,
		Answer:            outcome.Answer,
		Visualizations:    orEmptyViz(outcome.Visualizations),
		FollowUpQuestions: followUpsFor(route.Mode),
		Metadata: Metadata{
			ProcessingTimeMs:   time.Since(start).Milliseconds(),
			ToolCallCount:      outcome.ToolCallCount,
			Mode:               route.Mode,
			ModelTier:          tier.Tier,
			ModelReason:        tier.Reason,
			TokensUsed:         &TokenCounts{Input: outcome.Tokens.Input, Output: outcome.Tokens.Output},
			ContextTokens:      compiled.TokenEstimate,
			KnowledgeItemsUsed: len(compiled.KnowledgeIDs),
		},
	}
	if q.Preferences != nil && q.Preferences.ShowReasoning {
		resp.Reasoning = append([]TraceStep{
			{Step: "routing", Detail: route.Mode + ": " + route.Reason},
			{Step: "model_selection", Detail: tier.Tier + ": " + tier.Reason},
			{Step: "context", Detail: fmt.Sprintf("%d knowledge items, ~%d tokens", len(compiled.KnowledgeIDs), compiled.TokenEstimate)},
		}, outcome.Trace...)
	}
	return resp
}

func (e *Engine) compileFilters(ctx context.Context, start time.Time, q Question, route RouteDecision, compiled knowledge.CompiledContext, privileged bool) Response {
	out := e.cfg.Filters.Compile(ctx, q.Question, compiled.Prompt, privileged)

	resp := Response{
		Success:           out.Success,
		Filters:           &out,
		Visualizations:    []Visualization{},
		FollowUpQuestions: followUpsFor(ModeQuestion),
		Metadata: Metadata{
			ProcessingTimeMs:   time.Since(start).Milliseconds(),
			Mode:               ModeCompile,
			ModelTier:          TierFast,
			ContextTokens:      compiled.TokenEstimate,
			KnowledgeItemsUsed: len(compiled.KnowledgeIDs),
		},
	}
	if out.Success {
		resp.Answer = out.Reasoning
		if resp.Answer == "" {
			resp.Answer = "Filters applied."
		}
		runsTotal.WithLabelValues(ModeCompile, "success").Inc()
	} else {
		resp.Answer = "I couldn't turn that into filters. Try naming a field, an amount, or a state."
		resp.Error = out.Error
		runsTotal.WithLabelValues(ModeCompile, "degraded").Inc()
	}
	return resp
}

// incrementUsageOnce fires the knowledge usage update as a detached
// best-effort task. Failures are logged, never joined into the response.
func (e *Engine) incrementUsageOnce(ctx context.Context, ids []string) {
	if e.cfg.Usage == nil || len(ids) == 0 {
		return
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		if err := e.cfg.Usage.IncrementUsage(detached, ids); err != nil {
			e.cfg.Logger.WithFields(logging.Fields{
				"error": err.Error(),
				"items": len(ids),
			}).Warn("Knowledge usage update failed")
		}
	}()
}

func (e *Engine) providerFor(tier string) llm.Provider {
	if tier == TierFast && e.cfg.Fast != nil {
		return e.cfg.Fast
	}
	return e.cfg.Capable
}

func errorResponse(start time.Time, mode, answer, errMsg string) Response {
	return Response{
		Success:           false,
		Answer:            answer,
		Error:             errMsg,
		Visualizations:    []Visualization{},
		FollowUpQuestions: []FollowUp{},
		Metadata: Metadata{
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			Mode:             mode,
		},
	}
}

func orEmptyViz(viz []Visualization) []Visualization {
	if viz == nil {
		return []Visualization{}
	}
	return viz
}
