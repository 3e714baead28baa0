package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/crewline/crewline/internal/ctxkeys"
	"github.com/crewline/crewline/llm"
	"github.com/crewline/crewline/llm/retry"
	"github.com/crewline/crewline/llm/tokenizer"
	"github.com/crewline/crewline/llm/tools"
)

// maxDegradedObservations caps how many trailing observations feed a
// degraded answer.
const maxDegradedObservations = 5

// ExecuteInput carries one fully substituted task into the loop.
type ExecuteInput struct {
	TaskID         string
	Description    string
	ExpectedOutput string

	// Context is the delimited blob of earlier task outputs. Empty
	// means the task starts from nothing but its description.
	Context string

	// RunDate anchors the prompt's notion of "today". Zero means now.
	RunDate time.Time

	// Cache is the run-scoped tool-result cache. Nil disables caching
	// regardless of the agent's CacheEnabled flag.
	Cache *llm.ToolCache
}

// Result is the terminal outcome of one task execution. A degraded
// result still carries a usable answer; Degraded and DegradedReason tell
// the scheduler to flag it for downstream consumers.
type Result struct {
	Output         string
	Degraded       bool
	DegradedReason string
	Iterations     int
	ToolCalls      []tools.ToolResult
	Usage          llm.ChatUsage
	Duration       time.Duration
}

// Execute runs the think/act loop for one task. It returns a Go error
// only when ctx is cancelled; every other failure folds into a
// (possibly degraded) Result.
func (a *Agent) Execute(ctx context.Context, in ExecuteInput) (*Result, error) {
	start := time.Now()
	runDate := in.RunDate
	if runDate.IsZero() {
		runDate = time.Now()
	}

	result := &Result{}
	ctx, span := otel.Tracer("crewline/agent").Start(ctx, "agent.execute",
		trace.WithAttributes(
			attribute.String("crewline.agent", a.role.Name),
			attribute.String("crewline.task_id", in.TaskID),
		),
	)
	defer func() {
		span.SetAttributes(
			attribute.Int("crewline.iterations", result.Iterations),
			attribute.Bool("crewline.degraded", result.Degraded),
		)
		span.End()
	}()

	schemas := a.toolSchemas()
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: buildSystemPrompt(a.role, schemas, runDate)},
		{Role: llm.RoleUser, Content: buildUserPrompt(in.Description, in.Context, in.ExpectedOutput)},
	}

	if a.verbose {
		tok := tokenizer.ForModel(a.model)
		estimate, _ := tok.CountMessages(tokenizerMessages(messages))
		a.logger.Info("task accepted",
			zap.String("task", in.TaskID),
			zap.Int("prompt_tokens_estimate", estimate),
			zap.Int("max_iterations", a.maxIterations),
			zap.Int("tools", len(schemas)))
	}

	clarified := false

	for iter := 1; iter <= a.maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Iterations = iter

		var msg llm.Message
		var err error
		messages, msg, err = a.think(ctx, in.TaskID, messages, schemas, &clarified, &result.Usage)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.degrade(result, fmt.Sprintf("backend failure: %v", err))
			return a.finish(result, in, start), nil
		}

		if len(msg.ToolCalls) == 0 {
			result.Output = msg.Content
			return a.finish(result, in, start), nil
		}

		// One action per round: keep only the first call and trim the
		// transcript message to match, so the tool reply below answers
		// exactly what the transcript asked.
		call := msg.ToolCalls[0]
		msg.ToolCalls = msg.ToolCalls[:1]

		if a.verbose {
			a.logger.Info("reasoning round",
				zap.String("task", in.TaskID),
				zap.Int("iteration", iter),
				zap.String("thought", snippet(msg.Content, 200)),
				zap.String("tool", call.Name))
		}

		toolResult := a.invokeTool(ctx, in.Cache, call)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.ToolCalls = append(result.ToolCalls, toolResult)
		messages = append(messages, msg, toolResult.ToMessage())
	}

	a.degrade(result, fmt.Sprintf("max iterations (%d) reached", a.maxIterations))
	return a.finish(result, in, start), nil
}

// think issues one completion and hands back a usable assistant message.
// The first unusable outcome of the task (backend error or a response
// with neither content nor tool calls) is retried once with a clarifying
// instruction appended; later failures return the error.
func (a *Agent) think(ctx context.Context, taskID string, messages []llm.Message, schemas []llm.ToolSchema, clarified *bool, usage *llm.ChatUsage) ([]llm.Message, llm.Message, error) {
	for {
		req := &llm.ChatRequest{
			TraceID:     a.traceID(ctx, taskID),
			Model:       a.model,
			Messages:    messages,
			Tools:       schemas,
			Temperature: a.temperature,
			MaxTokens:   a.maxTokens,
		}

		callStart := time.Now()
		resp, err := a.provider.Completion(ctx, req)
		latency := time.Since(callStart)

		if err == nil {
			usage.Add(resp.Usage)
			if msg, ok := resp.First(); ok && (msg.Content != "" || len(msg.ToolCalls) > 0) {
				a.metrics.RecordLLMRequest(a.provider.Name(), resp.Model, "success", latency,
					resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
				return messages, msg, nil
			}
			err = llm.NewError(llm.ErrMalformedResponse, "response carried no usable content").
				WithProvider(a.provider.Name())
		}
		a.metrics.RecordLLMRequest(a.provider.Name(), a.model, "error", latency, 0, 0)

		if ctx.Err() != nil {
			return messages, llm.Message{}, ctx.Err()
		}
		if *clarified {
			return messages, llm.Message{}, err
		}

		*clarified = true
		a.logger.Warn("backend failure, retrying once with clarification",
			zap.String("task", taskID), zap.Error(err))
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: clarifyInstruction})
		if serr := retry.Sleep(ctx, a.retryPolicy.Delay(1)); serr != nil {
			return messages, llm.Message{}, serr
		}
	}
}

// invokeTool dispatches one call, consulting the run-scoped cache first
// and storing successful results back. All failures come back inside
// ToolResult.Error.
func (a *Agent) invokeTool(ctx context.Context, cache *llm.ToolCache, call llm.ToolCall) tools.ToolResult {
	if a.executor == nil {
		return tools.ToolResult{
			ToolCallID: call.ID,
			Name:       call.Name,
			Error:      fmt.Sprintf("tool not found: %s (agent has no tools configured)", call.Name),
		}
	}

	ctx, span := otel.Tracer("crewline/agent").Start(ctx, "agent.tool",
		trace.WithAttributes(attribute.String("crewline.tool", call.Name)))
	defer span.End()

	useCache := a.cacheEnabled && cache != nil
	var key string
	if useCache {
		key = llm.ToolCallKey(call.Name, call.Arguments)
		if entry, err := cache.Get(ctx, key); err == nil {
			a.metrics.RecordCacheHit("tool_result")
			a.metrics.RecordToolInvocation(call.Name, "cached", 0)
			a.logger.Debug("tool cache hit", zap.String("tool", call.Name))
			span.SetAttributes(attribute.Bool("crewline.cached", true))
			return tools.ToolResult{
				ToolCallID: call.ID,
				Name:       call.Name,
				Result:     entry.Result,
				Cached:     true,
			}
		}
		a.metrics.RecordCacheMiss("tool_result")
	}

	res := a.executor.ExecuteOne(ctx, call)
	status := "ok"
	if res.Error != "" {
		status = "error"
	}
	span.SetAttributes(attribute.String("crewline.status", status))
	a.metrics.RecordToolInvocation(call.Name, status, res.Duration)

	// Only successful results are worth replaying.
	if useCache && res.Error == "" {
		if err := cache.Set(ctx, key, res.Result); err != nil {
			a.logger.Warn("tool cache write failed", zap.String("tool", call.Name), zap.Error(err))
		}
	}
	return res
}

// degrade fills the result with a synthesized answer built from the
// observations gathered so far plus an explicit failure note.
func (a *Agent) degrade(result *Result, reason string) {
	result.Degraded = true
	result.DegradedReason = reason
	result.Output = degradedAnswer(reason, result.ToolCalls)
}

func degradedAnswer(reason string, results []tools.ToolResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Unable to fully complete the task: %s.\n", reason)

	if len(results) == 0 {
		b.WriteString("No tool observations were collected before the failure.")
		return b.String()
	}

	b.WriteString("Best-effort summary from the observations gathered so far:\n")
	start := 0
	if len(results) > maxDegradedObservations {
		start = len(results) - maxDegradedObservations
	}
	for _, r := range results[start:] {
		fmt.Fprintf(&b, "- %s\n", snippet(r.Observation(), 500))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *Agent) finish(result *Result, in ExecuteInput, start time.Time) *Result {
	result.Duration = time.Since(start)

	state := "completed"
	if result.Degraded {
		state = "degraded"
	}
	a.metrics.RecordTask(a.role.Name, state, result.Duration, result.Iterations)

	if result.Degraded {
		a.logger.Warn("task degraded",
			zap.String("task", in.TaskID),
			zap.String("reason", result.DegradedReason),
			zap.Int("iterations", result.Iterations),
			zap.Int("tool_calls", len(result.ToolCalls)))
	} else if a.verbose {
		a.logger.Info("task completed",
			zap.String("task", in.TaskID),
			zap.Int("iterations", result.Iterations),
			zap.Int("tool_calls", len(result.ToolCalls)),
			zap.Int("total_tokens", result.Usage.TotalTokens),
			zap.Duration("duration", result.Duration))
	}
	return result
}

// traceID stitches the run and task identity into one id for upstream
// request logs.
func (a *Agent) traceID(ctx context.Context, taskID string) string {
	if runID, ok := ctxkeys.RunID(ctx); ok {
		return runID + "/" + taskID
	}
	return taskID
}

func snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func tokenizerMessages(msgs []llm.Message) []tokenizer.Message {
	out := make([]tokenizer.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, tokenizer.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}
