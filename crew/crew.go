package crew

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/crewline/crewline/agent"
	"github.com/crewline/crewline/artifacts"
	"github.com/crewline/crewline/history"
	"github.com/crewline/crewline/internal/ctxkeys"
	"github.com/crewline/crewline/internal/metrics"
	"github.com/crewline/crewline/llm"
	"github.com/crewline/crewline/types"
)

// StepCallback is invoked after each task reaches a terminal state.
type StepCallback func(TaskResult)

// Config assembles a Crew.
type Config struct {
	// Name labels the pipeline in logs, history and metrics.
	Name string

	// Tasks execute in declared order.
	Tasks []*Task

	// StepCallback fires after every task. Optional.
	StepCallback StepCallback

	// History persists run and task records. Optional; write failures
	// never abort a run.
	History history.Store

	// Redis backs the distributed layer of the run-scoped tool cache.
	// Optional; the local in-process layer works without it.
	Redis *redis.Client

	// CacheConfig tunes the run-scoped tool cache. Nil uses defaults.
	CacheConfig *llm.ToolCacheConfig

	// ContextMaxTokens bounds each assembled context blob. Zero
	// disables truncation.
	ContextMaxTokens int

	// Metrics receives run, task, sink and history counters. Optional.
	Metrics *metrics.Collector

	Logger *zap.Logger
}

// Crew executes a fixed task list in declared order.
type Crew struct {
	name          string
	tasks         []*Task
	stepCallback  StepCallback
	history       history.Store
	redis         *redis.Client
	cacheCfg      *llm.ToolCacheConfig
	contextBudget int
	metrics       *metrics.Collector
	logger        *zap.Logger
}

// New validates the task list and builds a Crew. Validation failures
// are configuration errors: duplicate or empty task ids, tasks without
// an agent or description, and context references that do not name an
// earlier task.
func New(cfg Config) (*Crew, error) {
	if cfg.Name == "" {
		cfg.Name = "crew"
	}
	if len(cfg.Tasks) == 0 {
		return nil, types.NewConfigError("a crew needs at least one task")
	}

	declared := make(map[string]struct{}, len(cfg.Tasks))
	for i, t := range cfg.Tasks {
		if t == nil {
			return nil, types.NewConfigError("task at position %d is nil", i)
		}
		if t.ID == "" {
			return nil, types.NewConfigError("task at position %d has no id", i)
		}
		if _, dup := declared[t.ID]; dup {
			return nil, types.NewConfigError("duplicate task id %q", t.ID).WithTask(t.ID)
		}
		if t.Agent == nil {
			return nil, types.NewConfigError("task %q has no agent", t.ID).WithTask(t.ID)
		}
		if strings.TrimSpace(t.Description) == "" {
			return nil, types.NewConfigError("task %q has no description", t.ID).WithTask(t.ID)
		}

		for _, ref := range t.Context {
			if _, ok := declared[ref]; ok {
				continue
			}
			if ref == t.ID {
				return nil, types.NewConfigError("task %q lists itself in context", t.ID).WithTask(t.ID)
			}
			if declaredLater(cfg.Tasks[i+1:], ref) {
				return nil, types.NewConfigError(
					"task %q context references %q, which runs later; context may only name earlier tasks",
					t.ID, ref).WithTask(t.ID)
			}
			return nil, types.NewConfigError("task %q context references unknown task %q", t.ID, ref).WithTask(t.ID)
		}

		declared[t.ID] = struct{}{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Crew{
		name:          cfg.Name,
		tasks:         cfg.Tasks,
		stepCallback:  cfg.StepCallback,
		history:       cfg.History,
		redis:         cfg.Redis,
		cacheCfg:      cfg.CacheConfig,
		contextBudget: cfg.ContextMaxTokens,
		metrics:       cfg.Metrics,
		logger:        logger.With(zap.String("component", "crew"), zap.String("pipeline", cfg.Name)),
	}, nil
}

// Name returns the pipeline name.
func (c *Crew) Name() string { return c.name }

// Tasks returns the declared task list.
func (c *Crew) Tasks() []*Task { return c.tasks }

// Run substitutes inputs into every task template, then executes the
// tasks in declared order. It returns an error only for pre-run
// validation failures (unbound placeholders) and context cancellation;
// every in-flight failure degrades the affected task instead.
func (c *Crew) Run(ctx context.Context, inputs map[string]string) (*RunResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = ctxkeys.WithRunID(ctx, runID)
	logger := c.logger.With(zap.String("run", runID))

	tracer := otel.Tracer("crewline/crew")
	ctx, span := tracer.Start(ctx, "crew.run",
		trace.WithAttributes(
			attribute.String("crewline.pipeline", c.name),
			attribute.String("crewline.run_id", runID),
			attribute.Int("crewline.task_count", len(c.tasks)),
		),
	)
	defer span.End()

	rendered, err := c.renderAll(inputs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Info("run started",
		zap.Int("tasks", len(c.tasks)),
		zap.Int("inputs", len(inputs)))

	runRecord := &history.Run{
		ID:        runID,
		Pipeline:  c.name,
		Inputs:    marshalInputs(inputs),
		Status:    history.RunStatusRunning,
		TaskCount: len(c.tasks),
		StartedAt: start,
	}
	c.writeRun(ctx, runRecord)

	cache := llm.NewToolCache(runID, c.redis, c.cacheCfg, logger)

	result := &RunResult{
		RunID:    runID,
		Pipeline: c.name,
		Tasks:    make([]TaskResult, 0, len(c.tasks)),
	}
	byID := make(map[string]TaskResult, len(c.tasks))

	for seq, task := range c.tasks {
		if err := ctx.Err(); err != nil {
			c.markCancelled(runRecord, result, start, err)
			return nil, err
		}

		entries := make([]ContextEntry, 0, len(task.Context))
		for _, ref := range task.Context {
			prior := byID[ref]
			entries = append(entries, ContextEntry{
				TaskID:   ref,
				Output:   prior.Output,
				Degraded: prior.Degraded,
			})
		}
		blob := BuildContextBlob(entries)
		if fitted, truncated := fitContextBlob(blob, task.Agent.Model(), c.contextBudget); truncated {
			logger.Warn("context blob truncated",
				zap.String("task", task.ID),
				zap.Int("budget_tokens", c.contextBudget))
			blob = fitted
		}

		logger.Info("task started",
			zap.String("task", task.ID),
			zap.String("agent", task.Agent.Name()),
			zap.Int("seq", seq),
			zap.Int("context_tasks", len(entries)))

		taskCtx, taskSpan := tracer.Start(ctx, "crew.task",
			trace.WithAttributes(
				attribute.String("crewline.task_id", task.ID),
				attribute.String("crewline.agent", task.Agent.Name()),
				attribute.Int("crewline.seq", seq),
			),
		)

		taskStart := time.Now()
		res, execErr := task.Agent.Execute(ctxkeys.WithTaskID(taskCtx, task.ID), agent.ExecuteInput{
			TaskID:         task.ID,
			Description:    rendered[task.ID].description,
			ExpectedOutput: rendered[task.ID].expectedOutput,
			Context:        blob,
			RunDate:        start,
			Cache:          cache,
		})
		if execErr != nil {
			// Only context cancellation surfaces here.
			taskSpan.RecordError(execErr)
			taskSpan.End()
			c.markCancelled(runRecord, result, start, execErr)
			return nil, execErr
		}

		state := TaskStateCompleted
		if res.Degraded {
			state = TaskStateDegraded
			result.Degraded = true
		}
		taskSpan.SetAttributes(
			attribute.String("crewline.state", string(state)),
			attribute.Int("crewline.iterations", res.Iterations),
			attribute.Int("crewline.tool_calls", len(res.ToolCalls)),
		)
		taskSpan.End()

		tr := TaskResult{
			TaskID:         task.ID,
			Agent:          task.Agent.Name(),
			Seq:            seq,
			State:          state,
			Output:         res.Output,
			Degraded:       res.Degraded,
			DegradedReason: res.DegradedReason,
			Iterations:     res.Iterations,
			ToolCalls:      len(res.ToolCalls),
			Usage:          res.Usage,
			StartedAt:      taskStart,
			FinishedAt:     taskStart.Add(res.Duration),
			Duration:       res.Duration,
		}
		result.Usage.Add(res.Usage)

		c.writeSink(ctx, task, &tr, runID)
		c.writeTask(ctx, runID, &tr)

		result.Tasks = append(result.Tasks, tr)
		byID[task.ID] = tr

		logger.Info("task finished",
			zap.String("task", task.ID),
			zap.String("state", string(state)),
			zap.Int("iterations", tr.Iterations),
			zap.Duration("duration", tr.Duration))

		if c.stepCallback != nil {
			c.stepCallback(tr)
		}
	}

	result.Duration = time.Since(start)
	if n := len(result.Tasks); n > 0 {
		result.Output = result.Tasks[n-1].Output
	}

	status := history.RunStatusCompleted
	if result.Degraded {
		status = history.RunStatusDegraded
	}
	span.SetAttributes(
		attribute.String("crewline.status", string(status)),
		attribute.Int("crewline.total_tokens", result.Usage.TotalTokens),
	)
	c.finishRunRecord(ctx, runRecord, result, status, "")
	c.metrics.RecordRun(string(status), result.Duration)

	logger.Info("run finished",
		zap.String("status", string(status)),
		zap.Int("total_tokens", result.Usage.TotalTokens),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// renderedTask holds one task's templates after input substitution.
type renderedTask struct {
	description    string
	expectedOutput string
}

// renderAll substitutes inputs into every task before anything runs, so
// an unbound placeholder in the last task aborts the run before the
// first task spends tokens.
func (c *Crew) renderAll(inputs map[string]string) (map[string]renderedTask, error) {
	rendered := make(map[string]renderedTask, len(c.tasks))
	for _, t := range c.tasks {
		desc, err := Substitute(t.Description, t.ID, inputs)
		if err != nil {
			return nil, err
		}
		exp, err := Substitute(t.ExpectedOutput, t.ID, inputs)
		if err != nil {
			return nil, err
		}
		rendered[t.ID] = renderedTask{description: desc, expectedOutput: exp}
	}
	return rendered, nil
}

// markCancelled records a cancelled run. The original context is dead,
// so the terminal write uses a short detached one.
func (c *Crew) markCancelled(runRecord *history.Run, result *RunResult, start time.Time, cause error) {
	result.Duration = time.Since(start)

	dctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.finishRunRecord(dctx, runRecord, result, history.RunStatusCancelled, cause.Error())
	c.metrics.RecordRun(string(history.RunStatusCancelled), result.Duration)

	c.logger.Warn("run cancelled",
		zap.String("run", runRecord.ID),
		zap.Int("tasks_finished", len(result.Tasks)),
		zap.Error(cause))
}

func (c *Crew) finishRunRecord(ctx context.Context, runRecord *history.Run, result *RunResult, status history.RunStatus, errMsg string) {
	runRecord.Status = status
	runRecord.FinishedAt = time.Now()
	runRecord.Duration = result.Duration.Milliseconds()
	runRecord.TotalTokens = result.Usage.TotalTokens
	runRecord.Output = result.Output
	runRecord.Error = errMsg
	runRecord.DegradedCount = 0
	for _, tr := range result.Tasks {
		if tr.Degraded {
			runRecord.DegradedCount++
		}
	}
	c.writeRun(ctx, runRecord)
}

func (c *Crew) writeRun(ctx context.Context, run *history.Run) {
	if c.history == nil {
		return
	}
	if err := c.history.SaveRun(ctx, run); err != nil {
		c.metrics.RecordHistoryWrite(c.history.Name(), "error")
		c.logger.Warn("history run write failed", zap.String("run", run.ID), zap.Error(err))
		return
	}
	c.metrics.RecordHistoryWrite(c.history.Name(), "ok")
}

func (c *Crew) writeTask(ctx context.Context, runID string, tr *TaskResult) {
	if c.history == nil {
		return
	}
	rec := &history.TaskExecution{
		RunID:            runID,
		TaskID:           tr.TaskID,
		Agent:            tr.Agent,
		Seq:              tr.Seq,
		State:            string(tr.State),
		Output:           tr.Output,
		Degraded:         tr.Degraded,
		DegradedReason:   tr.DegradedReason,
		Iterations:       tr.Iterations,
		ToolCalls:        tr.ToolCalls,
		PromptTokens:     tr.Usage.PromptTokens,
		CompletionTokens: tr.Usage.CompletionTokens,
		StartedAt:        tr.StartedAt,
		FinishedAt:       tr.FinishedAt,
		Duration:         tr.Duration.Milliseconds(),
	}
	if err := c.history.SaveTask(ctx, rec); err != nil {
		c.metrics.RecordHistoryWrite(c.history.Name(), "error")
		c.logger.Warn("history task write failed",
			zap.String("run", runID), zap.String("task", tr.TaskID), zap.Error(err))
		return
	}
	c.metrics.RecordHistoryWrite(c.history.Name(), "ok")
}

// writeSink delivers the task output to its sink. Failures are recorded
// on the TaskResult and in metrics, never propagated.
func (c *Crew) writeSink(ctx context.Context, task *Task, tr *TaskResult, runID string) {
	if task.Sink == nil {
		return
	}

	art := &artifacts.Artifact{
		ID:        uuid.NewString(),
		RunID:     runID,
		TaskID:    task.ID,
		Agent:     tr.Agent,
		Name:      task.ID,
		MimeType:  "text/plain; charset=utf-8",
		Degraded:  tr.Degraded,
		CreatedAt: time.Now(),
	}
	if err := task.Sink.Write(ctx, art, strings.NewReader(tr.Output)); err != nil {
		tr.SinkError = err
		c.metrics.RecordSinkWrite("error")
		c.logger.Warn("sink write failed", zap.String("task", task.ID), zap.Error(err))
		return
	}
	c.metrics.RecordSinkWrite("ok")
}

func declaredLater(rest []*Task, ref string) bool {
	for _, t := range rest {
		if t != nil && t.ID == ref {
			return true
		}
	}
	return false
}

func marshalInputs(inputs map[string]string) string {
	if len(inputs) == 0 {
		return ""
	}
	data, err := json.Marshal(inputs)
	if err != nil {
		return ""
	}
	return string(data)
}
