package crew

import (
	"time"

	"github.com/crewline/crewline/agent"
	"github.com/crewline/crewline/artifacts"
	"github.com/crewline/crewline/llm"
)

// TaskState is the lifecycle state of a task within a run.
type TaskState string

const (
	// TaskStatePending marks a task that has not started yet.
	TaskStatePending TaskState = "pending"
	// TaskStateRunning marks the task currently executing.
	TaskStateRunning TaskState = "running"
	// TaskStateCompleted marks a task that produced a clean answer.
	TaskStateCompleted TaskState = "completed"
	// TaskStateDegraded marks a task that finished with a best-effort
	// answer after a failure or budget exhaustion. There is no failed
	// state: a degraded task still yields output for downstream tasks.
	TaskStateDegraded TaskState = "degraded"
)

// Task is one unit of work assigned to an agent.
type Task struct {
	// ID names the task. Downstream tasks reference it in Context.
	ID string

	// Description is the work order, possibly containing {{variable}}
	// placeholders bound at run time.
	Description string

	// ExpectedOutput describes the deliverable. Same template rules as
	// Description. Optional.
	ExpectedOutput string

	// Agent executes the task.
	Agent *agent.Agent

	// Context names earlier tasks whose outputs this task consumes.
	// Only tasks declared before this one may appear.
	Context []string

	// Sink receives the task's final output. Optional; write failures
	// never abort the run.
	Sink artifacts.Sink
}

// TaskResult is the terminal record of one task execution.
type TaskResult struct {
	TaskID         string        `json:"task_id"`
	Agent          string        `json:"agent"`
	Seq            int           `json:"seq"`
	State          TaskState     `json:"state"`
	Output         string        `json:"output"`
	Degraded       bool          `json:"degraded"`
	DegradedReason string        `json:"degraded_reason,omitempty"`
	Iterations     int           `json:"iterations"`
	ToolCalls      int           `json:"tool_calls"`
	Usage          llm.ChatUsage `json:"usage"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	Duration       time.Duration `json:"duration"`

	// SinkError carries a failed artifact write. Informational only.
	SinkError error `json:"-"`
}

// RunResult is the outcome of one full pipeline execution.
type RunResult struct {
	RunID    string        `json:"run_id"`
	Pipeline string        `json:"pipeline"`
	Tasks    []TaskResult  `json:"tasks"`
	Output   string        `json:"output"` // final task's output
	Degraded bool          `json:"degraded"`
	Usage    llm.ChatUsage `json:"usage"`
	Duration time.Duration `json:"duration"`
}

// Result returns the task result by id, or nil.
func (r *RunResult) Result(taskID string) *TaskResult {
	for i := range r.Tasks {
		if r.Tasks[i].TaskID == taskID {
			return &r.Tasks[i]
		}
	}
	return nil
}
