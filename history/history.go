// Package history persists run and task execution records so finished
// runs can be inspected after the fact. The engine treats every write
// as best effort: a failing history store is logged and counted, never
// allowed to abort a run.
package history

import (
	"context"
	"errors"
	"time"
)

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

const (
	// RunStatusRunning marks a run that has started and not yet finished.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted marks a run whose tasks all completed cleanly.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusDegraded marks a run where at least one task degraded.
	RunStatusDegraded RunStatus = "degraded"
	// RunStatusCancelled marks a run aborted by context cancellation.
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is the persisted record of one pipeline execution.
type Run struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Pipeline      string    `gorm:"size:200;index" json:"pipeline"`
	Inputs        string    `gorm:"type:text" json:"inputs,omitempty"` // JSON object of input variables
	Status        RunStatus `gorm:"size:20;index" json:"status"`
	TaskCount     int       `gorm:"default:0" json:"task_count"`
	DegradedCount int       `gorm:"default:0" json:"degraded_count"`
	TotalTokens   int       `gorm:"default:0" json:"total_tokens"`
	Output        string    `gorm:"type:text" json:"output,omitempty"` // final task output
	Error         string    `gorm:"type:text" json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Duration      int64     `gorm:"default:0" json:"duration_ms"` // milliseconds
}

// TaskExecution is the persisted record of one task within a run.
type TaskExecution struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID            string    `gorm:"size:36;index:idx_task_run" json:"run_id"`
	TaskID           string    `gorm:"size:200" json:"task_id"`
	Agent            string    `gorm:"size:200" json:"agent"`
	Seq              int       `gorm:"default:0" json:"seq"` // position in declared order
	State            string    `gorm:"size:20" json:"state"`
	Output           string    `gorm:"type:text" json:"output,omitempty"`
	Degraded         bool      `gorm:"default:false" json:"degraded"`
	DegradedReason   string    `gorm:"type:text" json:"degraded_reason,omitempty"`
	Iterations       int       `gorm:"default:0" json:"iterations"`
	ToolCalls        int       `gorm:"default:0" json:"tool_calls"`
	PromptTokens     int       `gorm:"default:0" json:"prompt_tokens"`
	CompletionTokens int       `gorm:"default:0" json:"completion_tokens"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Duration         int64     `gorm:"default:0" json:"duration_ms"` // milliseconds
}

// RunQuery filters ListRuns. Zero fields match everything.
type RunQuery struct {
	Pipeline string
	Status   RunStatus
	Limit    int
}

// ErrNotFound is returned when the requested run does not exist.
var ErrNotFound = errors.New("history: run not found")

// Store persists runs and their task executions.
//
// SaveRun upserts by run ID: the scheduler writes the run once when it
// starts and again when it reaches a terminal status. SaveTask appends
// one record per task, written at the task's terminal state.
type Store interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	SaveRun(ctx context.Context, run *Run) error
	SaveTask(ctx context.Context, task *TaskExecution) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, q RunQuery) ([]*Run, error)
	ListTasks(ctx context.Context, runID string) ([]*TaskExecution, error)
	Close() error
}
