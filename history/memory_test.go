package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun(id string, status RunStatus, startedAt time.Time) *Run {
	return &Run{
		ID:        id,
		Pipeline:  "equity-research",
		Inputs:    `{"stock":"RELIANCE"}`,
		Status:    status,
		StartedAt: startedAt,
	}
}

func TestMemoryStore_SaveRunUpserts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	run := sampleRun("run-1", RunStatusRunning, time.Now())
	require.NoError(t, store.SaveRun(ctx, run))

	run.Status = RunStatusCompleted
	run.TaskCount = 4
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, got.Status)
	assert.Equal(t, 4, got.TaskCount)

	all, err := store.ListRuns(ctx, RunQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryStore_GetRunNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListRunsFiltersAndOrders(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, store.SaveRun(ctx, sampleRun("run-1", RunStatusCompleted, base.Add(-2*time.Hour))))
	require.NoError(t, store.SaveRun(ctx, sampleRun("run-2", RunStatusDegraded, base.Add(-time.Hour))))
	require.NoError(t, store.SaveRun(ctx, sampleRun("run-3", RunStatusCompleted, base)))

	other := sampleRun("run-4", RunStatusCompleted, base)
	other.Pipeline = "other-pipeline"
	require.NoError(t, store.SaveRun(ctx, other))

	runs, err := store.ListRuns(ctx, RunQuery{Pipeline: "equity-research"})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-1", runs[2].ID)

	degraded, err := store.ListRuns(ctx, RunQuery{Status: RunStatusDegraded})
	require.NoError(t, err)
	require.Len(t, degraded, 1)
	assert.Equal(t, "run-2", degraded[0].ID)

	limited, err := store.ListRuns(ctx, RunQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMemoryStore_ListTasksOrderedBySeq(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.SaveTask(ctx, &TaskExecution{RunID: "run-1", TaskID: "news", Seq: 1}))
	require.NoError(t, store.SaveTask(ctx, &TaskExecution{RunID: "run-1", TaskID: "financials", Seq: 0}))
	require.NoError(t, store.SaveTask(ctx, &TaskExecution{RunID: "run-1", TaskID: "analysis", Seq: 2, Degraded: true}))
	require.NoError(t, store.SaveTask(ctx, &TaskExecution{RunID: "run-2", TaskID: "unrelated", Seq: 0}))

	tasks, err := store.ListTasks(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "financials", tasks[0].TaskID)
	assert.Equal(t, "news", tasks[1].TaskID)
	assert.Equal(t, "analysis", tasks[2].TaskID)
	assert.True(t, tasks[2].Degraded)
}

func TestMemoryStore_CopiesAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	run := sampleRun("run-1", RunStatusRunning, time.Now())
	require.NoError(t, store.SaveRun(ctx, run))

	// Mutating the caller's struct after saving must not leak in.
	run.Status = RunStatusCancelled

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, got.Status)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, store.SaveRun(ctx, sampleRun("run-1", RunStatusRunning, time.Now())))
	_, err := store.ListRuns(ctx, RunQuery{})
	assert.Error(t, err)
}
