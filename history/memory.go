package history

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps history in process memory. It backs tests and
// deployments that have no database configured.
type MemoryStore struct {
	mu    sync.RWMutex
	runs  map[string]Run
	tasks map[string][]TaskExecution
}

// NewMemoryStore creates an empty in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:  make(map[string]Run),
		tasks: make(map[string][]TaskExecution),
	}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) SaveRun(ctx context.Context, run *Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryStore) SaveTask(ctx context.Context, task *TaskExecution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *task
	t.ID = uint(len(s.tasks[task.RunID]) + 1)
	s.tasks[task.RunID] = append(s.tasks[task.RunID], t)
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &run, nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, q RunQuery) ([]*Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Run, 0, len(s.runs))
	for id := range s.runs {
		run := s.runs[id]
		if q.Pipeline != "" && run.Pipeline != q.Pipeline {
			continue
		}
		if q.Status != "" && run.Status != q.Status {
			continue
		}
		out = append(out, &run)
	}

	// Newest first, matching the SQL stores.
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) ListTasks(ctx context.Context, runID string) ([]*TaskExecution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.tasks[runID]
	out := make([]*TaskExecution, 0, len(stored))
	for i := range stored {
		t := stored[i]
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
