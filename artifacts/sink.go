// Package artifacts persists task outputs. A Sink receives the final
// output of a task once it reaches a terminal state; sink failures are
// reported to the caller but never abort a run.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Artifact describes one persisted task output.
type Artifact struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id,omitempty"`
	TaskID      string    `json:"task_id"`
	Agent       string    `json:"agent,omitempty"`
	Name        string    `json:"name"`
	MimeType    string    `json:"mime_type,omitempty"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum,omitempty"`
	StoragePath string    `json:"storage_path,omitempty"`
	Degraded    bool      `json:"degraded,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Sink receives task outputs.
type Sink interface {
	Write(ctx context.Context, artifact *Artifact, data io.Reader) error
}

// Store extends Sink with retrieval and lifecycle operations.
type Store interface {
	Sink
	Load(ctx context.Context, artifactID string) (*Artifact, io.ReadCloser, error)
	GetMetadata(ctx context.Context, artifactID string) (*Artifact, error)
	List(ctx context.Context, query Query) ([]*Artifact, error)
	Delete(ctx context.Context, artifactID string) error
}

// Query filters List results. Zero fields match everything.
type Query struct {
	RunID    string `json:"run_id,omitempty"`
	TaskID   string `json:"task_id,omitempty"`
	Degraded *bool  `json:"degraded,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// FileSink writes each task output to a single fixed file, overwriting
// previous contents. It is the simplest sink: point a task at
// "recommendation.md" and read the file after the run.
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink creates a sink writing to path. Parent directories are
// created on first write.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Path returns the sink's target file.
func (s *FileSink) Path() string { return s.path }

func (s *FileSink) Write(ctx context.Context, artifact *Artifact, data io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create sink dir: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open sink file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, data)
	if err != nil {
		return fmt.Errorf("write sink file: %w", err)
	}
	if artifact != nil {
		artifact.Size = size
		artifact.StoragePath = s.path
		artifact.UpdatedAt = time.Now()
	}
	return nil
}
