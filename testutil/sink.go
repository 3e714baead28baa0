package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/crewline/crewline/artifacts"
)

// SinkWrite captures one artifact written to a RecordingSink.
type SinkWrite struct {
	Artifact artifacts.Artifact
	Content  string
}

// RecordingSink is an in-memory artifacts.Sink for tests. It can be
// told to fail to exercise the non-fatal sink policy.
type RecordingSink struct {
	mu     sync.Mutex
	writes []SinkWrite
	err    error
}

// NewRecordingSink creates an empty recording sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// FailWith makes every subsequent Write return err.
func (s *RecordingSink) FailWith(err error) *RecordingSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

func (s *RecordingSink) Write(ctx context.Context, artifact *artifacts.Artifact, data io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	content, err := io.ReadAll(data)
	if err != nil {
		return err
	}

	write := SinkWrite{Content: string(content)}
	if artifact != nil {
		write.Artifact = *artifact
	}
	s.writes = append(s.writes, write)
	return nil
}

// Writes returns all captured writes.
func (s *RecordingSink) Writes() []SinkWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SinkWrite(nil), s.writes...)
}

// Len returns the number of captured writes.
func (s *RecordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}
