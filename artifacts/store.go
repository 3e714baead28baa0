package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore implements Store on the local filesystem. Each artifact
// gets a directory under basePath holding the raw data and a
// metadata.json; a top-level index.json makes listing cheap.
type FileStore struct {
	basePath string
	mu       sync.RWMutex
	index    map[string]*Artifact
}

// NewFileStore creates a file-backed artifact store rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create base path: %w", err)
	}

	store := &FileStore{
		basePath: basePath,
		index:    make(map[string]*Artifact),
	}
	if err := store.loadIndex(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *FileStore) Write(ctx context.Context, artifact *Artifact, data io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if artifact == nil || artifact.ID == "" {
		return fmt.Errorf("artifact id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := new(bytes.Buffer)
	size, err := io.Copy(buf, data)
	if err != nil {
		return fmt.Errorf("read data: %w", err)
	}

	dataBytes := buf.Bytes()
	hash := sha256.Sum256(dataBytes)
	artifact.Checksum = hex.EncodeToString(hash[:])
	artifact.Size = size
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now()
	}
	artifact.UpdatedAt = time.Now()

	artifactDir := filepath.Join(s.basePath, artifact.ID)
	if err := os.MkdirAll(artifactDir, 0755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	dataPath := filepath.Join(artifactDir, "data")
	if err := os.WriteFile(dataPath, dataBytes, 0644); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	artifact.StoragePath = dataPath

	metaPath := filepath.Join(artifactDir, "metadata.json")
	metaData, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, metaData, 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	s.index[artifact.ID] = artifact
	return s.saveIndex()
}

func (s *FileStore) Load(ctx context.Context, artifactID string) (*Artifact, io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	artifact, ok := s.index[artifactID]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, fmt.Errorf("artifact not found: %s", artifactID)
	}

	file, err := os.Open(artifact.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open data: %w", err)
	}
	return artifact, file, nil
}

func (s *FileStore) GetMetadata(ctx context.Context, artifactID string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	artifact, ok := s.index[artifactID]
	if !ok {
		return nil, fmt.Errorf("artifact not found: %s", artifactID)
	}
	return artifact, nil
}

func (s *FileStore) List(ctx context.Context, query Query) ([]*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*Artifact
	for _, artifact := range s.index {
		if !matchesQuery(artifact, query) {
			continue
		}
		results = append(results, artifact)
		if query.Limit > 0 && len(results) >= query.Limit {
			break
		}
	}
	return results, nil
}

func (s *FileStore) Delete(ctx context.Context, artifactID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	artifact, ok := s.index[artifactID]
	if !ok {
		return fmt.Errorf("artifact not found: %s", artifactID)
	}

	artifactDir := filepath.Dir(artifact.StoragePath)
	if err := os.RemoveAll(artifactDir); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}

	delete(s.index, artifactID)
	return s.saveIndex()
}

func matchesQuery(artifact *Artifact, query Query) bool {
	if query.RunID != "" && artifact.RunID != query.RunID {
		return false
	}
	if query.TaskID != "" && artifact.TaskID != query.TaskID {
		return false
	}
	if query.Degraded != nil && artifact.Degraded != *query.Degraded {
		return false
	}
	return true
}

func (s *FileStore) loadIndex() error {
	indexPath := filepath.Join(s.basePath, "index.json")
	data, err := os.ReadFile(indexPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	return json.Unmarshal(data, &s.index)
}

func (s *FileStore) saveIndex() error {
	indexPath := filepath.Join(s.basePath, "index.json")
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	return os.WriteFile(indexPath, data, 0644)
}
