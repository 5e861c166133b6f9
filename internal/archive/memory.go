package archive

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore keeps snapshots in memory. Intended for development and
// tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// PutObject copies the content and returns a memory:// URI.
func (s *MemoryStore) PutObject(_ context.Context, objectPath string, _ string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read data: %w", err)
	}

	s.mu.Lock()
	s.data[objectPath] = append([]byte(nil), data...)
	s.mu.Unlock()

	return "memory://" + objectPath, nil
}

// Object returns the stored content for a path.
func (s *MemoryStore) Object(objectPath string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[objectPath]
	return data, ok
}

// Len reports how many objects are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
