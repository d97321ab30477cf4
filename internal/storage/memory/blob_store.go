// Package memory implements an in-memory blob store for tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// BlobStore keeps archives in a map.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New creates an empty in-memory blob store.
func New() *BlobStore {
	return &BlobStore{objects: make(map[string][]byte)}
}

// PutObject stores a copy of data and returns a mem:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = append([]byte(nil), data...)
	return "mem://" + path, nil
}

// Get returns the stored bytes for path.
func (s *BlobStore) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[path]
	return data, ok
}

// Len reports how many objects are stored.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
