package taskstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore provides an in-memory Store for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]Task
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[uuid.UUID]Task)}
}

// RecordStart inserts a new task in started status.
func (s *MemoryStore) RecordStart(_ context.Context, id uuid.UUID, url string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id] = Task{
		ID:        id,
		URL:       url,
		Status:    StatusStarted,
		StartedAt: startedAt,
	}
	return nil
}

// RecordSuccess marks a task done with its asset count.
func (s *MemoryStore) RecordSuccess(_ context.Context, id uuid.UUID, assetCount int, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	task.Status = StatusDone
	task.AssetCount = assetCount
	task.FinishedAt = &finishedAt
	s.tasks[id] = task
	return nil
}

// RecordFailure marks a task failed with an error message.
func (s *MemoryStore) RecordFailure(_ context.Context, id uuid.UUID, errMsg string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	task.Status = StatusFailed
	task.ErrorMessage = &errMsg
	task.FinishedAt = &finishedAt
	s.tasks[id] = task
	return nil
}

// GetTask fetches a task by ID.
func (s *MemoryStore) GetTask(_ context.Context, id uuid.UUID) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return task, nil
}

// ListTasks returns tasks newest-first, optionally filtered by status.
func (s *MemoryStore) ListTasks(_ context.Context, status *Status, limit, offset int) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if status != nil && task.Status != *status {
			continue
		}
		all = append(all, task)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].StartedAt.After(all[j].StartedAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	out := make([]Task, len(all))
	copy(out, all)
	return out, nil
}
