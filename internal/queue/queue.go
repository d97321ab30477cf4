// Package queue carries accepted bundle tasks from the API to the
// background workers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Item is one accepted bundle request awaiting a worker.
type Item struct {
	TaskID    uuid.UUID
	URL       string
	Submitted int64
}

// ErrClosed is returned once the queue has shut down.
var ErrClosed = errors.New("queue closed")

// Memory is a bounded in-memory queue with context-aware operations.
type Memory struct {
	ch     chan Item
	mu     sync.RWMutex
	closed bool
}

// NewMemory constructs a queue with the provided capacity.
func NewMemory(capacity int) *Memory {
	return &Memory{
		ch: make(chan Item, capacity),
	}
}

// Enqueue pushes a task into the queue, returning ErrClosed once the
// queue has shut down or an error if the context ends first. A full
// queue blocks rather than dropping tasks. The read lock is held
// across the send so Close cannot close the channel mid-send.
func (q *Memory) Enqueue(ctx context.Context, item Item) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation.
func (q *Memory) Dequeue(ctx context.Context) (Item, error) {
	select {
	case <-ctx.Done():
		return Item{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return Item{}, ErrClosed
		}
		return item, nil
	}
}

// Close shuts the queue down. Subsequent Enqueue calls return
// ErrClosed; buffered items stay readable via Dequeue while the
// caller's context lasts. Close waits for in-flight Enqueue calls to
// finish.
func (q *Memory) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
