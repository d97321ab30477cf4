package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewMemory(1)
	result := make(chan Item, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	taskID := uuid.New()
	require.NoError(t, q.Enqueue(context.Background(), Item{TaskID: taskID, URL: "https://example.com/"}))

	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, taskID, got.TaskID)
		require.Equal(t, "https://example.com/", got.URL)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return item")
	}
}

func TestCancellationErrors(t *testing.T) {
	t.Parallel()

	q := NewMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.Canceled)

	full := NewMemory(1)
	require.NoError(t, full.Enqueue(context.Background(), Item{TaskID: uuid.New()}))
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, full.Enqueue(ctx, Item{}), context.Canceled)
}

func TestEnqueueAfterClose(t *testing.T) {
	t.Parallel()

	q := NewMemory(1)
	q.Close()

	err := q.Enqueue(context.Background(), Item{TaskID: uuid.New(), URL: "https://example.com/"})
	require.ErrorIs(t, err, ErrClosed)
}

func TestDequeueAfterClose(t *testing.T) {
	t.Parallel()

	q := NewMemory(2)
	require.NoError(t, q.Enqueue(context.Background(), Item{URL: "https://example.com/a"}))
	q.Close()
	q.Close() // idempotent

	item, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://example.com/a", item.URL)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}
