package taskstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	id := uuid.New()
	started := time.Unix(100, 0).UTC()
	finished := time.Unix(200, 0).UTC()

	require.NoError(t, store.RecordStart(ctx, id, "https://example.com", started))

	task, err := store.GetTask(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusStarted, task.Status)
	require.Equal(t, "https://example.com", task.URL)
	require.Nil(t, task.FinishedAt)

	require.NoError(t, store.RecordSuccess(ctx, id, 5, finished))

	task, err = store.GetTask(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusDone, task.Status)
	require.Equal(t, 5, task.AssetCount)
	require.Equal(t, &finished, task.FinishedAt)
}

func TestMemoryStore_RecordFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	id := uuid.New()

	require.NoError(t, store.RecordStart(ctx, id, "https://example.com", time.Unix(100, 0)))
	require.NoError(t, store.RecordFailure(ctx, id, "render failed", time.Unix(150, 0)))

	task, err := store.GetTask(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, task.Status)
	require.NotNil(t, task.ErrorMessage)
	require.Equal(t, "render failed", *task.ErrorMessage)
}

func TestMemoryStore_UnknownTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.GetTask(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.RecordSuccess(ctx, uuid.New(), 1, time.Now()), ErrNotFound)
	require.ErrorIs(t, store.RecordFailure(ctx, uuid.New(), "x", time.Now()), ErrNotFound)
}

func TestMemoryStore_ListTasksFilterAndPaging(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	ids := make([]uuid.UUID, 4)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, store.RecordStart(ctx, ids[i], "https://example.com", time.Unix(int64(100+i), 0)))
	}
	require.NoError(t, store.RecordSuccess(ctx, ids[1], 2, time.Unix(300, 0)))
	require.NoError(t, store.RecordFailure(ctx, ids[2], "boom", time.Unix(300, 0)))

	all, err := store.ListTasks(ctx, nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	// Newest first.
	require.Equal(t, ids[3], all[0].ID)

	failed := StatusFailed
	got, err := store.ListTasks(ctx, &failed, 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, ids[2], got[0].ID)

	page, err := store.ListTasks(ctx, nil, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)

	empty, err := store.ListTasks(ctx, nil, 2, 10)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]Status{
		"started": StatusStarted,
		"running": StatusStarted,
		"done":    StatusDone,
		"success": StatusDone,
		"failed":  StatusFailed,
		"error":   StatusFailed,
	} {
		got, err := ParseStatus(input)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ParseStatus("bogus")
	require.Error(t, err)
}
