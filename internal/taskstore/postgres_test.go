package taskstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_RecordStartInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithQuerier(mock)
	id := uuid.New()
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO tasks").
		WithArgs(id, "https://example.com", StatusStarted, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordStart(context.Background(), id, "https://example.com", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordSuccessUpdatesRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithQuerier(mock)
	id := uuid.New()
	now := time.Unix(1700000100, 0).UTC()

	mock.ExpectExec("UPDATE tasks").
		WithArgs(StatusDone, 4, now, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.RecordSuccess(context.Background(), id, 4, now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordSuccessMissingRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithQuerier(mock)
	id := uuid.New()
	now := time.Unix(1700000100, 0).UTC()

	mock.ExpectExec("UPDATE tasks").
		WithArgs(StatusDone, 0, now, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.RecordSuccess(context.Background(), id, 0, now)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordFailureUpdatesRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithQuerier(mock)
	id := uuid.New()
	now := time.Unix(1700000200, 0).UTC()

	mock.ExpectExec("UPDATE tasks").
		WithArgs(StatusFailed, "render failed", now, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.RecordFailure(context.Background(), id, "render failed", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetTask(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithQuerier(mock)
	id := uuid.New()
	started := time.Unix(1700000000, 0).UTC()
	finished := time.Unix(1700000300, 0).UTC()

	rows := pgxmock.NewRows([]string{
		"id", "url", "status", "asset_count", "error_message", "started_at", "finished_at",
	}).AddRow(id, "https://example.com", StatusDone, 3, (*string)(nil), started, &finished)

	mock.ExpectQuery("SELECT id, url, status").
		WithArgs(id).
		WillReturnRows(rows)

	task, err := store.GetTask(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, task.ID)
	require.Equal(t, StatusDone, task.Status)
	require.Equal(t, 3, task.AssetCount)
	require.Nil(t, task.ErrorMessage)
	require.Equal(t, &finished, task.FinishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetTaskNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithQuerier(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, url, status").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "url", "status", "asset_count", "error_message", "started_at", "finished_at",
		}))

	_, err = store.GetTask(context.Background(), id)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListTasksWithFilter(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithQuerier(mock)
	first := uuid.New()
	second := uuid.New()
	started := time.Unix(1700000000, 0).UTC()

	status := StatusFailed
	msg := "timeout"
	rows := pgxmock.NewRows([]string{
		"id", "url", "status", "asset_count", "error_message", "started_at", "finished_at",
	}).
		AddRow(first, "https://a.example.com", StatusFailed, 0, &msg, started, (*time.Time)(nil)).
		AddRow(second, "https://b.example.com", StatusFailed, 0, &msg, started, (*time.Time)(nil))

	mock.ExpectQuery("SELECT id, url, status").
		WithArgs(&status, 10, 0).
		WillReturnRows(rows)

	tasks, err := store.ListTasks(context.Background(), &status, 10, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, first, tasks[0].ID)
	require.Equal(t, &msg, tasks[0].ErrorMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}
