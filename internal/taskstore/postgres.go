package taskstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgxpool.Pool the store needs; it lets tests
// substitute a mock pool.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using Postgres.
//
// Expected schema:
//
//	CREATE TABLE tasks (
//	    id UUID PRIMARY KEY,
//	    url TEXT NOT NULL,
//	    status TEXT NOT NULL,
//	    asset_count INT NOT NULL DEFAULT 0,
//	    error_message TEXT,
//	    started_at TIMESTAMPTZ NOT NULL,
//	    finished_at TIMESTAMPTZ
//	);
type PostgresStore struct {
	pool  querier
	close func()
}

// NewPostgresStore creates a PostgresStore backed by a pgx pool.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool, close: pool.Close}, nil
}

// NewPostgresStoreWithQuerier wires a store over an existing querier
// (used by tests with pgxmock).
func NewPostgresStoreWithQuerier(pool querier) *PostgresStore {
	return &PostgresStore{pool: pool, close: func() {}}
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() {
	s.close()
}

// RecordStart inserts a new task row in started status.
func (s *PostgresStore) RecordStart(ctx context.Context, id uuid.UUID, url string, startedAt time.Time) error {
	query := `
		INSERT INTO tasks (id, url, status, started_at)
		VALUES ($1, $2, $3, $4);
	`
	if _, err := s.pool.Exec(ctx, query, id, url, StatusStarted, startedAt); err != nil {
		return fmt.Errorf("failed to record task start: %w", err)
	}
	return nil
}

// RecordSuccess marks a task done with its asset count.
func (s *PostgresStore) RecordSuccess(ctx context.Context, id uuid.UUID, assetCount int, finishedAt time.Time) error {
	query := `
		UPDATE tasks
		SET status = $1, asset_count = $2, finished_at = $3
		WHERE id = $4;
	`
	tag, err := s.pool.Exec(ctx, query, StatusDone, assetCount, finishedAt, id)
	if err != nil {
		return fmt.Errorf("failed to record task success: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordFailure marks a task failed with an error message.
func (s *PostgresStore) RecordFailure(ctx context.Context, id uuid.UUID, errMsg string, finishedAt time.Time) error {
	query := `
		UPDATE tasks
		SET status = $1, error_message = $2, finished_at = $3
		WHERE id = $4;
	`
	tag, err := s.pool.Exec(ctx, query, StatusFailed, errMsg, finishedAt, id)
	if err != nil {
		return fmt.Errorf("failed to record task failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTask retrieves a single task by its ID.
func (s *PostgresStore) GetTask(ctx context.Context, id uuid.UUID) (Task, error) {
	query := `
		SELECT id, url, status, asset_count, error_message, started_at, finished_at
		FROM tasks
		WHERE id = $1;
	`
	var task Task
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&task.ID,
		&task.URL,
		&task.Status,
		&task.AssetCount,
		&task.ErrorMessage,
		&task.StartedAt,
		&task.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrNotFound
		}
		return Task{}, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ListTasks retrieves task rows newest-first, with optional status
// filtering.
func (s *PostgresStore) ListTasks(ctx context.Context, status *Status, limit, offset int) ([]Task, error) {
	query := `
		SELECT id, url, status, asset_count, error_message, started_at, finished_at
		FROM tasks
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var task Task
		err := rows.Scan(
			&task.ID,
			&task.URL,
			&task.Status,
			&task.AssetCount,
			&task.ErrorMessage,
			&task.StartedAt,
			&task.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}
	return tasks, nil
}
