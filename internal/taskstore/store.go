// Package taskstore persists the lifecycle record of each bundle
// request: started, done, or failed, plus the asset count and error
// message for terminal states. The pipeline reports to it but treats
// its failures as non-fatal.
package taskstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a task record does not exist.
var ErrNotFound = errors.New("task not found")

// Status represents the lifecycle state of a bundle task.
type Status string

// Task status values.
const (
	StatusStarted Status = "started"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// ParseStatus maps external status filters onto Status values.
func ParseStatus(input string) (Status, error) {
	switch input {
	case "started", "running", "pending":
		return StatusStarted, nil
	case "done", "success":
		return StatusDone, nil
	case "failed", "error", "failure":
		return StatusFailed, nil
	default:
		return "", errors.New("invalid status")
	}
}

// Task is one persisted bundle request record.
type Task struct {
	ID           uuid.UUID  `json:"id"`
	URL          string     `json:"url"`
	Status       Status     `json:"status"`
	AssetCount   int        `json:"asset_count"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Store records task lifecycles.
type Store interface {
	RecordStart(ctx context.Context, id uuid.UUID, url string, startedAt time.Time) error
	RecordSuccess(ctx context.Context, id uuid.UUID, assetCount int, finishedAt time.Time) error
	RecordFailure(ctx context.Context, id uuid.UUID, errMsg string, finishedAt time.Time) error
	GetTask(ctx context.Context, id uuid.UUID) (Task, error)
	ListTasks(ctx context.Context, status *Status, limit, offset int) ([]Task, error)
}
