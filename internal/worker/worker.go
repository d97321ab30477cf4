// Package worker executes queued bundle tasks in the background.
package worker

import (
	"context"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/landingzip/bundler/internal/bundle"
	"github.com/landingzip/bundler/internal/queue"
)

// Pipeline is the slice of the bundle pipeline a worker drives.
type Pipeline interface {
	Prepare(ctx context.Context, taskID uuid.UUID, url string) (*bundle.Run, error)
	Deliver(ctx context.Context, run *bundle.Run, w io.Writer) error
}

// Worker consumes queue items and runs the bundle pipeline for each.
// Nobody is waiting on the response for async tasks, so the archive
// bytes go to io.Discard; retention and the task record are the
// durable outputs.
type Worker struct {
	queue    *queue.Memory
	pipeline Pipeline
	logger   *zap.Logger
}

// New constructs a Worker.
func New(q *queue.Memory, pipeline Pipeline, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:    q,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the
// queue closes. Cancellation takes precedence over remaining items:
// anything still buffered when the context ends is abandoned, not
// drained.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || err == queue.ErrClosed {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued task", zap.Stringer("task_id", item.TaskID), zap.String("url", item.URL))
		w.processTask(ctx, item)
	}
}

func (w *Worker) processTask(ctx context.Context, item queue.Item) {
	run, err := w.pipeline.Prepare(ctx, item.TaskID, item.URL)
	if err != nil {
		w.logger.Error("bundle task failed",
			zap.Stringer("task_id", item.TaskID),
			zap.String("url", item.URL),
			zap.Error(err),
		)
		return
	}
	if err := w.pipeline.Deliver(ctx, run, io.Discard); err != nil {
		w.logger.Error("bundle delivery failed",
			zap.Stringer("task_id", item.TaskID),
			zap.String("url", item.URL),
			zap.Error(err),
		)
		return
	}
	w.logger.Info("bundle task completed",
		zap.Stringer("task_id", item.TaskID),
		zap.String("url", item.URL),
		zap.Int("assets", run.SuccessCount),
	)
}
