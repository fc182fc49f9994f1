package execution

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// DispatchTaskArgs enqueues the dispatch of a funded task.
type DispatchTaskArgs struct {
	TaskID uuid.UUID `json:"task_id"`
}

func (DispatchTaskArgs) Kind() string { return "dispatch_task" }

// InsertOpts disables retries: a backend failure is recorded on the task, not
// retried.
func (DispatchTaskArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 1}
}

// InsertDispatchTxFunc enqueues a dispatch inside the caller's transaction, so
// the job exists only if the funding commits.
type InsertDispatchTxFunc func(ctx context.Context, tx pgx.Tx, args DispatchTaskArgs) error

// TaskProcessor runs a funded task to its outcome.
type TaskProcessor interface {
	ProcessTask(ctx context.Context, taskID uuid.UUID) error
}

type DispatchTaskWorker struct {
	river.WorkerDefaults[DispatchTaskArgs]
	processor TaskProcessor
}

func NewDispatchTaskWorker(p TaskProcessor) *DispatchTaskWorker {
	return &DispatchTaskWorker{processor: p}
}

// Timeout is disabled; the assistant and webhook paths carry their own bounds.
func (w *DispatchTaskWorker) Timeout(*river.Job[DispatchTaskArgs]) time.Duration { return -1 }

func (w *DispatchTaskWorker) Work(ctx context.Context, job *river.Job[DispatchTaskArgs]) error {
	return w.processor.ProcessTask(ctx, job.Args.TaskID)
}
