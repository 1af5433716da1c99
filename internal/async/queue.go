// Package async runs pipeline stages on a fixed worker pool. Stages are
// chained by explicit continuation submission: executing one task may hand
// back the next task for the same job, which the worker re-enqueues.
package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sessionscribe/sessionscribe/constants"
	"github.com/sessionscribe/sessionscribe/internal/entity"
)

// ErrQueueFull is returned by Enqueue when the buffer is at capacity or the
// queue is shutting down.
var ErrQueueFull = errors.New("task queue full")

// Task is one independently schedulable stage of one job.
type Task struct {
	Job         *entity.Job
	Stage       constants.Stage
	SubmittedAt time.Time
}

// Executor runs one stage of a job. A returned task is the continuation to
// submit next; nil means the job is done. A non-nil error is terminal for the
// job and the executor has already reported it and cleaned up by the time it
// returns.
type Executor interface {
	Execute(ctx context.Context, task Task) (next *Task, err error)
}

type TaskQueue struct {
	exec    Executor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Task
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*TaskQueue)

func WithWorkers(n int) Option {
	return func(q *TaskQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *TaskQueue) {
		if n > 0 {
			q.ch = make(chan Task, n)
		}
	}
}
func WithStageTimeout(d time.Duration) Option {
	return func(q *TaskQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewTaskQueue(exec Executor, logger *slog.Logger, opts ...Option) *TaskQueue {
	q := &TaskQueue{
		exec:    exec,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan Task, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *TaskQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for task := range q.ch {
					q.run(workerID, task)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// run executes one task and submits its continuation. When the buffer is full
// or intake already closed, the continuation runs inline on this worker so a
// mid-flight job is never dropped; in-job stage order holds either way.
func (q *TaskQueue) run(workerID int, task Task) {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		next, err := q.exec.Execute(ctx, task)
		cancel()

		if err != nil {
			q.logger.Error("stage failed",
				"worker_id", workerID,
				"job_id", task.Job.ID,
				"stage", task.Stage,
				"error", err,
			)
			return
		}
		q.logger.Debug("stage ok",
			"worker_id", workerID,
			"job_id", task.Job.ID,
			"stage", task.Stage,
		)
		if next == nil {
			return
		}
		if qerr := q.Enqueue(context.Background(), *next); qerr != nil {
			q.logger.Warn("continuation not queued, running inline",
				"worker_id", workerID,
				"job_id", next.Job.ID,
				"stage", next.Stage,
				"reason", qerr,
			)
			task = *next
			continue
		}
		return
	}
}

// Enqueue submits a task without blocking. The inbound handler surfaces
// ErrQueueFull to the user instead of holding the chat transport open.
func (q *TaskQueue) Enqueue(_ context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", task.Job.ID, "stage", task.Stage)
		return ErrQueueFull
	}
	select {
	case q.ch <- task:
		q.logger.Info("task queued", "job_id", task.Job.ID, "stage", task.Stage)
		return nil
	default:
		q.logger.Warn("queue full, rejecting task", "job_id", task.Job.ID, "stage", task.Stage)
		return ErrQueueFull
	}
}

// Shutdown stops intake and waits for the workers to drain, bounded by ctx.
// In-flight jobs finish all their remaining stages before workers exit.
func (q *TaskQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
