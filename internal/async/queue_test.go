package async

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionscribe/sessionscribe/constants"
	"github.com/sessionscribe/sessionscribe/internal/common"
	"github.com/sessionscribe/sessionscribe/internal/entity"
)

var fullChain = []constants.Stage{
	constants.StageFetch,
	constants.StageTranscode,
	constants.StageTranscribe,
	constants.StageGenerate,
	constants.StageDeliver,
}

// chainExec walks the full stage chain and records per-job execution order.
type chainExec struct {
	mu      sync.Mutex
	calls   map[uuid.UUID][]constants.Stage
	failAt  constants.Stage
	done    chan uuid.UUID
	started chan uuid.UUID
	gate    chan struct{}
}

func newChainExec() *chainExec {
	return &chainExec{
		calls: make(map[uuid.UUID][]constants.Stage),
		done:  make(chan uuid.UUID, 64),
	}
}

func (e *chainExec) Execute(_ context.Context, task Task) (*Task, error) {
	if e.started != nil {
		e.started <- task.Job.ID
	}
	if e.gate != nil {
		<-e.gate
	}

	e.mu.Lock()
	e.calls[task.Job.ID] = append(e.calls[task.Job.ID], task.Stage)
	e.mu.Unlock()

	if e.failAt != "" && task.Stage == e.failAt {
		e.done <- task.Job.ID
		return nil, common.TranscodeFailure("scripted failure", nil)
	}
	for i, s := range fullChain {
		if s == task.Stage && i+1 < len(fullChain) {
			return &Task{Job: task.Job, Stage: fullChain[i+1]}, nil
		}
	}
	e.done <- task.Job.ID
	return nil, nil
}

func (e *chainExec) order(id uuid.UUID) []constants.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]constants.Stage, len(e.calls[id]))
	copy(out, e.calls[id])
	return out
}

func discard(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChainRunsStagesInOrder(t *testing.T) {
	exec := newChainExec()
	q := NewTaskQueue(exec, discard(t), WithWorkers(4), WithQueueSize(16), WithStageTimeout(time.Second))
	defer q.Shutdown(context.Background())

	jobs := make([]*entity.Job, 8)
	for i := range jobs {
		jobs[i] = &entity.Job{ID: uuid.New(), ChatID: int64(i)}
		require.NoError(t, q.Enqueue(context.Background(), Task{Job: jobs[i], Stage: constants.StageFetch}))
	}

	waitForN(t, exec.done, len(jobs))

	for _, job := range jobs {
		assert.Equal(t, fullChain, exec.order(job.ID), "job %s", job.ID)
	}
}

func TestTerminalFailureStopsChain(t *testing.T) {
	exec := newChainExec()
	exec.failAt = constants.StageTranscode
	q := NewTaskQueue(exec, discard(t), WithWorkers(2), WithQueueSize(8))
	defer q.Shutdown(context.Background())

	job := &entity.Job{ID: uuid.New(), ChatID: 1}
	require.NoError(t, q.Enqueue(context.Background(), Task{Job: job, Stage: constants.StageFetch}))

	waitForN(t, exec.done, 1)

	assert.Equal(t,
		[]constants.Stage{constants.StageFetch, constants.StageTranscode},
		exec.order(job.ID),
	)
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	exec := newChainExec()
	exec.started = make(chan uuid.UUID, 8)
	exec.gate = make(chan struct{})
	q := NewTaskQueue(exec, discard(t), WithWorkers(1), WithQueueSize(1))

	j1 := &entity.Job{ID: uuid.New()}
	j2 := &entity.Job{ID: uuid.New()}
	j3 := &entity.Job{ID: uuid.New()}

	require.NoError(t, q.Enqueue(context.Background(), Task{Job: j1, Stage: constants.StageDeliver}))
	<-exec.started // worker holds j1, buffer empty
	require.NoError(t, q.Enqueue(context.Background(), Task{Job: j2, Stage: constants.StageDeliver}))

	err := q.Enqueue(context.Background(), Task{Job: j3, Stage: constants.StageDeliver})
	require.ErrorIs(t, err, ErrQueueFull)

	close(exec.gate)
	q.Shutdown(context.Background())
}

func TestShutdownDrainsInFlightJobs(t *testing.T) {
	exec := newChainExec()
	q := NewTaskQueue(exec, discard(t), WithWorkers(1), WithQueueSize(4))

	j1 := &entity.Job{ID: uuid.New()}
	j2 := &entity.Job{ID: uuid.New()}
	require.NoError(t, q.Enqueue(context.Background(), Task{Job: j1, Stage: constants.StageFetch}))
	require.NoError(t, q.Enqueue(context.Background(), Task{Job: j2, Stage: constants.StageFetch}))

	q.Shutdown(context.Background())

	assert.Equal(t, fullChain, exec.order(j1.ID))
	assert.Equal(t, fullChain, exec.order(j2.ID))

	// Intake is closed now.
	err := q.Enqueue(context.Background(), Task{Job: &entity.Job{ID: uuid.New()}, Stage: constants.StageFetch})
	require.ErrorIs(t, err, ErrQueueFull)
}

func waitForN(t *testing.T, ch <-chan uuid.UUID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for completion %d/%d", i+1, n)
		}
	}
}
