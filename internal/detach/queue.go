// Package detach runs the detached durable writes: secondary writes the
// caller does not wait on. The queue is bounded and supervised; a full
// queue rejects new work instead of growing without bound, and the failure
// of a detached write is observable only through logs and metrics.
package detach

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/joss/statecore/internal/logging"
	"github.com/joss/statecore/internal/obs"
	"github.com/joss/statecore/internal/store"
)

// Job is one detached write.
type Job struct {
	Op        string
	SessionID string
	Fn        func(ctx context.Context) error
}

// Queue dispatches detached writes with a bounded buffer and a concurrency
// limit across workers.
type Queue struct {
	jobs chan Job
	sem  *semaphore.Weighted
	h    *obs.Handle
	// inflight counts jobs accepted and not yet finished, queued ones
	// included, so Drain never misses a job the dispatcher holds.
	inflight atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewQueue creates a queue holding up to depth pending jobs, executing at
// most maxConcurrent at a time.
func NewQueue(h *obs.Handle, depth int, maxConcurrent int64) *Queue {
	if depth <= 0 {
		depth = 256
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Queue{
		jobs: make(chan Job, depth),
		sem:  semaphore.NewWeighted(maxConcurrent),
		h:    h,
	}
}

// Start launches the dispatcher. Must be called before Submit.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		q.ctx, q.cancel = context.WithCancel(ctx)
		q.wg.Add(1)
		go q.dispatch()
	})
}

// Submit enqueues a job. Returns store.ErrQueueFull when the buffer is
// full and store.ErrClosed after Stop; the rejection is logged and
// counted, and the triggering call is expected to succeed regardless.
func (q *Queue) Submit(ctx context.Context, job Job) error {
	if q.ctx != nil {
		select {
		case <-q.ctx.Done():
			return fmt.Errorf("%w: %s", store.ErrClosed, job.Op)
		default:
		}
	}

	q.inflight.Add(1)
	select {
	case q.jobs <- job:
		q.h.Metrics.DetachedSubmitted.Add(1)
		q.h.Metrics.QueueDepth.Store(q.inflight.Load())
		return nil
	default:
		q.inflight.Add(-1)
		q.h.Metrics.DetachedRejected.Add(1)
		q.h.Log.Warn(ctx, "detached_write_rejected", map[string]any{
			"op":      job.Op,
			"session": job.SessionID,
		}, store.ErrQueueFull)
		return fmt.Errorf("%w: %s", store.ErrQueueFull, job.Op)
	}
}

// dispatch drains the job channel, bounding concurrent executions with the
// semaphore. Each job runs under panic recovery so one bad write cannot
// take the dispatcher down.
func (q *Queue) dispatch() {
	defer q.wg.Done()
	for {
		select {
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			if err := q.sem.Acquire(q.ctx, 1); err != nil {
				q.inflight.Add(-1)
				return
			}
			q.wg.Add(1)
			go func(job Job) {
				defer q.wg.Done()
				defer q.sem.Release(1)
				defer q.inflight.Add(-1)
				q.run(job)
			}(job)
		case <-q.ctx.Done():
			return
		}
	}
}

// run executes one job. Failures never propagate past this point.
func (q *Queue) run(job Job) {
	ctx := logging.WithRequestID(q.ctx, "")
	handler := logging.NewRecoveryHandler("detach")
	err := handler.WrapError(func() error {
		return job.Fn(ctx)
	})

	q.h.Metrics.QueueDepth.Store(q.inflight.Load() - 1)
	if err != nil {
		q.h.Metrics.DetachedFailed.Add(1)
		q.h.Log.Error(ctx, "detached_write_failed", map[string]any{
			"op":      job.Op,
			"session": job.SessionID,
		}, err)
		return
	}
	q.h.Metrics.DetachedCompleted.Add(1)
}

// Drain blocks until all pending and in-flight jobs are done, or ctx
// expires. Returns false on timeout.
func (q *Queue) Drain(ctx context.Context) bool {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if q.inflight.Load() == 0 {
			return true
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false
		}
	}
}

// Stop cancels the dispatcher and waits for in-flight jobs to finish.
// Pending jobs that have not started are discarded; call Drain first for a
// clean shutdown.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		if q.cancel != nil {
			q.cancel()
		}
		q.wg.Wait()
	})
}
