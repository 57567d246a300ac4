package detach

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/statecore/internal/metrics"
	"github.com/joss/statecore/internal/obs"
	"github.com/joss/statecore/internal/store"
)

func newTestQueue(t *testing.T, depth int, workers int64) *Queue {
	t.Helper()
	q := NewQueue(obs.New("detach", metrics.New()), depth, workers)
	q.Start(context.Background())
	t.Cleanup(q.Stop)
	return q
}

func TestSubmitExecutes(t *testing.T) {
	q := newTestQueue(t, 16, 2)

	var ran atomic.Int64
	for i := 0; i < 5; i++ {
		err := q.Submit(context.Background(), Job{
			Op: "insert",
			Fn: func(ctx context.Context) error {
				ran.Add(1)
				return nil
			},
		})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.True(t, q.Drain(ctx))

	assert.Equal(t, int64(5), ran.Load())
	assert.Equal(t, int64(5), q.h.Metrics.DetachedCompleted.Load())
	assert.Equal(t, int64(5), q.h.Metrics.DetachedSubmitted.Load())
}

func TestRejectWhenFull(t *testing.T) {
	q := newTestQueue(t, 1, 1)

	block := make(chan struct{})
	// First job occupies the single worker.
	require.NoError(t, q.Submit(context.Background(), Job{
		Op: "slow",
		Fn: func(ctx context.Context) error {
			<-block
			return nil
		},
	}))
	// Second fills the single buffer slot. The dispatcher may have already
	// picked up the first, so allow one more before the buffer is full.
	var rejected error
	for i := 0; i < 3; i++ {
		err := q.Submit(context.Background(), Job{
			Op: "queued",
			Fn: func(ctx context.Context) error { <-block; return nil },
		})
		if err != nil {
			rejected = err
			break
		}
	}
	close(block)

	require.Error(t, rejected, "a full queue must reject")
	assert.True(t, errors.Is(rejected, store.ErrQueueFull))
	assert.GreaterOrEqual(t, q.h.Metrics.DetachedRejected.Load(), int64(1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.True(t, q.Drain(ctx))
}

func TestFailureIsCountedNotPropagated(t *testing.T) {
	q := newTestQueue(t, 16, 2)

	require.NoError(t, q.Submit(context.Background(), Job{
		Op: "failing",
		Fn: func(ctx context.Context) error {
			return errors.New("durable down")
		},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.True(t, q.Drain(ctx))

	assert.Equal(t, int64(1), q.h.Metrics.DetachedFailed.Load())
	assert.Equal(t, int64(0), q.h.Metrics.DetachedCompleted.Load())
}

func TestPanicDoesNotKillDispatcher(t *testing.T) {
	q := newTestQueue(t, 16, 2)

	require.NoError(t, q.Submit(context.Background(), Job{
		Op: "panicking",
		Fn: func(ctx context.Context) error {
			panic("boom")
		},
	}))

	var ran atomic.Bool
	require.NoError(t, q.Submit(context.Background(), Job{
		Op: "after",
		Fn: func(ctx context.Context) error {
			ran.Store(true)
			return nil
		},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.True(t, q.Drain(ctx))

	assert.True(t, ran.Load(), "jobs after a panic should still run")
	assert.Equal(t, int64(1), q.h.Metrics.DetachedFailed.Load())
}

func TestDrainCoversDispatchedJob(t *testing.T) {
	q := newTestQueue(t, 16, 1)

	// The dispatcher takes the job off the channel before running it;
	// drain must still count it until it finishes.
	var done atomic.Bool
	require.NoError(t, q.Submit(context.Background(), Job{
		Op: "slow",
		Fn: func(ctx context.Context) error {
			time.Sleep(50 * time.Millisecond)
			done.Store(true)
			return nil
		},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.True(t, q.Drain(ctx))
	assert.True(t, done.Load(), "drain returned before the held job finished")
}

func TestSubmitAfterStop(t *testing.T) {
	q := NewQueue(obs.New("detach", metrics.New()), 16, 2)
	q.Start(context.Background())
	q.Stop()

	err := q.Submit(context.Background(), Job{
		Op: "late",
		Fn: func(ctx context.Context) error { return nil },
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrClosed))
}

func TestDrainTimeout(t *testing.T) {
	q := newTestQueue(t, 16, 1)

	block := make(chan struct{})
	defer close(block)
	require.NoError(t, q.Submit(context.Background(), Job{
		Op: "stuck",
		Fn: func(ctx context.Context) error {
			select {
			case <-block:
			case <-ctx.Done():
			}
			return nil
		},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.False(t, q.Drain(ctx), "drain should time out while a job is stuck")
}
