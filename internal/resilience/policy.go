// Package resilience applies the two failure policies of the store: a
// best-effort policy for the cache tier and a must-succeed policy for the
// durable tier. Losing the cache degrades latency, not correctness; losing
// the durable store on a path the caller is waiting on is a real failure.
package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/joss/statecore/internal/obs"
	"github.com/joss/statecore/internal/store"
)

// BestEffort runs fn against the cache tier. Any failure is absorbed:
// classified as store.ErrCacheUnavailable, logged at warning level,
// counted, and replaced by the fallback value. It never returns an error.
func BestEffort[T any](ctx context.Context, h *obs.Handle, op string, fallback T, fn func(context.Context) (T, error)) T {
	v, err := fn(ctx)
	if err != nil {
		h.Metrics.CacheErrors.Add(1)
		h.Log.Warn(ctx, op, map[string]any{"policy": "best_effort"}, classifyCache(err))
		return fallback
	}
	return v
}

// BestEffortDo is BestEffort for operations with no result. Returns whether
// the operation succeeded, since some callers treat the cache write as their
// success signal.
func BestEffortDo(ctx context.Context, h *obs.Handle, op string, fn func(context.Context) error) bool {
	err := fn(ctx)
	if err != nil {
		h.Metrics.CacheErrors.Add(1)
		h.Log.Warn(ctx, op, map[string]any{"policy": "best_effort"}, classifyCache(err))
		return false
	}
	return true
}

// classifyCache tags an absorbed cache failure with the shared taxonomy.
func classifyCache(err error) error {
	if errors.Is(err, store.ErrCacheUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", store.ErrCacheUnavailable, err)
}

// MustSucceed runs fn against the durable tier on a synchronous path.
// Failures are logged at error level, counted, and returned to the caller.
func MustSucceed[T any](ctx context.Context, h *obs.Handle, op string, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err != nil {
		h.Metrics.DurableErrors.Add(1)
		h.Log.Error(ctx, op, map[string]any{"policy": "must_succeed"}, err)
		return v, err
	}
	return v, nil
}

// MustSucceedDo is MustSucceed for operations with no result.
func MustSucceedDo(ctx context.Context, h *obs.Handle, op string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		h.Metrics.DurableErrors.Add(1)
		h.Log.Error(ctx, op, map[string]any{"policy": "must_succeed"}, err)
		return err
	}
	return nil
}
