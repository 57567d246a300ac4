// Package obs bundles the logger and metrics into one observability handle.
// The handle is constructed once and injected into the managers, so no
// component reaches for global logging or metrics state.
package obs

import (
	"context"
	"time"

	"github.com/joss/statecore/internal/logging"
	"github.com/joss/statecore/internal/metrics"
)

// Handle carries the structured logger and metrics for one component.
type Handle struct {
	Log     *logging.Logger
	Metrics *metrics.Metrics
}

// New creates a handle for a component, sharing the given metrics instance.
func New(component string, m *metrics.Metrics) *Handle {
	if m == nil {
		m = metrics.New()
	}
	return &Handle{
		Log:     logging.New(component),
		Metrics: m,
	}
}

// For returns a handle for a different component sharing the same metrics.
func (h *Handle) For(component string) *Handle {
	return &Handle{
		Log:     logging.New(component),
		Metrics: h.Metrics,
	}
}

// Span measures one public operation from start to end.
type Span struct {
	h     *Handle
	op    string
	start time.Time
}

// StartSpan opens a span for an operation, ensuring the returned context
// carries a request ID for correlation.
func (h *Handle) StartSpan(ctx context.Context, op string) (context.Context, *Span) {
	if logging.GetRequestID(ctx) == "" {
		ctx = logging.WithRequestID(ctx, "")
	}
	return ctx, &Span{h: h, op: op, start: time.Now()}
}

// End closes the span, logging the outcome and duration. A nil err logs at
// info level, a non-nil err at error level.
func (s *Span) End(ctx context.Context, err error, extra map[string]any) time.Duration {
	elapsed := time.Since(s.start)
	if err != nil {
		if extra == nil {
			extra = map[string]any{}
		}
		extra["duration_ms"] = elapsed.Milliseconds()
		s.h.Log.Error(ctx, s.op, extra, err)
	} else {
		s.h.Log.TimedEvent(ctx, s.op, s.start, extra)
	}
	return elapsed
}
