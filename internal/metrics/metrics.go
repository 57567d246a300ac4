// Package metrics provides a simple Prometheus-compatible metrics endpoint.
package metrics

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// Metrics holds runtime metrics for the state store. Instances are
// constructed explicitly and injected; there is no package-level singleton.
type Metrics struct {
	// Session operations
	SessionCreates   atomic.Int64
	SessionReads     atomic.Int64
	SessionUpdates   atomic.Int64
	SessionConflicts atomic.Int64
	SessionEnds      atomic.Int64
	ActiveSessions   atomic.Int64

	// History operations
	MessagesAppended atomic.Int64
	HistoryReads     atomic.Int64
	HistoryClears    atomic.Int64

	// Tier outcomes
	CacheHits       atomic.Int64
	CacheMisses     atomic.Int64
	CacheErrors     atomic.Int64
	DurableErrors   atomic.Int64
	PayloadsShrunk  atomic.Int64

	// Detached write queue
	DetachedSubmitted atomic.Int64
	DetachedCompleted atomic.Int64
	DetachedFailed    atomic.Int64
	DetachedRejected  atomic.Int64
	QueueDepth        atomic.Int64

	// Timing (last operation duration in ms)
	LastSessionOpMs atomic.Int64
	LastHistoryOpMs atomic.Int64

	startTime time.Time
}

// New creates a fresh metrics instance.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordCacheOutcome records a cache read outcome.
func (m *Metrics) RecordCacheOutcome(hit bool) {
	if hit {
		m.CacheHits.Add(1)
	} else {
		m.CacheMisses.Add(1)
	}
}

// RecordSessionOp records a session operation duration.
func (m *Metrics) RecordSessionOp(durationMs int64) {
	m.LastSessionOpMs.Store(durationMs)
}

// RecordHistoryOp records a history operation duration.
func (m *Metrics) RecordHistoryOp(durationMs int64) {
	m.LastHistoryOpMs.Store(durationMs)
}

// WritePrometheus renders all metrics in Prometheus text exposition format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	uptime := time.Since(m.startTime).Seconds()

	writeGauge(w, "statecore_uptime_seconds", "Time since the store started", fmt.Sprintf("%.2f", uptime))

	writeCounter(w, "statecore_session_creates_total", "Total session create calls", m.SessionCreates.Load())
	writeCounter(w, "statecore_session_reads_total", "Total session get calls", m.SessionReads.Load())
	writeCounter(w, "statecore_session_updates_total", "Total successful session updates", m.SessionUpdates.Load())
	writeCounter(w, "statecore_session_conflicts_total", "Total optimistic concurrency conflicts", m.SessionConflicts.Load())
	writeCounter(w, "statecore_session_ends_total", "Total session end calls", m.SessionEnds.Load())
	writeGauge(w, "statecore_active_sessions", "Sessions currently live in the cache tier", fmt.Sprintf("%d", m.ActiveSessions.Load()))

	writeCounter(w, "statecore_messages_appended_total", "Total messages appended", m.MessagesAppended.Load())
	writeCounter(w, "statecore_history_reads_total", "Total history read calls", m.HistoryReads.Load())
	writeCounter(w, "statecore_history_clears_total", "Total history clear calls", m.HistoryClears.Load())

	writeCounter(w, "statecore_cache_hits_total", "Total cache tier hits", m.CacheHits.Load())
	writeCounter(w, "statecore_cache_misses_total", "Total cache tier misses", m.CacheMisses.Load())
	writeCounter(w, "statecore_cache_errors_total", "Total absorbed cache tier failures", m.CacheErrors.Load())
	writeCounter(w, "statecore_durable_errors_total", "Total durable tier failures", m.DurableErrors.Load())
	writeCounter(w, "statecore_payloads_compressed_total", "Total message payloads compressed before caching", m.PayloadsShrunk.Load())

	writeCounter(w, "statecore_detached_submitted_total", "Total detached writes submitted", m.DetachedSubmitted.Load())
	writeCounter(w, "statecore_detached_completed_total", "Total detached writes completed", m.DetachedCompleted.Load())
	writeCounter(w, "statecore_detached_failed_total", "Total detached writes failed", m.DetachedFailed.Load())
	writeCounter(w, "statecore_detached_rejected_total", "Total detached writes rejected by the full queue", m.DetachedRejected.Load())
	writeGauge(w, "statecore_detached_queue_depth", "Detached writes currently pending", fmt.Sprintf("%d", m.QueueDepth.Load()))

	writeGauge(w, "statecore_last_session_op_ms", "Last session operation duration", fmt.Sprintf("%d", m.LastSessionOpMs.Load()))
	writeGauge(w, "statecore_last_history_op_ms", "Last history operation duration", fmt.Sprintf("%d", m.LastHistoryOpMs.Load()))
}

func writeCounter(w io.Writer, name, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	fmt.Fprintf(w, "%s %d\n\n", name, value)
}

func writeGauge(w io.Writer, name, help, value string) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s gauge\n", name)
	fmt.Fprintf(w, "%s %s\n\n", name, value)
}
