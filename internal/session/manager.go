// Package session owns the session lifecycle over the two storage tiers.
// Reads are cache-aside, ordinary writes go to the cache with a detached
// durable write behind them, and updates are guarded by an optimistic
// version compare under a manager-level mutex.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joss/statecore/internal/detach"
	"github.com/joss/statecore/internal/domain"
	"github.com/joss/statecore/internal/obs"
	"github.com/joss/statecore/internal/resilience"
	"github.com/joss/statecore/internal/store"
)

const (
	keyPrefix = "session:"

	// liveTTL is the cache lifetime of an active session.
	liveTTL = 24 * time.Hour
	// tombstoneTTL keeps an ended session readable from the cache briefly.
	tombstoneTTL = time.Hour
	// endDrainTimeout bounds how long End waits for pending detached
	// writes before the durable update.
	endDrainTimeout = 2 * time.Second
)

// Key returns the cache key for a session ID.
func Key(id string) string {
	return keyPrefix + id
}

// Manager handles session lifecycle over the cache and durable tiers.
// mu serializes the version compare and cache write in Update and End;
// the compare alone is not atomic against the cache.
type Manager struct {
	cache domain.CacheStore
	db    domain.DurableStore
	queue *detach.Queue
	h     *obs.Handle
	mu    sync.Mutex
}

// NewManager creates a Manager. All writes the caller does not wait on go
// through queue.
func NewManager(cache domain.CacheStore, db domain.DurableStore, queue *detach.Queue, h *obs.Handle) *Manager {
	return &Manager{cache: cache, db: db, queue: queue, h: h}
}

// Create builds a new session at version 1, caches it, and fires a detached
// durable insert. The session is returned unconditionally once the cache
// write has been attempted: the cache is an accelerator, not a dependency
// for the correctness of creation.
func (m *Manager) Create(ctx context.Context, userID, adapterType string) *domain.Session {
	ctx, span := m.h.StartSpan(ctx, "session_create")

	now := time.Now().UTC()
	sess := &domain.Session{
		ID:          ulid.Make().String(),
		UserID:      userID,
		AdapterType: adapterType,
		CreatedAt:   now,
		LastActive:  now,
		Version:     1,
		DomainState: map[string]any{},
		Metadata:    domain.SessionMetadata{LastActivity: now},
	}

	if m.writeCache(ctx, sess, liveTTL) {
		m.h.Metrics.ActiveSessions.Add(1)
	}
	m.submitDetached(ctx, "session_insert", sess.ID, insertStatement(sess))

	m.h.Metrics.SessionCreates.Add(1)
	elapsed := span.End(ctx, nil, map[string]any{"session": sess.ID, "adapter": adapterType})
	m.h.Metrics.RecordSessionOp(elapsed.Milliseconds())
	return sess
}

// Get reads a session cache-aside: cache first, durable store on miss, with
// a best-effort cache repopulation afterward. Returns nil when the session
// does not exist in either tier. A schema-invalid cached payload counts as
// a miss, never as an error.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Session, error) {
	ctx, span := m.h.StartSpan(ctx, "session_get")
	m.h.Metrics.SessionReads.Add(1)

	if sess := m.readCache(ctx, id); sess != nil {
		m.h.Metrics.RecordCacheOutcome(true)
		span.End(ctx, nil, map[string]any{"session": id, "tier": "cache"})
		return sess, nil
	}
	m.h.Metrics.RecordCacheOutcome(false)

	rec, err := resilience.MustSucceed(ctx, m.h, "session_get_durable", func(ctx context.Context) (store.Record, error) {
		return m.db.QueryOne(ctx,
			`SELECT session_id, user_id, adapter_type, created_at, last_active,
			        version, ended, domain_state, total_messages, total_cost_usd, metadata
			 FROM sessions WHERE session_id = ?`, id)
	})
	if err != nil {
		span.End(ctx, err, map[string]any{"session": id})
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	if rec == nil {
		span.End(ctx, nil, map[string]any{"session": id, "found": false})
		return nil, nil
	}

	sess := rowToSession(rec)
	m.writeCache(ctx, sess, liveTTL)

	span.End(ctx, nil, map[string]any{"session": id, "tier": "durable"})
	return sess, nil
}

// Update applies a partial update guarded by an optimistic version compare.
// Returns false on not-found, version conflict, or a failed cache write —
// the cache write is the authoritative success signal here, with a detached
// durable update (guarded by the original expected version) behind it.
// A version conflict is an expected outcome under contention, not an error.
func (m *Manager) Update(ctx context.Context, id string, upd domain.SessionUpdate, expectedVersion int64) (bool, error) {
	ctx, span := m.h.StartSpan(ctx, "session_update")

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := m.Get(ctx, id)
	if err != nil {
		span.End(ctx, err, map[string]any{"session": id})
		return false, err
	}
	if cur == nil {
		span.End(ctx, nil, map[string]any{"session": id, "found": false})
		return false, nil
	}
	if cur.Version != expectedVersion {
		m.h.Metrics.SessionConflicts.Add(1)
		span.End(ctx, nil, map[string]any{
			"session":  id,
			"conflict": true,
			"have":     cur.Version,
			"expected": expectedVersion,
		})
		return false, nil
	}

	next := upd.Apply(cur, time.Now().UTC())
	if !m.writeCache(ctx, next, liveTTL) {
		span.End(ctx, nil, map[string]any{"session": id, "cache_write": false})
		return false, nil
	}

	m.submitDetached(ctx, "session_update", id, updateStatement(next, expectedVersion))

	m.h.Metrics.SessionUpdates.Add(1)
	elapsed := span.End(ctx, nil, map[string]any{"session": id, "version": next.Version})
	m.h.Metrics.RecordSessionOp(elapsed.Milliseconds())
	return true, nil
}

// End marks a session terminated. Unlike Update this is a rare, explicit
// lifecycle transition: the durable update is synchronous and must succeed.
// The cache keeps a short-TTL tombstone for read consistency.
func (m *Manager) End(ctx context.Context, id string) (bool, error) {
	ctx, span := m.h.StartSpan(ctx, "session_end")

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := m.Get(ctx, id)
	if err != nil {
		span.End(ctx, err, map[string]any{"session": id})
		return false, err
	}
	if cur == nil {
		span.End(ctx, nil, map[string]any{"session": id, "found": false})
		return false, nil
	}

	now := time.Now().UTC()
	ended := *cur
	ended.Ended = true
	ended.LastActive = now
	ended.Metadata.LastActivity = now

	if !m.writeCache(ctx, &ended, tombstoneTTL) {
		span.End(ctx, nil, map[string]any{"session": id, "cache_write": false})
		return false, nil
	}

	// Pending detached writes for this session must land first, or the
	// guarded update below matches no row.
	drainCtx, cancel := context.WithTimeout(ctx, endDrainTimeout)
	m.queue.Drain(drainCtx)
	cancel()

	var affected int64
	err = resilience.MustSucceedDo(ctx, m.h, "session_end_durable", func(ctx context.Context) error {
		stmt := updateStatement(&ended, ended.Version)
		n, execErr := m.db.Execute(ctx, stmt.SQL, stmt.Args...)
		affected = n
		return execErr
	})
	if err != nil {
		span.End(ctx, err, map[string]any{"session": id})
		return false, err
	}
	if affected == 0 {
		// The durable row is missing or on another version; reporting
		// success here would lose the terminal transition.
		m.h.Log.Warn(ctx, "session_end_unconfirmed", map[string]any{
			"session": id,
			"version": ended.Version,
		}, nil)
		span.End(ctx, nil, map[string]any{"session": id, "confirmed": false})
		return false, nil
	}

	m.h.Metrics.SessionEnds.Add(1)
	m.h.Metrics.ActiveSessions.Add(-1)
	span.End(ctx, nil, map[string]any{"session": id})
	return true, nil
}

// Exists reports approximate liveness from the cache tier only.
func (m *Manager) Exists(ctx context.Context, id string) bool {
	return resilience.BestEffort(ctx, m.h, "session_exists", false, func(ctx context.Context) (bool, error) {
		return m.cache.Exists(ctx, Key(id))
	})
}

// TimeToExpiry returns the remaining cache TTL for a session, -1 when the
// session is not cached. Pure cache-tier query with no durable fallback.
func (m *Manager) TimeToExpiry(ctx context.Context, id string) time.Duration {
	return resilience.BestEffort(ctx, m.h, "session_ttl", time.Duration(-1), func(ctx context.Context) (time.Duration, error) {
		return m.cache.TTL(ctx, Key(id))
	})
}

// ListByUser returns the most recently active sessions for a user from the
// durable tier.
func (m *Manager) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Session, error) {
	if limit <= 0 {
		limit = 20
	}
	recs, err := resilience.MustSucceed(ctx, m.h, "session_list", func(ctx context.Context) ([]store.Record, error) {
		return m.db.Query(ctx,
			`SELECT session_id, user_id, adapter_type, created_at, last_active,
			        version, ended, domain_state, total_messages, total_cost_usd, metadata
			 FROM sessions WHERE user_id = ? ORDER BY last_active DESC LIMIT ?`, userID, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions for %s: %w", userID, err)
	}
	sessions := make([]*domain.Session, 0, len(recs))
	for _, r := range recs {
		sessions = append(sessions, rowToSession(r))
	}
	return sessions, nil
}

// readCache attempts a best-effort cache read. A malformed or invalid
// payload falls through as a miss.
func (m *Manager) readCache(ctx context.Context, id string) *domain.Session {
	payload := resilience.BestEffort(ctx, m.h, "session_cache_get", "", func(ctx context.Context) (string, error) {
		v, hit, err := m.cache.Get(ctx, Key(id))
		if err != nil || !hit {
			return "", err
		}
		return v, nil
	})
	if payload == "" {
		return nil
	}

	var sess domain.Session
	if err := json.Unmarshal([]byte(payload), &sess); err != nil {
		m.h.Log.Debug(ctx, "session_cache_malformed", map[string]any{"session": id})
		return nil
	}
	if err := sess.Validate(); err != nil {
		m.h.Log.Debug(ctx, "session_cache_invalid", map[string]any{"session": id, "reason": err.Error()})
		return nil
	}
	return &sess
}

// writeCache serializes and best-effort stores a session. Returns whether
// the write landed.
func (m *Manager) writeCache(ctx context.Context, sess *domain.Session, ttl time.Duration) bool {
	payload, err := json.Marshal(sess)
	if err != nil {
		m.h.Log.Warn(ctx, "session_marshal", map[string]any{"session": sess.ID}, err)
		return false
	}
	return resilience.BestEffortDo(ctx, m.h, "session_cache_set", func(ctx context.Context) error {
		return m.cache.Set(ctx, Key(sess.ID), string(payload), ttl)
	})
}

// submitDetached queues a durable write the caller does not wait on.
// Rejections are already logged and counted by the queue.
func (m *Manager) submitDetached(ctx context.Context, op, sessionID string, stmt domain.Statement) {
	_ = m.queue.Submit(ctx, detach.Job{
		Op:        op,
		SessionID: sessionID,
		Fn: func(ctx context.Context) error {
			_, err := m.db.Execute(ctx, stmt.SQL, stmt.Args...)
			return err
		},
	})
}
