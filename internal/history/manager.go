// Package history owns the append-only message log for sessions: a bounded
// cache-assisted recent window over a durable full history, with cursor
// pagination and per-session bulk clear.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joss/statecore/internal/detach"
	"github.com/joss/statecore/internal/domain"
	"github.com/joss/statecore/internal/obs"
	"github.com/joss/statecore/internal/resilience"
	"github.com/joss/statecore/internal/store"
	"github.com/joss/statecore/internal/tokens"
)

const (
	keyPrefix = "history:"

	// listTTL is the cache lifetime of the recent-history list.
	listTTL = time.Hour
	// recentLimit bounds how many recent messages the cache list keeps.
	recentLimit = 50
	// compressThreshold is the serialized size above which a payload is
	// compressed before caching.
	compressThreshold = 4096
)

// Key returns the cache key for a session's recent-history list.
func Key(sessionID string) string {
	return keyPrefix + sessionID
}

// Page is one page of a cursor-paginated history read. NextCursor is empty
// on the final page.
type Page struct {
	Messages   []domain.Message
	NextCursor string
}

// Manager handles the message log over the cache and durable tiers.
type Manager struct {
	cache   domain.CacheStore
	db      domain.DurableStore
	queue   *detach.Queue
	h       *obs.Handle
	counter *tokens.Counter
}

// NewManager creates a Manager sharing the detached-write queue with the
// session manager.
func NewManager(cache domain.CacheStore, db domain.DurableStore, queue *detach.Queue, h *obs.Handle) *Manager {
	return &Manager{
		cache:   cache,
		db:      db,
		queue:   queue,
		h:       h,
		counter: tokens.NewCounter(),
	}
}

// AddMessage assigns an ID and timestamp, appends the message to the
// bounded cached list, and fires a detached durable insert. A cache-append
// failure is logged but never fails the call. Returns the generated ID.
func (m *Manager) AddMessage(ctx context.Context, sessionID string, msg domain.Message) (string, error) {
	ctx, span := m.h.StartSpan(ctx, "history_add")

	msg.ID = uuid.NewString()
	msg.SessionID = sessionID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}
	msg.Metadata["tokens"] = m.counter.CountMessage(&msg)

	raw, err := json.Marshal(msg)
	if err != nil {
		span.End(ctx, err, map[string]any{"session": sessionID})
		return "", fmt.Errorf("marshal message: %w", err)
	}

	payload, compressed, err := encodePayload(raw, compressThreshold)
	if err != nil {
		// Fall back to the raw form rather than losing the cache entry.
		m.h.Log.Warn(ctx, "history_compress", map[string]any{"session": sessionID}, err)
		payload = string(raw)
	}
	if compressed {
		m.h.Metrics.PayloadsShrunk.Add(1)
	}

	resilience.BestEffortDo(ctx, m.h, "history_cache_append", func(ctx context.Context) error {
		key := Key(sessionID)
		if err := m.cache.ListAppend(ctx, key, payload); err != nil {
			return err
		}
		if err := m.cache.ListTrim(ctx, key, -recentLimit, -1); err != nil {
			return err
		}
		return m.cache.Expire(ctx, key, listTTL)
	})

	m.submitDetached(ctx, "message_insert", sessionID, insertStatement(&msg))

	m.h.Metrics.MessagesAppended.Add(1)
	elapsed := span.End(ctx, nil, map[string]any{
		"session": sessionID,
		"message": msg.ID,
		"bytes":   len(raw),
	})
	m.h.Metrics.RecordHistoryOp(elapsed.Milliseconds())
	return msg.ID, nil
}

// GetHistory returns up to limit recent messages in chronological order.
// The bounded cached list serves the read when it can; individually
// malformed cached entries are skipped, never fatal. On a cache miss the
// durable store serves the read and the cache is repopulated without the
// caller waiting.
func (m *Manager) GetHistory(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	ctx, span := m.h.StartSpan(ctx, "history_get")
	m.h.Metrics.HistoryReads.Add(1)
	if limit <= 0 {
		limit = recentLimit
	}

	if msgs := m.readCachedList(ctx, sessionID, limit); len(msgs) > 0 {
		m.h.Metrics.RecordCacheOutcome(true)
		span.End(ctx, nil, map[string]any{"session": sessionID, "tier": "cache", "count": len(msgs)})
		return msgs, nil
	}
	m.h.Metrics.RecordCacheOutcome(false)

	recs, err := resilience.MustSucceed(ctx, m.h, "history_get_durable", func(ctx context.Context) ([]store.Record, error) {
		return m.db.Query(ctx,
			`SELECT message_id, session_id, role, content, tool_calls, tool_call_id, timestamp, metadata
			 FROM messages WHERE session_id = ?
			 ORDER BY timestamp DESC LIMIT ?`, sessionID, limit)
	})
	if err != nil {
		span.End(ctx, err, map[string]any{"session": sessionID})
		return nil, fmt.Errorf("get history %s: %w", sessionID, err)
	}

	// Rows arrive newest-first; reverse to chronological order.
	msgs := make([]domain.Message, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		msgs = append(msgs, *rowToMessage(recs[i]))
	}

	if len(msgs) > 0 {
		m.repopulateCache(ctx, sessionID, msgs)
	}

	span.End(ctx, nil, map[string]any{"session": sessionID, "tier": "durable", "count": len(msgs)})
	return msgs, nil
}

// GetHistoryPage reads one page of history from the durable store only,
// ascending by timestamp, strictly after the cursor when one is given.
// It asks for one extra row to detect whether another page exists.
func (m *Manager) GetHistoryPage(ctx context.Context, sessionID, cursor string, limit int) (*Page, error) {
	ctx, span := m.h.StartSpan(ctx, "history_page")
	if limit <= 0 {
		limit = recentLimit
	}

	stmt := `SELECT message_id, session_id, role, content, tool_calls, tool_call_id, timestamp, metadata
		 FROM messages WHERE session_id = ?`
	args := []any{sessionID}
	if cursor != "" {
		stmt += ` AND timestamp > ?`
		args = append(args, cursor)
	}
	stmt += ` ORDER BY timestamp ASC LIMIT ?`
	args = append(args, limit+1)

	recs, err := resilience.MustSucceed(ctx, m.h, "history_page_durable", func(ctx context.Context) ([]store.Record, error) {
		return m.db.Query(ctx, stmt, args...)
	})
	if err != nil {
		span.End(ctx, err, map[string]any{"session": sessionID})
		return nil, fmt.Errorf("get history page %s: %w", sessionID, err)
	}

	page := &Page{}
	more := len(recs) > limit
	if more {
		recs = recs[:limit]
	}
	for _, r := range recs {
		page.Messages = append(page.Messages, *rowToMessage(r))
	}
	if more && len(page.Messages) > 0 {
		page.NextCursor = page.Messages[len(page.Messages)-1].Timestamp.Format(store.TimeLayout)
	}

	span.End(ctx, nil, map[string]any{"session": sessionID, "count": len(page.Messages), "more": more})
	return page, nil
}

// ClearHistory deletes all messages for a session: best-effort on the
// cached list, must-succeed on the durable rows. The result reflects the
// durable delete only. Clearing an already-empty history succeeds.
func (m *Manager) ClearHistory(ctx context.Context, sessionID string) (bool, error) {
	ctx, span := m.h.StartSpan(ctx, "history_clear")

	resilience.BestEffortDo(ctx, m.h, "history_cache_delete", func(ctx context.Context) error {
		return m.cache.Delete(ctx, Key(sessionID))
	})

	err := resilience.MustSucceedDo(ctx, m.h, "history_clear_durable", func(ctx context.Context) error {
		_, execErr := m.db.Execute(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
		return execErr
	})
	if err != nil {
		span.End(ctx, err, map[string]any{"session": sessionID})
		return false, err
	}

	m.h.Metrics.HistoryClears.Add(1)
	span.End(ctx, nil, map[string]any{"session": sessionID})
	return true, nil
}

// readCachedList decodes the cached recent-history list, skipping entries
// that fail to decode or validate.
func (m *Manager) readCachedList(ctx context.Context, sessionID string, limit int) []domain.Message {
	entries := resilience.BestEffort(ctx, m.h, "history_cache_range", nil, func(ctx context.Context) ([]string, error) {
		return m.cache.ListRange(ctx, Key(sessionID), 0, -1)
	})
	if len(entries) == 0 {
		return nil
	}

	msgs := make([]domain.Message, 0, len(entries))
	for _, e := range entries {
		raw, err := decodePayload(e)
		if err != nil {
			m.h.Log.Debug(ctx, "history_cache_malformed", map[string]any{"session": sessionID})
			continue
		}
		var msg domain.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			m.h.Log.Debug(ctx, "history_cache_malformed", map[string]any{"session": sessionID})
			continue
		}
		if err := msg.Validate(); err != nil {
			m.h.Log.Debug(ctx, "history_cache_invalid", map[string]any{"session": sessionID, "reason": err.Error()})
			continue
		}
		msgs = append(msgs, msg)
	}

	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}

// repopulateCache rebuilds the bounded list from durable rows without the
// caller waiting on it.
func (m *Manager) repopulateCache(ctx context.Context, sessionID string, msgs []domain.Message) {
	encoded := make([]string, 0, len(msgs))
	for i := range msgs {
		raw, err := json.Marshal(&msgs[i])
		if err != nil {
			continue
		}
		payload, _, err := encodePayload(raw, compressThreshold)
		if err != nil {
			payload = string(raw)
		}
		encoded = append(encoded, payload)
	}

	_ = m.queue.Submit(ctx, detach.Job{
		Op:        "history_repopulate",
		SessionID: sessionID,
		Fn: func(ctx context.Context) error {
			key := Key(sessionID)
			if err := m.cache.Delete(ctx, key); err != nil {
				return err
			}
			for _, payload := range encoded {
				if err := m.cache.ListAppend(ctx, key, payload); err != nil {
					return err
				}
			}
			if err := m.cache.ListTrim(ctx, key, -recentLimit, -1); err != nil {
				return err
			}
			return m.cache.Expire(ctx, key, listTTL)
		},
	})
}

// submitDetached queues a durable write the caller does not wait on.
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
