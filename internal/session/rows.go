package session

import (
	"encoding/json"
	"time"

	"github.com/joss/statecore/internal/domain"
	"github.com/joss/statecore/internal/store"
)

// metaColumn is the serialized shape of the metadata column. Message and
// cost totals live in their own columns.
type metaColumn struct {
	ActiveTools  []string  `json:"activeTools,omitempty"`
	LastActivity time.Time `json:"lastActivity"`
}

func insertStatement(sess *domain.Session) domain.Statement {
	domainState, _ := json.Marshal(sess.DomainState)
	meta, _ := json.Marshal(metaColumn{
		ActiveTools:  sess.Metadata.ActiveTools,
		LastActivity: sess.Metadata.LastActivity,
	})
	return domain.Statement{
		SQL: `INSERT INTO sessions
			(session_id, user_id, adapter_type, created_at, last_active,
			 version, ended, domain_state, total_messages, total_cost_usd, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		Args: []any{
			sess.ID, sess.UserID, sess.AdapterType,
			sess.CreatedAt.Format(store.TimeLayout),
			sess.LastActive.Format(store.TimeLayout),
			sess.Version, boolToInt(sess.Ended),
			string(domainState),
			sess.Metadata.TotalMessages, sess.Metadata.TotalCostUSD,
			string(meta),
		},
	}
}

// updateStatement guards the write with the version the writer read, so a
// stale detached write silently affects zero rows instead of clobbering a
// newer one.
func updateStatement(sess *domain.Session, guardVersion int64) domain.Statement {
	domainState, _ := json.Marshal(sess.DomainState)
	meta, _ := json.Marshal(metaColumn{
		ActiveTools:  sess.Metadata.ActiveTools,
		LastActivity: sess.Metadata.LastActivity,
	})
	return domain.Statement{
		SQL: `UPDATE sessions SET
			last_active = ?, version = ?, ended = ?, domain_state = ?,
			total_messages = ?, total_cost_usd = ?, metadata = ?
			WHERE session_id = ? AND version = ?`,
		Args: []any{
			sess.LastActive.Format(store.TimeLayout),
			sess.Version, boolToInt(sess.Ended),
			string(domainState),
			sess.Metadata.TotalMessages, sess.Metadata.TotalCostUSD,
			string(meta),
			sess.ID, guardVersion,
		},
	}
}

// rowToSession reconstructs a session from a durable row, defaulting any
// missing or malformed serialized sub-fields to empty values.
func rowToSession(rec store.Record) *domain.Session {
	sess := &domain.Session{
		ID:          rec.GetString("session_id"),
		UserID:      rec.GetString("user_id"),
		AdapterType: rec.GetString("adapter_type"),
		CreatedAt:   rec.GetTime("created_at"),
		LastActive:  rec.GetTime("last_active"),
		Version:     rec.GetInt64("version"),
		Ended:       rec.GetBool("ended"),
		DomainState: map[string]any{},
		Metadata: domain.SessionMetadata{
			TotalMessages: rec.GetInt("total_messages"),
			TotalCostUSD:  rec.GetFloat("total_cost_usd"),
		},
	}

	if raw := rec.GetString("domain_state"); raw != "" {
		var state map[string]any
		if err := json.Unmarshal([]byte(raw), &state); err == nil && state != nil {
			sess.DomainState = state
		}
	}
	if raw := rec.GetString("metadata"); raw != "" {
		var meta metaColumn
		if err := json.Unmarshal([]byte(raw), &meta); err == nil {
			sess.Metadata.ActiveTools = meta.ActiveTools
			sess.Metadata.LastActivity = meta.LastActivity
		}
	}
	return sess
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
