package domain

import (
	"fmt"
	"time"
)

// Session represents one conversation with a calling agent surface.
// Version starts at 1 and only ever increases through a successful update.
type Session struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userID"`
	AdapterType string          `json:"adapterType"`
	CreatedAt   time.Time       `json:"createdAt"`
	LastActive  time.Time       `json:"lastActive"`
	Version     int64           `json:"version"`
	Ended       bool            `json:"ended,omitempty"`
	DomainState map[string]any  `json:"domainState,omitempty"`
	Metadata    SessionMetadata `json:"metadata"`
}

// SessionMetadata tracks accumulated activity for a session.
type SessionMetadata struct {
	TotalMessages int       `json:"totalMessages"`
	TotalCostUSD  float64   `json:"totalCostUSD"`
	ActiveTools   []string  `json:"activeTools,omitempty"`
	LastActivity  time.Time `json:"lastActivity"`
}

// Validate reports whether a deserialized session is structurally sound.
// A cached payload failing validation is treated as a cache miss upstream.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session missing id")
	}
	if s.UserID == "" {
		return fmt.Errorf("session %s missing user id", s.ID)
	}
	if s.Version < 1 {
		return fmt.Errorf("session %s has invalid version %d", s.ID, s.Version)
	}
	return nil
}

// SessionUpdate describes a partial mutation applied by SessionManager.Update.
// DomainState entries merge key-wise into the existing state; pointer fields
// replace the corresponding metadata field only when set.
type SessionUpdate struct {
	DomainState   map[string]any
	TotalMessages *int
	TotalCostUSD  *float64
	ActiveTools   []string
	LastActivity  *time.Time
}

// Apply merges the update into a copy of cur, bumping the version and
// refreshing LastActive. cur is not modified.
func (u SessionUpdate) Apply(cur *Session, now time.Time) *Session {
	next := *cur
	next.Version = cur.Version + 1
	next.LastActive = now

	if len(u.DomainState) > 0 {
		merged := make(map[string]any, len(cur.DomainState)+len(u.DomainState))
		for k, v := range cur.DomainState {
			merged[k] = v
		}
		for k, v := range u.DomainState {
			merged[k] = v
		}
		next.DomainState = merged
	}
	if u.TotalMessages != nil {
		next.Metadata.TotalMessages = *u.TotalMessages
	}
	if u.TotalCostUSD != nil {
		next.Metadata.TotalCostUSD = *u.TotalCostUSD
	}
	if u.ActiveTools != nil {
		next.Metadata.ActiveTools = append([]string(nil), u.ActiveTools...)
	}
	if u.LastActivity != nil {
		next.Metadata.LastActivity = *u.LastActivity
	} else {
		next.Metadata.LastActivity = now
	}
	return &next
}
