package domain

import (
	"fmt"
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool, RoleSystem:
		return true
	}
	return false
}

// ToolCall describes a single tool invocation requested by a message.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Message is a single immutable entry in a session's history.
// Messages are never updated or individually deleted once appended;
// the only destructive operation is a per-session bulk clear.
type Message struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"sessionID"`
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []ToolCall     `json:"toolCalls,omitempty"`
	ToolCallID string         `json:"toolCallID,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Validate reports whether a deserialized message is structurally sound.
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message missing id")
	}
	if m.SessionID == "" {
		return fmt.Errorf("message %s missing session id", m.ID)
	}
	if !ValidRole(m.Role) {
		return fmt.Errorf("message %s has unknown role %q", m.ID, m.Role)
	}
	return nil
}
