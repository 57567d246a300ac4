package history

import (
	"encoding/json"

	"github.com/joss/statecore/internal/domain"
	"github.com/joss/statecore/internal/store"
)

func insertStatement(msg *domain.Message) domain.Statement {
	var toolCalls any
	if len(msg.ToolCalls) > 0 {
		b, _ := json.Marshal(msg.ToolCalls)
		toolCalls = string(b)
	}
	var metadata any
	if len(msg.Metadata) > 0 {
		b, _ := json.Marshal(msg.Metadata)
		metadata = string(b)
	}
	var toolCallID any
	if msg.ToolCallID != "" {
		toolCallID = msg.ToolCallID
	}
	return domain.Statement{
		SQL: `INSERT INTO messages
			(message_id, session_id, role, content, tool_calls, tool_call_id, timestamp, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		Args: []any{
			msg.ID, msg.SessionID, string(msg.Role), msg.Content,
			toolCalls, toolCallID,
			msg.Timestamp.Format(store.TimeLayout),
			metadata,
		},
	}
}

// rowToMessage reconstructs a message from a durable row, defaulting the
// nullable serialized columns to empty values.
func rowToMessage(rec store.Record) *domain.Message {
	msg := &domain.Message{
		ID:         rec.GetString("message_id"),
		SessionID:  rec.GetString("session_id"),
		Role:       domain.Role(rec.GetString("role")),
		Content:    rec.GetString("content"),
		ToolCallID: rec.GetString("tool_call_id"),
		Timestamp:  rec.GetTime("timestamp"),
	}

	if raw := rec.GetString("tool_calls"); raw != "" {
		var calls []domain.ToolCall
		if err := json.Unmarshal([]byte(raw), &calls); err == nil {
			msg.ToolCalls = calls
		}
	}
	if raw := rec.GetString("metadata"); raw != "" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(raw), &meta); err == nil {
			msg.Metadata = meta
		}
	}
	return msg
}
