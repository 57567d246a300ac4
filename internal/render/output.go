// Package render provides output formatting for the CLI.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/joss/statecore/internal/domain"
)

// Renderer handles output formatting.
type Renderer struct {
	pretty bool
}

// New creates a new renderer.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

// Session formats one session.
func (r *Renderer) Session(sess *domain.Session) string {
	var sb strings.Builder

	state := "active"
	if sess.Ended {
		state = "ended"
	}

	if r.pretty {
		sb.WriteString(color.CyanString("Session %s\n", sess.ID))
		fmt.Fprintf(&sb, "  user:      %s\n", sess.UserID)
		fmt.Fprintf(&sb, "  adapter:   %s\n", sess.AdapterType)
		fmt.Fprintf(&sb, "  version:   %d\n", sess.Version)
		fmt.Fprintf(&sb, "  state:     %s\n", r.state(state))
		fmt.Fprintf(&sb, "  created:   %s\n", sess.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "  last seen: %s\n", sess.LastActive.Format(time.RFC3339))
		fmt.Fprintf(&sb, "  messages:  %d  cost: $%.4f\n", sess.Metadata.TotalMessages, sess.Metadata.TotalCostUSD)
	} else {
		fmt.Fprintf(&sb, "%s %s %s v%d %s %d msgs\n",
			sess.ID, sess.UserID, sess.AdapterType, sess.Version, state, sess.Metadata.TotalMessages)
	}
	return sb.String()
}

// Sessions formats a session list.
func (r *Renderer) Sessions(sessions []*domain.Session) string {
	if len(sessions) == 0 {
		return "No sessions found"
	}

	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Sessions\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}
	for _, s := range sessions {
		sb.WriteString(r.Session(s))
	}
	return sb.String()
}

// Messages formats a history slice in chronological order.
func (r *Renderer) Messages(msgs []domain.Message) string {
	if len(msgs) == 0 {
		return "No messages found"
	}

	var sb strings.Builder
	for _, m := range msgs {
		timeStr := m.Timestamp.Format("15:04:05")
		if r.pretty {
			fmt.Fprintf(&sb, "%s %s %s\n",
				color.HiBlackString(timeStr), r.role(m.Role), m.Content)
			for _, tc := range m.ToolCalls {
				fmt.Fprintf(&sb, "    %s %s\n", color.YellowString("tool:"), tc.Name)
			}
		} else {
			fmt.Fprintf(&sb, "[%s] %s: %s\n", timeStr, m.Role, m.Content)
		}
	}
	return sb.String()
}

func (r *Renderer) role(role domain.Role) string {
	switch role {
	case domain.RoleUser:
		return color.GreenString("%-9s", role)
	case domain.RoleAssistant:
		return color.BlueString("%-9s", role)
	case domain.RoleTool:
		return color.YellowString("%-9s", role)
	default:
		return color.HiBlackString("%-9s", role)
	}
}

func (r *Renderer) state(state string) string {
	if state == "ended" {
		return color.RedString(state)
	}
	return color.GreenString(state)
}
