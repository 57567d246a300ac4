// Package logging provides structured JSON logging for statecore components.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event represents a structured log event
type Event struct {
	Timestamp string         `json:"ts"`
	Level     Level          `json:"level"`
	Component string         `json:"component"`
	Event     string         `json:"event"`
	Session   string         `json:"session,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Duration  int64          `json:"duration_ms,omitempty"`
	Error     string         `json:"error,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Logger emits structured log events. The request ID is read from the
// call context on every emit, so concurrent calls never share correlation
// state.
type Logger struct {
	component string
	session   string
	out       io.Writer
}

// New creates a new logger for a component, writing to stderr.
func New(component string) *Logger {
	return &Logger{component: component, out: os.Stderr}
}

// NewWithWriter creates a logger writing to the given sink (for tests).
func NewWithWriter(component string, out io.Writer) *Logger {
	return &Logger{component: component, out: out}
}

// WithSession returns a logger that stamps every event with a session ID.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{
		component: l.component,
		session:   sessionID,
		out:       l.out,
	}
}

// log emits a structured log event
func (l *Logger) log(ctx context.Context, level Level, event string, extra map[string]any, err error) {
	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Component: l.component,
		Event:     event,
		Session:   l.session,
		RequestID: GetRequestID(ctx),
		Extra:     extra,
	}

	if err != nil {
		e.Error = err.Error()
	}

	data, _ := json.Marshal(e)
	fmt.Fprintln(l.out, string(data))
}

// Debug logs a debug event
func (l *Logger) Debug(ctx context.Context, event string, extra map[string]any) {
	l.log(ctx, LevelDebug, event, extra, nil)
}

// Info logs an info event
func (l *Logger) Info(ctx context.Context, event string, extra map[string]any) {
	l.log(ctx, LevelInfo, event, extra, nil)
}

// Warn logs a warning event
func (l *Logger) Warn(ctx context.Context, event string, extra map[string]any, err error) {
	l.log(ctx, LevelWarn, event, extra, err)
}

// Error logs an error event
func (l *Logger) Error(ctx context.Context, event string, extra map[string]any, err error) {
	l.log(ctx, LevelError, event, extra, err)
}

// TimedEvent logs an event with the duration since start.
func (l *Logger) TimedEvent(ctx context.Context, event string, start time.Time, extra map[string]any) {
	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     LevelInfo,
		Component: l.component,
		Event:     event,
		Session:   l.session,
		RequestID: GetRequestID(ctx),
		Duration:  time.Since(start).Milliseconds(),
		Extra:     extra,
	}

	data, _ := json.Marshal(e)
	fmt.Fprintln(l.out, string(data))
}
