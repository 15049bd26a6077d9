// Package errsink defines the error sink port: a structured collaborator
// notified on every degraded-storage fallback and agent dispatch failure.
package errsink

import (
	"context"
	"log/slog"
	"time"
)

// Event kinds.
const (
	KindStorageFallback = "storage_fallback"
	KindDispatchFailure = "dispatch_failure"
)

// Event carries the structured context of one degradation or failure.
type Event struct {
	Kind      string    `json:"kind"`
	AgentID   string    `json:"agent_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Input     string    `json:"input,omitempty"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives failure events. Implementations must not block the caller's
// hot path and must never return control-flow-changing errors.
type Sink interface {
	Report(ctx context.Context, ev Event)
}

// LogSink reports events to slog. It is the default sink when no external
// sink is configured.
type LogSink struct{}

// Report logs the event at error level.
func (LogSink) Report(_ context.Context, ev Event) {
	slog.Error("degraded operation",
		"kind", ev.Kind,
		"agent_id", ev.AgentID,
		"session_id", ev.SessionID,
		"error", ev.Error,
	)
}
