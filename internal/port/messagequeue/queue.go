// Package messagequeue defines the message queue port (interface).
package messagequeue

import (
	"context"
	"time"
)

// Handler processes a message received from the queue.
type Handler func(subject string, data []byte) error

// Queue is the port interface for publishing, subscribing, and
// request-reply messaging.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Request sends data to subject and waits for a single reply.
	Request(ctx context.Context, subject string, data []byte, timeout time.Duration) ([]byte, error)

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for NATS subjects used by Switchboard.
const (
	SubjectErrorStorage  = "errors.storage"  // degraded-storage fallback events
	SubjectErrorDispatch = "errors.dispatch" // agent dispatch failures

	// SubjectAgentRequestPrefix is the request-reply prefix for remote agent
	// backends: one responder listens on agents.request.{agent_id}.
	SubjectAgentRequestPrefix = "agents.request."
)
