// Package broadcast defines the port for pushing realtime routing and
// memory events to connected observers.
package broadcast

import "context"

// Broadcaster fans a typed event out to every connected listener. Delivery
// is best-effort: implementations drop slow or gone listeners rather than
// block the caller.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
