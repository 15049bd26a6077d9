package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventRoutingDecision = "routing.decision"
	EventStorageDegraded = "storage.degraded"
	EventSessionExpired  = "session.expired"
)

// RoutingDecisionEvent is broadcast after every processed message.
type RoutingDecisionEvent struct {
	SessionID  string  `json:"session_id"`
	Agent      string  `json:"agent"`
	Routed     bool    `json:"routed"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// StorageDegradedEvent is broadcast when the primary memory backend falls
// back to file storage.
type StorageDegradedEvent struct {
	Op    string `json:"op"`
	Error string `json:"error"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
