// Package routing provides the domain model for per-session routing state
// and routing decisions.
package routing

import "time"

// IntentRecord is one entry in a session's sliding window of recent intents.
type IntentRecord struct {
	Signature   string    `json:"signature"`
	AgentID     string    `json:"agent_id"`
	Confidence  float64   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
	Fingerprint string    `json:"fingerprint"` // raw input, compared by token overlap
}

// State is the mutable per-session routing state. Exactly one State exists
// per active session id; it is created lazily on first message and evicted
// by the background sweep once idle past the session TTL.
type State struct {
	SessionID        string               `json:"session_id"`
	CurrentThread    string               `json:"current_thread"` // agent currently owning the conversation
	LastRoutedAgent  string               `json:"last_routed_agent"`
	LastRoutedTime   time.Time            `json:"last_routed_time"`
	LastUserInput    string               `json:"last_user_input"`
	LastInputTime    time.Time            `json:"last_input_time"`
	RoutingCount     int                  `json:"routing_count"`
	SessionStartTime time.Time            `json:"session_start_time"`
	LastActivity     time.Time            `json:"last_activity"`
	RecentIntents    []IntentRecord       `json:"recent_intents"` // bounded by count and time horizon
	AgentLastVisit   map[string]time.Time `json:"agent_last_visit,omitempty"`
}

// Decision is the outcome of evaluating a candidate route for one message.
type Decision struct {
	ShouldRoute    bool    `json:"should_route"`
	TargetAgent    string  `json:"target_agent"`
	Confidence     float64 `json:"confidence"`
	Reason         string  `json:"reason"`
	SuppressIntro  bool    `json:"suppress_intro"`
	DampingApplied bool    `json:"damping_applied"`
}

// Intent is the output of the intent analyzer for one input.
type Intent struct {
	Agent      string  `json:"agent"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Signature  string  `json:"signature"`
}
