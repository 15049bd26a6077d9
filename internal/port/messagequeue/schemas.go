package messagequeue

// AgentRequestPayload is the schema for agents.request.{agent_id} requests.
type AgentRequestPayload struct {
	Input  string `json:"input"`
	UserID string `json:"user_id,omitempty"`
}

// AgentReplyPayload is the schema for remote agent replies.
type AgentReplyPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
