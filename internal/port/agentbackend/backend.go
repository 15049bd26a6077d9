// Package agentbackend defines the agent backend port (interface) and the
// startup registry for the closed agent set.
package agentbackend

import (
	"context"

	"github.com/switchboardhq/switchboard/internal/domain/agent"
)

// Backend is the port interface for a specialized conversational agent.
// The router does not know or care how a backend is implemented — template
// responses and remote LLM workers are equally valid.
type Backend interface {
	// ID returns the agent identifier this backend serves.
	ID() agent.ID

	// Profile returns the routing profile (name, description, keywords).
	Profile() agent.Profile

	// ProcessInput handles one user input and returns the agent's reply.
	ProcessInput(ctx context.Context, input, userID string) (*agent.Response, error)
}
