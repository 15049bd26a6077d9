package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/switchboardhq/switchboard/internal/domain/agent"
	"github.com/switchboardhq/switchboard/internal/port/agentbackend"
	"github.com/switchboardhq/switchboard/internal/port/messagequeue"
)

// defaultRequestTimeout bounds one remote agent round trip.
const defaultRequestTimeout = 10 * time.Second

// Remote dispatches inputs to an out-of-process agent worker over NATS
// request-reply. The worker listens on agents.request.{agent_id}.
type Remote struct {
	profile agent.Profile
	queue   messagequeue.Queue
	timeout time.Duration
}

var _ agentbackend.Backend = (*Remote)(nil)

// NewRemote creates a remote backend for the given profile.
func NewRemote(profile agent.Profile, queue messagequeue.Queue) *Remote {
	return &Remote{profile: profile, queue: queue, timeout: defaultRequestTimeout}
}

// ID returns the agent identifier this backend serves.
func (r *Remote) ID() agent.ID { return r.profile.ID }

// Profile returns the routing profile.
func (r *Remote) Profile() agent.Profile { return r.profile }

// ProcessInput forwards the input to the remote worker and waits for its
// reply. A missing or failed worker surfaces as an error so the router can
// degrade to an apology.
func (r *Remote) ProcessInput(ctx context.Context, input, userID string) (*agent.Response, error) {
	data, err := json.Marshal(messagequeue.AgentRequestPayload{
		Input:  input,
		UserID: userID,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", r.profile.ID, err)
	}

	subject := messagequeue.SubjectAgentRequestPrefix + string(r.profile.ID)
	replyData, err := r.queue.Request(ctx, subject, data, r.timeout)
	if err != nil {
		return nil, fmt.Errorf("%s: remote request: %w", r.profile.ID, err)
	}

	var reply messagequeue.AgentReplyPayload
	if err := json.Unmarshal(replyData, &reply); err != nil {
		return nil, fmt.Errorf("%s: unmarshal reply: %w", r.profile.ID, err)
	}
	if !reply.Success {
		return nil, fmt.Errorf("%s: remote worker failed: %s", r.profile.ID, reply.Error)
	}

	return &agent.Response{Success: true, Message: reply.Message}, nil
}
