// Package agents provides the built-in agent backends and the NATS-backed
// remote backend for agents running out of process.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/switchboardhq/switchboard/internal/domain/agent"
	"github.com/switchboardhq/switchboard/internal/domain/memory"
	"github.com/switchboardhq/switchboard/internal/memory/score"
	"github.com/switchboardhq/switchboard/internal/port/agentbackend"
)

// memoryAPI is the slice of the memory service the built-in agents use.
type memoryAPI interface {
	Store(ctx context.Context, req *memory.StoreRequest) (*memory.Record, error)
	Recall(ctx context.Context, req *memory.RecallRequest) (*memory.RecallResult, error)
}

// composeFunc builds the reply for one input given recalled prior context.
type composeFunc func(input string, prior *memory.RecallResult) string

// Builtin is a template-driven agent backend. Each instance owns one
// profile and a compose function; replies are deterministic, with prior
// interactions woven in when the agent's memory has something relevant.
type Builtin struct {
	profile agent.Profile
	mem     memoryAPI
	compose composeFunc
}

var _ agentbackend.Backend = (*Builtin)(nil)

// ID returns the agent identifier this backend serves.
func (b *Builtin) ID() agent.ID { return b.profile.ID }

// Profile returns the routing profile.
func (b *Builtin) Profile() agent.Profile { return b.profile }

// ProcessInput recalls the agent's own prior context, composes a reply, and
// records the exchange under the agent's memory scope.
func (b *Builtin) ProcessInput(ctx context.Context, input, userID string) (*agent.Response, error) {
	prior, err := b.mem.Recall(ctx, &memory.RecallRequest{
		AgentID: string(b.profile.ID),
		UserID:  userID,
		Query:   input,
		Options: memory.RecallOptions{Limit: 3},
	})
	if err != nil {
		// An agent without memory still answers.
		prior = &memory.RecallResult{}
	}

	msg := b.compose(input, prior)

	if _, err := b.mem.Store(ctx, &memory.StoreRequest{
		AgentID: string(b.profile.ID),
		UserID:  userID,
		Kind:    memory.KindLog,
		Input:   input,
		Output:  msg,
	}); err != nil {
		return nil, fmt.Errorf("%s: store exchange: %w", b.profile.ID, err)
	}

	return &agent.Response{Success: true, Message: msg}, nil
}

// topic extracts a short display topic from input.
func topic(input string) string {
	terms := score.TopTerms(input, 3)
	if len(terms) == 0 {
		return "that"
	}
	return strings.Join(terms, " ")
}

// priorNote summarizes recalled context for inclusion in a reply.
func priorNote(prior *memory.RecallResult) string {
	if prior == nil || len(prior.Entries) == 0 {
		return ""
	}
	return fmt.Sprintf(" (building on %d earlier related exchange(s))", len(prior.Entries))
}

// NewResearch creates the built-in research agent.
func NewResearch(mem memoryAPI) *Builtin {
	profile, _ := agent.ProfileByID(agent.Research)
	return &Builtin{
		profile: profile,
		mem:     mem,
		compose: func(input string, prior *memory.RecallResult) string {
			return fmt.Sprintf(
				"Looking into %s%s. I'll gather sources, compare them, and summarize the findings.",
				topic(input), priorNote(prior))
		},
	}
}

// NewCreative creates the built-in creative agent.
func NewCreative(mem memoryAPI) *Builtin {
	profile, _ := agent.ProfileByID(agent.Creative)
	return &Builtin{
		profile: profile,
		mem:     mem,
		compose: func(input string, prior *memory.RecallResult) string {
			return fmt.Sprintf(
				"Let's draft something around %s%s. I'll start with a few directions and we can refine from there.",
				topic(input), priorNote(prior))
		},
	}
}

// NewAutomation creates the built-in automation agent.
func NewAutomation(mem memoryAPI) *Builtin {
	profile, _ := agent.ProfileByID(agent.Automation)
	return &Builtin{
		profile: profile,
		mem:     mem,
		compose: func(input string, prior *memory.RecallResult) string {
			return fmt.Sprintf(
				"I can set up a workflow for %s%s. Tell me the trigger and the steps, and I'll wire it together.",
				topic(input), priorNote(prior))
		},
	}
}

// NewWelcome creates the built-in welcome agent. Its reply lists the
// routable agents from the static catalog.
func NewWelcome(mem memoryAPI) *Builtin {
	profile, _ := agent.ProfileByID(agent.Welcome)
	return &Builtin{
		profile: profile,
		mem:     mem,
		compose: func(_ string, _ *memory.RecallResult) string {
			var b strings.Builder
			b.WriteString("Hi! I can connect you with a specialist:\n")
			for _, p := range agent.Profiles {
				if p.ID == agent.Welcome {
					continue
				}
				fmt.Fprintf(&b, "- %s: %s\n", p.Name, p.Description)
			}
			b.WriteString("Just describe what you need.")
			return b.String()
		},
	}
}

// RegisterBuiltins registers all built-in agents on the registry.
func RegisterBuiltins(reg *agentbackend.Registry, mem memoryAPI) {
	reg.Register(NewResearch(mem))
	reg.Register(NewCreative(mem))
	reg.Register(NewAutomation(mem))
	reg.Register(NewWelcome(mem))
}
