package a2a

import "github.com/switchboardhq/switchboard/internal/domain/agent"

// BuildAgentCard returns the AgentCard for the Switchboard service. The
// routing skill is the entry point; the per-agent skills mirror the static
// catalog so peers can see what a routed message may land on.
func BuildAgentCard(baseURL string) AgentCard {
	skills := []Skill{
		{
			ID:          "route-message",
			Name:        "Route Message",
			Description: "Route a message to the best-fitting specialized agent",
			InputModes:  []string{"text"},
			OutputModes: []string{"text"},
		},
	}
	for _, p := range agent.Profiles {
		skills = append(skills, Skill{
			ID:          string(p.ID),
			Name:        p.Name,
			Description: p.Description,
			InputModes:  []string{"text"},
			OutputModes: []string{"text"},
		})
	}

	return AgentCard{
		Name:        "Switchboard",
		Description: "Agent request router with relevance-scored interaction memory",
		URL:         baseURL,
		Version:     "0.1.0",
		Skills:      skills,
		Capabilities: struct {
			Streaming bool `json:"streaming"`
		}{Streaming: false},
	}
}
