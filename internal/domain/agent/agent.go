// Package agent provides the domain model for the closed set of
// specialized conversational agents.
package agent

// ID identifies one of the registered agents. The set is closed: backends
// are registered at startup and dispatch is a checked lookup, not an open
// string map.
type ID string

const (
	Research   ID = "research"
	Creative   ID = "creative"
	Automation ID = "automation"
	Welcome    ID = "welcome"
	// Router is the pseudo-agent owning a session before the first handoff.
	Router ID = "router"
)

// Profile describes an agent for routing and clarification ranking.
type Profile struct {
	ID          ID       `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// Profiles is the static catalog of routable agents, in display order.
var Profiles = []Profile{
	{
		ID:          Research,
		Name:        "Research Agent",
		Description: "Finds, compares and summarizes information",
		Keywords:    []string{"research", "find", "search", "compare", "summarize", "look", "information", "learn"},
	},
	{
		ID:          Creative,
		Name:        "Creative Agent",
		Description: "Writes, drafts and brainstorms content",
		Keywords:    []string{"write", "draft", "create", "brainstorm", "story", "content", "idea", "design"},
	},
	{
		ID:          Automation,
		Name:        "Automation Agent",
		Description: "Automates workflows, scripts and integrations",
		Keywords:    []string{"automate", "automation", "script", "workflow", "schedule", "integrate", "fix", "run"},
	},
	{
		ID:          Welcome,
		Name:        "Welcome Agent",
		Description: "Explains what the system can do and gets you started",
		Keywords:    []string{"hello", "hi", "help", "start", "welcome", "onboarding", "what"},
	},
}

// ProfileByID returns the profile for id, or false when the id is not part
// of the routable set.
func ProfileByID(id ID) (Profile, bool) {
	for _, p := range Profiles {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}

// Response is what an agent backend returns for one processed input.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
