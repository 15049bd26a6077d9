package agentbackend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/switchboardhq/switchboard/internal/domain/agent"
)

// Registry holds the closed set of agent backends, registered once at
// startup. Dispatch is a checked lookup over this fixed set rather than an
// open string map.
type Registry struct {
	mu       sync.RWMutex
	backends map[agent.ID]Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[agent.ID]Backend)}
}

// Register adds a backend. It panics on duplicate registration — the agent
// set is fixed at startup and a duplicate is a programming error.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[b.ID()]; exists {
		panic(fmt.Sprintf("agentbackend: duplicate registration for %q", b.ID()))
	}
	r.backends[b.ID()] = b
}

// Get returns the backend for id.
func (r *Registry) Get(id agent.ID) (Backend, error) {
	r.mu.RLock()
	b, ok := r.backends[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("agentbackend: unknown agent %q", id)
	}
	return b, nil
}

// Available returns the registered agent ids, sorted.
func (r *Registry) Available() []agent.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]agent.ID, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
