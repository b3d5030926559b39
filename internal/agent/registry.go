package agent

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the explicit agent registration table, built once at
// startup from a fixed list and passed by reference to whoever needs
// to resolve agents. There is no discovery by naming convention.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds an agent. Registering a duplicate id is an error.
func (r *Registry) Register(a Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.ID()
	if id == "" {
		return fmt.Errorf("agent id must not be empty")
	}
	if _, exists := r.agents[id]; exists {
		return fmt.Errorf("agent already registered: %s", id)
	}
	r.agents[id] = a
	return nil
}

// Get resolves an agent by id.
func (r *Registry) Get(id string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("unknown agent: %s", id)
	}
	return a, nil
}

// IDs returns all registered agent ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
