package harness

import (
	"fmt"

	"github.com/fetchctl/fetch/pkg/models"
)

// Registry maps agent names to their adapter (spec section 4.7).
type Registry struct {
	adapters map[models.Agent]Adapter
}

// NewRegistry builds a registry pre-populated with the three known adapters.
func NewRegistry() *Registry {
	r := &Registry{adapters: map[models.Agent]Adapter{}}
	for _, a := range []Adapter{NewClaudeLikeAdapter(), NewGeminiLikeAdapter(), NewCopilotLikeAdapter()} {
		r.adapters[a.Agent()] = a
	}
	return r
}

// Get returns the adapter for a named agent.
func (r *Registry) Get(agent models.Agent) (Adapter, error) {
	a, ok := r.adapters[agent]
	if !ok {
		return nil, fmt.Errorf("harness: unknown agent %q", agent)
	}
	return a, nil
}

// TrialOrder returns the adapters to try, in order, for a given agent
// selection: a single adapter for a concrete agent, or the fixed
// models.AdapterTrialOrder when agent is "auto".
func (r *Registry) TrialOrder(agent models.Agent) ([]Adapter, error) {
	if agent != models.AgentAuto {
		a, err := r.Get(agent)
		if err != nil {
			return nil, err
		}
		return []Adapter{a}, nil
	}
	out := make([]Adapter, 0, len(models.AdapterTrialOrder))
	for _, name := range models.AdapterTrialOrder {
		a, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
