package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// Registry owns the agent instance per organization. Agents are created on
// first use with the org's stored settings and live until Shutdown; nothing
// here is a process-global singleton, the registry is injected wherever
// agents are needed.
type Registry struct {
	deps Deps

	mu     sync.Mutex
	agents map[string]*Agent
	closed bool
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:   deps,
		agents: make(map[string]*Agent),
	}
}

// Get returns the org's agent, starting one on first use. The org must
// exist; its settings configure the new agent.
func (r *Registry) Get(ctx context.Context, orgID string) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("registry is shut down")
	}
	if a, ok := r.agents[orgID]; ok {
		return a, nil
	}

	org, err := r.deps.Store.GetOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("load org %s: %w", orgID, err)
	}

	a, err := New(orgID, org.Settings, r.deps)
	if err != nil {
		return nil, fmt.Errorf("build agent for org %s: %w", orgID, err)
	}
	a.Start()
	r.agents[orgID] = a

	log.Info().Str("org_id", orgID).Msg("agent created on first use")
	return a, nil
}

// Peek returns the org's agent only if one is already running.
func (r *Registry) Peek(orgID string) (*Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[orgID]
	return a, ok
}

// Remove stops and drops one org's agent.
func (r *Registry) Remove(ctx context.Context, orgID string) error {
	r.mu.Lock()
	a, ok := r.agents[orgID]
	delete(r.agents, orgID)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return a.Stop(ctx)
}

// Stats snapshots every running agent, ordered by org id.
func (r *Registry) Stats() []models.AgentStats {
	r.mu.Lock()
	agents := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	r.mu.Unlock()

	stats := make([]models.AgentStats, 0, len(agents))
	for _, a := range agents {
		stats = append(stats, a.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].OrgID < stats[j].OrgID })
	return stats
}

// Shutdown stops every agent. The registry refuses new agents afterwards.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	agents := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	r.agents = make(map[string]*Agent)
	r.mu.Unlock()

	var firstErr error
	for _, a := range agents {
		if err := a.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
