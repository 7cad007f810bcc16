package agent

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Factory builds an agent from its configuration.
type Factory func(cfg Config) (Agent, error)

// Tagged is implemented by agents that expose their config tags.
type Tagged interface {
	Tags() []string
}

// Registry maps agent ids to live agents and to factories that can build
// them from configuration. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	agents    map[string]Agent
	factories map[string]Factory
	logger    *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		agents:    make(map[string]Agent),
		factories: make(map[string]Factory),
		logger:    logger.With(zap.String("component", "agent_registry")),
	}
}

// Register adds a, replacing any agent with the same id.
func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.agents[a.ID()] = a
	r.logger.Debug("agent registered", zap.String("id", a.ID()))
}

// RegisterFactory registers the factory used by CreateFromConfig for id.
func (r *Registry) RegisterFactory(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[id] = f
}

// CreateFromConfig builds the agent for cfg.ID with its factory and registers it.
func (r *Registry) CreateFromConfig(cfg Config) (Agent, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.ID]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoFactory, cfg.ID)
	}
	a, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent %q: %w", cfg.ID, err)
	}
	r.Register(a)
	return a, nil
}

// Get returns the agent registered under id.
func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	return a, ok
}

// Lookup is like Get but returns ErrAgentNotFound when id is unknown.
func (r *Registry) Lookup(id string) (Agent, error) {
	if a, ok := r.Get(id); ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
}

func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Unregister removes id and reports whether it was registered.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.agents[id]
	delete(r.agents, id)
	return ok
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// All returns the registered agents ordered by id.
func (r *Registry) All() []Agent {
	ids := r.IDs()

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(ids))
	for _, id := range ids {
		if a, ok := r.agents[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

// ByTag returns agents carrying tag. Agents without tags match when the
// tag appears in their description.
func (r *Registry) ByTag(tag string) []Agent {
	tag = strings.ToLower(tag)
	var out []Agent
	for _, a := range r.All() {
		if t, ok := a.(Tagged); ok && len(t.Tags()) > 0 {
			for _, at := range t.Tags() {
				if strings.ToLower(at) == tag {
					out = append(out, a)
					break
				}
			}
			continue
		}
		if strings.Contains(strings.ToLower(a.Description()), tag) {
			out = append(out, a)
		}
	}
	return out
}

// Clear removes every registered agent. Factories are kept.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.agents = make(map[string]Agent)
}
