package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tidewell/agenthub/broadcast"
	"github.com/tidewell/agenthub/core"
	"github.com/tidewell/agenthub/logging"
)

// Filter is a conjunction over agent descriptor fields. Zero values match
// everything; Capabilities uses superset matching.
type Filter struct {
	Type          core.AgentType
	Provider      string
	Role          string
	Domain        string
	Capabilities  []string
	AvailableOnly bool
}

// Matches reports whether the agent satisfies every set filter field.
func (f Filter) Matches(a core.Agent) bool {
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.Provider != "" && a.Provider != f.Provider {
		return false
	}
	if f.Role != "" && a.Role != f.Role {
		return false
	}
	if f.Domain != "" && a.Domain != f.Domain {
		return false
	}
	if f.AvailableOnly && !a.Available {
		return false
	}
	return a.HasCapabilities(f.Capabilities)
}

// Options configures a Registry.
type Options struct {
	// Broadcaster receives registration lifecycle events. Optional.
	Broadcaster *broadcast.Broadcaster
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Registry holds agent descriptors and their invoker bindings. All methods
// are safe for concurrent use; reads never block on writes for unrelated
// agents beyond the shared RWMutex.
type Registry struct {
	mu          sync.RWMutex
	agents      map[string]core.Agent
	invokers    map[string]core.Invoker
	broadcaster *broadcast.Broadcaster
	logger      logging.Logger
}

// New constructs an empty Registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		agents:      make(map[string]core.Agent),
		invokers:    make(map[string]core.Invoker),
		broadcaster: opts.Broadcaster,
		logger:      opts.Logger,
	}
}

// Register inserts the descriptor or, if the id is already present, replaces
// it in place. Idempotent. The original registration timestamp survives a
// replace; an existing invoker binding survives unless Bind is called again.
// The id is generated when empty. Emits AGENT_REGISTERED.
func (r *Registry) Register(a core.Agent) string {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.mu.Lock()
	if prev, ok := r.agents[a.ID]; ok && !prev.Registered.IsZero() {
		a.Registered = prev.Registered
	} else {
		a.Registered = now
	}
	a.LastSeen = now
	r.agents[a.ID] = a.Clone()
	r.mu.Unlock()

	r.logger.Debug("agent registered", "agent_id", a.ID, "type", a.Type, "provider", a.Provider)
	r.publish(core.NewEvent(core.EventAgentRegistered, a.ID, map[string]any{
		"agent_id":   a.ID,
		"agent_type": string(a.Type),
	}))
	return a.ID
}

// Bind attaches the uniform invocation interface for an agent id.
func (r *Registry) Bind(id string, inv core.Invoker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; !ok {
		return core.NewError(core.CodeNotFound, "agent %s not registered", id)
	}
	r.invokers[id] = inv
	return nil
}

// Get returns the descriptor for an agent id.
func (r *Registry) Get(id string) (core.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return core.Agent{}, core.NewError(core.CodeNotFound, "agent %s not registered", id)
	}
	return a.Clone(), nil
}

// Invoker returns the bound invoker for an agent id. An agent without a
// binding cannot serve work and is reported as unavailable.
func (r *Registry) Invoker(id string) (core.Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.agents[id]; !ok {
		return nil, core.NewError(core.CodeNotFound, "agent %s not registered", id)
	}
	inv, ok := r.invokers[id]
	if !ok {
		return nil, core.NewError(core.CodeAgentUnavailable, "agent %s has no invoker bound", id)
	}
	return inv, nil
}

// List returns a snapshot of all agents matching the filter, ordered by id.
func (r *Registry) List(f Filter) []core.Agent {
	r.mu.RLock()
	out := make([]core.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		if f.Matches(a) {
			out = append(out, a.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Remove deletes an agent and its invoker binding. Removal is always
// explicit; nothing in the hub removes agents implicitly.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	if _, ok := r.agents[id]; !ok {
		r.mu.Unlock()
		return core.NewError(core.CodeNotFound, "agent %s not registered", id)
	}
	delete(r.agents, id)
	delete(r.invokers, id)
	r.mu.Unlock()

	r.publish(core.NewEvent(core.EventAgentRemoved, id, map[string]any{"agent_id": id}))
	return nil
}

// SetAvailability flips the mutable availability flag, e.g. from a health
// signal. Emits AGENT_AVAILABILITY_CHANGED when the value changes.
func (r *Registry) SetAvailability(id string, available bool) error {
	r.mu.Lock()
	a, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return core.NewError(core.CodeNotFound, "agent %s not registered", id)
	}
	changed := a.Available != available
	a.Available = available
	a.LastSeen = time.Now().UTC()
	r.agents[id] = a
	r.mu.Unlock()

	if changed {
		r.publish(core.NewEvent(core.EventAgentAvailability, id, map[string]any{
			"agent_id":  id,
			"available": available,
		}))
	}
	return nil
}

// Heartbeat refreshes the last-seen timestamp and marks the agent available.
func (r *Registry) Heartbeat(id string) error {
	return r.SetAvailability(id, true)
}

func (r *Registry) publish(ev core.Event) {
	if r.broadcaster != nil {
		r.broadcaster.Publish(ev)
	}
}
