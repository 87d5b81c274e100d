package core

import (
	"context"
	"time"
)

// AgentType categorizes the role an agent plays in orchestration.
type AgentType string

const (
	// AgentTypeWorker performs concrete units of work.
	AgentTypeWorker AgentType = "worker"
	// AgentTypeRouter is eligible as a fallback routing target for
	// conversations without an explicit participant.
	AgentTypeRouter AgentType = "router"
	// AgentTypeOrchestrator coordinates other agents.
	AgentTypeOrchestrator AgentType = "orchestrator"
	// AgentTypeSpecialist serves a narrow domain.
	AgentTypeSpecialist AgentType = "specialist"
)

// Agent is a descriptor, not a live object: it identifies a registered
// capability provider. The descriptor is owned exclusively by the registry;
// re-registration with the same ID replaces it in place and removal is always
// an explicit operation.
type Agent struct {
	ID           string    `json:"id"`
	Type         AgentType `json:"type"`
	Provider     string    `json:"provider"`
	Role         string    `json:"role,omitempty"`
	Capabilities []string  `json:"capabilities,omitempty"`
	Domain       string    `json:"domain,omitempty"`
	Available    bool      `json:"available"`
	Registered   time.Time `json:"registered,omitzero"`
	LastSeen     time.Time `json:"last_seen,omitzero"`
}

// HasCapabilities reports whether the agent's capability set is a superset of
// every requested capability. Superset (not exact-set) matching lets agents
// with broader skill sets satisfy narrower requests.
func (a Agent) HasCapabilities(required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(a.Capabilities))
	for _, c := range a.Capabilities {
		have[c] = struct{}{}
	}
	for _, c := range required {
		if _, ok := have[c]; !ok {
			return false
		}
	}
	return true
}

// Clone returns a copy safe for independent mutation.
func (a Agent) Clone() Agent {
	a.Capabilities = append([]string(nil), a.Capabilities...)
	return a
}

// Invoker is the uniform capability interface behind every registered agent.
// It abstracts over in-process functions, subprocesses and remote APIs so the
// task engine stays decoupled from how a given agent is implemented.
//
// Implementations must respect ctx cancellation and may mark transient
// failures with Transient so the task engine retries them.
type Invoker interface {
	Invoke(ctx context.Context, payload any) (any, error)
}
