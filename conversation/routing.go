package conversation

import (
	"github.com/tidewell/agenthub/core"
	"github.com/tidewell/agenthub/registry"
)

// Policy selects the next responding agent among a conversation's
// participants when the caller names no explicit target.
type Policy string

const (
	// PolicyLastActive routes to the most recently active participant,
	// falling back to the first participant before any agent has responded.
	PolicyLastActive Policy = "last_active"
	// PolicyRoundRobin cycles through participants in seeding order.
	PolicyRoundRobin Policy = "round_robin"
)

// ProcessOptions influence routing for a single message.
type ProcessOptions struct {
	// TargetAgent names an explicit routing target, overriding any policy.
	TargetAgent string `json:"target_agent,omitempty"`
	// Capabilities are routing hints for the registry fallback. When empty,
	// hints are taken from the conversation context.
	Capabilities []string `json:"capabilities,omitempty"`
}

// route resolves the responding agent id for the next message. Order of
// precedence: explicit target, policy over participants, registry fallback
// using capability hints. The caller holds the conversation lock.
func (m *Manager) route(st *convState, opts ProcessOptions) (string, error) {
	if opts.TargetAgent != "" {
		return opts.TargetAgent, nil
	}

	participants := st.conv.Participants
	if len(participants) > 0 {
		switch st.policy {
		case PolicyRoundRobin:
			return participants[st.next%len(participants)], nil
		default:
			if st.lastAgent != "" {
				return st.lastAgent, nil
			}
			return participants[0], nil
		}
	}

	// No participants yet: resolve a router agent via the registry using
	// the conversation's context as capability hints.
	hints := opts.Capabilities
	if len(hints) == 0 {
		hints = capabilityHints(st.conv.Context)
	}
	candidates := m.registry.List(registry.Filter{Capabilities: hints, AvailableOnly: true})
	if len(candidates) == 0 {
		return "", core.NewError(core.CodeAgentUnavailable, "no available agent matches capabilities %v", hints)
	}
	for _, a := range candidates {
		if a.Type == core.AgentTypeRouter {
			return a.ID, nil
		}
	}
	return candidates[0].ID, nil
}

// capabilityHints extracts routing hints from an opaque conversation context.
// Accepts either []string or []any of strings under the "capabilities" key.
func capabilityHints(convContext map[string]any) []string {
	raw, ok := convContext["capabilities"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
