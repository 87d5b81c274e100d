package core

import (
	"sync"
	"time"
)

// ConversationState is the lifecycle state of a conversation.
type ConversationState string

const (
	// ConversationInitialized means created but no message processed yet.
	ConversationInitialized ConversationState = "initialized"
	// ConversationActive means at least one message has been processed.
	ConversationActive ConversationState = "active"
	// ConversationClosed is terminal; no transition leads out of it.
	ConversationClosed ConversationState = "closed"
)

// Conversation tracks a stateful sequence of message exchanges routed to one
// or more agents. It is safe for concurrent access.
//
// Contract:
//   - The transcript is monotonically append-only; no message is ever edited
//     or removed.
//   - Participants form an ordered set that may grow via handoff but never
//     shrinks.
//   - Closed is terminal.
//   - Clone performs deep copies of maps/slices for safe divergence.
type Conversation struct {
	ID           string            `json:"id"`
	Context      map[string]any    `json:"context,omitempty"`
	Participants []string          `json:"participants,omitempty"`
	Transcript   []Message         `json:"transcript"`
	State        ConversationState `json:"state"`
	Created      time.Time         `json:"created"`
	LastActive   time.Time         `json:"last_active"`
	mu           sync.RWMutex
}

// NewConversation creates an initialized conversation with the given id and
// opaque context payload.
func NewConversation(id string, convContext map[string]any) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:         id,
		Context:    convContext,
		Transcript: []Message{},
		State:      ConversationInitialized,
		Created:    now,
		LastActive: now,
	}
}

// Append adds messages to the transcript and refreshes the activity timestamp.
func (c *Conversation) Append(msgs ...Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transcript = append(c.Transcript, msgs...)
	c.LastActive = time.Now().UTC()
}

// Messages returns a defensive copy of the transcript.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.Transcript))
	copy(out, c.Transcript)
	return out
}

// AddParticipant appends an agent id to the ordered participant set if not
// already present.
func (c *Conversation) AddParticipant(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.Participants {
		if p == agentID {
			return
		}
	}
	c.Participants = append(c.Participants, agentID)
}

// HasParticipant reports whether the agent id is a participant.
func (c *Conversation) HasParticipant(agentID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.Participants {
		if p == agentID {
			return true
		}
	}
	return false
}

// Activate transitions Initialized to Active. Activating an already active
// conversation is a no-op; a closed conversation stays closed.
func (c *Conversation) Activate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State == ConversationInitialized {
		c.State = ConversationActive
	}
}

// Close transitions the conversation to its terminal state. Idempotent.
func (c *Conversation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.State = ConversationClosed
}

// Closed reports whether the conversation is terminal.
func (c *Conversation) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.State == ConversationClosed
}

// Idle reports whether no message has been processed for at least d.
func (c *Conversation) Idle(d time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.LastActive) >= d
}

// Clone returns a deep copy of the conversation safe for independent mutation.
func (c *Conversation) Clone() *Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	clone := &Conversation{
		ID:           c.ID,
		Context:      make(map[string]any, len(c.Context)),
		Participants: append([]string(nil), c.Participants...),
		Transcript:   make([]Message, len(c.Transcript)),
		State:        c.State,
		Created:      c.Created,
		LastActive:   c.LastActive,
	}
	for k, v := range c.Context {
		clone.Context[k] = v
	}
	copy(clone.Transcript, c.Transcript)
	return clone
}
