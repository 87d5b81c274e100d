package core

import "time"

// Role identifies the author category of a transcript message.
type Role string

const (
	// RoleUser marks caller-supplied input.
	RoleUser Role = "user"
	// RoleAgent marks an agent-authored response.
	RoleAgent Role = "agent"
	// RoleSystem marks orchestration notices injected into a transcript.
	RoleSystem Role = "system"
)

// Message is a single transcript entry. Messages are immutable once appended;
// AgentID is set only for agent-authored messages.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	AgentID   string    `json:"agent_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage builds a user-authored message stamped with the current UTC time.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now().UTC()}
}

// NewAgentMessage builds an agent-authored message.
func NewAgentMessage(agentID, content string) Message {
	return Message{Role: RoleAgent, Content: content, AgentID: agentID, Timestamp: time.Now().UTC()}
}

// NewSystemMessage builds a system notice message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content, Timestamp: time.Now().UTC()}
}
