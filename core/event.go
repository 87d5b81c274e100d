package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a lifecycle transition published by the hub.
type EventType string

const (
	// EventAgentRegistered is published on agent insert or replace.
	EventAgentRegistered EventType = "AGENT_REGISTERED"
	// EventAgentRemoved is published on explicit agent removal.
	EventAgentRemoved EventType = "AGENT_REMOVED"
	// EventAgentAvailability is published when availability flips.
	EventAgentAvailability EventType = "AGENT_AVAILABILITY_CHANGED"
	// EventConversationCreated is published on conversation initialization.
	EventConversationCreated EventType = "CONVERSATION_CREATED"
	// EventConversationClosed is published on explicit close or idle timeout.
	EventConversationClosed EventType = "CONVERSATION_CLOSED"
	// EventMessageProcessed is published after each processed message.
	EventMessageProcessed EventType = "MESSAGE_PROCESSED"
	// EventTaskCreated is published on task creation.
	EventTaskCreated EventType = "TASK_CREATED"
	// EventTaskQueued is published when a task is submitted for execution.
	EventTaskQueued EventType = "TASK_QUEUED"
	// EventTaskRunning is published when the agent invocation starts.
	EventTaskRunning EventType = "TASK_RUNNING"
	// EventTaskExecuted is published on every terminal task transition,
	// success or failure.
	EventTaskExecuted EventType = "TASK_EXECUTED"
	// EventWorkflowCreated is published after graph validation.
	EventWorkflowCreated EventType = "WORKFLOW_CREATED"
	// EventWorkflowExecuted is published when a workflow run settles.
	EventWorkflowExecuted EventType = "WORKFLOW_EXECUTED"
)

// Event is a fire-and-forget notification of a lifecycle transition. Source
// is the id of the originating entity; events from the same source are never
// reordered relative to each other.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent builds an event with a fresh id and UTC timestamp.
func NewEvent(eventType EventType, source string, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}
