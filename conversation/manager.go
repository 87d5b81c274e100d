package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/tidewell/agenthub/broadcast"
	"github.com/tidewell/agenthub/core"
	"github.com/tidewell/agenthub/logging"
	"github.com/tidewell/agenthub/registry"
	"github.com/tidewell/agenthub/task"
)

// Options configures a Manager.
type Options struct {
	// Policy is the default routing policy for conversations without an
	// explicit per-conversation override.
	Policy Policy
	// IdleTimeout closes conversations with no processed message for this
	// duration. Zero disables the sweeper.
	IdleTimeout time.Duration
	// SweepSchedule is the cron spec for the idle sweeper.
	SweepSchedule string
	// Broadcaster receives conversation lifecycle events. Optional.
	Broadcaster *broadcast.Broadcaster
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// MultiAgentOptions configure a multi-agent conversation at creation time.
type MultiAgentOptions struct {
	// Policy overrides the manager default for this conversation.
	Policy Policy `json:"policy,omitempty"`
}

// Reply is the outcome of one processed message.
type Reply struct {
	AgentID  string `json:"agent"`
	Response any    `json:"response"`
	TaskID   string `json:"task_id"`
}

// convState pairs a conversation with its routing bookkeeping. The state
// mutex serializes message processing per conversation.
type convState struct {
	mu        sync.Mutex
	conv      *core.Conversation
	policy    Policy
	lastAgent string
	next      int
}

// Manager owns conversation state and routes each message to the agent that
// should handle it, invoking the task engine for the actual work.
type Manager struct {
	registry    *registry.Registry
	tasks       *task.Engine
	broadcaster *broadcast.Broadcaster
	logger      logging.Logger

	policy      Policy
	idleTimeout time.Duration

	mu     sync.RWMutex
	states map[string]*convState

	cron *cron.Cron
}

// New constructs a Manager. When an idle timeout is configured the sweeper
// job starts immediately; call Stop to halt it.
func New(reg *registry.Registry, engine *task.Engine, optFns ...func(o *Options)) *Manager {
	opts := Options{
		Policy:        PolicyLastActive,
		SweepSchedule: "@every 1m",
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	m := &Manager{
		registry:    reg,
		tasks:       engine,
		broadcaster: opts.Broadcaster,
		logger:      opts.Logger,
		policy:      opts.Policy,
		idleTimeout: opts.IdleTimeout,
		states:      make(map[string]*convState),
	}
	if opts.IdleTimeout > 0 {
		m.cron = cron.New()
		if _, err := m.cron.AddFunc(opts.SweepSchedule, m.sweepIdle); err != nil {
			m.logger.Error("invalid sweep schedule", "schedule", opts.SweepSchedule, "error", err)
		} else {
			m.cron.Start()
		}
	}
	return m
}

// Stop halts the idle sweeper. Conversation state stays queryable.
func (m *Manager) Stop() {
	if m.cron != nil {
		m.cron.Stop()
	}
}

// Initialize creates a conversation with the given id (generated when empty)
// and opaque context. Re-initializing with identical context is idempotent
// and returns the existing conversation; a different context is a conflict.
func (m *Manager) Initialize(id string, convContext map[string]any) (*core.Conversation, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	if st, ok := m.states[id]; ok {
		existing := st.conv.Clone()
		m.mu.Unlock()
		if reflect.DeepEqual(existing.Context, normalizeContext(convContext)) {
			return existing, nil
		}
		return nil, core.NewError(core.CodeAlreadyExists, "conversation %s already exists with different context", id)
	}
	conv := core.NewConversation(id, normalizeContext(convContext))
	m.states[id] = &convState{conv: conv, policy: m.policy}
	m.mu.Unlock()

	m.publish(core.NewEvent(core.EventConversationCreated, id, map[string]any{"conversation_id": id}))
	return conv.Clone(), nil
}

// CreateMultiAgent creates a conversation seeded with a specific ordered
// participant set, enabling explicit handoff sequencing. Every named agent
// must be registered.
func (m *Manager) CreateMultiAgent(id string, agents []string, opts MultiAgentOptions) (*core.Conversation, error) {
	if len(agents) == 0 {
		return nil, core.NewError(core.CodeAgentUnavailable, "multi-agent conversation needs at least one agent")
	}
	for _, agentID := range agents {
		if _, err := m.registry.Get(agentID); err != nil {
			return nil, err
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	policy := m.policy
	if opts.Policy != "" {
		policy = opts.Policy
	}

	m.mu.Lock()
	if _, ok := m.states[id]; ok {
		m.mu.Unlock()
		return nil, core.NewError(core.CodeAlreadyExists, "conversation %s already exists", id)
	}
	conv := core.NewConversation(id, nil)
	for _, agentID := range agents {
		conv.AddParticipant(agentID)
	}
	m.states[id] = &convState{conv: conv, policy: policy}
	m.mu.Unlock()

	m.publish(core.NewEvent(core.EventConversationCreated, id, map[string]any{
		"conversation_id": id,
		"participants":    agents,
	}))
	return conv.Clone(), nil
}

// ProcessMessage routes the message to an agent, runs it as one synchronous
// task, appends both the input and the response to the transcript and
// returns the response. Processing for the same conversation id is
// serialized; the availability of the routed agent is re-checked at dispatch
// time.
func (m *Manager) ProcessMessage(ctx context.Context, id, content string, opts ProcessOptions) (*Reply, error) {
	m.mu.RLock()
	st, ok := m.states[id]
	m.mu.RUnlock()
	if !ok {
		return nil, core.NewError(core.CodeNotFound, "conversation %s not found", id)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.conv.Closed() {
		return nil, core.NewError(core.CodeCancelled, "conversation %s is closed", id)
	}

	agentID, err := m.route(st, opts)
	if err != nil {
		return nil, err
	}
	agent, err := m.registry.Get(agentID)
	if err != nil {
		return nil, err
	}
	if !agent.Available {
		return nil, core.NewError(core.CodeAgentUnavailable, "agent %s is unavailable", agentID)
	}

	taskID, err := m.tasks.Create(agentID, map[string]any{
		"conversation_id": id,
		"message":         content,
		"context":         st.conv.Context,
	})
	if err != nil {
		return nil, err
	}
	res, err := m.tasks.Execute(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if res.Error != "" {
		return nil, core.NewError(core.CodeInvocationFailure, "agent %s failed: %s", agentID, res.Error)
	}

	st.conv.Append(core.NewUserMessage(content), core.NewAgentMessage(agentID, stringify(res.Output)))
	st.conv.Activate()
	st.conv.AddParticipant(agentID)
	st.lastAgent = agentID
	st.next++

	m.publish(core.NewEvent(core.EventMessageProcessed, id, map[string]any{
		"conversation_id": id,
		"agent_id":        agentID,
		"task_id":         taskID,
	}))
	return &Reply{AgentID: agentID, Response: res.Output, TaskID: taskID}, nil
}

// Get returns a snapshot of the conversation.
func (m *Manager) Get(id string) (*core.Conversation, error) {
	m.mu.RLock()
	st, ok := m.states[id]
	m.mu.RUnlock()
	if !ok {
		return nil, core.NewError(core.CodeNotFound, "conversation %s not found", id)
	}
	// Clone synchronizes on the conversation itself, so snapshots stay
	// available while a message is being processed.
	return st.conv.Clone(), nil
}

// Close transitions the conversation to its terminal state. Idempotent.
func (m *Manager) Close(id string) error {
	m.mu.RLock()
	st, ok := m.states[id]
	m.mu.RUnlock()
	if !ok {
		return core.NewError(core.CodeNotFound, "conversation %s not found", id)
	}
	st.mu.Lock()
	alreadyClosed := st.conv.Closed()
	st.conv.Close()
	st.mu.Unlock()

	if !alreadyClosed {
		m.publish(core.NewEvent(core.EventConversationClosed, id, map[string]any{"conversation_id": id}))
	}
	return nil
}

// sweepIdle closes conversations whose idle period exceeded the timeout.
func (m *Manager) sweepIdle() {
	m.mu.RLock()
	states := make(map[string]*convState, len(m.states))
	for id, st := range m.states {
		states[id] = st
	}
	m.mu.RUnlock()

	for id, st := range states {
		st.mu.Lock()
		expired := !st.conv.Closed() && st.conv.Idle(m.idleTimeout)
		if expired {
			st.conv.Close()
		}
		st.mu.Unlock()
		if expired {
			m.logger.Info("conversation closed after idle timeout", "conversation_id", id)
			m.publish(core.NewEvent(core.EventConversationClosed, id, map[string]any{
				"conversation_id": id,
				"reason":          "idle_timeout",
			}))
		}
	}
}

func (m *Manager) publish(ev core.Event) {
	if m.broadcaster != nil {
		m.broadcaster.Publish(ev)
	}
}

// normalizeContext keeps nil and empty contexts comparable for the
// idempotent re-initialization check.
func normalizeContext(convContext map[string]any) map[string]any {
	if len(convContext) == 0 {
		return map[string]any{}
	}
	return convContext
}

func stringify(output any) string {
	switch v := output.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", v)
	}
}
