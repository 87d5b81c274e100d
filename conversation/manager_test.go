package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidewell/agenthub/broadcast"
	"github.com/tidewell/agenthub/core"
	"github.com/tidewell/agenthub/registry"
	"github.com/tidewell/agenthub/task"
)

type invokerFunc func(ctx context.Context, payload any) (any, error)

func (f invokerFunc) Invoke(ctx context.Context, payload any) (any, error) { return f(ctx, payload) }

// namedEcho replies with "<id>:<message>" so tests can observe routing.
func namedEcho(id string) core.Invoker {
	return invokerFunc(func(_ context.Context, payload any) (any, error) {
		msg := ""
		if p, ok := payload.(map[string]any); ok {
			msg, _ = p["message"].(string)
		}
		return fmt.Sprintf("%s:%s", id, msg), nil
	})
}

func newTestManager(t *testing.T, optFns ...func(o *Options)) (*Manager, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	for _, id := range []string{"alpha", "beta", "gamma"} {
		reg.Register(core.Agent{ID: id, Type: core.AgentTypeWorker, Capabilities: []string{"chat"}, Available: true})
		require.NoError(t, reg.Bind(id, namedEcho(id)))
	}
	reg.Register(core.Agent{ID: "router-1", Type: core.AgentTypeRouter, Capabilities: []string{"chat", "route"}, Available: true})
	require.NoError(t, reg.Bind("router-1", namedEcho("router-1")))

	engine := task.New(reg, func(o *task.Options) { o.InitialBackoff = time.Millisecond })
	m := New(reg, engine, optFns...)
	t.Cleanup(m.Stop)
	return m, reg
}

func TestInitializeIdempotent(t *testing.T) {
	m, _ := newTestManager(t)

	first, err := m.Initialize("c1", map[string]any{"topic": "billing"})
	require.NoError(t, err)
	assert.Equal(t, core.ConversationInitialized, first.State)

	// Identical context: idempotent.
	again, err := m.Initialize("c1", map[string]any{"topic": "billing"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	// Different context: conflict.
	_, err = m.Initialize("c1", map[string]any{"topic": "shipping"})
	require.Error(t, err)
	assert.True(t, core.IsCode(err, core.CodeAlreadyExists))
}

func TestInitializeGeneratesID(t *testing.T) {
	m, _ := newTestManager(t)
	conv, err := m.Initialize("", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
}

func TestProcessMessageExplicitTarget(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Initialize("c1", nil)
	require.NoError(t, err)

	reply, err := m.ProcessMessage(context.Background(), "c1", "hi", ProcessOptions{TargetAgent: "beta"})
	require.NoError(t, err)
	assert.Equal(t, "beta", reply.AgentID)
	assert.Equal(t, "beta:hi", reply.Response)

	conv, err := m.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, core.ConversationActive, conv.State)
	assert.Contains(t, conv.Participants, "beta")
}

func TestProcessMessageTranscriptGrowth(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Initialize("c1", nil)
	require.NoError(t, err)

	const n = 4
	for i := 0; i < n; i++ {
		_, err := m.ProcessMessage(context.Background(), "c1", fmt.Sprintf("msg-%d", i), ProcessOptions{TargetAgent: "alpha"})
		require.NoError(t, err)
	}

	conv, err := m.Get("c1")
	require.NoError(t, err)
	require.Len(t, conv.Transcript, 2*n)
	for i := 0; i < n; i++ {
		user, agent := conv.Transcript[2*i], conv.Transcript[2*i+1]
		assert.Equal(t, core.RoleUser, user.Role)
		assert.Equal(t, fmt.Sprintf("msg-%d", i), user.Content)
		assert.Equal(t, core.RoleAgent, agent.Role)
		assert.Equal(t, "alpha", agent.AgentID)
	}
}

func TestProcessMessageLastActiveRouting(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Initialize("c1", nil)
	require.NoError(t, err)

	// Seed the conversation by targeting gamma once; subsequent untargeted
	// messages stick with the most recently active participant.
	_, err = m.ProcessMessage(context.Background(), "c1", "hi", ProcessOptions{TargetAgent: "gamma"})
	require.NoError(t, err)

	reply, err := m.ProcessMessage(context.Background(), "c1", "again", ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, "gamma", reply.AgentID)
}

func TestProcessMessageCapabilityFallback(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Initialize("c1", map[string]any{"capabilities": []string{"route"}})
	require.NoError(t, err)

	reply, err := m.ProcessMessage(context.Background(), "c1", "hi", ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, "router-1", reply.AgentID)
}

func TestProcessMessageNoEligibleAgent(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Initialize("c1", map[string]any{"capabilities": []string{"nonexistent"}})
	require.NoError(t, err)

	_, err = m.ProcessMessage(context.Background(), "c1", "hi", ProcessOptions{})
	require.Error(t, err)
	assert.True(t, core.IsCode(err, core.CodeAgentUnavailable))
}

func TestProcessMessageUnavailableTargetReported(t *testing.T) {
	m, reg := newTestManager(t)
	_, err := m.Initialize("c1", nil)
	require.NoError(t, err)
	require.NoError(t, reg.SetAvailability("alpha", false))

	_, err = m.ProcessMessage(context.Background(), "c1", "hi", ProcessOptions{TargetAgent: "alpha"})
	require.Error(t, err)
	assert.True(t, core.IsCode(err, core.CodeAgentUnavailable))

	// Nothing was appended to the transcript.
	conv, err := m.Get("c1")
	require.NoError(t, err)
	assert.Empty(t, conv.Transcript)
}

func TestProcessMessageUnknownConversation(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.ProcessMessage(context.Background(), "missing", "hi", ProcessOptions{})
	assert.True(t, core.IsCode(err, core.CodeNotFound))
}

func TestMultiAgentRoundRobin(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.CreateMultiAgent("c1", []string{"alpha", "beta"}, MultiAgentOptions{Policy: PolicyRoundRobin})
	require.NoError(t, err)

	var got []string
	for i := 0; i < 4; i++ {
		reply, err := m.ProcessMessage(context.Background(), "c1", "hi", ProcessOptions{})
		require.NoError(t, err)
		got = append(got, reply.AgentID)
	}
	assert.Equal(t, []string{"alpha", "beta", "alpha", "beta"}, got)
}

func TestMultiAgentUnknownAgentRejected(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.CreateMultiAgent("c1", []string{"alpha", "missing"}, MultiAgentOptions{})
	require.Error(t, err)
	assert.True(t, core.IsCode(err, core.CodeNotFound))

	// No partial side effects: the conversation was not created.
	_, err = m.Get("c1")
	assert.True(t, core.IsCode(err, core.CodeNotFound))
}

func TestCloseStopsProcessing(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Initialize("c1", nil)
	require.NoError(t, err)
	require.NoError(t, m.Close("c1"))

	_, err = m.ProcessMessage(context.Background(), "c1", "hi", ProcessOptions{TargetAgent: "alpha"})
	require.Error(t, err)
	assert.True(t, core.IsCode(err, core.CodeCancelled))
}

func TestIdleSweep(t *testing.T) {
	b := broadcast.New()
	defer b.Close()
	sub := b.Subscribe(core.EventConversationClosed)
	defer sub.Close()

	m, _ := newTestManager(t, func(o *Options) {
		o.IdleTimeout = 10 * time.Millisecond
		o.SweepSchedule = "@every 1s"
		o.Broadcaster = b
	})
	_, err := m.Initialize("c1", nil)
	require.NoError(t, err)

	// Drive the sweep directly instead of waiting for the schedule.
	time.Sleep(20 * time.Millisecond)
	m.sweepIdle()

	conv, err := m.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, core.ConversationClosed, conv.State)

	ev := <-sub.Events()
	assert.Equal(t, "idle_timeout", ev.Payload["reason"])
}
