package agenthub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidewell/agenthub/config"
	"github.com/tidewell/agenthub/conversation"
	"github.com/tidewell/agenthub/core"
	"github.com/tidewell/agenthub/provider"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	cfg := config.Default()
	cfg.Engine.InitialBackoff = time.Millisecond
	h := New(func(o *Options) { o.Config = cfg })
	t.Cleanup(h.Close)
	return h
}

func TestEndToEndConversation(t *testing.T) {
	h := newTestHub(t)

	_, err := h.RegisterAgent(core.Agent{
		ID:           "assistant",
		Type:         core.AgentTypeWorker,
		Capabilities: []string{"chat"},
		Available:    true,
	}, nil)
	require.NoError(t, err)

	conv, err := h.Conversations().Initialize("support", nil)
	require.NoError(t, err)

	reply, err := h.ProcessMessage(context.Background(), conv.ID, "hello", conversation.ProcessOptions{TargetAgent: "assistant"})
	require.NoError(t, err)
	assert.Equal(t, "assistant", reply.AgentID)
	assert.Equal(t, "hello", reply.Response)
}

func TestEndToEndWorkflow(t *testing.T) {
	h := newTestHub(t)

	_, err := h.RegisterAgentWithInvoker(
		core.Agent{ID: "upper", Type: core.AgentTypeWorker, Available: true},
		provider.Func(func(_ context.Context, payload any) (any, error) {
			return "processed:" + provider.PayloadText(payload), nil
		}),
	)
	require.NoError(t, err)

	id, err := h.Workflows().Create("", []core.TaskSpec{
		{ID: "fetch", AgentID: "upper", Payload: "data"},
		{ID: "report", AgentID: "upper", Payload: "summary", DependsOn: []string{"fetch"}},
	})
	require.NoError(t, err)

	summary, err := h.Workflows().Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, core.WorkflowSucceeded, summary.Status)
	assert.Equal(t, "processed:data", summary.Outputs["fetch"])
}

func TestRegisterAgentUnknownProvider(t *testing.T) {
	h := newTestHub(t)
	_, err := h.RegisterAgent(core.Agent{ID: "a", Provider: "nope", Available: true}, nil)
	assert.True(t, core.IsCode(err, core.CodeNotFound))
}

func TestEventsFlowThroughSharedBroadcaster(t *testing.T) {
	h := newTestHub(t)
	sub := h.Broadcaster().Subscribe(core.EventAgentRegistered, core.EventTaskExecuted)
	defer sub.Close()

	_, err := h.RegisterAgent(core.Agent{ID: "a", Type: core.AgentTypeWorker, Available: true}, nil)
	require.NoError(t, err)

	taskID, err := h.Tasks().Create("a", "ping")
	require.NoError(t, err)
	_, err = h.Tasks().Execute(context.Background(), taskID)
	require.NoError(t, err)

	registered := <-sub.Events()
	assert.Equal(t, core.EventAgentRegistered, registered.Type)
	executed := <-sub.Events()
	assert.Equal(t, core.EventTaskExecuted, executed.Type)
}
