package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidewell/agenthub/broadcast"
	"github.com/tidewell/agenthub/core"
)

func echoInvoker() core.Invoker {
	return invokerFunc(func(_ context.Context, payload any) (any, error) { return payload, nil })
}

type invokerFunc func(ctx context.Context, payload any) (any, error)

func (f invokerFunc) Invoke(ctx context.Context, payload any) (any, error) { return f(ctx, payload) }

func TestRegisterIdempotent(t *testing.T) {
	r := New()
	r.Register(core.Agent{ID: "a1", Type: core.AgentTypeWorker, Capabilities: []string{"echo"}, Available: true})
	r.Register(core.Agent{ID: "a1", Type: core.AgentTypeWorker, Capabilities: []string{"echo", "rank"}, Available: true})

	// Exactly one descriptor, reflecting the latest registration.
	agents := r.List(Filter{})
	require.Len(t, agents, 1)
	assert.Equal(t, []string{"echo", "rank"}, agents[0].Capabilities)

	a, err := r.Get("a1")
	require.NoError(t, err)
	assert.False(t, a.Registered.IsZero())
}

func TestRegisterEmitsEvent(t *testing.T) {
	b := broadcast.New()
	defer b.Close()
	sub := b.Subscribe(core.EventAgentRegistered)
	defer sub.Close()

	r := New(func(o *Options) { o.Broadcaster = b })
	r.Register(core.Agent{ID: "a1", Type: core.AgentTypeWorker})

	ev := <-sub.Events()
	assert.Equal(t, "a1", ev.Source)
	assert.Equal(t, "a1", ev.Payload["agent_id"])
	assert.Equal(t, "worker", ev.Payload["agent_type"])
}

func TestGetNotFound(t *testing.T) {
	r := New()
	_, err := r.Get("missing")
	require.Error(t, err)
	assert.True(t, core.IsCode(err, core.CodeNotFound))
}

func TestListCapabilitySupersetMatch(t *testing.T) {
	r := New()
	r.Register(core.Agent{ID: "agent-x", Capabilities: []string{"summarize", "rank", "translate"}, Available: true})
	r.Register(core.Agent{ID: "agent-y", Capabilities: []string{"summarize"}, Available: true})

	got := r.List(Filter{Capabilities: []string{"summarize", "rank"}})
	require.Len(t, got, 1)
	assert.Equal(t, "agent-x", got[0].ID)
}

func TestListFilterConjunctionAndOrdering(t *testing.T) {
	r := New()
	r.Register(core.Agent{ID: "c", Type: core.AgentTypeWorker, Provider: "echo", Available: true})
	r.Register(core.Agent{ID: "a", Type: core.AgentTypeWorker, Provider: "echo", Available: false})
	r.Register(core.Agent{ID: "b", Type: core.AgentTypeRouter, Provider: "echo", Available: true})

	all := r.List(Filter{Provider: "echo"})
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})

	workers := r.List(Filter{Type: core.AgentTypeWorker, AvailableOnly: true})
	require.Len(t, workers, 1)
	assert.Equal(t, "c", workers[0].ID)
}

func TestInvokerBinding(t *testing.T) {
	r := New()
	r.Register(core.Agent{ID: "a1", Available: true})

	_, err := r.Invoker("a1")
	assert.True(t, core.IsCode(err, core.CodeAgentUnavailable))

	require.NoError(t, r.Bind("a1", echoInvoker()))
	inv, err := r.Invoker("a1")
	require.NoError(t, err)
	out, err := inv.Invoke(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	assert.Error(t, r.Bind("missing", echoInvoker()))
}

func TestRemove(t *testing.T) {
	r := New()
	r.Register(core.Agent{ID: "a1"})
	require.NoError(t, r.Remove("a1"))
	_, err := r.Get("a1")
	assert.True(t, core.IsCode(err, core.CodeNotFound))
	assert.Error(t, r.Remove("a1"))
}

func TestSetAvailability(t *testing.T) {
	b := broadcast.New()
	defer b.Close()
	sub := b.Subscribe(core.EventAgentAvailability)
	defer sub.Close()

	r := New(func(o *Options) { o.Broadcaster = b })
	r.Register(core.Agent{ID: "a1", Available: true})

	require.NoError(t, r.SetAvailability("a1", false))
	a, err := r.Get("a1")
	require.NoError(t, err)
	assert.False(t, a.Available)

	ev := <-sub.Events()
	assert.Equal(t, false, ev.Payload["available"])

	require.NoError(t, r.Heartbeat("a1"))
	a, _ = r.Get("a1")
	assert.True(t, a.Available)
}
