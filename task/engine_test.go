package task

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidewell/agenthub/broadcast"
	"github.com/tidewell/agenthub/core"
	"github.com/tidewell/agenthub/registry"
)

type invokerFunc func(ctx context.Context, payload any) (any, error)

func (f invokerFunc) Invoke(ctx context.Context, payload any) (any, error) { return f(ctx, payload) }

func newTestEngine(t *testing.T, inv core.Invoker, optFns ...func(o *Options)) (*Engine, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	reg.Register(core.Agent{ID: "agent-echo", Type: core.AgentTypeWorker, Capabilities: []string{"echo"}, Available: true})
	if inv == nil {
		inv = invokerFunc(func(_ context.Context, payload any) (any, error) { return payload, nil })
	}
	require.NoError(t, reg.Bind("agent-echo", inv))

	optFns = append([]func(o *Options){func(o *Options) {
		o.InitialBackoff = time.Millisecond
		o.InvokeTimeout = time.Second
	}}, optFns...)
	return New(reg, optFns...), reg
}

func TestCreateAndExecuteEcho(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	id, err := e.Create("agent-echo", "hi")
	require.NoError(t, err)

	task, err := e.Get(id)
	require.NoError(t, err)
	assert.Equal(t, core.TaskCreated, task.Status)

	res, err := e.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Output)

	task, err = e.Get(id)
	require.NoError(t, err)
	assert.Equal(t, core.TaskSucceeded, task.Status)
	assert.Equal(t, 1, task.Attempts)
}

func TestCreateUnknownAgent(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	_, err := e.Create("missing", "hi")
	assert.True(t, core.IsCode(err, core.CodeNotFound))
}

func TestCreateUnavailableAgent(t *testing.T) {
	e, reg := newTestEngine(t, nil)
	require.NoError(t, reg.SetAvailability("agent-echo", false))

	_, err := e.Create("agent-echo", "hi")
	assert.True(t, core.IsCode(err, core.CodeAgentUnavailable))
}

func TestAvailabilityRecheckedAtDispatch(t *testing.T) {
	e, reg := newTestEngine(t, nil)

	id, err := e.Create("agent-echo", "hi")
	require.NoError(t, err)
	require.NoError(t, reg.SetAvailability("agent-echo", false))

	res, err := e.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Error)

	task, _ := e.Get(id)
	assert.Equal(t, core.TaskFailed, task.Status)
}

func TestExecuteIdempotentReplay(t *testing.T) {
	var calls atomic.Int32
	inv := invokerFunc(func(_ context.Context, payload any) (any, error) {
		calls.Add(1)
		return payload, nil
	})
	e, _ := newTestEngine(t, inv)

	id, err := e.Create("agent-echo", "hi")
	require.NoError(t, err)

	first, err := e.Execute(context.Background(), id)
	require.NoError(t, err)
	second, err := e.Execute(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	inv := invokerFunc(func(_ context.Context, payload any) (any, error) {
		if calls.Add(1) < 3 {
			return nil, core.Transient(errors.New("connection reset"))
		}
		return payload, nil
	})
	e, _ := newTestEngine(t, inv)

	id, err := e.Create("agent-echo", "hi")
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Output)

	task, _ := e.Get(id)
	assert.Equal(t, core.TaskSucceeded, task.Status)
	assert.Equal(t, 3, task.Attempts)
}

func TestExecuteNonRetryableFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	inv := invokerFunc(func(_ context.Context, _ any) (any, error) {
		calls.Add(1)
		return nil, errors.New("malformed payload")
	})
	e, _ := newTestEngine(t, inv)

	id, err := e.Create("agent-echo", "hi")
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Contains(t, res.Error, "malformed payload")
	assert.Equal(t, int32(1), calls.Load())

	task, _ := e.Get(id)
	assert.Equal(t, core.TaskFailed, task.Status)
	assert.Equal(t, core.CauseInvocationFailure, task.Cause)
}

func TestRetriesExhaustedSettlesFailed(t *testing.T) {
	inv := invokerFunc(func(_ context.Context, _ any) (any, error) {
		return nil, core.Transient(errors.New("still down"))
	})
	e, _ := newTestEngine(t, inv, func(o *Options) { o.MaxRetries = 2 })

	id, err := e.Create("agent-echo", "hi")
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Contains(t, res.Error, "still down")

	task, _ := e.Get(id)
	assert.Equal(t, core.TaskFailed, task.Status)
	assert.Equal(t, 3, task.Attempts) // initial attempt + 2 retries
}

func TestCancelPendingTask(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	id, err := e.Create("agent-echo", "hi")
	require.NoError(t, err)
	require.NoError(t, e.Cancel(id))

	task, _ := e.Get(id)
	assert.Equal(t, core.TaskFailed, task.Status)
	assert.Equal(t, core.CauseCancelled, task.Cause)

	// Terminal status never changes; a later execute replays the outcome.
	res, err := e.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "task cancelled", res.Error)
}

func TestCancelRunningTask(t *testing.T) {
	started := make(chan struct{})
	inv := invokerFunc(func(ctx context.Context, _ any) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e, _ := newTestEngine(t, inv)

	id, err := e.Create("agent-echo", "hi")
	require.NoError(t, err)
	require.NoError(t, e.ExecuteAsync(id))

	<-started
	require.NoError(t, e.Cancel(id))

	require.Eventually(t, func() bool {
		task, err := e.Get(id)
		return err == nil && task.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)

	task, _ := e.Get(id)
	assert.Equal(t, core.TaskFailed, task.Status)
	assert.Equal(t, core.CauseCancelled, task.Cause)
}

func TestTaskIDsAscendInCreationOrder(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	var ids []string
	for i := 0; i < 10; i++ {
		id, err := e.Create("agent-echo", i)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestLifecycleEvents(t *testing.T) {
	b := broadcast.New()
	defer b.Close()
	sub := b.Subscribe(core.EventTaskCreated, core.EventTaskQueued, core.EventTaskRunning, core.EventTaskExecuted)
	defer sub.Close()

	e, _ := newTestEngine(t, nil, func(o *Options) { o.Broadcaster = b })

	id, err := e.Create("agent-echo", "hi")
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), id)
	require.NoError(t, err)

	var got []core.EventType
	for i := 0; i < 4; i++ {
		ev := <-sub.Events()
		assert.Equal(t, id, ev.Source)
		got = append(got, ev.Type)
	}
	assert.Equal(t, []core.EventType{
		core.EventTaskCreated,
		core.EventTaskQueued,
		core.EventTaskRunning,
		core.EventTaskExecuted,
	}, got)
}

func TestGetUnknownTask(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	_, err := e.Get("missing")
	assert.True(t, core.IsCode(err, core.CodeNotFound))
}

func TestExecuteAsyncPollable(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	id, err := e.Create("agent-echo", "hi")
	require.NoError(t, err)
	require.NoError(t, e.ExecuteAsync(id))

	require.Eventually(t, func() bool {
		task, err := e.Get(id)
		return err == nil && task.Status == core.TaskSucceeded
	}, 2*time.Second, 5*time.Millisecond)
}
