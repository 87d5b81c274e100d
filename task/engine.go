package task

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tidewell/agenthub/broadcast"
	"github.com/tidewell/agenthub/core"
	"github.com/tidewell/agenthub/logging"
	"github.com/tidewell/agenthub/registry"
)

// Options configures an Engine.
type Options struct {
	// MaxConcurrent bounds simultaneous agent invocations so a burst of
	// submissions cannot unboundedly spawn external calls.
	MaxConcurrent int
	// MaxRetries bounds retry attempts after the first invocation of a
	// retryable failure.
	MaxRetries uint64
	// InitialBackoff seeds the exponential backoff between retries.
	InitialBackoff time.Duration
	// InvokeTimeout bounds a single invocation attempt. Expiry counts as a
	// retryable failure. Zero disables the per-attempt timeout.
	InvokeTimeout time.Duration
	// RatePerSecond throttles invocations across all tasks. Zero disables
	// throttling.
	RatePerSecond float64
	// Broadcaster receives task lifecycle events. Optional.
	Broadcaster *broadcast.Broadcaster
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Engine executes tasks against registered agents. Task state is owned
// exclusively by the engine; callers observe it through Get snapshots and
// lifecycle events.
type Engine struct {
	registry    *registry.Registry
	broadcaster *broadcast.Broadcaster
	logger      logging.Logger

	maxRetries     uint64
	initialBackoff time.Duration
	invokeTimeout  time.Duration

	sem     chan struct{}
	limiter *rate.Limiter

	mu      sync.RWMutex
	tasks   map[string]*core.Task
	cancels map[string]context.CancelFunc

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker[any]

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// New constructs an Engine bound to the given registry.
func New(reg *registry.Registry, optFns ...func(o *Options)) *Engine {
	opts := Options{
		MaxConcurrent:  16,
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		InvokeTimeout:  30 * time.Second,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 16
	}

	e := &Engine{
		registry:       reg,
		broadcaster:    opts.Broadcaster,
		logger:         opts.Logger,
		maxRetries:     opts.MaxRetries,
		initialBackoff: opts.InitialBackoff,
		invokeTimeout:  opts.InvokeTimeout,
		sem:            make(chan struct{}, opts.MaxConcurrent),
		tasks:          make(map[string]*core.Task),
		cancels:        make(map[string]context.CancelFunc),
		breakers:       make(map[string]*gobreaker.CircuitBreaker[any]),
		entropy:        ulid.Monotonic(rand.Reader, 0),
	}
	if opts.RatePerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.MaxConcurrent)
	}
	return e
}

// newTaskID returns a monotonic ULID: lexicographically ascending in
// creation order.
func (e *Engine) newTaskID() string {
	e.entropyMu.Lock()
	defer e.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), e.entropy).String()
}

// Create validates the target agent and records a new task in Created
// status. Nothing is created when the agent is absent or unavailable.
// Emits TASK_CREATED.
func (e *Engine) Create(agentID string, payload any) (string, error) {
	a, err := e.registry.Get(agentID)
	if err != nil {
		return "", err
	}
	if !a.Available {
		return "", core.NewError(core.CodeAgentUnavailable, "agent %s is unavailable", agentID)
	}

	now := time.Now().UTC()
	t := &core.Task{
		ID:      e.newTaskID(),
		AgentID: agentID,
		Payload: payload,
		Status:  core.TaskCreated,
		Created: now,
		Updated: now,
	}
	e.mu.Lock()
	e.tasks[t.ID] = t
	e.mu.Unlock()

	e.publish(core.NewEvent(core.EventTaskCreated, t.ID, map[string]any{
		"task_id":  t.ID,
		"agent_id": agentID,
	}))
	return t.ID, nil
}

// Get returns a point-in-time snapshot of the task. Safe to poll.
func (e *Engine) Get(taskID string) (core.Task, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tasks[taskID]
	if !ok {
		return core.Task{}, core.NewError(core.CodeNotFound, "task %s not found", taskID)
	}
	return t.Clone(), nil
}

// Execute runs the task to a terminal state and returns the stored result.
// Calling Execute on an already-terminal task is an idempotent replay: the
// stored result is returned without re-invoking the agent. Execution-time
// failures settle into the task (visible via Result.Error and the task
// status) rather than being returned as an error; the error return is
// reserved for precondition violations.
func (e *Engine) Execute(ctx context.Context, taskID string) (*core.Result, error) {
	e.mu.Lock()
	t, ok := e.tasks[taskID]
	if !ok {
		e.mu.Unlock()
		return nil, core.NewError(core.CodeNotFound, "task %s not found", taskID)
	}
	if t.Status.Terminal() {
		res := cloneResult(t.Result)
		e.mu.Unlock()
		return res, nil
	}
	if t.Status != core.TaskCreated {
		e.mu.Unlock()
		return nil, core.NewError(core.CodeAlreadyExists, "task %s is already executing", taskID)
	}
	t.Status = core.TaskQueued
	t.Updated = time.Now().UTC()
	agentID, payload := t.AgentID, t.Payload
	taskCtx, cancel := context.WithCancel(ctx)
	e.cancels[taskID] = cancel
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		delete(e.cancels, taskID)
		e.mu.Unlock()
	}()

	e.publish(core.NewEvent(core.EventTaskQueued, taskID, map[string]any{"task_id": taskID}))

	// Worker slot.
	select {
	case e.sem <- struct{}{}:
	case <-taskCtx.Done():
		return e.settle(taskID, core.TaskFailed, 0, &core.Result{Error: "task cancelled"}, core.CauseCancelled), nil
	}
	defer func() { <-e.sem }()

	e.setStatus(taskID, core.TaskRunning)
	e.publish(core.NewEvent(core.EventTaskRunning, taskID, map[string]any{"task_id": taskID}))

	// Availability is mutable, so the agent is re-checked at dispatch time,
	// not only at creation time.
	a, err := e.registry.Get(agentID)
	if err == nil && !a.Available {
		err = core.NewError(core.CodeAgentUnavailable, "agent %s is unavailable", agentID)
	}
	var inv core.Invoker
	if err == nil {
		inv, err = e.registry.Invoker(agentID)
	}
	if err != nil {
		return e.settle(taskID, core.TaskFailed, 0, &core.Result{Error: err.Error()}, core.CauseInvocationFailure), nil
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(taskCtx); err != nil {
			return e.settle(taskID, core.TaskFailed, 0, &core.Result{Error: "task cancelled"}, core.CauseCancelled), nil
		}
	}

	breaker := e.breakerFor(agentID)
	attempts := 0
	op := func() (any, error) {
		attempts++
		ictx := taskCtx
		cancelAttempt := context.CancelFunc(func() {})
		if e.invokeTimeout > 0 {
			ictx, cancelAttempt = context.WithTimeout(taskCtx, e.invokeTimeout)
		}
		start := time.Now()
		out, invErr := breaker.Execute(func() (any, error) {
			return inv.Invoke(ictx, payload)
		})
		cancelAttempt()
		e.logger.Debug("task invocation",
			"task_id", taskID, "agent_id", agentID, "attempt", attempts,
			"duration", time.Since(start), "error", invErr)
		if invErr == nil {
			return out, nil
		}
		if taskCtx.Err() != nil {
			return nil, backoff.Permanent(invErr)
		}
		if core.IsRetryable(invErr) || errors.Is(invErr, gobreaker.ErrOpenState) {
			return nil, invErr
		}
		return nil, backoff.Permanent(invErr)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.initialBackoff
	out, err := backoff.RetryWithData(op, backoff.WithContext(backoff.WithMaxRetries(bo, e.maxRetries), taskCtx))
	if err != nil {
		if taskCtx.Err() != nil {
			return e.settle(taskID, core.TaskFailed, attempts, &core.Result{Error: "task cancelled"}, core.CauseCancelled), nil
		}
		return e.settle(taskID, core.TaskFailed, attempts, &core.Result{Error: err.Error()}, core.CauseInvocationFailure), nil
	}
	return e.settle(taskID, core.TaskSucceeded, attempts, &core.Result{Output: out}, ""), nil
}

// ExecuteAsync starts execution in the background. Callers discover the
// outcome by polling Get or subscribing to TASK_EXECUTED events.
func (e *Engine) ExecuteAsync(taskID string) error {
	e.mu.RLock()
	_, ok := e.tasks[taskID]
	e.mu.RUnlock()
	if !ok {
		return core.NewError(core.CodeNotFound, "task %s not found", taskID)
	}
	go func() {
		if _, err := e.Execute(context.Background(), taskID); err != nil {
			e.logger.Warn("async task execution rejected", "task_id", taskID, "error", err)
		}
	}()
	return nil
}

// Cancel requests best-effort cancellation. A running invocation without a
// cooperative cancellation hook is not forcibly aborted; the task still
// settles as Failed with a cancelled cause. Cancelling a terminal task is a
// no-op.
func (e *Engine) Cancel(taskID string) error {
	e.mu.Lock()
	t, ok := e.tasks[taskID]
	if !ok {
		e.mu.Unlock()
		return core.NewError(core.CodeNotFound, "task %s not found", taskID)
	}
	if t.Status.Terminal() {
		e.mu.Unlock()
		return nil
	}
	cancel, inFlight := e.cancels[taskID]
	e.mu.Unlock()

	if inFlight {
		cancel()
		return nil
	}
	e.settle(taskID, core.TaskFailed, 0, &core.Result{Error: "task cancelled"}, core.CauseCancelled)
	return nil
}

func (e *Engine) setStatus(taskID string, status core.TaskStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tasks[taskID]
	if !ok || t.Status.Terminal() {
		return
	}
	t.Status = status
	t.Updated = time.Now().UTC()
}

// settle records the terminal transition exactly once and emits
// TASK_EXECUTED. A task that already settled keeps its first outcome.
func (e *Engine) settle(taskID string, status core.TaskStatus, attempts int, result *core.Result, cause string) *core.Result {
	e.mu.Lock()
	t, ok := e.tasks[taskID]
	if !ok {
		e.mu.Unlock()
		return nil
	}
	if t.Status.Terminal() {
		res := cloneResult(t.Result)
		e.mu.Unlock()
		return res
	}
	t.Status = status
	t.Result = result
	if attempts > 0 {
		t.Attempts = attempts
	}
	t.Cause = cause
	t.Updated = time.Now().UTC()
	e.mu.Unlock()

	e.publish(core.NewEvent(core.EventTaskExecuted, taskID, map[string]any{
		"task_id":  taskID,
		"agent_id": t.AgentID,
		"success":  status == core.TaskSucceeded,
		"attempts": attempts,
	}))
	return cloneResult(result)
}

func (e *Engine) breakerFor(agentID string) *gobreaker.CircuitBreaker[any] {
	e.breakersMu.Lock()
	defer e.breakersMu.Unlock()
	if cb, ok := e.breakers[agentID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        agentID,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 10
		},
	})
	e.breakers[agentID] = cb
	return cb
}

func (e *Engine) publish(ev core.Event) {
	if e.broadcaster != nil {
		e.broadcaster.Publish(ev)
	}
}

func cloneResult(r *core.Result) *core.Result {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
