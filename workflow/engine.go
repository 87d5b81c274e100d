package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tidewell/agenthub/broadcast"
	"github.com/tidewell/agenthub/core"
	"github.com/tidewell/agenthub/logging"
	"github.com/tidewell/agenthub/task"
)

// FailurePolicy decides the aggregate status of a workflow with failed nodes.
type FailurePolicy string

const (
	// FailOnAny marks the workflow Failed when any node failed.
	FailOnAny FailurePolicy = "fail_on_any"
	// FailOnCritical marks the workflow Failed only when a critical node
	// failed (directly or through a failed prerequisite); other failures
	// yield PartiallyFailed.
	FailOnCritical FailurePolicy = "fail_on_critical"
)

// Options configures a workflow Engine.
type Options struct {
	// MaxParallel caps the number of concurrently running nodes.
	MaxParallel int
	// Policy is the default failure policy for workflows that set none.
	Policy FailurePolicy
	// Broadcaster receives workflow lifecycle events. Optional.
	Broadcaster *broadcast.Broadcaster
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// CreateOptions configure a single workflow at creation time.
type CreateOptions struct {
	// Policy overrides the engine default for this workflow.
	Policy FailurePolicy `json:"policy,omitempty"`
}

// Summary is the aggregate outcome of a workflow run.
type Summary struct {
	WorkflowID string                        `json:"workflow_id"`
	Status     core.WorkflowStatus           `json:"status"`
	Outputs    map[string]any                `json:"outputs,omitempty"`
	Failed     []string                      `json:"failed,omitempty"`
	Nodes      map[string]*core.WorkflowNode `json:"nodes"`
}

// completion reports one settled node back to the scheduling loop.
type completion struct {
	specID string
	res    *core.Result
	err    error
}

// run pairs a workflow with its policy and, while executing, the cancel
// handle for the run context.
type run struct {
	wf     *core.Workflow
	policy FailurePolicy
	cancel context.CancelFunc
}

// Engine validates and executes workflows on top of the task engine. Node
// invocations inherit the task engine's retry, timeout and concurrency
// behavior; the workflow engine adds dependency ordering and the aggregate
// outcome.
type Engine struct {
	tasks       *task.Engine
	broadcaster *broadcast.Broadcaster
	logger      logging.Logger
	maxParallel int
	policy      FailurePolicy

	mu   sync.RWMutex
	runs map[string]*run
}

// New constructs a workflow Engine executing nodes through the given task
// engine.
func New(tasks *task.Engine, optFns ...func(o *Options)) *Engine {
	opts := Options{
		MaxParallel: 8,
		Policy:      FailOnAny,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{
		tasks:       tasks,
		broadcaster: opts.Broadcaster,
		logger:      opts.Logger,
		maxParallel: opts.MaxParallel,
		policy:      opts.Policy,
		runs:        make(map[string]*run),
	}
}

// Create validates the dependency graph and persists the workflow in Created
// status. Invalid graphs, cyclic ones included, are rejected before anything
// is scheduled. The id is generated when empty.
func (e *Engine) Create(id string, specs []core.TaskSpec, optFns ...func(o *CreateOptions)) (string, error) {
	if err := validate(specs); err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}
	opts := CreateOptions{Policy: e.policy}
	for _, fn := range optFns {
		fn(&opts)
	}

	e.mu.Lock()
	if _, ok := e.runs[id]; ok {
		e.mu.Unlock()
		return "", core.NewError(core.CodeAlreadyExists, "workflow %s already exists", id)
	}
	e.runs[id] = &run{wf: core.NewWorkflow(id, specs), policy: opts.Policy}
	e.mu.Unlock()

	e.publish(core.NewEvent(core.EventWorkflowCreated, id, map[string]any{
		"workflow_id": id,
		"tasks":       len(specs),
	}))
	e.logger.Info("workflow created", "workflow_id", id, "tasks", len(specs))
	return id, nil
}

// Get returns a snapshot of the workflow including per-node state.
func (e *Engine) Get(id string) (*core.Workflow, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.runs[id]
	if !ok {
		return nil, core.NewError(core.CodeNotFound, "workflow %s not found", id)
	}
	return r.wf.Clone(), nil
}

// Execute runs the workflow to completion and returns its summary. Executing
// a terminal workflow replays the stored outcome without re-running anything;
// executing a workflow that is already running is a conflict.
func (e *Engine) Execute(ctx context.Context, id string) (*Summary, error) {
	e.mu.Lock()
	r, ok := e.runs[id]
	if !ok {
		e.mu.Unlock()
		return nil, core.NewError(core.CodeNotFound, "workflow %s not found", id)
	}
	if r.wf.Status.Terminal() {
		summary := e.summaryLocked(r)
		e.mu.Unlock()
		return summary, nil
	}
	if r.wf.Status == core.WorkflowRunning {
		e.mu.Unlock()
		return nil, core.NewError(core.CodeAlreadyExists, "workflow %s is already running", id)
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.wf.Status = core.WorkflowRunning
	r.wf.Updated = time.Now().UTC()
	r.cancel = cancel
	specs := append([]core.TaskSpec(nil), r.wf.Specs...)
	e.mu.Unlock()
	defer cancel()

	e.schedule(runCtx, id, specs)

	e.mu.Lock()
	status := e.settleLocked(r)
	summary := e.summaryLocked(r)
	r.cancel = nil
	e.mu.Unlock()

	e.publish(core.NewEvent(core.EventWorkflowExecuted, id, map[string]any{
		"workflow_id": id,
		"status":      string(status),
		"failed":      summary.Failed,
	}))
	e.logger.Info("workflow executed", "workflow_id", id, "status", status, "failed", len(summary.Failed))
	return summary, nil
}

// ExecuteAsync starts the workflow in the background; progress is observable
// through Get and the event stream.
func (e *Engine) ExecuteAsync(id string) error {
	e.mu.RLock()
	r, ok := e.runs[id]
	var status core.WorkflowStatus
	if ok {
		status = r.wf.Status
	}
	e.mu.RUnlock()
	if !ok {
		return core.NewError(core.CodeNotFound, "workflow %s not found", id)
	}
	if status == core.WorkflowRunning {
		return core.NewError(core.CodeAlreadyExists, "workflow %s is already running", id)
	}
	go func() {
		if _, err := e.Execute(context.Background(), id); err != nil {
			e.logger.Error("async workflow execution failed", "workflow_id", id, "error", err)
		}
	}()
	return nil
}

// Cancel stops a workflow. A running workflow has its run context cancelled;
// in-flight nodes settle as cancelled and nothing further is dispatched. A
// workflow that never started settles directly. Terminal workflows are left
// untouched.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	r, ok := e.runs[id]
	if !ok {
		e.mu.Unlock()
		return core.NewError(core.CodeNotFound, "workflow %s not found", id)
	}
	if r.wf.Status.Terminal() {
		e.mu.Unlock()
		return nil
	}
	if r.wf.Status == core.WorkflowRunning {
		cancel := r.cancel
		e.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil
	}
	// Created, never executed: settle every node as cancelled.
	for _, node := range r.wf.Nodes {
		node.Status = core.TaskFailed
		node.Error = "workflow cancelled"
	}
	r.wf.Status = core.WorkflowFailed
	r.wf.Updated = time.Now().UTC()
	summary := e.summaryLocked(r)
	e.mu.Unlock()

	e.publish(core.NewEvent(core.EventWorkflowExecuted, id, map[string]any{
		"workflow_id": id,
		"status":      string(core.WorkflowFailed),
		"failed":      summary.Failed,
	}))
	return nil
}

// schedule runs the topological dispatch loop: submit every node whose
// prerequisites succeeded, collect completions, and on failure settle the
// node's transitive dependents without dispatching them. Ready nodes are
// submitted in ascending spec id order so concurrent runs of the same graph
// dispatch deterministically.
func (e *Engine) schedule(ctx context.Context, wfID string, specs []core.TaskSpec) {
	unmet := make(map[string]int, len(specs))
	for _, spec := range specs {
		unmet[spec.ID] = len(spec.DependsOn)
	}
	downstream := dependents(specs)

	done := make(chan completion, len(specs))
	var g errgroup.Group
	g.SetLimit(e.maxParallel)

	submit := func(ready []string) {
		sort.Strings(ready)
		for _, specID := range ready {
			spec := e.nodeSpec(wfID, specID)
			if ctx.Err() != nil {
				done <- completion{specID: specID, err: ctx.Err()}
				continue
			}
			taskID, err := e.tasks.Create(spec.AgentID, spec.Payload)
			if err != nil {
				done <- completion{specID: specID, err: err}
				continue
			}
			e.setNode(wfID, specID, func(n *core.WorkflowNode) {
				n.TaskID = taskID
				n.Status = core.TaskQueued
			})
			g.Go(func() error {
				e.setNode(wfID, specID, func(n *core.WorkflowNode) { n.Status = core.TaskRunning })
				res, err := e.tasks.Execute(ctx, taskID)
				done <- completion{specID: specID, res: res, err: err}
				return nil
			})
		}
	}

	var initial []string
	for _, spec := range specs {
		if unmet[spec.ID] == 0 {
			initial = append(initial, spec.ID)
		}
	}
	submit(initial)

	for pending := len(specs); pending > 0; {
		c := <-done
		pending--
		switch {
		case c.err != nil:
			e.setNode(wfID, c.specID, func(n *core.WorkflowNode) {
				n.Status = core.TaskFailed
				n.Error = c.err.Error()
			})
			pending -= e.cascade(wfID, c.specID, downstream, unmet)
		case c.res.Error != "":
			e.setNode(wfID, c.specID, func(n *core.WorkflowNode) {
				n.Status = core.TaskFailed
				n.Error = c.res.Error
			})
			pending -= e.cascade(wfID, c.specID, downstream, unmet)
		default:
			e.setNode(wfID, c.specID, func(n *core.WorkflowNode) { n.Status = core.TaskSucceeded })
			var ready []string
			for _, depID := range downstream[c.specID] {
				unmet[depID]--
				if unmet[depID] == 0 && !e.nodeSettled(wfID, depID) {
					ready = append(ready, depID)
				}
			}
			submit(ready)
		}
	}
	_ = g.Wait()
}

// cascade settles every transitive dependent of a failed node that has not
// been dispatched yet and returns how many nodes it settled.
func (e *Engine) cascade(wfID, failedID string, downstream map[string][]string, unmet map[string]int) int {
	settled := 0
	queue := append([]string(nil), downstream[failedID]...)
	for len(queue) > 0 {
		specID := queue[0]
		queue = queue[1:]
		if e.nodeSettled(wfID, specID) || e.nodeDispatched(wfID, specID) {
			continue
		}
		e.setNode(wfID, specID, func(n *core.WorkflowNode) {
			n.Status = core.TaskFailed
			n.Error = fmt.Sprintf("dependency %s failed", failedID)
		})
		// Keep the counter out of the ready range for later successes.
		unmet[specID] = -1
		settled++
		queue = append(queue, downstream[specID]...)
	}
	return settled
}

// settleLocked computes the aggregate status from per-node outcomes and the
// workflow's failure policy. Callers hold e.mu.
func (e *Engine) settleLocked(r *run) core.WorkflowStatus {
	anyFailed, criticalFailed := false, false
	for _, node := range r.wf.Nodes {
		if node.Status == core.TaskFailed {
			anyFailed = true
			if node.Spec.Critical {
				criticalFailed = true
			}
		}
	}
	switch {
	case !anyFailed:
		r.wf.Status = core.WorkflowSucceeded
	case r.policy == FailOnCritical && !criticalFailed:
		r.wf.Status = core.WorkflowPartiallyFailed
	default:
		r.wf.Status = core.WorkflowFailed
	}
	r.wf.Updated = time.Now().UTC()
	return r.wf.Status
}

// summaryLocked builds the outcome summary. Callers hold e.mu.
func (e *Engine) summaryLocked(r *run) *Summary {
	s := &Summary{
		WorkflowID: r.wf.ID,
		Status:     r.wf.Status,
		Outputs:    make(map[string]any),
		Nodes:      r.wf.Clone().Nodes,
	}
	for specID, node := range r.wf.Nodes {
		switch node.Status {
		case core.TaskSucceeded:
			if t, err := e.tasks.Get(node.TaskID); err == nil && t.Result != nil {
				s.Outputs[specID] = t.Result.Output
			}
		case core.TaskFailed:
			s.Failed = append(s.Failed, specID)
		}
	}
	sort.Strings(s.Failed)
	return s
}

func (e *Engine) nodeSpec(wfID, specID string) core.TaskSpec {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runs[wfID].wf.Nodes[specID].Spec
}

func (e *Engine) nodeSettled(wfID, specID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runs[wfID].wf.Nodes[specID].Status.Terminal()
}

func (e *Engine) nodeDispatched(wfID, specID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runs[wfID].wf.Nodes[specID].TaskID != ""
}

func (e *Engine) setNode(wfID, specID string, fn func(n *core.WorkflowNode)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.runs[wfID].wf.Nodes[specID])
	e.runs[wfID].wf.Updated = time.Now().UTC()
}

func (e *Engine) publish(ev core.Event) {
	if e.broadcaster != nil {
		e.broadcaster.Publish(ev)
	}
}
