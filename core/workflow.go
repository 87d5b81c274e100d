package core

import "time"

// WorkflowStatus is the aggregate outcome state of a workflow.
type WorkflowStatus string

const (
	// WorkflowCreated means validated and persisted, nothing scheduled.
	WorkflowCreated WorkflowStatus = "created"
	// WorkflowRunning means the scheduling loop is active.
	WorkflowRunning WorkflowStatus = "running"
	// WorkflowSucceeded means every task succeeded.
	WorkflowSucceeded WorkflowStatus = "succeeded"
	// WorkflowFailed means the failure policy judged the run failed.
	WorkflowFailed WorkflowStatus = "failed"
	// WorkflowPartiallyFailed means some non-critical tasks failed while the
	// rest completed.
	WorkflowPartiallyFailed WorkflowStatus = "partially_failed"
)

// Terminal reports whether the status is final.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowSucceeded || s == WorkflowFailed || s == WorkflowPartiallyFailed
}

// TaskSpec declares one node of a workflow's dependency graph. IDs are local
// to the workflow; DependsOn lists prerequisite spec ids. Critical marks the
// node as part of the workflow's critical path for the fail-on-critical
// policy.
type TaskSpec struct {
	ID        string   `json:"id"`
	AgentID   string   `json:"agent_id"`
	Payload   any      `json:"payload,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
	Critical  bool     `json:"critical,omitempty"`
}

// WorkflowNode is the runtime state of one spec within a workflow run.
// TaskID is the engine task id once the node has been submitted.
type WorkflowNode struct {
	Spec   TaskSpec   `json:"spec"`
	Status TaskStatus `json:"status"`
	TaskID string     `json:"task_id,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Workflow is a DAG of tasks executed as a unit with an aggregated outcome.
// Specs preserves declaration order; Nodes carries per-spec runtime state.
type Workflow struct {
	ID      string                   `json:"id"`
	Specs   []TaskSpec               `json:"specs"`
	Nodes   map[string]*WorkflowNode `json:"nodes"`
	Status  WorkflowStatus           `json:"status"`
	Created time.Time                `json:"created"`
	Updated time.Time                `json:"updated"`
}

// NewWorkflow builds a workflow in Created status with one pending node per
// spec. The spec slice is assumed to be already validated (unique ids,
// resolvable dependencies, acyclic).
func NewWorkflow(id string, specs []TaskSpec) *Workflow {
	now := time.Now().UTC()
	wf := &Workflow{
		ID:      id,
		Specs:   append([]TaskSpec(nil), specs...),
		Nodes:   make(map[string]*WorkflowNode, len(specs)),
		Status:  WorkflowCreated,
		Created: now,
		Updated: now,
	}
	for _, spec := range specs {
		wf.Nodes[spec.ID] = &WorkflowNode{Spec: spec, Status: TaskCreated}
	}
	return wf
}

// Clone returns a deep copy safe for handing to callers.
func (w *Workflow) Clone() *Workflow {
	clone := &Workflow{
		ID:      w.ID,
		Specs:   append([]TaskSpec(nil), w.Specs...),
		Nodes:   make(map[string]*WorkflowNode, len(w.Nodes)),
		Status:  w.Status,
		Created: w.Created,
		Updated: w.Updated,
	}
	for id, n := range w.Nodes {
		nc := *n
		clone.Nodes[id] = &nc
	}
	return clone
}
