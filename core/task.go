package core

import "time"

// TaskStatus is the lifecycle state of a task. Transitions follow
// Created -> Queued -> Running -> {Succeeded | Failed}; terminal statuses are
// final.
type TaskStatus string

const (
	// TaskCreated means the task exists but has not been submitted.
	TaskCreated TaskStatus = "created"
	// TaskQueued means the task awaits a worker slot.
	TaskQueued TaskStatus = "queued"
	// TaskRunning means the agent invocation is in flight.
	TaskRunning TaskStatus = "running"
	// TaskSucceeded is terminal success.
	TaskSucceeded TaskStatus = "succeeded"
	// TaskFailed is terminal failure (including cancellation).
	TaskFailed TaskStatus = "failed"
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool { return s == TaskSucceeded || s == TaskFailed }

// Failure causes recorded on failed tasks.
const (
	// CauseInvocationFailure marks failures of the agent invocation itself.
	CauseInvocationFailure = "invocation_failure"
	// CauseCancelled marks explicit or timeout-driven cancellation.
	CauseCancelled = "cancelled"
	// CauseDependencyFailed marks workflow tasks failed without execution
	// because a prerequisite failed.
	CauseDependencyFailed = "dependency_failed"
)

// Result is the terminal outcome of a task. Exactly one of Output and Error
// is meaningful.
type Result struct {
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Task is a single unit of work dispatched to exactly one agent. It is owned
// by the task engine until terminal, after which it is retained read-only for
// result retrieval.
type Task struct {
	ID       string     `json:"id"`
	AgentID  string     `json:"agent_id"`
	Payload  any        `json:"payload,omitempty"`
	Status   TaskStatus `json:"status"`
	Result   *Result    `json:"result,omitempty"`
	Attempts int        `json:"attempts"`
	Cause    string     `json:"cause,omitempty"`
	Created  time.Time  `json:"created"`
	Updated  time.Time  `json:"updated"`
}

// Clone returns a copy safe for handing to callers while the engine keeps
// mutating the original.
func (t Task) Clone() Task {
	if t.Result != nil {
		r := *t.Result
		t.Result = &r
	}
	return t
}
