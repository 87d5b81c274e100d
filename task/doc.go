// Package task implements the task engine: execution of a single unit of
// work against one agent. It owns task lifecycle state
// (Created -> Queued -> Running -> Succeeded/Failed), dispatches invocations
// through a bounded worker pool, retries transient failures with exponential
// backoff behind a per-agent circuit breaker, and emits lifecycle events for
// every transition. Terminal tasks are retained read-only; re-executing one
// replays the stored result without touching the agent.
//
// Task ids are ULIDs, so ascending id order is creation order. The workflow
// engine relies on this for deterministic scheduling tie-breaks.
package task
