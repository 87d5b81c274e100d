// Package workflow executes dependency graphs of tasks as a unit. Graphs are
// validated at creation time (unique ids, resolvable dependencies, no cycles)
// and scheduled topologically: a node runs once all of its prerequisites
// succeeded, independent branches run concurrently, and a failed node fails
// its transitive dependents without dispatching them. The aggregate outcome
// follows the workflow's failure policy.
package workflow
