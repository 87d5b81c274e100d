// Package registry implements the agent registry: the single shared mutable
// structure read by every other component. It holds agent descriptors and
// their invoker bindings, answers capability-filtered lookup queries and
// publishes registration lifecycle events. Reads are concurrent; writes are
// serialized behind a read-write lock.
package registry
