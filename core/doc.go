// Package core contains the shared data model of the orchestration hub:
// agent descriptors, conversations and their transcripts, tasks, workflows,
// lifecycle events and the coded error taxonomy exchanged between components.
//
// The types here are deliberately free of behavior beyond invariants of the
// model itself (state transitions, append-only transcripts, capability
// matching). Orchestration logic lives in the registry, conversation, task
// and workflow packages, which all depend on core and never on each other's
// internals.
package core
