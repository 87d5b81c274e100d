// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer HubLogger with contextual helpers
// (conversation, task, workflow, component) for orchestration diagnostics.
package logging
