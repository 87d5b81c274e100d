// Package agenthub provides a high-level façade over the orchestration
// components (agent registry, task engine, workflow engine, conversation
// manager and event broadcaster) enabling rapid construction of multi-agent
// systems. Most applications interact with this package by:
//  1. Creating a Hub via New() (optionally overriding the default configuration)
//  2. Registering one or more agents with their invokers (echo, OpenAI,
//     Anthropic or custom)
//  3. Driving work through conversations, single tasks or workflows
//
// The façade wires the components together while keeping setup concise. All
// defaults are safe for local development and testing; production deployments
// typically supply a tuned configuration and a structured logger.
package agenthub

import (
	"context"

	"github.com/tidewell/agenthub/broadcast"
	"github.com/tidewell/agenthub/config"
	"github.com/tidewell/agenthub/conversation"
	"github.com/tidewell/agenthub/core"
	"github.com/tidewell/agenthub/logging"
	"github.com/tidewell/agenthub/provider"
	"github.com/tidewell/agenthub/registry"
	"github.com/tidewell/agenthub/task"
	"github.com/tidewell/agenthub/workflow"
)

// Options configures the Hub instance.
type Options struct {
	// Config tunes every component; defaults to config.Default().
	Config config.Config
	// Providers maps provider names to invoker factories. Defaults to a
	// registry with the builtin echo provider.
	Providers *provider.Registry
	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Hub is the high-level façade aggregating the orchestration components.
type Hub struct {
	opts Options

	broadcaster   *broadcast.Broadcaster
	registry      *registry.Registry
	tasks         *task.Engine
	workflows     *workflow.Engine
	conversations *conversation.Manager
	providers     *provider.Registry
}

// New creates a Hub with optional overrides. Components are wired so that
// every lifecycle change flows into the shared event broadcaster.
func New(optFns ...func(o *Options)) *Hub {
	opts := Options{
		Config:    config.Default(),
		Providers: provider.NewRegistry(),
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	cfg := opts.Config

	broadcaster := broadcast.New(func(o *broadcast.Options) {
		o.BufferSize = cfg.Events.BufferSize
		o.Logger = opts.Logger
	})
	reg := registry.New(func(o *registry.Options) {
		o.Broadcaster = broadcaster
		o.Logger = opts.Logger
	})
	tasks := task.New(reg, func(o *task.Options) {
		o.MaxConcurrent = cfg.Engine.MaxConcurrent
		o.MaxRetries = cfg.Engine.MaxRetries
		o.InitialBackoff = cfg.Engine.InitialBackoff
		o.InvokeTimeout = cfg.Engine.InvokeTimeout
		o.RatePerSecond = cfg.Engine.RatePerSecond
		o.Broadcaster = broadcaster
		o.Logger = opts.Logger
	})
	workflows := workflow.New(tasks, func(o *workflow.Options) {
		o.MaxParallel = cfg.Workflow.MaxParallel
		o.Policy = workflow.FailurePolicy(cfg.Workflow.Policy)
		o.Broadcaster = broadcaster
		o.Logger = opts.Logger
	})
	conversations := conversation.New(reg, tasks, func(o *conversation.Options) {
		o.Policy = conversation.Policy(cfg.Conversation.Policy)
		o.IdleTimeout = cfg.Conversation.IdleTimeout
		o.SweepSchedule = cfg.Conversation.SweepSchedule
		o.Broadcaster = broadcaster
		o.Logger = opts.Logger
	})

	return &Hub{
		opts:          opts,
		broadcaster:   broadcaster,
		registry:      reg,
		tasks:         tasks,
		workflows:     workflows,
		conversations: conversations,
		providers:     opts.Providers,
	}
}

// Registry exposes the agent registry.
func (h *Hub) Registry() *registry.Registry { return h.registry }

// Tasks exposes the task engine.
func (h *Hub) Tasks() *task.Engine { return h.tasks }

// Workflows exposes the workflow engine.
func (h *Hub) Workflows() *workflow.Engine { return h.workflows }

// Conversations exposes the conversation manager.
func (h *Hub) Conversations() *conversation.Manager { return h.conversations }

// Broadcaster exposes the shared event broadcaster.
func (h *Hub) Broadcaster() *broadcast.Broadcaster { return h.broadcaster }

// Providers exposes the invoker factory registry.
func (h *Hub) Providers() *provider.Registry { return h.providers }

// RegisterAgent registers the agent and binds its invoker, built from the
// agent's Provider name ("echo" when empty) and the given provider
// configuration. Registration of an existing id refreshes its metadata.
func (h *Hub) RegisterAgent(a core.Agent, providerCfg map[string]any) (string, error) {
	name := a.Provider
	if name == "" {
		name = "echo"
	}
	inv, err := h.providers.Build(name, providerCfg)
	if err != nil {
		return "", err
	}
	id := h.registry.Register(a)
	if err := h.registry.Bind(id, inv); err != nil {
		return "", err
	}
	return id, nil
}

// RegisterAgentWithInvoker registers the agent with a caller-supplied invoker.
func (h *Hub) RegisterAgentWithInvoker(a core.Agent, inv core.Invoker) (string, error) {
	id := h.registry.Register(a)
	if err := h.registry.Bind(id, inv); err != nil {
		return "", err
	}
	return id, nil
}

// ProcessMessage routes one message within a conversation and returns the
// responding agent's reply.
func (h *Hub) ProcessMessage(ctx context.Context, conversationID, content string, opts conversation.ProcessOptions) (*conversation.Reply, error) {
	return h.conversations.ProcessMessage(ctx, conversationID, content, opts)
}

// Close stops background work (idle sweeping, event fan-out). In-memory state
// stays readable afterwards.
func (h *Hub) Close() {
	h.conversations.Stop()
	h.broadcaster.Close()
}
