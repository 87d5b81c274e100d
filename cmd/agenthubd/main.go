// Command agenthubd runs the agent orchestration hub as an HTTP service.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/tidewell/agenthub"
	"github.com/tidewell/agenthub/config"
	"github.com/tidewell/agenthub/core"
	"github.com/tidewell/agenthub/httpapi"
	"github.com/tidewell/agenthub/logging"
	"github.com/tidewell/agenthub/provider"
	"github.com/tidewell/agenthub/provider/anthropic"
	"github.com/tidewell/agenthub/provider/openai"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "agenthubd",
		Short:        "Agent orchestration hub",
		Long:         "agenthubd serves the agent registry, conversations, tasks and workflows over HTTP.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (optional)")
	return cmd
}

func run(cmd *cobra.Command, cfg config.Config) error {
	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, false)

	hub := agenthub.New(func(o *agenthub.Options) {
		o.Config = cfg
		o.Providers = builtinProviders()
		o.Logger = logger
	})
	defer hub.Close()

	server := httpapi.New(hub, func(o *httpapi.Options) {
		o.Config = cfg.Server
		o.Logger = logger
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return server.Start(ctx)
}

// builtinProviders registers the invoker factories shipped with the hub.
func builtinProviders() *provider.Registry {
	r := provider.NewRegistry()
	r.Register("openai", func(cfg map[string]any) (core.Invoker, error) {
		return openai.New(func(o *openai.Options) {
			if model, ok := cfg["model"].(string); ok && model != "" {
				o.Model = model
			}
			if prompt, ok := cfg["system_prompt"].(string); ok {
				o.SystemPrompt = prompt
			}
		}), nil
	})
	r.Register("anthropic", func(cfg map[string]any) (core.Invoker, error) {
		return anthropic.New(func(o *anthropic.Options) {
			if model, ok := cfg["model"].(string); ok && model != "" {
				o.Model = anthropicsdk.Model(model)
			}
			if prompt, ok := cfg["system_prompt"].(string); ok {
				o.SystemPrompt = prompt
			}
		}), nil
	})
	return r
}
