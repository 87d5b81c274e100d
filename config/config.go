// Package config loads the hub's runtime configuration from an optional YAML
// file and AGENTHUB_-prefixed environment variables, with sensible defaults
// for every knob.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration tree.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Engine       EngineConfig       `mapstructure:"engine"`
	Workflow     WorkflowConfig     `mapstructure:"workflow"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Events       EventsConfig       `mapstructure:"events"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig covers the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// EngineConfig covers task execution.
type EngineConfig struct {
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	MaxRetries     uint64        `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	InvokeTimeout  time.Duration `mapstructure:"invoke_timeout"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
}

// WorkflowConfig covers workflow scheduling.
type WorkflowConfig struct {
	MaxParallel int    `mapstructure:"max_parallel"`
	Policy      string `mapstructure:"policy"`
}

// ConversationConfig covers routing and idle handling.
type ConversationConfig struct {
	Policy        string        `mapstructure:"policy"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
}

// EventsConfig covers the broadcaster.
type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

// LoggingConfig covers the structured logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowOrigins:    []string{"*"},
		},
		Engine: EngineConfig{
			MaxConcurrent:  16,
			MaxRetries:     3,
			InitialBackoff: 100 * time.Millisecond,
			InvokeTimeout:  30 * time.Second,
		},
		Workflow: WorkflowConfig{
			MaxParallel: 8,
			Policy:      "fail_on_any",
		},
		Conversation: ConversationConfig{
			Policy:        "last_active",
			IdleTimeout:   30 * time.Minute,
			SweepSchedule: "@every 1m",
		},
		Events: EventsConfig{
			BufferSize: 64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the given file path (optional, "" skips the
// file) and the AGENTHUB_ environment, layered over Default. A missing file
// at an explicit path is an error; unset values keep their defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AGENTHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	bindDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// bindDefaults seeds viper with the default tree so environment overrides
// resolve even without a config file.
func bindDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.allow_origins", cfg.Server.AllowOrigins)
	v.SetDefault("engine.max_concurrent", cfg.Engine.MaxConcurrent)
	v.SetDefault("engine.max_retries", cfg.Engine.MaxRetries)
	v.SetDefault("engine.initial_backoff", cfg.Engine.InitialBackoff)
	v.SetDefault("engine.invoke_timeout", cfg.Engine.InvokeTimeout)
	v.SetDefault("engine.rate_per_second", cfg.Engine.RatePerSecond)
	v.SetDefault("workflow.max_parallel", cfg.Workflow.MaxParallel)
	v.SetDefault("workflow.policy", cfg.Workflow.Policy)
	v.SetDefault("conversation.policy", cfg.Conversation.Policy)
	v.SetDefault("conversation.idle_timeout", cfg.Conversation.IdleTimeout)
	v.SetDefault("conversation.sweep_schedule", cfg.Conversation.SweepSchedule)
	v.SetDefault("events.buffer_size", cfg.Events.BufferSize)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}
