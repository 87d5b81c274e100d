package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agenthub.yaml")
	content := []byte(`
server:
  port: 9090
engine:
  max_concurrent: 4
  invoke_timeout: 5s
conversation:
  policy: round_robin
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Engine.MaxConcurrent)
	assert.Equal(t, 5*time.Second, cfg.Engine.InvokeTimeout)
	assert.Equal(t, "round_robin", cfg.Conversation.Policy)

	// Untouched sections keep their defaults.
	assert.Equal(t, Default().Workflow, cfg.Workflow)
	assert.Equal(t, Default().Logging, cfg.Logging)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("AGENTHUB_SERVER_PORT", "7001")
	t.Setenv("AGENTHUB_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
