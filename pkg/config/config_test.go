package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 10, cfg.Agent.MaxAutonomousActions)
	assert.Equal(t, 2000, cfg.Agent.MemoryTokenBudget)
	assert.Equal(t, 3, cfg.Queue.MaxConcurrent)
	assert.Equal(t, 30*time.Second, cfg.Queue.DefaultTimeout)
	assert.Equal(t, 1000, cfg.Memory.MaxRecords)
	assert.Equal(t, 100, cfg.Memory.MaxDomains)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("llm:\n  model: gpt-4o-mini\nagent:\n  max_autonomous_actions: 4\n  memory_token_budget: 500\n")
	require.NoError(t, os.WriteFile(path, content, 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 4, cfg.Agent.MaxAutonomousActions)
	assert.Equal(t, 500, cfg.Agent.MemoryTokenBudget)
	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Queue.MaxConcurrent)
}

func TestLoadAppliesEnvFallbacks(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "https://llm.internal.example")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "https://llm.internal.example", cfg.LLM.BaseURL)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")

	cfg := Default()
	cfg.LLM.Model = "gpt-4.1"
	cfg.Memory.RedisAddr = "localhost:6379"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [not a mapping"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}
