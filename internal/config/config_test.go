package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CARDCHECK_PROVIDER", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 5, cfg.Engine.SandboxWorkers)
	assert.Equal(t, 50, cfg.Engine.MaxMatches)
	assert.Equal(t, ":8085", cfg.Server.Addr)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("CARDCHECK_PROVIDER", "")
	path := filepath.Join(t.TempDir(), "cardcheck.yaml")
	data := `
llm:
  provider: openai
  model: gpt-4o
engine:
  sandbox_workers: 3
  sandbox_timeout: 30s
server:
  addr: ":9000"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 3, cfg.Engine.SandboxWorkers)
	assert.Equal(t, "30s", cfg.Engine.SandboxTimeout)
	// Unset fields keep defaults.
	assert.Equal(t, 50, cfg.Engine.MaxMatches)
	assert.Equal(t, ":9000", cfg.Server.Addr)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.NoError(t, err, "missing file should fall back to defaults")
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [not a mapping"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CARDCHECK_PROVIDER", "gemini")
	t.Setenv("CARDCHECK_MODEL", "gemini-2.5-pro")
	t.Setenv("CARDCHECK_ADDR", ":7001")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
	assert.Equal(t, "test-key", cfg.LLM.APIKey)
	assert.Equal(t, ":7001", cfg.Server.Addr)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, ParseDuration("250ms", time.Second))
	assert.Equal(t, time.Second, ParseDuration("", time.Second))
	assert.Equal(t, time.Second, ParseDuration("not a duration", time.Second))
}

func TestRunConfigFrom(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "k"
	cfg.LLM.BaseURL = "http://proxy.internal/v1"
	cfg.LLM.Timeout = "45s"
	cfg.Engine.SandboxWorkers = 0 // invalid, falls back
	cfg.Engine.MaxMatches = -1    // invalid, falls back
	cfg.Engine.SandboxTimeout = "3s"

	rc := RunConfigFrom(cfg)
	assert.Equal(t, "openai", rc.Provider)
	assert.Equal(t, "k", rc.APIKey)
	assert.Equal(t, "http://proxy.internal/v1", rc.BaseURL)
	assert.Equal(t, 45*time.Second, rc.Timeout)
	assert.Equal(t, 5, rc.SandboxWorkers)
	assert.Equal(t, 50, rc.MaxMatches)
	assert.Equal(t, 3*time.Second, rc.SandboxTimeout)
	assert.Equal(t, 50*time.Millisecond, rc.EnqueueTimeout)
}
