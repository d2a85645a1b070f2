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
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 6, cfg.Memory.ShortTermSize)
	assert.Equal(t, 3, cfg.Memory.RetrieveK)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "chromem", cfg.Memory.Store)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "travelmem.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  provider: openai
  base_url: https://api.groq.com/openai/v1/
  model: llama-3.1-8b-instant
  timeout: 45s
memory:
  retrieve_k: 5
  store: sqlite
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "llama-3.1-8b-instant", cfg.LLM.Model)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 5, cfg.Memory.RetrieveK)
	assert.Equal(t, "sqlite", cfg.Memory.Store)
	// Keys the file leaves out keep their defaults.
	assert.Equal(t, int64(1200), cfg.LLM.MaxTokens)
	assert.Equal(t, 6000, cfg.Memory.CharBudget)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "travelmem.yaml")
	require.NoError(t, os.WriteFile(path, []byte("memory:\n  retrieve_k: 5\n"), 0o644))
	t.Setenv("TRAVELMEM_MEMORY_RETRIEVE_K", "7")
	t.Setenv("TRAVELMEM_LOGGING_LEVEL", "debug")
	t.Setenv("TRAVELMEM_SUGGEST_TIMEOUT", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Memory.RetrieveK)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 5*time.Second, cfg.Suggest.Timeout)
}

func TestLoadProviderKeyFallback(t *testing.T) {
	t.Setenv("TRAVELMEM_LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "gsk-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "gsk-test", cfg.LLM.APIKey)
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	path := filepath.Join(t.TempDir(), "nested", "travelmem.yaml")

	require.NoError(t, WriteDefault(path))
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.LLM.APIKey = "sk-test"
		return cfg
	}
	require.NoError(t, valid().Validate())

	mock := Default()
	mock.LLM.Provider = "mock"
	assert.NoError(t, mock.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown llm provider", func(c *Config) { c.LLM.Provider = "ollama" }},
		{"missing api key", func(c *Config) { c.LLM.APIKey = "" }},
		{"zero max tokens", func(c *Config) { c.LLM.MaxTokens = 0 }},
		{"temperature out of range", func(c *Config) { c.LLM.Temperature = 3 }},
		{"too many suggestions", func(c *Config) { c.Suggest.Max = 5 }},
		{"unknown embedder", func(c *Config) { c.Embedder.Provider = "word2vec" }},
		{"onnx without model", func(c *Config) { c.Embedder.Provider = "onnx" }},
		{"zero short term size", func(c *Config) { c.Memory.ShortTermSize = 0 }},
		{"zero retrieve k", func(c *Config) { c.Memory.RetrieveK = 0 }},
		{"negative budget", func(c *Config) { c.Memory.CharBudget = -1 }},
		{"unknown store", func(c *Config) { c.Memory.Store = "redis" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
