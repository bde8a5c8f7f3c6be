package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/ragent/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 384, cfg.Embeddings.Dimensions)
	assert.True(t, cfg.Embeddings.Fallback)
	assert.Equal(t, 512, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 64, cfg.Retrieval.ChunkOverlap)
	assert.Equal(t, []string{".txt", ".md"}, cfg.Retrieval.Extensions)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 30, cfg.Memory.CleanupDays)
	assert.Equal(t, 0.3, cfg.Memory.ImportanceThreshold)
	assert.Equal(t, 6, cfg.Agent.MaxIterations)
	assert.Equal(t, 2, cfg.Agent.RetryAttempts)
	assert.Equal(t, 0.55, cfg.Agent.MinConfidence)
	assert.Equal(t, 30*time.Second, cfg.Agent.Timeout())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
embeddings:
  provider: tfidf
  dimensions: 256
retrieval:
  sources: [docs]
  extensions: [".rst"]
  chunk_size: 100
  chunk_overlap: 10
memory:
  backend: chromem
  database_path: ""
  write_timeout: 500ms
agent:
  timeout_seconds: 2.5
  retry_backoff: 10ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tfidf", cfg.Embeddings.Provider)
	assert.Equal(t, 256, cfg.Embeddings.Dimensions)
	assert.Equal(t, []string{"docs"}, cfg.Retrieval.Sources)
	assert.Equal(t, []string{".rst"}, cfg.Retrieval.Extensions)
	assert.Equal(t, 100, cfg.Retrieval.ChunkSize)
	assert.Equal(t, "chromem", cfg.Memory.Backend)
	assert.Empty(t, cfg.Memory.DatabasePath)
	assert.Equal(t, 500*time.Millisecond, cfg.Memory.WriteTimeout)
	assert.Equal(t, 2500*time.Millisecond, cfg.Agent.Timeout())
	assert.Equal(t, 10*time.Millisecond, cfg.Agent.RetryBackoff)

	// Untouched sections keep their defaults.
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 6, cfg.Agent.MaxIterations)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "retrieval:\n  top_k: 3\nllm:\n  provider: anthropic\n")
	t.Setenv("RAGENT_RETRIEVAL_TOP_K", "9")
	t.Setenv("RAGENT_RETRIEVAL_EXTENSIONS", ".txt,.org")
	t.Setenv("RAGENT_LLM_API_KEY", "sk-test")
	t.Setenv("RAGENT_MEMORY_CLEANUP_DAYS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Retrieval.TopK)
	assert.Equal(t, []string{".txt", ".org"}, cfg.Retrieval.Extensions)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 7, cfg.Memory.CleanupDays)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := writeConfig(t, "retrieval:\n  chunk_size: 10\n  chunk_overlap: 10\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
	assert.Contains(t, err.Error(), "chunk_overlap")
}

func TestLoad_RejectsOversizedFile(t *testing.T) {
	path := writeConfig(t, "# "+strings.Repeat("x", maxConfigFileSize)+"\n")

	_, err := Load(path)
	assert.ErrorContains(t, err, "too large")
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "retrieval: [unterminated\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "word2vec" }, "embeddings.provider"},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }, "embeddings.dimensions"},
		{"no sources", func(c *Config) { c.Retrieval.Sources = nil }, "retrieval.sources"},
		{"negative overlap", func(c *Config) { c.Retrieval.ChunkOverlap = -1 }, "chunk_overlap"},
		{"threshold above one", func(c *Config) { c.Memory.ImportanceThreshold = 1.5 }, "importance_threshold"},
		{"unknown memory backend", func(c *Config) { c.Memory.Backend = "redis" }, "memory.backend"},
		{"sqlite without path", func(c *Config) { c.Memory.DatabasePath = "" }, "database_path"},
		{"zero iterations", func(c *Config) { c.Agent.MaxIterations = 0 }, "max_iterations"},
		{"zero timeout", func(c *Config) { c.Agent.TimeoutSeconds = 0 }, "timeout_seconds"},
		{"unknown llm", func(c *Config) { c.LLM.Provider = "openai" }, "llm.provider"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoad_EnvListReplacesYAMLList(t *testing.T) {
	path := writeConfig(t, "retrieval:\n  sources: [docs, notes, wiki]\n")
	t.Setenv("RAGENT_RETRIEVAL_SOURCES", "a, b")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, cfg.Retrieval.Sources)
}

func TestEnvValue(t *testing.T) {
	key, value := envValue("RAGENT_RETRIEVAL_EXTENSIONS", ".txt, .org,,")
	assert.Equal(t, "retrieval.extensions", key)
	assert.Equal(t, []string{".txt", ".org"}, value)

	key, value = envValue("RAGENT_RETRIEVAL_TOP_K", "9")
	assert.Equal(t, "retrieval.top_k", key)
	assert.Equal(t, "9", value)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "retrieval.top_k", envKey("RAGENT_RETRIEVAL_TOP_K"))
	assert.Equal(t, "agent.timeout_seconds", envKey("RAGENT_AGENT_TIMEOUT_SECONDS"))
	assert.Equal(t, "debug", envKey("RAGENT_DEBUG"))
}
