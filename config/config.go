// Package config defines ragent's configuration and its defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/becomeliminal/ragent/core"
)

// Config is the root configuration.
type Config struct {
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Memory     MemoryConfig     `koanf:"memory"`
	Agent      AgentConfig      `koanf:"agent"`
	LLM        LLMConfig        `koanf:"llm"`
	Logging    LoggingConfig    `koanf:"logging"`
	Server     ServerConfig     `koanf:"server"`
}

// EmbeddingsConfig selects the embedding backend.
type EmbeddingsConfig struct {
	// Provider is onnx, fastembed or tfidf.
	Provider          string `koanf:"provider"`
	Model             string `koanf:"model"`
	ModelPath         string `koanf:"model_path"`
	TokenizerPath     string `koanf:"tokenizer_path"`
	SharedLibraryPath string `koanf:"shared_library_path"`
	CacheDir          string `koanf:"cache_dir"`
	MaxLength         int    `koanf:"max_length"`
	Dimensions        int    `koanf:"dimensions"`

	// Fallback switches to the statistical model when the primary fails.
	Fallback bool `koanf:"fallback"`

	// CacheMaxCost bounds the query embedding cache in bytes; 0 disables it.
	CacheMaxCost int64 `koanf:"cache_max_cost"`
}

// RetrievalConfig controls ingestion and search.
type RetrievalConfig struct {
	Sources      []string `koanf:"sources"`
	Extensions   []string `koanf:"extensions"`
	ChunkSize    int      `koanf:"chunk_size"`
	ChunkOverlap int      `koanf:"chunk_overlap"`
	TopK         int      `koanf:"top_k"`
	Workers      int      `koanf:"workers"`
	BatchSize    int      `koanf:"batch_size"`
	MaxFileBytes int64    `koanf:"max_file_bytes"`

	// AutoIngest ingests on the first query when the index is empty.
	AutoIngest bool `koanf:"auto_ingest"`
}

// MemoryConfig controls the task log store.
type MemoryConfig struct {
	Enabled bool `koanf:"enabled"`

	// Backend is sqlite or chromem.
	Backend string `koanf:"backend"`

	// DatabasePath is the SQLite file or the chromem directory. An empty
	// path with the chromem backend keeps logs in memory.
	DatabasePath        string        `koanf:"database_path"`
	CleanupDays         int           `koanf:"cleanup_days"`
	ImportanceThreshold float64       `koanf:"importance_threshold"`
	WriteTimeout        time.Duration `koanf:"write_timeout"`
}

// AgentConfig bounds a query run.
type AgentConfig struct {
	MaxIterations      int           `koanf:"max_iterations"`
	TimeoutSeconds     float64       `koanf:"timeout_seconds"`
	RetryAttempts      int           `koanf:"retry_attempts"`
	RetryBackoff       time.Duration `koanf:"retry_backoff"`
	MinConfidence      float64       `koanf:"min_confidence"`
	MaxContextPassages int           `koanf:"max_context_passages"`
	MaxPassageChars    int           `koanf:"max_passage_chars"`
	MaxAnswerSentences int           `koanf:"max_answer_sentences"`
}

// Timeout returns TimeoutSeconds as a duration.
func (a AgentConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds * float64(time.Second))
}

// LLMConfig configures the optional text generator.
type LLMConfig struct {
	// Provider is empty (extractive answers only) or anthropic.
	Provider    string  `koanf:"provider"`
	Model       string  `koanf:"model"`
	APIKey      string  `koanf:"api_key"`
	BaseURL     string  `koanf:"base_url"`
	MaxTokens   int64   `koanf:"max_tokens"`
	Temperature float64 `koanf:"temperature"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `koanf:"level"`

	// Format is console or json.
	Format string `koanf:"format"`
}

// ServerConfig configures the HTTP/WebSocket server.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Embeddings: EmbeddingsConfig{
			Provider:      "onnx",
			Model:         "all-MiniLM-L6-v2",
			ModelPath:     "models/all-MiniLM-L6-v2/model.onnx",
			TokenizerPath: "models/all-MiniLM-L6-v2/tokenizer.json",
			CacheDir:      "local_cache",
			MaxLength:     128,
			Dimensions:    384,
			Fallback:      true,
			CacheMaxCost:  8 << 20,
		},
		Retrieval: RetrievalConfig{
			Sources:      []string{"data/processed"},
			Extensions:   []string{".txt", ".md"},
			ChunkSize:    512,
			ChunkOverlap: 64,
			TopK:         5,
			Workers:      4,
			BatchSize:    32,
			MaxFileBytes: 10 << 20,
			AutoIngest:   true,
		},
		Memory: MemoryConfig{
			Enabled:             true,
			Backend:             "sqlite",
			DatabasePath:        "data/memory.db",
			CleanupDays:         30,
			ImportanceThreshold: 0.3,
			WriteTimeout:        2 * time.Second,
		},
		Agent: AgentConfig{
			MaxIterations:      6,
			TimeoutSeconds:     30,
			RetryAttempts:      2,
			RetryBackoff:       200 * time.Millisecond,
			MinConfidence:      0.55,
			MaxContextPassages: 3,
			MaxPassageChars:    500,
			MaxAnswerSentences: 3,
		},
		LLM: LLMConfig{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   1024,
			Temperature: 0.2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Validate checks the configuration for values the components cannot use.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	e := c.Embeddings
	check(oneOf(e.Provider, "onnx", "fastembed", "tfidf"), "embeddings.provider %q must be onnx, fastembed or tfidf", e.Provider)
	check(e.Dimensions > 0, "embeddings.dimensions must be positive")
	check(e.CacheMaxCost >= 0, "embeddings.cache_max_cost must not be negative")

	r := c.Retrieval
	check(len(r.Sources) > 0, "retrieval.sources must not be empty")
	check(r.ChunkSize > 0, "retrieval.chunk_size must be positive")
	check(r.ChunkOverlap >= 0 && r.ChunkOverlap < r.ChunkSize,
		"retrieval.chunk_overlap (%d) must be in [0, chunk_size)", r.ChunkOverlap)
	check(r.TopK > 0, "retrieval.top_k must be positive")
	check(r.Workers > 0, "retrieval.workers must be positive")
	check(r.BatchSize > 0, "retrieval.batch_size must be positive")
	check(r.MaxFileBytes >= 0, "retrieval.max_file_bytes must not be negative")

	m := c.Memory
	check(oneOf(m.Backend, "sqlite", "chromem"), "memory.backend %q must be sqlite or chromem", m.Backend)
	check(m.Backend != "sqlite" || !m.Enabled || m.DatabasePath != "", "memory.database_path is required for sqlite")
	check(m.ImportanceThreshold >= 0 && m.ImportanceThreshold <= 1, "memory.importance_threshold must be in [0, 1]")
	check(m.WriteTimeout > 0, "memory.write_timeout must be positive")

	a := c.Agent
	check(a.MaxIterations > 0, "agent.max_iterations must be positive")
	check(a.TimeoutSeconds > 0, "agent.timeout_seconds must be positive")
	check(a.RetryAttempts >= 0, "agent.retry_attempts must not be negative")
	check(a.RetryBackoff > 0, "agent.retry_backoff must be positive")
	check(a.MinConfidence >= -1 && a.MinConfidence <= 1, "agent.min_confidence must be in [-1, 1]")
	check(a.MaxContextPassages > 0, "agent.max_context_passages must be positive")
	check(a.MaxPassageChars > 0, "agent.max_passage_chars must be positive")
	check(a.MaxAnswerSentences > 0, "agent.max_answer_sentences must be positive")

	check(oneOf(c.LLM.Provider, "", "anthropic"), "llm.provider %q must be empty or anthropic", c.LLM.Provider)
	check(oneOf(strings.ToLower(c.Logging.Level), "debug", "info", "warn", "error"), "logging.level %q is not a level", c.Logging.Level)
	check(oneOf(c.Logging.Format, "console", "json"), "logging.format %q must be console or json", c.Logging.Format)

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", core.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
