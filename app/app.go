// Package app assembles the embedding backend, vector store, retriever,
// memory and engine into one object that owns them for the life of the
// process.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/becomeliminal/ragent/config"
	"github.com/becomeliminal/ragent/core"
	"github.com/becomeliminal/ragent/embedder"
	"github.com/becomeliminal/ragent/engine"
	"github.com/becomeliminal/ragent/generator"
	"github.com/becomeliminal/ragent/generator/claude"
	"github.com/becomeliminal/ragent/ingest"
	"github.com/becomeliminal/ragent/memory"
	"github.com/becomeliminal/ragent/memory/store/chromem"
	"github.com/becomeliminal/ragent/memory/store/sqlite"
	"github.com/becomeliminal/ragent/retriever"
	"github.com/becomeliminal/ragent/vectorstore"
)

// Stats summarizes the running system.
type Stats struct {
	Documents     int     `json:"documents"`
	Backend       string  `json:"backend"`
	Fallback      bool    `json:"fallback"`
	Generator     string  `json:"generator,omitempty"`
	MemoryEnabled bool    `json:"memory_enabled"`
	Tasks         int     `json:"tasks"`
	SuccessRate   float64 `json:"success_rate"`
}

// App owns every component. Build one with New and pass it to the CLI or
// server.
type App struct {
	config    *config.Config
	logger    *zap.Logger
	backend   *embedder.Backend
	store     *vectorstore.Store
	retriever *retriever.Retriever
	memory    *memory.Manager
	generator generator.Generator
	engine    *engine.Engine

	ingestMu     sync.Mutex
	autoIngested bool
}

// Option configures New.
type Option func(*options)

type options struct {
	generator generator.Generator
	clock     func() time.Time
}

// WithGenerator uses g instead of the generator described by the llm
// config section.
func WithGenerator(g generator.Generator) Option {
	return func(o *options) {
		o.generator = g
	}
}

// WithClock replaces the time source for task logs and retention.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// New builds the application from cfg.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{config: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var err error
	a.backend, err = embedder.New(embedderConfig(cfg), logger.Named("embedder"))
	if err != nil {
		return nil, fmt.Errorf("create embedding backend: %w", err)
	}

	a.store, err = vectorstore.New(a.backend.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}

	ing, err := ingest.New(ingest.Config{
		Sources:      cfg.Retrieval.Sources,
		Extensions:   cfg.Retrieval.Extensions,
		ChunkSize:    cfg.Retrieval.ChunkSize,
		ChunkOverlap: cfg.Retrieval.ChunkOverlap,
		MaxFileBytes: cfg.Retrieval.MaxFileBytes,
	}, logger.Named("ingest"))
	if err != nil {
		return nil, fmt.Errorf("create ingestor: %w", err)
	}

	a.retriever, err = retriever.New(ing, a.backend, a.store, retriever.Config{
		TopK:         cfg.Retrieval.TopK,
		Workers:      cfg.Retrieval.Workers,
		BatchSize:    cfg.Retrieval.BatchSize,
		CacheMaxCost: cfg.Embeddings.CacheMaxCost,
	}, logger.Named("retriever"))
	if err != nil {
		return nil, fmt.Errorf("create retriever: %w", err)
	}

	memStore, err := openMemoryStore(cfg.Memory, a.backend)
	if err != nil {
		return nil, err
	}
	a.memory = memory.NewManager(memStore, memory.Config{
		Enabled:             cfg.Memory.Enabled,
		CleanupDays:         cfg.Memory.CleanupDays,
		ImportanceThreshold: cfg.Memory.ImportanceThreshold,
		WriteTimeout:        cfg.Memory.WriteTimeout,
	}, logger.Named("memory"))
	a.memory.SetClock(o.clock)

	a.generator = o.generator
	if a.generator == nil {
		a.generator, err = newGenerator(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	engineOpts := []engine.Option{
		engine.WithLogger(logger.Named("engine")),
		engine.WithClock(o.clock),
	}
	if a.generator != nil {
		engineOpts = append(engineOpts, engine.WithGenerator(a.generator))
	}
	if cfg.Memory.Enabled {
		engineOpts = append(engineOpts, engine.WithMemory(a.memory))
	}
	a.engine = engine.NewEngine(a.retriever, engineConfig(cfg), engineOpts...)

	ok = true
	return a, nil
}

func embedderConfig(cfg *config.Config) embedder.Config {
	e := cfg.Embeddings
	return embedder.Config{
		Provider:          e.Provider,
		Model:             e.Model,
		ModelPath:         e.ModelPath,
		TokenizerPath:     e.TokenizerPath,
		SharedLibraryPath: e.SharedLibraryPath,
		CacheDir:          e.CacheDir,
		MaxLength:         e.MaxLength,
		Dimensions:        e.Dimensions,
		Fallback:          e.Fallback,
	}
}

func engineConfig(cfg *config.Config) engine.Config {
	a := cfg.Agent
	return engine.Config{
		MaxIterations:      a.MaxIterations,
		Timeout:            a.Timeout(),
		RetryAttempts:      a.RetryAttempts,
		RetryBackoff:       a.RetryBackoff,
		TopK:               cfg.Retrieval.TopK,
		MinConfidence:      a.MinConfidence,
		MaxContextPassages: a.MaxContextPassages,
		MaxPassageChars:    a.MaxPassageChars,
		MaxAnswerSentences: a.MaxAnswerSentences,
	}
}

func openMemoryStore(cfg config.MemoryConfig, emb memory.Embedder) (memory.Store, error) {
	switch cfg.Backend {
	case "chromem":
		s, err := chromem.New(cfg.DatabasePath, emb)
		if err != nil {
			return nil, fmt.Errorf("open chromem memory store: %w", err)
		}
		return s, nil
	default:
		s, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite memory store: %w", err)
		}
		return s, nil
	}
}

// newGenerator returns nil when no generator is configured or the API key
// is missing; extractive answers are used then.
func newGenerator(cfg *config.Config, logger *zap.Logger) (generator.Generator, error) {
	if cfg.LLM.Provider != "anthropic" {
		return nil, nil
	}
	apiKey := cfg.LLM.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		logger.Warn("llm provider configured without an API key, using extractive answers",
			zap.String("provider", cfg.LLM.Provider))
		return nil, nil
	}

	g, err := claude.New(claude.Config{
		APIKey:          apiKey,
		Model:           cfg.LLM.Model,
		MaxTokens:       cfg.LLM.MaxTokens,
		Temperature:     cfg.LLM.Temperature,
		BaseURL:         cfg.LLM.BaseURL,
		MaxPassageChars: cfg.Agent.MaxPassageChars,
	})
	if err != nil {
		return nil, fmt.Errorf("create generator: %w", err)
	}
	logger.Info("generator configured", zap.String("generator", g.Name()))
	return g, nil
}

// Ingest indexes the configured sources.
func (a *App) Ingest(ctx context.Context) (*retriever.Summary, error) {
	a.ingestMu.Lock()
	defer a.ingestMu.Unlock()
	a.autoIngested = true
	return a.retriever.Ingest(ctx)
}

// Query answers text. When the index is empty and auto_ingest is set, the
// sources are ingested first, once per App.
func (a *App) Query(ctx context.Context, text string) *core.AgentResponse {
	a.ensureIngested(ctx)
	return a.engine.Run(ctx, text)
}

func (a *App) ensureIngested(ctx context.Context) {
	if !a.config.Retrieval.AutoIngest {
		return
	}
	a.ingestMu.Lock()
	defer a.ingestMu.Unlock()
	if a.autoIngested || a.retriever.Len() > 0 {
		return
	}
	a.autoIngested = true

	a.logger.Info("index empty, ingesting sources")
	summary, err := a.retriever.Ingest(ctx)
	if err != nil {
		a.logger.Warn("auto ingest failed", zap.Error(err))
		return
	}
	if summary.ChunksIndexed == 0 {
		a.logger.Warn("no documents were ingested, queries will return empty results")
	}
}

// Stats reports index and memory counters.
func (a *App) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		Documents:     a.retriever.Len(),
		Backend:       a.backend.Name(),
		Fallback:      a.backend.IsFallback(),
		MemoryEnabled: a.config.Memory.Enabled,
	}
	if a.generator != nil {
		st.Generator = a.generator.Name()
	}
	ms, err := a.memory.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory stats: %w", err)
	}
	st.Tasks = ms.Total
	st.SuccessRate = ms.SuccessRate()
	return st, nil
}

// History returns up to limit task logs, most recent first.
func (a *App) History(ctx context.Context, limit int) ([]*core.TaskLog, error) {
	return a.memory.Recent(ctx, limit)
}

// Similar returns past tasks whose queries resemble query. Only the chromem
// memory backend supports it.
func (a *App) Similar(ctx context.Context, query string, limit int) ([]*core.TaskLog, error) {
	return a.memory.Similar(ctx, query, limit)
}

// Cleanup applies the retention policy and returns the number of purged
// task logs.
func (a *App) Cleanup(ctx context.Context) (int, error) {
	return a.memory.Cleanup(ctx)
}

// Clear empties the vector index.
func (a *App) Clear() {
	a.retriever.Clear()
}

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config {
	return a.config
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Close releases every component. It is safe on a partially built App.
func (a *App) Close() error {
	var errs []error
	if a.retriever != nil {
		a.retriever.Close()
	}
	if a.memory != nil {
		if err := a.memory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close memory: %w", err))
		}
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close embedder: %w", err))
		}
	}
	return errors.Join(errs...)
}
