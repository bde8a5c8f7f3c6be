//go:build cgo

// Package fastembed wraps FastEmbed's local ONNX sentence models.
package fastembed

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"

	"github.com/becomeliminal/ragent/core"
)

var models = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
	"all-MiniLM-L6-v2":                       fastembed.AllMiniLML6V2,
}

var dimensions = map[fastembed.EmbeddingModel]int{
	fastembed.BGESmallENV15: 384,
	fastembed.BGEBaseENV15:  768,
	fastembed.AllMiniLML6V2: 384,
}

// Embedder produces embeddings with a FastEmbed FlagEmbedding model.
type Embedder struct {
	mu        sync.Mutex
	model     *fastembed.FlagEmbedding
	name      string
	dimension int
	batchSize int
}

// New downloads (if needed) and loads the configured model.
func New(cfg Config) (*Embedder, error) {
	model, ok := models[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported fastembed model %q", core.ErrEmbeddingUnavailable, cfg.Model)
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "local_cache")
	}
	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 256
	}

	showProgress := false
	flag, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: initialize fastembed: %v", core.ErrEmbeddingUnavailable, err)
	}

	return &Embedder{
		model:     flag,
		name:      cfg.Model,
		dimension: dimensions[model],
		batchSize: batchSize,
	}, nil
}

// Embed embeds a query with the model's query prefix.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	vec, err := e.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("fastembed query: %w", err)
	}
	return vec, nil
}

// EmbedBatch embeds passages with the model's passage prefix.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	vecs, err := e.model.PassageEmbed(texts, e.batchSize)
	if err != nil {
		return nil, fmt.Errorf("fastembed passages: %w", err)
	}
	return vecs, nil
}

func (e *Embedder) Dimensions() int { return e.dimension }

func (e *Embedder) Name() string { return Name + ":" + e.name }

// Close releases the ONNX session.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil
	}
	err := e.model.Destroy()
	e.model = nil
	return err
}
