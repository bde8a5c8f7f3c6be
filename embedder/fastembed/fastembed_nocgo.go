//go:build !cgo

// Package fastembed wraps FastEmbed's local ONNX sentence models.
package fastembed

import (
	"context"
	"fmt"

	"github.com/becomeliminal/ragent/core"
)

// Embedder is a stub for builds without cgo.
type Embedder struct{}

// New returns ErrEmbeddingUnavailable when cgo is disabled.
func New(_ Config) (*Embedder, error) {
	return nil, fmt.Errorf("%w: fastembed requires cgo", core.ErrEmbeddingUnavailable)
}

func (e *Embedder) Embed(context.Context, string) ([]float32, error) {
	return nil, core.ErrEmbeddingUnavailable
}

func (e *Embedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, core.ErrEmbeddingUnavailable
}

func (e *Embedder) Dimensions() int { return 0 }

func (e *Embedder) Name() string { return Name }

func (e *Embedder) Close() error { return nil }
