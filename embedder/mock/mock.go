package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"

	"github.com/becomeliminal/ragent/core"
)

// MockEmbedder is a simple mock embedder for testing.
// It generates deterministic embeddings based on text hash, so identical
// texts score 1.0 and everything else is close to orthogonal.
type MockEmbedder struct {
	dimensions int
	calls      atomic.Int64
	err        error
}

// New creates a new mock embedder. Zero dims means 384, the
// all-MiniLM-L6-v2 size.
func New(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &MockEmbedder{dimensions: dims}
}

// Failing returns an embedder whose every call fails with err.
func Failing(dims int, err error) *MockEmbedder {
	m := New(dims)
	m.err = err
	return m
}

// Embed creates a deterministic embedding from text.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := range embedding {
		// Simple LCG (Linear Congruential Generator)
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return core.Normalize(embedding), nil
}

// EmbedBatch embeds each text in order.
func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

// Dimensions returns the embedding size.
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

// Name returns "mock".
func (m *MockEmbedder) Name() string {
	return "mock"
}

// Calls returns how many texts have been embedded.
func (m *MockEmbedder) Calls() int {
	return int(m.calls.Load())
}
