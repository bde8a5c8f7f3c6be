// Package embedder selects and wraps the embedding backend.
//
// A Backend is chosen once, at construction, in a fixed order: the
// configured neural provider first, then the statistical TF-IDF model when
// fallback is enabled. The choice never changes for the Backend's lifetime.
package embedder

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/becomeliminal/ragent/core"
	"github.com/becomeliminal/ragent/embedder/fastembed"
	"github.com/becomeliminal/ragent/embedder/onnx"
	"github.com/becomeliminal/ragent/embedder/tfidf"
)

// Embedder converts text to vectors.
type Embedder interface {
	// Embed converts a single text (typically a query) to a vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts texts (typically passages) to vectors, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// Name identifies the model.
	Name() string
}

// Fitter is implemented by models that learn corpus statistics.
type Fitter interface {
	Fit(ctx context.Context, corpus []string) error

	// Generation changes whenever Fit alters the model, which invalidates
	// previously computed vectors.
	Generation() uint64

	// Checkpoint returns a func that reinstalls the current statistics.
	Checkpoint() (restore func())
}

// Provider names.
const (
	ProviderONNX      = "onnx"
	ProviderFastEmbed = "fastembed"
	ProviderTFIDF     = "tfidf"
)

// Config selects and configures the backend.
type Config struct {
	Provider          string
	Model             string
	ModelPath         string
	TokenizerPath     string
	SharedLibraryPath string
	CacheDir          string
	MaxLength         int

	// Dimensions is the declared vector size shared with the vector store.
	Dimensions int

	// Fallback enables the statistical model when the primary fails.
	Fallback bool
}

type primaryFunc func(cfg Config, logger *zap.Logger) (Embedder, error)

// primaries is keyed by provider name.
var primaries = map[string]primaryFunc{
	ProviderONNX: func(cfg Config, logger *zap.Logger) (Embedder, error) {
		return onnx.New(onnx.Config{
			Model:             cfg.Model,
			ModelPath:         cfg.ModelPath,
			TokenizerPath:     cfg.TokenizerPath,
			SharedLibraryPath: cfg.SharedLibraryPath,
			Dimensions:        cfg.Dimensions,
			MaxLength:         cfg.MaxLength,
			Logger:            logger,
		})
	},
	ProviderFastEmbed: func(cfg Config, _ *zap.Logger) (Embedder, error) {
		return fastembed.New(fastembed.Config{
			Model:     cfg.Model,
			CacheDir:  cfg.CacheDir,
			MaxLength: cfg.MaxLength,
		})
	},
}

// Backend is the embedding backend in use. It guarantees every returned
// vector is unit length and has the declared dimension.
type Backend struct {
	model    Embedder
	dim      int
	fallback bool
}

// New builds the backend described by cfg. A primary that fails to
// initialize, or that reports a dimension other than cfg.Dimensions, is
// replaced by the statistical model when cfg.Fallback is set; otherwise New
// returns an error wrapping core.ErrEmbeddingUnavailable.
func New(cfg Config, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: embedding dimensions must be positive", core.ErrInvalidConfig)
	}

	if cfg.Provider == ProviderTFIDF {
		return &Backend{model: tfidf.New(cfg.Dimensions), dim: cfg.Dimensions, fallback: true}, nil
	}

	ctor, ok := primaries[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown embedding provider %q", core.ErrInvalidConfig, cfg.Provider)
	}

	model, err := ctor(cfg, logger)
	if err == nil && model.Dimensions() != cfg.Dimensions {
		err = fmt.Errorf("%w: %s produces %d dimensions, configured %d",
			core.ErrEmbeddingUnavailable, model.Name(), model.Dimensions(), cfg.Dimensions)
		closeModel(model)
	}
	if err != nil {
		if !cfg.Fallback {
			return nil, fmt.Errorf("embedding provider %s: %w", cfg.Provider, err)
		}
		logger.Warn("primary embedding backend unavailable, using statistical fallback",
			zap.String("provider", cfg.Provider),
			zap.Error(err))
		return &Backend{model: tfidf.New(cfg.Dimensions), dim: cfg.Dimensions, fallback: true}, nil
	}

	logger.Info("embedding backend selected", zap.String("backend", model.Name()), zap.Int("dimensions", cfg.Dimensions))
	return &Backend{model: model, dim: cfg.Dimensions}, nil
}

// Wrap returns a Backend around an existing model.
func Wrap(model Embedder) *Backend {
	_, fitter := model.(Fitter)
	return &Backend{model: model, dim: model.Dimensions(), fallback: fitter}
}

// Embed embeds a single text.
func (b *Backend) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := b.model.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return b.finish(vec)
}

// EmbedBatch embeds texts in order.
func (b *Backend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := b.model.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%s returned %d vectors for %d texts", b.model.Name(), len(vecs), len(texts))
	}
	for i, vec := range vecs {
		if vecs[i], err = b.finish(vec); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

func (b *Backend) finish(vec []float32) ([]float32, error) {
	if err := core.CheckDimension(vec, b.dim); err != nil {
		return nil, err
	}
	return core.Normalize(vec), nil
}

// Dimensions returns the declared vector size.
func (b *Backend) Dimensions() int {
	return b.dim
}

// Name returns the selected model's name.
func (b *Backend) Name() string {
	return b.model.Name()
}

// IsFallback reports whether the statistical model is in use.
func (b *Backend) IsFallback() bool {
	return b.fallback
}

// Fit forwards corpus statistics to models that learn them.
func (b *Backend) Fit(ctx context.Context, corpus []string) error {
	if f, ok := b.model.(Fitter); ok {
		return f.Fit(ctx, corpus)
	}
	return nil
}

// Checkpoint captures the model's statistics; restore is a no-op for
// stateless models.
func (b *Backend) Checkpoint() (restore func()) {
	if f, ok := b.model.(Fitter); ok {
		return f.Checkpoint()
	}
	return func() {}
}

// Generation returns the model generation, always 0 for stateless models.
func (b *Backend) Generation() uint64 {
	if f, ok := b.model.(Fitter); ok {
		return f.Generation()
	}
	return 0
}

// Close releases model resources.
func (b *Backend) Close() error {
	return closeModel(b.model)
}

func closeModel(model Embedder) error {
	if c, ok := model.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
