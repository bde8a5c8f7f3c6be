// Package retriever indexes a corpus and answers similarity queries over it.
package retriever

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/becomeliminal/ragent/core"
	"github.com/becomeliminal/ragent/embedder"
	"github.com/becomeliminal/ragent/ingest"
	"github.com/becomeliminal/ragent/metrics"
	"github.com/becomeliminal/ragent/vectorstore"
)

// Backend is the embedding backend the retriever drives.
type Backend interface {
	embedder.Embedder
	embedder.Fitter
}

// Config tunes ingestion and search.
type Config struct {
	// TopK is used when Search is called with k <= 0.
	TopK int

	// Workers bounds concurrent embedding batches during ingestion.
	Workers int

	// BatchSize is the number of chunks per embedding call.
	BatchSize int

	// CacheMaxCost bounds the query embedding cache in bytes. Zero disables
	// the cache.
	CacheMaxCost int64
}

// Summary reports what an ingestion pass did.
type Summary struct {
	FilesProcessed  int           `json:"files_processed"`
	ChunksIndexed   int           `json:"chunks_indexed"`
	ChunksEmbedded  int           `json:"chunks_embedded"`
	ChunksUnchanged int           `json:"chunks_unchanged"`
	ChunksRemoved   int           `json:"chunks_removed"`
	Skipped         []ingest.Skip `json:"skipped"`
	Duration        time.Duration `json:"duration"`
}

type indexed struct {
	source     string
	hash       string
	generation uint64
}

// Retriever owns the link between files on disk, their embeddings and the
// vector store.
type Retriever struct {
	ingestor *ingest.Ingestor
	backend  Backend
	store    *vectorstore.Store
	cache    *ristretto.Cache
	cfg      Config
	logger   *zap.Logger

	// mu serializes Ingest and Clear; Search only reads the store.
	mu    sync.Mutex
	known map[string]indexed
}

// New wires a retriever. The backend and store must agree on dimension.
func New(ing *ingest.Ingestor, backend Backend, store *vectorstore.Store, cfg Config, logger *zap.Logger) (*Retriever, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if backend.Dimensions() != store.Dimensions() {
		return nil, fmt.Errorf("retriever: %w", &core.DimensionMismatchError{Expected: store.Dimensions(), Got: backend.Dimensions()})
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}

	r := &Retriever{
		ingestor: ing,
		backend:  backend,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		known:    make(map[string]indexed),
	}
	if cfg.CacheMaxCost > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 10_000,
			MaxCost:     cfg.CacheMaxCost,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("query cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// Ingest scans the sources, refits the backend on the full corpus, embeds
// new or changed chunks and removes chunks that no longer exist. Running it
// twice on an unchanged corpus embeds nothing the second time.
func (r *Retriever) Ingest(ctx context.Context) (*Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	scan, err := r.ingestor.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan sources: %w", err)
	}
	summary := &Summary{
		FilesProcessed: len(scan.Files),
		ChunksIndexed:  len(scan.Chunks),
		Skipped:        scan.Skipped,
	}

	corpus := make([]string, len(scan.Chunks))
	for i, c := range scan.Chunks {
		corpus[i] = c.Content
	}
	restore := r.backend.Checkpoint()
	if err := r.backend.Fit(ctx, corpus); err != nil {
		restore()
		return nil, fmt.Errorf("fit embedding model: %w", err)
	}
	gen := r.backend.Generation()

	var pending []core.Document
	for _, c := range scan.Chunks {
		prev, ok := r.known[c.ID]
		if ok && prev.hash == c.Metadata.ContentHash && prev.generation == gen {
			summary.ChunksUnchanged++
			continue
		}
		pending = append(pending, c)
	}

	entries, err := r.embed(ctx, pending)
	if err == nil {
		if err = r.store.Add(entries); err != nil {
			err = fmt.Errorf("index chunks: %w", err)
		}
	}
	if err != nil {
		// The store still holds vectors from the previous statistics.
		restore()
		if r.cache != nil {
			r.cache.Clear()
		}
		r.logger.Warn("ingestion failed, previous index kept",
			zap.Uint64("generation", r.backend.Generation()),
			zap.Error(err))
		return nil, err
	}
	for _, c := range pending {
		r.known[c.ID] = indexed{source: c.Metadata.Source, hash: c.Metadata.ContentHash, generation: gen}
	}
	summary.ChunksEmbedded = len(pending)
	summary.ChunksRemoved = r.prune(scan)
	summary.Duration = time.Since(start)

	metrics.IngestedChunks.Add(float64(summary.ChunksEmbedded))
	metrics.SkippedFiles.Add(float64(len(summary.Skipped)))
	metrics.IndexedDocuments.Set(float64(r.store.Len()))

	r.logger.Info("ingestion complete",
		zap.Int("files", summary.FilesProcessed),
		zap.Int("chunks", summary.ChunksIndexed),
		zap.Int("embedded", summary.ChunksEmbedded),
		zap.Int("removed", summary.ChunksRemoved),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

// embed runs batches on a bounded worker pool. Results keep input order.
func (r *Retriever) embed(ctx context.Context, docs []core.Document) ([]vectorstore.Entry, error) {
	entries := make([]vectorstore.Entry, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for lo := 0; lo < len(docs); lo += r.cfg.BatchSize {
		hi := min(lo+r.cfg.BatchSize, len(docs))
		g.Go(func() error {
			texts := make([]string, hi-lo)
			for i := lo; i < hi; i++ {
				texts[i-lo] = docs[i].Content
			}
			vecs, err := r.backend.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", lo, hi-1, err)
			}
			for i, vec := range vecs {
				entries[lo+i] = vectorstore.Entry{Document: docs[lo+i], Vector: vec}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// prune deletes chunks no longer produced by the scan. Chunks belonging to
// skipped files are kept so a transient read error does not drop them.
func (r *Retriever) prune(scan *ingest.ScanResult) int {
	current := make(map[string]struct{}, len(scan.Chunks))
	for _, c := range scan.Chunks {
		current[c.ID] = struct{}{}
	}
	skipped := make(map[string]struct{}, len(scan.Skipped))
	for _, s := range scan.Skipped {
		skipped[s.Path] = struct{}{}
	}

	var stale []string
	for id, info := range r.known {
		if _, ok := current[id]; ok {
			continue
		}
		if _, ok := skipped[info.source]; ok {
			continue
		}
		stale = append(stale, id)
	}
	r.store.Delete(stale...)
	for _, id := range stale {
		delete(r.known, id)
	}
	return len(stale)
}

// Search embeds query and returns the k most similar chunks. k <= 0 uses
// the configured default. A blank query returns no results.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]core.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if k <= 0 {
		k = r.cfg.TopK
	}
	vec, err := r.queryVector(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.store.Search(vec, k)
}

func (r *Retriever) queryVector(ctx context.Context, query string) ([]float32, error) {
	if r.cache == nil {
		return r.backend.Embed(ctx, query)
	}
	key := strconv.FormatUint(r.backend.Generation(), 10) + "\x00" + query
	if v, ok := r.cache.Get(key); ok {
		return v.([]float32), nil
	}
	vec, err := r.backend.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	r.cache.Set(key, vec, int64(4*len(vec)))
	return vec, nil
}

// Len returns the number of indexed chunks.
func (r *Retriever) Len() int {
	return r.store.Len()
}

// Clear drops every indexed chunk and cached query vector.
func (r *Retriever) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store.Clear()
	r.known = make(map[string]indexed)
	if r.cache != nil {
		r.cache.Clear()
	}
	metrics.IndexedDocuments.Set(0)
}

// Close releases the query cache.
func (r *Retriever) Close() {
	if r.cache != nil {
		r.cache.Close()
	}
}
