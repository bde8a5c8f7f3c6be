// Package ingest walks source directories and cuts text files into chunks.
package ingest

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/becomeliminal/ragent/core"
)

// Reasons a file or source is skipped.
const (
	ReasonMissingSource = "missing source"
	ReasonReadError     = "read error"
	ReasonInvalidUTF8   = "invalid utf-8"
	ReasonTooLarge      = "too large"
)

// Config controls which files are read and how they are chunked.
type Config struct {
	Sources      []string
	Extensions   []string
	ChunkSize    int
	ChunkOverlap int

	// MaxFileBytes skips larger files. Zero means no limit.
	MaxFileBytes int64
}

// Skip records a file that was not ingested.
type Skip struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// ScanResult is the output of one pass over the sources.
type ScanResult struct {
	// Chunks in source order, then chunk order.
	Chunks []core.Document

	// Files lists every file that was read, including empty ones.
	Files []string

	Skipped []Skip
}

// Ingestor reads configured sources into chunks.
type Ingestor struct {
	cfg        Config
	chunker    *Chunker
	extensions map[string]struct{}
	logger     *zap.Logger
}

// New validates cfg and builds an Ingestor.
func New(cfg Config, logger *zap.Logger) (*Ingestor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	chunker, err := NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	exts := make(map[string]struct{}, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	return &Ingestor{cfg: cfg, chunker: chunker, extensions: exts, logger: logger}, nil
}

// Chunker returns the configured chunker.
func (i *Ingestor) Chunker() *Chunker {
	return i.chunker
}

// Scan walks every source in lexical order. Per-file problems are recorded
// in ScanResult.Skipped and never abort the scan; only context
// cancellation does.
func (i *Ingestor) Scan(ctx context.Context) (*ScanResult, error) {
	res := &ScanResult{}
	for _, src := range i.cfg.Sources {
		if err := i.scanSource(ctx, src, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (i *Ingestor) scanSource(ctx context.Context, src string, res *ScanResult) error {
	root := absPath(src)
	if _, err := os.Stat(root); err != nil {
		i.skip(res, root, ReasonMissingSource, err)
		return nil
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			i.skip(res, path, ReasonReadError, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !i.matches(path) {
			return nil
		}
		i.readFile(path, res)
		return nil
	})
}

func (i *Ingestor) matches(path string) bool {
	if len(i.extensions) == 0 {
		return true
	}
	_, ok := i.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (i *Ingestor) readFile(path string, res *ScanResult) {
	if i.cfg.MaxFileBytes > 0 {
		info, err := os.Stat(path)
		if err != nil {
			i.skip(res, path, ReasonReadError, err)
			return
		}
		if info.Size() > i.cfg.MaxFileBytes {
			i.skip(res, path, ReasonTooLarge, fmt.Errorf("%d bytes exceeds limit of %d", info.Size(), i.cfg.MaxFileBytes))
			return
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		i.skip(res, path, ReasonReadError, err)
		return
	}
	if !utf8.Valid(data) {
		i.skip(res, path, ReasonInvalidUTF8, errors.New("file is not valid UTF-8"))
		return
	}

	res.Files = append(res.Files, path)
	res.Chunks = append(res.Chunks, i.Chunk(path, string(data))...)
}

// Chunk splits text from source into documents with deterministic ids.
func (i *Ingestor) Chunk(source, text string) []core.Document {
	parts := i.chunker.Split(text)
	docs := make([]core.Document, len(parts))
	for idx, part := range parts {
		sum := sha256.Sum256([]byte(part))
		docs[idx] = core.Document{
			ID:      ChunkID(source, idx),
			Content: part,
			Metadata: core.Metadata{
				Source:      source,
				ChunkIndex:  idx,
				TotalChunks: len(parts),
				ContentHash: hex.EncodeToString(sum[:]),
			},
		}
	}
	return docs
}

func (i *Ingestor) skip(res *ScanResult, path, reason string, err error) {
	i.logger.Warn("skipping file", zap.String("path", path), zap.String("reason", reason), zap.Error(err))
	res.Skipped = append(res.Skipped, Skip{
		Path:   path,
		Reason: reason,
		Err:    &core.IngestionError{Path: path, Err: err},
	})
}

// ChunkID derives a stable id from a source path and chunk index.
func ChunkID(source string, index int) string {
	sum := sha1.Sum([]byte(source))
	return hex.EncodeToString(sum[:8]) + ":" + strconv.Itoa(index)
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
