package memory

import (
	"context"
	"time"

	"github.com/becomeliminal/ragent/core"
)

// Store is the persistence backend for task logs.
// Implementations: sqlite.Store (default), chromem.Store.
type Store interface {
	// Store saves a task log. A task id may only be stored once.
	Store(ctx context.Context, log *core.TaskLog) error

	// Recent returns up to limit logs, most recent first.
	Recent(ctx context.Context, limit int) ([]*core.TaskLog, error)

	// Cleanup deletes logs created before cutoff whose importance is below
	// threshold, and returns how many were deleted.
	Cleanup(ctx context.Context, cutoff time.Time, threshold float64) (int, error)

	// Stats counts stored logs.
	Stats(ctx context.Context) (Stats, error)

	// Close releases resources.
	Close() error
}

// Searcher is implemented by stores that can find logs similar to a query.
type Searcher interface {
	Similar(ctx context.Context, query string, limit int) ([]*core.TaskLog, error)
}

// Embedder converts text to vector embeddings for stores that index task
// logs by similarity.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Stats summarizes stored task logs.
type Stats struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
}

// SuccessRate is Successful/Total, or 0 when nothing is stored.
func (s Stats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.Total)
}
