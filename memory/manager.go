package memory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/becomeliminal/ragent/core"
	"github.com/becomeliminal/ragent/metrics"
)

// Config holds Manager configuration.
type Config struct {
	// Enabled toggles recording on/off. Reads still work when disabled.
	Enabled bool

	// CleanupDays is the age after which unimportant logs are purged.
	// Zero or negative disables cleanup.
	CleanupDays int

	// ImportanceThreshold protects logs at or above it from cleanup.
	ImportanceThreshold float64

	// WriteTimeout bounds a single Record call.
	WriteTimeout time.Duration
}

// DefaultConfig returns the defaults: enabled, 30 days, threshold 0.3.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		CleanupDays:         30,
		ImportanceThreshold: 0.3,
		WriteTimeout:        2 * time.Second,
	}
}

// Manager applies recording and retention policy on top of a Store.
type Manager struct {
	store  Store
	config Config
	logger *zap.Logger
	now    func() time.Time
}

// NewManager creates a Manager.
func NewManager(store Store, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 2 * time.Second
	}
	return &Manager{store: store, config: config, logger: logger, now: time.Now}
}

// SetClock replaces the time source used for cleanup cutoffs.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time {
	return m.now()
}

// Store returns the underlying store.
func (m *Manager) Store() Store {
	return m.store
}

// Record writes log within WriteTimeout. Failures are returned wrapped in
// core.ErrMemoryWrite; callers treat them as non-fatal.
func (m *Manager) Record(ctx context.Context, log *core.TaskLog) error {
	if !m.config.Enabled {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.WriteTimeout)
	defer cancel()

	if err := m.store.Store(ctx, log.Clone()); err != nil {
		metrics.MemoryWriteFailures.Inc()
		m.logger.Warn("task log write failed",
			zap.String("task_id", log.TaskID),
			zap.String("kind", "memory_write"),
			zap.Error(err))
		return fmt.Errorf("%w: %v", core.ErrMemoryWrite, err)
	}

	m.logger.Debug("task log recorded",
		zap.String("task_id", log.TaskID),
		zap.Float64("importance", log.Importance),
		zap.String("query", truncate(log.Query, 50)))
	return nil
}

// Recent returns up to limit logs, most recent first.
func (m *Manager) Recent(ctx context.Context, limit int) ([]*core.TaskLog, error) {
	if limit <= 0 {
		return nil, nil
	}
	return m.store.Recent(ctx, limit)
}

// Cleanup purges logs older than CleanupDays with importance below
// ImportanceThreshold.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	return m.CleanupWith(ctx, m.config.CleanupDays, m.config.ImportanceThreshold)
}

// CleanupWith purges with explicit parameters. days <= 0 is a no-op.
func (m *Manager) CleanupWith(ctx context.Context, days int, threshold float64) (int, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := m.now().Add(-time.Duration(days) * 24 * time.Hour)
	n, err := m.store.Cleanup(ctx, cutoff, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup task logs: %w", err)
	}
	metrics.MemoryPurged.Add(float64(n))
	m.logger.Info("task log cleanup",
		zap.Int("deleted", n),
		zap.Int("days", days),
		zap.Float64("threshold", threshold))
	return n, nil
}

// Stats returns counts over all stored logs.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	return m.store.Stats(ctx)
}

// Similar returns logs similar to query when the store supports it.
func (m *Manager) Similar(ctx context.Context, query string, limit int) ([]*core.TaskLog, error) {
	s, ok := m.store.(Searcher)
	if !ok {
		return nil, fmt.Errorf("memory store does not support similarity search")
	}
	return s.Similar(ctx, query, limit)
}

// Close closes the store.
func (m *Manager) Close() error {
	return m.store.Close()
}
