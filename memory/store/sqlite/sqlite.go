// Package sqlite stores task logs in a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/becomeliminal/ragent/core"
	"github.com/becomeliminal/ragent/memory"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS task_logs (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL UNIQUE,
	query TEXT NOT NULL,
	answer TEXT NOT NULL,
	retrieved_ids TEXT NOT NULL DEFAULT '[]',
	steps TEXT NOT NULL DEFAULT '[]',
	importance REAL NOT NULL,
	verified INTEGER NOT NULL DEFAULT 0,
	timed_out INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_logs_created_at ON task_logs (created_at)`,
}

// Store is a SQLite-backed memory.Store.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ memory.Store = (*Store)(nil)

// New opens (or creates) the database at path and initializes the schema.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps pragmas in effect and serializes writers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Store inserts a task log. Storing an existing task id fails.
func (s *Store) Store(ctx context.Context, log *core.TaskLog) error {
	ids, err := json.Marshal(nonNil(log.RetrievedIDs))
	if err != nil {
		return fmt.Errorf("marshal retrieved ids: %w", err)
	}
	steps, err := json.Marshal(nonNil(log.Steps))
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO task_logs (task_id, query, answer, retrieved_ids, steps, importance, verified, timed_out, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.TaskID, log.Query, log.Answer, string(ids), string(steps),
		log.Importance, log.Verified, log.TimedOut, log.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert task log %s: %w", log.TaskID, err)
	}
	return nil
}

// Recent returns up to limit logs ordered by creation time, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*core.TaskLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, query, answer, retrieved_ids, steps, importance, verified, timed_out, created_at
		 FROM task_logs ORDER BY created_at DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query task logs: %w", err)
	}
	defer rows.Close()
	return scanTaskLogs(rows)
}

// Cleanup deletes logs created before cutoff with importance below
// threshold.
func (s *Store) Cleanup(ctx context.Context, cutoff time.Time, threshold float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM task_logs WHERE created_at < ? AND importance < ?`,
		cutoff.UTC().UnixNano(), threshold)
	if err != nil {
		return 0, fmt.Errorf("delete task logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Stats counts all logs and the successful ones.
func (s *Store) Stats(ctx context.Context) (memory.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st memory.Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN verified = 1 AND timed_out = 0 THEN 1 ELSE 0 END), 0)
		 FROM task_logs`).Scan(&st.Total, &st.Successful)
	if err != nil {
		return memory.Stats{}, fmt.Errorf("count task logs: %w", err)
	}
	return st, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanTaskLogs(rows *sql.Rows) ([]*core.TaskLog, error) {
	var logs []*core.TaskLog
	for rows.Next() {
		var (
			log       core.TaskLog
			ids       string
			steps     string
			createdAt int64
		)
		if err := rows.Scan(&log.TaskID, &log.Query, &log.Answer, &ids, &steps,
			&log.Importance, &log.Verified, &log.TimedOut, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ids), &log.RetrievedIDs); err != nil {
			return nil, fmt.Errorf("decode retrieved ids for %s: %w", log.TaskID, err)
		}
		if err := json.Unmarshal([]byte(steps), &log.Steps); err != nil {
			return nil, fmt.Errorf("decode steps for %s: %w", log.TaskID, err)
		}
		log.CreatedAt = time.Unix(0, createdAt).UTC()
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
