// Package chromem stores task logs in a chromem-go collection, indexed by
// the embedding of each log's query so past tasks can be found by
// similarity.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/ragent/core"
	"github.com/becomeliminal/ragent/memory"
)

const collectionName = "task_logs"

// ChromemStore wraps chromem-go for task log storage.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   memory.Embedder
	mu         sync.RWMutex
}

var (
	_ memory.Store    = (*ChromemStore)(nil)
	_ memory.Searcher = (*ChromemStore)(nil)
)

// New creates a store. An empty path keeps everything in memory; otherwise
// the database is persisted to path.
func New(path string, embedder memory.Embedder) (*ChromemStore, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	// No custom embedding func: every document carries its own embedding.
	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &ChromemStore{db: db, collection: col, embedder: embedder}, nil
}

type content struct {
	Query        string   `json:"query"`
	Answer       string   `json:"answer"`
	RetrievedIDs []string `json:"retrieved_ids"`
	Steps        []string `json:"steps"`
}

// Store saves a task log keyed by its task id.
func (s *ChromemStore) Store(ctx context.Context, log *core.TaskLog) error {
	embedding, err := s.embedder.Embed(ctx, log.Query)
	if err != nil {
		return fmt.Errorf("embed query: %w", err)
	}
	body, err := json.Marshal(content{
		Query:        log.Query,
		Answer:       log.Answer,
		RetrievedIDs: log.RetrievedIDs,
		Steps:        log.Steps,
	})
	if err != nil {
		return fmt.Errorf("marshal task log: %w", err)
	}

	existing, err := s.all(ctx)
	if err != nil {
		return err
	}
	for _, l := range existing {
		if l.TaskID == log.TaskID {
			return fmt.Errorf("task log %s already stored", log.TaskID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.collection.AddDocument(ctx, chromem.Document{
		ID:        log.TaskID,
		Content:   string(body),
		Embedding: embedding,
		Metadata: map[string]string{
			"created_at": strconv.FormatInt(log.CreatedAt.UTC().UnixNano(), 10),
			"importance": strconv.FormatFloat(log.Importance, 'g', -1, 64),
			"verified":   strconv.FormatBool(log.Verified),
			"timed_out":  strconv.FormatBool(log.TimedOut),
		},
	})
}

// Recent returns up to limit logs, newest first.
func (s *ChromemStore) Recent(ctx context.Context, limit int) ([]*core.TaskLog, error) {
	logs, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(logs, func(a, b *core.TaskLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit < len(logs) {
		logs = logs[:limit]
	}
	return logs, nil
}

// Similar returns up to limit logs whose queries are closest to query.
func (s *ChromemStore) Similar(ctx context.Context, query string, limit int) ([]*core.TaskLog, error) {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.query(ctx, embedding, limit)
}

// Cleanup deletes logs created before cutoff with importance below
// threshold.
func (s *ChromemStore) Cleanup(ctx context.Context, cutoff time.Time, threshold float64) (int, error) {
	logs, err := s.all(ctx)
	if err != nil {
		return 0, err
	}
	var ids []string
	for _, l := range logs {
		if l.CreatedAt.Before(cutoff) && l.Importance < threshold {
			ids = append(ids, l.TaskID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, fmt.Errorf("delete task logs: %w", err)
	}
	return len(ids), nil
}

// Stats counts all logs and the successful ones.
func (s *ChromemStore) Stats(ctx context.Context) (memory.Stats, error) {
	logs, err := s.all(ctx)
	if err != nil {
		return memory.Stats{}, err
	}
	st := memory.Stats{Total: len(logs)}
	for _, l := range logs {
		if l.Successful() {
			st.Successful++
		}
	}
	return st, nil
}

// Close is a no-op; persistent databases write through on every add.
func (s *ChromemStore) Close() error {
	return nil
}

// all lists every log. chromem has no scan API, so this queries with a
// probe vector for every document in the collection.
func (s *ChromemStore) all(ctx context.Context) ([]*core.TaskLog, error) {
	probe, err := s.embedder.Embed(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("embed probe: %w", err)
	}
	return s.query(ctx, probe, -1)
}

// query returns up to limit nearest logs; limit < 0 means all of them.
func (s *ChromemStore) query(ctx context.Context, embedding []float32, limit int) ([]*core.TaskLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// chromem-go requires nResults <= collection size
	n := s.collection.Count()
	if limit >= 0 && limit < n {
		n = limit
	}
	if n == 0 {
		return nil, nil
	}

	results, err := s.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	logs := make([]*core.TaskLog, 0, len(results))
	for _, r := range results {
		log, err := decode(r)
		if err != nil {
			return nil, fmt.Errorf("decode task log %s: %w", r.ID, err)
		}
		logs = append(logs, log)
	}
	return logs, nil
}

func decode(r chromem.Result) (*core.TaskLog, error) {
	var c content
	if err := json.Unmarshal([]byte(r.Content), &c); err != nil {
		return nil, err
	}
	created, err := strconv.ParseInt(r.Metadata["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	importance, err := strconv.ParseFloat(r.Metadata["importance"], 64)
	if err != nil {
		return nil, fmt.Errorf("importance: %w", err)
	}
	verified, _ := strconv.ParseBool(r.Metadata["verified"])
	timedOut, _ := strconv.ParseBool(r.Metadata["timed_out"])

	return &core.TaskLog{
		TaskID:       r.ID,
		Query:        c.Query,
		Answer:       c.Answer,
		RetrievedIDs: c.RetrievedIDs,
		Steps:        c.Steps,
		Importance:   importance,
		Verified:     verified,
		TimedOut:     timedOut,
		CreatedAt:    time.Unix(0, created).UTC(),
	}, nil
}
