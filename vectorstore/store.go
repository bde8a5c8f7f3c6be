// Package vectorstore is an in-memory exact-search similarity index.
//
// Vectors are expected to be unit length, so cosine similarity is the dot
// product. Search is a linear scan; the store is sized for a single corpus
// held in one process.
package vectorstore

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/becomeliminal/ragent/core"
)

// Entry pairs a document with its embedding.
type Entry struct {
	Document core.Document
	Vector   []float32
}

type record struct {
	doc core.Document
	vec []float32
	seq uint64
}

// Store holds documents and vectors keyed by document id. It allows one
// writer and many concurrent readers.
type Store struct {
	dim int

	mu      sync.RWMutex
	records map[string]*record
	nextSeq uint64
}

// New creates an empty store whose vectors all have length dim.
func New(dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive, got %d", core.ErrInvalidConfig, dim)
	}
	return &Store{dim: dim, records: make(map[string]*record)}, nil
}

// Dimensions returns the declared vector length.
func (s *Store) Dimensions() int {
	return s.dim
}

// Add inserts entries, replacing any existing entry with the same id. A
// replaced entry keeps its original insertion position for tie-breaking.
// The batch is rejected as a whole if any vector has the wrong length.
func (s *Store) Add(entries []Entry) error {
	for _, e := range entries {
		if err := core.CheckDimension(e.Vector, s.dim); err != nil {
			return fmt.Errorf("add %s: %w", e.Document.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		vec := append([]float32(nil), e.Vector...)
		if r, ok := s.records[e.Document.ID]; ok {
			r.doc = e.Document
			r.vec = vec
			continue
		}
		s.records[e.Document.ID] = &record{doc: e.Document, vec: vec, seq: s.nextSeq}
		s.nextSeq++
	}
	return nil
}

// Search returns the topK entries most similar to query, highest score
// first. Equal scores keep insertion order. topK is clamped to the store
// size; topK <= 0 returns no results.
func (s *Store) Search(query []float32, topK int) ([]core.RetrievalResult, error) {
	if err := core.CheckDimension(query, s.dim); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	hits := make([]scored, 0, len(s.records))
	for _, r := range s.records {
		hits = append(hits, scored{doc: r.doc, seq: r.seq, score: clamp(core.Dot(query, r.vec))})
	}
	s.mu.RUnlock()

	slices.SortFunc(hits, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})

	if topK > len(hits) {
		topK = len(hits)
	}
	results := make([]core.RetrievalResult, topK)
	for i := 0; i < topK; i++ {
		results[i] = core.RetrievalResult{
			Document: hits[i].doc,
			Score:    hits[i].score,
			Rank:     i + 1,
		}
	}
	return results, nil
}

type scored struct {
	doc   core.Document
	seq   uint64
	score float64
}

// Get returns the document stored under id.
func (s *Store) Get(id string) (core.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return core.Document{}, false
	}
	return r.doc, true
}

// Delete removes id. Missing ids are ignored.
func (s *Store) Delete(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
	}
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*record)
	s.nextSeq = 0
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// IDs returns every stored id in insertion order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	recs := make([]record, 0, len(s.records))
	for _, r := range s.records {
		recs = append(recs, record{doc: r.doc, seq: r.seq})
	}
	s.mu.RUnlock()

	slices.SortFunc(recs, func(a, b record) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.doc.ID
	}
	return ids
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
