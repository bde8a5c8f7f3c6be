// Package tfidf implements the statistical embedding model used when no
// neural backend can be loaded.
//
// Terms (unigrams and bigrams of non-stop-word tokens) are weighted by
// term frequency times smoothed inverse document frequency and folded into
// a fixed number of dimensions with signed feature hashing, so the output
// dimension never depends on the corpus vocabulary. Before Fit is called
// every term has unit IDF.
package tfidf

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/becomeliminal/ragent/core"
)

// Name identifies the model in stats output.
const Name = "tfidf"

// oovWeight is the IDF given to terms never seen during Fit.
const oovWeight = 1e-3

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// Model is a fitted (or unfitted) hashed TF-IDF embedder. It is safe for
// concurrent use; Fit swaps state atomically under a write lock.
type Model struct {
	dim int

	mu          sync.RWMutex
	idf         map[string]float64
	docs        int
	fingerprint uint64
	generation  uint64
}

// New creates an unfitted model producing vectors of length dim.
func New(dim int) *Model {
	return &Model{dim: dim}
}

// Name returns the backend name.
func (m *Model) Name() string {
	return Name
}

// Dimensions returns the output vector length.
func (m *Model) Dimensions() int {
	return m.dim
}

// Generation changes every time Fit installs different corpus statistics.
func (m *Model) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// Fitted reports whether Fit has seen a non-empty corpus.
func (m *Model) Fitted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idf != nil
}

// Fit computes document frequencies over corpus. An empty corpus leaves the
// model untouched. Refitting on identical statistics keeps the generation.
func (m *Model) Fit(ctx context.Context, corpus []string) error {
	if len(corpus) == 0 {
		return nil
	}

	df := make(map[string]int)
	for _, doc := range corpus {
		if err := ctx.Err(); err != nil {
			return err
		}
		seen := make(map[string]struct{})
		for _, term := range Terms(doc) {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			df[term]++
		}
	}

	n := len(corpus)
	idf := make(map[string]float64, len(df))
	for term, count := range df {
		idf[term] = math.Log(float64(1+n)/float64(1+count)) + 1
	}
	fp := fingerprint(n, df)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idf != nil && fp == m.fingerprint {
		return nil
	}
	m.idf = idf
	m.docs = n
	m.fingerprint = fp
	m.generation++
	return nil
}

// Checkpoint captures the fitted statistics. Calling restore reinstalls
// them, generation included, undoing any Fit made in between.
func (m *Model) Checkpoint() (restore func()) {
	m.mu.RLock()
	idf, docs, fp, gen := m.idf, m.docs, m.fingerprint, m.generation
	m.mu.RUnlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.idf, m.docs, m.fingerprint, m.generation = idf, docs, fp, gen
	}
}

// Embed maps text to a unit vector. Text without any usable terms maps to a
// deterministic pseudo-random unit vector seeded by the text itself.
func (m *Model) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terms := Terms(text)
	if len(terms) == 0 {
		return SeedVector(text, m.dim), nil
	}

	m.mu.RLock()
	idf := m.idf
	m.mu.RUnlock()

	// Count in first-occurrence order so float accumulation is reproducible.
	counts := make(map[string]int, len(terms))
	order := make([]string, 0, len(terms))
	for _, term := range terms {
		if counts[term] == 0 {
			order = append(order, term)
		}
		counts[term]++
	}

	acc := make([]float64, m.dim)
	for _, term := range order {
		w := float64(counts[term])
		if idf != nil {
			if v, ok := idf[term]; ok {
				w *= v
			} else {
				w *= oovWeight
			}
		}
		idx, sign := bucket(term, m.dim)
		acc[idx] += sign * w
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	if norm == 0 {
		return SeedVector(text, m.dim), nil
	}
	norm = math.Sqrt(norm)

	out := make([]float32, m.dim)
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// EmbedBatch embeds each text in order.
func (m *Model) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Terms returns the unigrams and bigrams the model weights for text.
func Terms(text string) []string {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	terms := make([]string, 0, 2*len(tokens)-1)
	terms = append(terms, tokens...)
	for i := 1; i < len(tokens); i++ {
		terms = append(terms, tokens[i-1]+" "+tokens[i])
	}
	return terms
}

// Tokenize lower-cases text, extracts letter runs and drops stop words.
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// SeedVector returns a deterministic unit vector derived from an FNV-64a
// hash of text.
func SeedVector(text string, dim int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dim)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return core.Normalize(vec)
}

func bucket(term string, dim int) (int, float64) {
	h := fnv.New64a()
	h.Write([]byte(term))
	sum := h.Sum64()
	sign := 1.0
	if sum>>63 == 1 {
		sign = -1.0
	}
	return int(sum % uint64(dim)), sign
}

func fingerprint(n int, df map[string]int) uint64 {
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	h.Write(buf[:])
	for _, term := range terms {
		h.Write([]byte(term))
		binary.LittleEndian.PutUint64(buf[:], uint64(df[term]))
		h.Write(buf[:])
	}
	return h.Sum64()
}

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at",
		"by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that",
		"these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such",
		"into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off",
		"own", "same", "too", "very", "can", "will", "just", "don", "should", "now", "what", "which", "who",
		"whom", "how", "why", "when", "where", "do", "does", "did", "i", "me", "my", "we", "our", "you",
		"your", "he", "she", "his", "her", "they", "them", "their", "there", "here", "have", "has", "had",
		"not", "no", "all", "any", "each", "some", "more", "most", "other", "only",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
