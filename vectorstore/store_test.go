package vectorstore_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/ragent/core"
	"github.com/becomeliminal/ragent/embedder/mock"
	"github.com/becomeliminal/ragent/vectorstore"
)

func entry(t *testing.T, emb *mock.MockEmbedder, id, text string) vectorstore.Entry {
	t.Helper()
	vec, err := emb.Embed(context.Background(), text)
	require.NoError(t, err)
	return vectorstore.Entry{Document: core.Document{ID: id, Content: text}, Vector: vec}
}

func unit(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func TestSearch_SelfSimilarity(t *testing.T) {
	emb := mock.New(64)
	s, err := vectorstore.New(64)
	require.NoError(t, err)

	texts := []string{"alpha", "beta", "gamma", "delta"}
	var entries []vectorstore.Entry
	for i, text := range texts {
		entries = append(entries, entry(t, emb, fmt.Sprintf("d%d", i), text))
	}
	require.NoError(t, s.Add(entries))

	for _, e := range entries {
		results, err := s.Search(e.Vector, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, e.Document.ID, results[0].Document.ID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-5)
		assert.Equal(t, 1, results[0].Rank)
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	s, err := vectorstore.New(384)
	require.NoError(t, err)
	require.NoError(t, s.Add([]vectorstore.Entry{{Document: core.Document{ID: "a"}, Vector: unit(384, 0)}}))

	_, err = s.Search(make([]float32, 300), 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	err = s.Add([]vectorstore.Entry{{Document: core.Document{ID: "b"}, Vector: make([]float32, 300)}})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.Equal(t, 1, s.Len(), "rejected batch must not be partially applied")
}

func TestSearch_BoundedAndSorted(t *testing.T) {
	emb := mock.New(32)
	s, err := vectorstore.New(32)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Add([]vectorstore.Entry{entry(t, emb, fmt.Sprintf("d%02d", i), fmt.Sprintf("text %d", i))}))
	}
	q, err := emb.Embed(context.Background(), "query")
	require.NoError(t, err)

	for _, k := range []int{1, 5, 20, 50} {
		results, err := s.Search(q, k)
		require.NoError(t, err)
		assert.Len(t, results, min(k, 20))
		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
			assert.Equal(t, i+1, results[i].Rank)
		}
		for _, r := range results {
			assert.GreaterOrEqual(t, r.Score, -1.0)
			assert.LessOrEqual(t, r.Score, 1.0)
		}
	}

	results, err := s.Search(q, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	s, err := vectorstore.New(4)
	require.NoError(t, err)
	v := unit(4, 2)
	require.NoError(t, s.Add([]vectorstore.Entry{
		{Document: core.Document{ID: "first"}, Vector: v},
		{Document: core.Document{ID: "second"}, Vector: v},
		{Document: core.Document{ID: "third"}, Vector: v},
	}))
	// Overwriting keeps the original position.
	require.NoError(t, s.Add([]vectorstore.Entry{{Document: core.Document{ID: "first", Content: "v2"}, Vector: v}}))

	results, err := s.Search(v, 3)
	require.NoError(t, err)
	ids := []string{results[0].Document.ID, results[1].Document.ID, results[2].Document.ID}
	assert.Equal(t, []string{"first", "second", "third"}, ids)
	assert.Equal(t, "v2", results[0].Document.Content)
	assert.Equal(t, []string{"first", "second", "third"}, s.IDs())
}

func TestAdd_UpsertKeepsSize(t *testing.T) {
	s, err := vectorstore.New(4)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Add([]vectorstore.Entry{{Document: core.Document{ID: "same"}, Vector: unit(4, i)}}))
	}
	assert.Equal(t, 1, s.Len())

	results, err := s.Search(unit(4, 2), 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestDeleteAndClear(t *testing.T) {
	s, err := vectorstore.New(4)
	require.NoError(t, err)
	require.NoError(t, s.Add([]vectorstore.Entry{
		{Document: core.Document{ID: "a"}, Vector: unit(4, 0)},
		{Document: core.Document{ID: "b"}, Vector: unit(4, 1)},
	}))

	s.Delete("missing")
	assert.Equal(t, 2, s.Len())

	s.Delete("a")
	_, ok := s.Get("a")
	assert.False(t, ok)
	doc, ok := s.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "b", doc.ID)

	s.Clear()
	s.Clear()
	assert.Equal(t, 0, s.Len())
	results, err := s.Search(unit(4, 0), 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNew_RejectsNonPositiveDimension(t *testing.T) {
	_, err := vectorstore.New(0)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestConcurrentReadersAndWriter(t *testing.T) {
	emb := mock.New(16)
	s, err := vectorstore.New(16)
	require.NoError(t, err)
	q, err := emb.Embed(context.Background(), "q")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			e := entry(t, emb, fmt.Sprintf("d%d", i%50), fmt.Sprintf("t%d", i))
			assert.NoError(t, s.Add([]vectorstore.Entry{e}))
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, err := s.Search(q, 5)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}
