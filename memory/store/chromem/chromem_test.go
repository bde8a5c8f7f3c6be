package chromem_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/ragent/core"
	"github.com/becomeliminal/ragent/embedder/mock"
	"github.com/becomeliminal/ragent/memory/store/chromem"
)

func TestChromemStore_RecentAndStats(t *testing.T) {
	ctx := context.Background()
	store, err := chromem.New("", mock.New(64))
	require.NoError(t, err)

	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, q := range []string{"first question", "second question", "third question"} {
		require.NoError(t, store.Store(ctx, &core.TaskLog{
			TaskID:       q,
			Query:        q,
			Answer:       "answer to " + q,
			RetrievedIDs: []string{"a:0"},
			Importance:   0.4,
			Verified:     i != 1,
			CreatedAt:    base.Add(time.Duration(i) * time.Hour),
		}))
	}

	logs, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "third question", logs[0].Query)
	assert.Equal(t, "second question", logs[1].Query)
	assert.Equal(t, []string{"a:0"}, logs[0].RetrievedIDs)
	assert.True(t, base.Add(2*time.Hour).Equal(logs[0].CreatedAt))

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.Successful)
}

func TestChromemStore_SimilarFindsExactQuery(t *testing.T) {
	ctx := context.Background()
	store, err := chromem.New("", mock.New(64))
	require.NoError(t, err)

	for _, q := range []string{"why is the sky blue", "what is go", "how do plants grow"} {
		require.NoError(t, store.Store(ctx, &core.TaskLog{TaskID: q, Query: q, CreatedAt: time.Now()}))
	}

	logs, err := store.Similar(ctx, "what is go", 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "what is go", logs[0].Query)
}

func TestChromemStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	store, err := chromem.New("", mock.New(32))
	require.NoError(t, err)

	now := time.Now()
	old := now.Add(-40 * 24 * time.Hour)
	require.NoError(t, store.Store(ctx, &core.TaskLog{TaskID: "keep", Query: "a", Importance: 0.5, CreatedAt: old}))
	require.NoError(t, store.Store(ctx, &core.TaskLog{TaskID: "purge", Query: "b", Importance: 0.1, CreatedAt: old}))
	require.NoError(t, store.Store(ctx, &core.TaskLog{TaskID: "fresh", Query: "c", Importance: 0.1, CreatedAt: now}))

	n, err := store.Cleanup(ctx, now.Add(-30*24*time.Hour), 0.3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
}

func TestChromemStore_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	store, err := chromem.New("", mock.New(16))
	require.NoError(t, err)

	log := &core.TaskLog{TaskID: "dup", Query: "q", CreatedAt: time.Now()}
	require.NoError(t, store.Store(ctx, log))
	assert.Error(t, store.Store(ctx, log))
}

func TestChromemStore_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "chromem")

	store, err := chromem.New(dir, mock.New(16))
	require.NoError(t, err)
	require.NoError(t, store.Store(ctx, &core.TaskLog{TaskID: "p", Query: "persisted", CreatedAt: time.Now()}))
	require.NoError(t, store.Close())

	store, err = chromem.New(dir, mock.New(16))
	require.NoError(t, err)
	logs, err := store.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "persisted", logs[0].Query)
}

func TestChromemStore_EmbedFailure(t *testing.T) {
	store, err := chromem.New("", mock.Failing(16, errors.New("model offline")))
	require.NoError(t, err)

	err = store.Store(context.Background(), &core.TaskLog{TaskID: "x", Query: "q", CreatedAt: time.Now()})
	assert.ErrorContains(t, err, "model offline")
}
