package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/ragent/core"
	"github.com/becomeliminal/ragent/memory/store/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "nested", "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreAndRecent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, s.Store(ctx, &core.TaskLog{
			TaskID:       id,
			Query:        "query " + id,
			Answer:       "answer " + id,
			RetrievedIDs: []string{"doc:0", "doc:1"},
			Steps:        []string{"RECEIVE_QUERY", "RETRIEVE"},
			Importance:   0.5,
			Verified:     i%2 == 0,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	logs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "t3", logs[0].TaskID)
	assert.Equal(t, "t2", logs[1].TaskID)
	assert.Equal(t, []string{"doc:0", "doc:1"}, logs[0].RetrievedIDs)
	assert.Equal(t, []string{"RECEIVE_QUERY", "RETRIEVE"}, logs[0].Steps)
	assert.True(t, logs[0].Verified)
	assert.False(t, logs[1].Verified)
	assert.True(t, base.Add(2*time.Minute).Equal(logs[0].CreatedAt))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.Successful)
}

func TestStore_DuplicateTaskIDRejected(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	log := &core.TaskLog{TaskID: "same", Query: "q", Answer: "first", CreatedAt: time.Now()}
	require.NoError(t, s.Store(ctx, log))

	dup := *log
	dup.Answer = "second"
	assert.Error(t, s.Store(ctx, &dup))

	logs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "first", logs[0].Answer)
}

func TestCleanup_Retention(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	now := time.Now()
	old := now.Add(-40 * 24 * time.Hour)

	require.NoError(t, s.Store(ctx, &core.TaskLog{TaskID: "old-important", Query: "q", Importance: 0.5, CreatedAt: old}))
	require.NoError(t, s.Store(ctx, &core.TaskLog{TaskID: "old-trivial", Query: "q", Importance: 0.1, CreatedAt: old}))
	require.NoError(t, s.Store(ctx, &core.TaskLog{TaskID: "old-threshold", Query: "q", Importance: 0.3, CreatedAt: old}))
	require.NoError(t, s.Store(ctx, &core.TaskLog{TaskID: "new-trivial", Query: "q", Importance: 0.1, CreatedAt: now}))

	n, err := s.Cleanup(ctx, now.Add(-30*24*time.Hour), 0.3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	logs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	var ids []string
	for _, l := range logs {
		ids = append(ids, l.TaskID)
	}
	assert.ElementsMatch(t, []string{"old-important", "old-threshold", "new-trivial"}, ids)
}

func TestStats_Empty(t *testing.T) {
	st, err := openStore(t).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, st.Total)
	assert.Equal(t, 0.0, st.SuccessRate())
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.db")
	s, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, s.Store(ctx, &core.TaskLog{TaskID: "persisted", Query: "q", CreatedAt: time.Now()}))
	require.NoError(t, s.Close())

	s, err = sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()
	logs, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "persisted", logs[0].TaskID)
	assert.Empty(t, logs[0].Steps)
}
