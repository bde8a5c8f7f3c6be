package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/ragent/core"
	"github.com/becomeliminal/ragent/ingest"
)

// reconstruct undoes Split: the first chunk whole, then each later chunk
// minus its leading overlap.
func reconstruct(chunks []string, overlap int) []string {
	var words []string
	for i, c := range chunks {
		w := strings.Fields(c)
		if i > 0 {
			w = w[overlap:]
		}
		words = append(words, w...)
	}
	return words
}

func TestChunker_Reconstruction(t *testing.T) {
	cases := []struct{ words, size, overlap int }{
		{1, 5, 1}, {5, 5, 1}, {6, 5, 1}, {7, 5, 1}, {13, 4, 3},
		{100, 10, 0}, {101, 10, 9}, {512, 512, 64}, {1000, 512, 64}, {3, 1, 0},
	}
	for _, tc := range cases {
		t.Run(strconv.Itoa(tc.words)+"/"+strconv.Itoa(tc.size)+"/"+strconv.Itoa(tc.overlap), func(t *testing.T) {
			c, err := ingest.NewChunker(tc.size, tc.overlap)
			require.NoError(t, err)

			words := make([]string, tc.words)
			for i := range words {
				words[i] = "w" + strconv.Itoa(i)
			}
			chunks := c.Split(strings.Join(words, " "))

			assert.Equal(t, words, reconstruct(chunks, tc.overlap))
			for i, chunk := range chunks {
				n := len(strings.Fields(chunk))
				assert.LessOrEqual(t, n, tc.size)
				if i < len(chunks)-1 {
					assert.Equal(t, tc.size, n)
				}
			}
		})
	}
}

func TestChunker_SkyExample(t *testing.T) {
	c, err := ingest.NewChunker(5, 1)
	require.NoError(t, err)
	chunks := c.Split("The sky is blue. Grass is green.")
	assert.Equal(t, []string{"The sky is blue. Grass", "Grass is green."}, chunks)
}

func TestChunker_EmptyText(t *testing.T) {
	c, err := ingest.NewChunker(5, 1)
	require.NoError(t, err)
	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split(" \n\t "))
}

func TestNewChunker_Validation(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{{5, 5}, {5, 6}, {0, 0}, {5, -1}} {
		_, err := ingest.NewChunker(tc.size, tc.overlap)
		assert.ErrorIs(t, err, core.ErrInvalidConfig, "size=%d overlap=%d", tc.size, tc.overlap)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "The sky is blue. Grass is green.")
	writeFile(t, filepath.Join(dir, "nested", "b.MD"), "one two three")
	writeFile(t, filepath.Join(dir, "ignored.go"), "package main")
	writeFile(t, filepath.Join(dir, "empty.txt"), "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.txt"), []byte{0xff, 0xfe, 0x00, 0x41}, 0o644))

	ing, err := ingest.New(ingest.Config{
		Sources:      []string{dir, filepath.Join(dir, "does-not-exist")},
		Extensions:   []string{".txt", "md"},
		ChunkSize:    5,
		ChunkOverlap: 1,
	}, nil)
	require.NoError(t, err)

	res, err := ing.Scan(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Files, 3)
	require.Len(t, res.Chunks, 3)

	first := res.Chunks[0]
	assert.Equal(t, filepath.Join(dir, "a.txt"), first.Metadata.Source)
	assert.Equal(t, 0, first.Metadata.ChunkIndex)
	assert.Equal(t, 2, first.Metadata.TotalChunks)
	assert.Equal(t, ingest.ChunkID(first.Metadata.Source, 0), first.ID)
	assert.Len(t, first.Metadata.ContentHash, 64)

	require.Len(t, res.Skipped, 2)
	reasons := map[string]string{}
	for _, s := range res.Skipped {
		reasons[filepath.Base(s.Path)] = s.Reason
		assert.True(t, errors.Is(s.Err, core.ErrIngestion))
	}
	assert.Equal(t, ingest.ReasonInvalidUTF8, reasons["bad.txt"])
	assert.Equal(t, ingest.ReasonMissingSource, reasons["does-not-exist"])
}

func TestScan_DeterministicIDs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "doc.txt"), strings.Repeat("word ", 40))

	ing, err := ingest.New(ingest.Config{Sources: []string{dir}, Extensions: []string{".txt"}, ChunkSize: 10, ChunkOverlap: 2}, nil)
	require.NoError(t, err)

	a, err := ing.Scan(context.Background())
	require.NoError(t, err)
	b, err := ing.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a.Chunks, b.Chunks)

	seen := map[string]bool{}
	for _, c := range a.Chunks {
		assert.False(t, seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true
	}
}

func TestScan_MaxFileBytes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "big.txt"), strings.Repeat("x", 100))

	ing, err := ingest.New(ingest.Config{Sources: []string{dir}, Extensions: []string{".txt"}, ChunkSize: 10, MaxFileBytes: 10}, nil)
	require.NoError(t, err)
	res, err := ing.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Chunks)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, ingest.ReasonTooLarge, res.Skipped[0].Reason)
}

func TestScan_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")
	ing, err := ingest.New(ingest.Config{Sources: []string{dir}, ChunkSize: 10}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ing.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
