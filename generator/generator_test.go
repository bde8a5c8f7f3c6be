package generator_test

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/ragent/core"
	"github.com/becomeliminal/ragent/generator"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", generator.Truncate("short", 10))
	assert.Equal(t, "abcd...", generator.Truncate("abcdefghij", 7))
	assert.Equal(t, "...", generator.Truncate("abcdef", 2))

	cut := generator.Truncate(strings.Repeat("é", 10), 8)
	assert.True(t, utf8.ValidString(cut))
	assert.LessOrEqual(t, len(cut), 8)
}

func TestFormatPassages(t *testing.T) {
	out := generator.FormatPassages([]core.RetrievalResult{
		{Document: core.Document{Content: "first passage", Metadata: core.Metadata{Source: "a.txt"}}, Score: 0.9},
		{Document: core.Document{Content: strings.Repeat("x", 50), Metadata: core.Metadata{Source: "b.txt", ChunkIndex: 3}}, Score: 0.5},
	}, 20)

	assert.Contains(t, out, "[1] (source: a.txt, chunk 0, score 0.90)\nfirst passage")
	assert.Contains(t, out, "[2] (source: b.txt, chunk 3, score 0.50)")
	assert.NotContains(t, out, strings.Repeat("x", 21))
}

func TestFunc(t *testing.T) {
	g := generator.Func(func(_ context.Context, q string, _ []core.RetrievalResult) (string, error) {
		return "echo " + q, nil
	})
	out, err := g.Generate(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "echo hi", out)
	assert.Equal(t, "func", g.Name())
}
