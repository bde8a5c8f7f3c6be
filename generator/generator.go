// Package generator defines the optional text-generation collaborator used
// to compose answers from retrieved passages.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/becomeliminal/ragent/core"
)

// Generator composes an answer to query grounded in passages.
type Generator interface {
	Generate(ctx context.Context, query string, passages []core.RetrievalResult) (string, error)
	Name() string
}

// Func adapts a function to the Generator interface.
type Func func(ctx context.Context, query string, passages []core.RetrievalResult) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, query string, passages []core.RetrievalResult) (string, error) {
	return f(ctx, query, passages)
}

// Name returns "func".
func (f Func) Name() string { return "func" }

// FormatPassages renders passages as a numbered context block, truncating
// each to maxChars (0 keeps full text).
func FormatPassages(passages []core.RetrievalResult, maxChars int) string {
	var b strings.Builder
	for i, p := range passages {
		text := p.Document.Content
		if maxChars > 0 && len(text) > maxChars {
			text = Truncate(text, maxChars)
		}
		fmt.Fprintf(&b, "[%d] (source: %s, chunk %d, score %.2f)\n%s\n\n",
			i+1, p.Document.Metadata.Source, p.Document.Metadata.ChunkIndex, p.Score, text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Truncate shortens s to at most maxLen bytes without splitting a UTF-8
// sequence, adding "..." when it cuts.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	cut := maxLen - 3
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
