package ingest

import (
	"fmt"
	"strings"

	"github.com/becomeliminal/ragent/core"
)

// Chunker splits text into overlapping windows of whitespace-separated
// words. Consecutive chunks share exactly overlap words.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates size and overlap. overlap must be smaller than size.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", core.ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", core.ErrInvalidConfig, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the chunk size in words.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of words shared by consecutive chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the chunks of text. Empty or whitespace-only text yields
// no chunks.
func (c *Chunker) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var chunks []string
	for start := 0; ; start += step {
		end := min(start+c.size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
