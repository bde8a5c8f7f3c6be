package engine

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/becomeliminal/ragent/core"
	"github.com/becomeliminal/ragent/embedder/tfidf"
	"github.com/becomeliminal/ragent/generator"
)

var sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

type candidate struct {
	passage  int
	sentence int
	text     string
	overlap  int
}

// Extract builds an answer from passages without a generator. Sentences
// from the top passages are ranked by how many query terms they share; the
// best ones are returned in document order followed by their sources. When
// no sentence shares a term, the leading text of the top passage is used.
func Extract(query string, results []core.RetrievalResult, cfg Config) string {
	if len(results) == 0 {
		return InsufficientContextAnswer
	}
	cfg.applyDefaults()

	passages := results
	if len(passages) > cfg.MaxContextPassages {
		passages = passages[:cfg.MaxContextPassages]
	}

	terms := make(map[string]struct{})
	for _, t := range tfidf.Tokenize(query) {
		terms[t] = struct{}{}
	}

	var candidates []candidate
	seen := make(map[string]struct{})
	for pi, p := range passages {
		for si, s := range splitSentences(p.Document.Content) {
			// Overlapping chunks repeat sentences.
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			if n := overlap(terms, s); n > 0 {
				candidates = append(candidates, candidate{passage: pi, sentence: si, text: s, overlap: n})
			}
		}
	}

	if len(candidates) == 0 {
		body := generator.Truncate(strings.TrimSpace(passages[0].Document.Content), cfg.MaxPassageChars)
		return body + formatSources(passages[:1])
	}

	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return b.overlap - a.overlap
	})
	if len(candidates) > cfg.MaxAnswerSentences {
		candidates = candidates[:cfg.MaxAnswerSentences]
	}
	slices.SortFunc(candidates, func(a, b candidate) int {
		if a.passage != b.passage {
			return a.passage - b.passage
		}
		return a.sentence - b.sentence
	})

	var (
		sentences []string
		used      []core.RetrievalResult
		last      = -1
	)
	for _, c := range candidates {
		sentences = append(sentences, c.text)
		if c.passage != last {
			used = append(used, passages[c.passage])
			last = c.passage
		}
	}
	return strings.Join(sentences, " ") + formatSources(used)
}

// splitSentences splits text on terminal punctuation. Trailing text without
// punctuation becomes its own sentence.
func splitSentences(text string) []string {
	var out []string
	end := 0
	for _, loc := range sentencePattern.FindAllStringIndex(text, -1) {
		if s := strings.Join(strings.Fields(text[loc[0]:loc[1]]), " "); s != "" {
			out = append(out, s)
		}
		end = loc[1]
	}
	if rest := strings.Join(strings.Fields(text[end:]), " "); rest != "" {
		out = append(out, rest)
	}
	return out
}

func overlap(terms map[string]struct{}, sentence string) int {
	n := 0
	counted := make(map[string]struct{})
	for _, t := range tfidf.Tokenize(sentence) {
		if _, ok := terms[t]; !ok {
			continue
		}
		if _, ok := counted[t]; ok {
			continue
		}
		counted[t] = struct{}{}
		n++
	}
	return n
}

func formatSources(passages []core.RetrievalResult) string {
	var b strings.Builder
	b.WriteString("\n\nSources:")
	for _, p := range passages {
		source := p.Document.Metadata.Source
		if source == "" {
			source = p.Document.ID
		}
		fmt.Fprintf(&b, "\n- %s (chunk %d)", source, p.Document.Metadata.ChunkIndex)
	}
	return b.String()
}
