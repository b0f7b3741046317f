// Package chunk splits text into sentence-window chunks, the unit of
// embedding and retrieval.
package chunk

import (
	"strings"

	"github.com/clipperhouse/uax29/v2/sentences"
)

// Defaults match the production chunking settings
const (
	DefaultChunkSize       = 300
	DefaultSentenceOverlap = 1
)

// Chunker packs whole sentences into windows of roughly ChunkSize tokens,
// carrying SentenceOverlap trailing sentences into the next window.
type Chunker struct {
	ChunkSize       int // approximate token budget per chunk
	SentenceOverlap int // sentences repeated between adjacent chunks
}

// New returns a Chunker with the given budget and overlap; non-positive
// values fall back to the defaults.
func New(chunkSize, sentenceOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if sentenceOverlap < 0 {
		sentenceOverlap = DefaultSentenceOverlap
	}
	return &Chunker{ChunkSize: chunkSize, SentenceOverlap: sentenceOverlap}
}

// Chunk splits text into chunks. Empty or whitespace-only text yields nil.
// A sentence longer than the whole budget becomes its own chunk; sentences
// are never split.
func (c *Chunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sents := splitSentences(text)
	if len(sents) == 0 {
		return nil
	}

	var chunks []string
	var window []string
	budget := 0
	for i := 0; i < len(sents); i++ {
		n := tokenCount(sents[i])
		if len(window) > 0 && budget+n > c.ChunkSize {
			chunks = append(chunks, strings.Join(window, " "))
			// carry overlap sentences into the next window
			keep := c.SentenceOverlap
			if keep > len(window) {
				keep = len(window)
			}
			window = append([]string(nil), window[len(window)-keep:]...)
			budget = 0
			for _, s := range window {
				budget += tokenCount(s)
			}
			// overlap alone may already exceed the budget; force progress
			if budget >= c.ChunkSize {
				window = nil
				budget = 0
			}
		}
		window = append(window, sents[i])
		budget += n
	}
	if len(window) > 0 {
		chunks = append(chunks, strings.Join(window, " "))
	}
	return chunks
}

// splitSentences segments text per UAX #29 sentence boundaries
func splitSentences(text string) []string {
	var out []string
	toks := sentences.FromString(text)
	for toks.Next() {
		s := strings.TrimSpace(toks.Value())
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// tokenCount approximates model tokens as whitespace-delimited words
func tokenCount(s string) int { return len(strings.Fields(s)) }
