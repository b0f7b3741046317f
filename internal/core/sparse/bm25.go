// Package sparse produces BM25-style sparse vectors for lexical matching.
// It follows the Qdrant/bm25 recipe: lowercase word tokens, English
// stopwords removed, 32-bit token hashing for indices, BM25 term weights
// for values. Document frequency is applied store-side via the collection's
// IDF modifier, so the encoder only emits term-frequency weights.
package sparse

import (
	"hash/fnv"
	"sort"
	"strings"
	"unicode"
)

// BM25 parameters, matching the fastembed defaults
const (
	k1        = 1.2
	b         = 0.75
	avgDocLen = 256.0
)

// Vector is a sparse indices/values pair. Indices are unique and ascending.
type Vector struct {
	Indices []uint32  `json:"indices"`
	Values  []float64 `json:"values"`
}

// Encoder turns text into sparse vectors. The zero value is ready to use.
type Encoder struct{}

// Encode computes the sparse vector for text. Empty text yields an empty
// vector (no indices).
func (Encoder) Encode(text string) Vector {
	toks := tokenize(text)
	if len(toks) == 0 {
		return Vector{}
	}

	tf := make(map[uint32]float64, len(toks))
	for _, t := range toks {
		tf[hashToken(t)]++
	}

	docLen := float64(len(toks))
	idx := make([]uint32, 0, len(tf))
	for i := range tf {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, c int) bool { return idx[a] < idx[c] })

	vals := make([]float64, len(idx))
	for i, id := range idx {
		f := tf[id]
		vals[i] = f * (k1 + 1) / (f + k1*(1-b+b*docLen/avgDocLen))
	}
	return Vector{Indices: idx, Values: vals}
}

// hashToken maps a token to a stable 32-bit index
func hashToken(t string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(t))
	return h.Sum32()
}

// tokenize lowercases and splits on non-letter/digit runes, dropping
// stopwords and single characters
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "he": true, "her": true, "his": true,
	"if": true, "in": true, "into": true, "is": true, "it": true, "its": true,
	"my": true, "no": true, "not": true, "of": true, "on": true, "or": true,
	"our": true, "she": true, "so": true, "such": true, "that": true,
	"the": true, "their": true, "then": true, "there": true, "these": true,
	"they": true, "this": true, "to": true, "was": true, "we": true,
	"were": true, "will": true, "with": true, "would": true, "you": true,
}
