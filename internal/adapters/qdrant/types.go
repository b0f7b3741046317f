package qdrant

import "encoding/json"

// Named vectors carried by every point
const (
	VectorDense  = "text_dense"
	VectorSparse = "text_sparse"
)

// SparseVector is the indices/values wire shape
type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float64 `json:"values"`
}

// Point is one upsertable point with both named vectors and its payload
type Point struct {
	ID      string         `json:"id"`
	Vectors map[string]any `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// NewPoint assembles a point carrying the standard named vectors
func NewPoint(id string, dense []float32, sparse SparseVector, payload map[string]any) Point {
	return Point{
		ID: id,
		Vectors: map[string]any{
			VectorDense:  dense,
			VectorSparse: sparse,
		},
		Payload: payload,
	}
}

// Filter is a must/must_not predicate over payload fields
type Filter struct {
	Must    []Condition `json:"must,omitempty"`
	MustNot []Condition `json:"must_not,omitempty"`
}

// Empty reports whether the filter has no conditions
func (f *Filter) Empty() bool { return f == nil || (len(f.Must) == 0 && len(f.MustNot) == 0) }

// Condition matches one payload key
type Condition struct {
	Key   string         `json:"key"`
	Match *Match         `json:"match,omitempty"`
	Range *DatetimeRange `json:"range,omitempty"`
}

// Match supports exact value, full-text and any-of matching; exactly one
// field should be set
type Match struct {
	Value any    `json:"value,omitempty"`
	Text  string `json:"text,omitempty"`
	Any   []any  `json:"any,omitempty"`
}

// DatetimeRange bounds a datetime payload field; zero fields are omitted
type DatetimeRange struct {
	GTE string `json:"gte,omitempty"`
	LTE string `json:"lte,omitempty"`
	GT  string `json:"gt,omitempty"`
	LT  string `json:"lt,omitempty"`
}

// MatchValue builds an exact-match condition
func MatchValue(key string, value any) Condition {
	return Condition{Key: key, Match: &Match{Value: value}}
}

// MatchText builds a full-text condition against a text-indexed field
func MatchText(key, text string) Condition {
	return Condition{Key: key, Match: &Match{Text: text}}
}

// MatchAny builds an any-of condition
func MatchAny(key string, values []any) Condition {
	return Condition{Key: key, Match: &Match{Any: values}}
}

// ScoredPoint is one search hit
type ScoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// Group is one group-by bucket of hits
type Group struct {
	ID   json.RawMessage `json:"id"`
	Hits []ScoredPoint   `json:"hits"`
}

// OrderBy sorts scroll results by a payload key
type OrderBy struct {
	Key       string `json:"key"`
	Direction string `json:"direction,omitempty"` // asc | desc
}
