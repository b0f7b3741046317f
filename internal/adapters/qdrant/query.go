package qdrant

import (
	"context"
	"net/http"

	perr "westminster/internal/platform/errors"
)

// Prefetch is one branch of a hybrid query
type Prefetch struct {
	Query  any     `json:"query"` // dense []float32 or SparseVector
	Using  string  `json:"using"`
	Filter *Filter `json:"filter,omitempty"`
	Limit  int     `json:"limit,omitempty"`
}

// HybridQuery fuses dense and sparse prefetch branches with Reciprocal
// Rank Fusion, applying the same filter to both branches. minScore is
// applied to the fused result; 0 disables the threshold.
type HybridQuery struct {
	Dense    []float32
	Sparse   SparseVector
	Filter   *Filter
	Limit    int
	MinScore float64
}

func (q HybridQuery) body() map[string]any {
	f := q.Filter
	if f.Empty() {
		f = nil
	}
	body := map[string]any{
		"prefetch": []Prefetch{
			{Query: q.Dense, Using: VectorDense, Filter: f, Limit: q.Limit},
			{Query: q.Sparse, Using: VectorSparse, Filter: f, Limit: q.Limit},
		},
		"query":        map[string]any{"fusion": "rrf"},
		"limit":        q.Limit,
		"with_payload": true,
	}
	if q.MinScore > 0 {
		body["score_threshold"] = q.MinScore
	}
	return body
}

// QueryHybrid runs a fused hybrid search and returns scored points
func (c *Client) QueryHybrid(ctx context.Context, collection string, q HybridQuery) ([]ScoredPoint, error) {
	var out struct {
		Points []ScoredPoint `json:"points"`
	}
	if err := c.do(ctx, http.MethodPost, collectionPath(collection, "/points/query"), q.body(), &out); err != nil {
		return nil, perr.WithOp(err, "QueryHybrid")
	}
	return out.Points, nil
}

// QueryHybridGroups runs a fused hybrid search diversified by groupBy,
// returning up to limit groups of groupSize hits each
func (c *Client) QueryHybridGroups(ctx context.Context, collection string, q HybridQuery, groupBy string, groupSize int) ([]Group, error) {
	body := q.body()
	body["group_by"] = groupBy
	body["group_size"] = groupSize

	var out struct {
		Groups []Group `json:"groups"`
	}
	if err := c.do(ctx, http.MethodPost, collectionPath(collection, "/points/query/groups"), body, &out); err != nil {
		return nil, perr.WithOp(err, "QueryHybridGroups")
	}
	return out.Groups, nil
}

// QueryGroupsByFilter groups points matching a filter without any vector
// query (used to reassemble all chunks of selected documents)
func (c *Client) QueryGroupsByFilter(ctx context.Context, collection string, filter *Filter, groupBy string, groupSize, limit int) ([]Group, error) {
	body := map[string]any{
		"filter":       filter,
		"group_by":     groupBy,
		"group_size":   groupSize,
		"limit":        limit,
		"with_payload": true,
	}
	var out struct {
		Groups []Group `json:"groups"`
	}
	if err := c.do(ctx, http.MethodPost, collectionPath(collection, "/points/query/groups"), body, &out); err != nil {
		return nil, perr.WithOp(err, "QueryGroupsByFilter")
	}
	return out.Groups, nil
}

// Scroll pages through points matching a filter, ordered by a payload key
func (c *Client) Scroll(ctx context.Context, collection string, filter *Filter, limit int, orderBy *OrderBy) ([]ScoredPoint, error) {
	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if !filter.Empty() {
		body["filter"] = filter
	}
	if orderBy != nil {
		body["order_by"] = orderBy
	}

	var out struct {
		Points []ScoredPoint `json:"points"`
	}
	if err := c.do(ctx, http.MethodPost, collectionPath(collection, "/points/scroll"), body, &out); err != nil {
		return nil, perr.WithOp(err, "Scroll")
	}
	return out.Points, nil
}

// Recommend finds points similar to positive ids and dissimilar to
// negative ids, using the dense vector
func (c *Client) Recommend(ctx context.Context, collection string, positive, negative []string, filter *Filter, limit int) ([]ScoredPoint, error) {
	if negative == nil {
		negative = []string{}
	}
	body := map[string]any{
		"query": map[string]any{
			"recommend": map[string]any{
				"positive": positive,
				"negative": negative,
			},
		},
		"using":        VectorDense,
		"limit":        limit,
		"with_payload": true,
	}
	if !filter.Empty() {
		body["filter"] = filter
	}

	var out struct {
		Points []ScoredPoint `json:"points"`
	}
	if err := c.do(ctx, http.MethodPost, collectionPath(collection, "/points/query"), body, &out); err != nil {
		return nil, perr.WithOp(err, "Recommend")
	}
	return out.Points, nil
}

// ContextPair is one (positive, negative) example for discovery search
type ContextPair struct {
	Positive string `json:"positive"`
	Negative string `json:"negative"`
}

// Discover finds points near target, steered by context pairs, using the
// dense vector
func (c *Client) Discover(ctx context.Context, collection string, target string, pairs []ContextPair, filter *Filter, limit int) ([]ScoredPoint, error) {
	body := map[string]any{
		"query": map[string]any{
			"discover": map[string]any{
				"target":  target,
				"context": pairs,
			},
		},
		"using":        VectorDense,
		"limit":        limit,
		"with_payload": true,
	}
	if !filter.Empty() {
		body["filter"] = filter
	}

	var out struct {
		Points []ScoredPoint `json:"points"`
	}
	if err := c.do(ctx, http.MethodPost, collectionPath(collection, "/points/query"), body, &out); err != nil {
		return nil, perr.WithOp(err, "Discover")
	}
	return out.Points, nil
}
