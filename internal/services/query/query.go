// Package query is the read side: hybrid search over the two vector
// collections with payload filtering, diversification by debate or
// member, similarity exploration and PQ reassembly from chunks.
package query

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"westminster/internal/adapters/qdrant"
	"westminster/internal/core/sparse"
	perr "westminster/internal/platform/errors"
	"westminster/internal/platform/logger"
)

// Vectors is the slice of the Qdrant client the query side reads through
type Vectors interface {
	QueryHybrid(ctx context.Context, collection string, q qdrant.HybridQuery) ([]qdrant.ScoredPoint, error)
	QueryHybridGroups(ctx context.Context, collection string, q qdrant.HybridQuery, groupBy string, groupSize int) ([]qdrant.Group, error)
	QueryGroupsByFilter(ctx context.Context, collection string, filter *qdrant.Filter, groupBy string, groupSize, limit int) ([]qdrant.Group, error)
	Scroll(ctx context.Context, collection string, filter *qdrant.Filter, limit int, orderBy *qdrant.OrderBy) ([]qdrant.ScoredPoint, error)
	Recommend(ctx context.Context, collection string, positive, negative []string, filter *qdrant.Filter, limit int) ([]qdrant.ScoredPoint, error)
	Discover(ctx context.Context, collection string, target string, pairs []qdrant.ContextPair, filter *qdrant.Filter, limit int) ([]qdrant.ScoredPoint, error)
}

// DenseEmbedder embeds one query string
type DenseEmbedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// SparseEncoder computes the sparse vector for one query string
type SparseEncoder interface {
	Encode(text string) sparse.Vector
}

// Handler answers search requests over the ingested collections
type Handler struct {
	vectors Vectors
	dense   DenseEmbedder
	sparse  SparseEncoder
	log     logger.Logger
}

// New wires a query handler
func New(vectors Vectors, dense DenseEmbedder, sparse SparseEncoder) *Handler {
	return &Handler{
		vectors: vectors,
		dense:   dense,
		sparse:  sparse,
		log:     *logger.Named("query"),
	}
}

// embedQuery computes both query vectors for one search string
func (h *Handler) embedQuery(ctx context.Context, q string) ([]float32, qdrant.SparseVector, error) {
	dense, err := h.dense.EmbedSingle(ctx, q)
	if err != nil {
		return nil, qdrant.SparseVector{}, err
	}
	v := h.sparse.Encode(q)
	return dense, qdrant.SparseVector{Indices: v.Indices, Values: v.Values}, nil
}

// dateRange builds a day-granularity range condition: from is inclusive
// of the whole day, to is inclusive of the whole day via a half-open
// bound on the following midnight. Returns ok=false when both are empty.
func dateRange(field, from, to string) (qdrant.Condition, bool, error) {
	if from == "" && to == "" {
		return qdrant.Condition{}, false, nil
	}
	r := &qdrant.DatetimeRange{}
	if from != "" {
		d, err := time.Parse("2006-01-02", from)
		if err != nil {
			return qdrant.Condition{}, false, perr.InvalidArgf("bad from date %q", from)
		}
		r.GTE = d.Format(time.RFC3339)
	}
	if to != "" {
		d, err := time.Parse("2006-01-02", to)
		if err != nil {
			return qdrant.Condition{}, false, perr.InvalidArgf("bad to date %q", to)
		}
		r.LT = d.AddDate(0, 0, 1).Format(time.RFC3339)
	}
	return qdrant.Condition{Key: field, Range: r}, true, nil
}

// ContributionHit is one contribution chunk returned to callers
type ContributionHit struct {
	ID              string         `json:"id"`
	Text            string         `json:"text"`
	Date            string         `json:"date"`
	House           string         `json:"house,omitempty"`
	MemberID        int            `json:"member_id,omitempty"`
	MemberName      string         `json:"member_name,omitempty"`
	RelevanceScore  float64        `json:"relevance_score"`
	DebateTitle     string         `json:"debate_title"`
	DebateURL       string         `json:"debate_url,omitempty"`
	ContributionURL string         `json:"contribution_url,omitempty"`
	OrderInDebate   int            `json:"order_in_debate,omitempty"`
	DebateParents   any            `json:"debate_parents,omitempty"`
	payload         map[string]any // kept for internal accumulators
}

// ContributionParams filters a Hansard contribution search. Query may be
// empty, in which case results come back newest first without scoring.
type ContributionParams struct {
	Query            string
	MemberID         *int
	DebateID         string
	House            string
	DateFrom         string // YYYY-MM-DD
	DateTo           string // YYYY-MM-DD
	ExcludeMemberIDs []int
	MaxResults       int
	MinScore         float64
}

func (p ContributionParams) filter() (*qdrant.Filter, error) {
	f := &qdrant.Filter{}
	if p.MemberID != nil {
		f.Must = append(f.Must, qdrant.MatchValue("MemberId", *p.MemberID))
	}
	if p.DebateID != "" {
		f.Must = append(f.Must, qdrant.MatchValue("DebateSectionExtId", p.DebateID))
	}
	if p.House != "" {
		f.Must = append(f.Must, qdrant.MatchValue("House", p.House))
	}
	cond, ok, err := dateRange("SittingDate", p.DateFrom, p.DateTo)
	if err != nil {
		return nil, err
	}
	if ok {
		f.Must = append(f.Must, cond)
	}
	if len(p.ExcludeMemberIDs) > 0 {
		ids := make([]any, len(p.ExcludeMemberIDs))
		for i, id := range p.ExcludeMemberIDs {
			ids[i] = id
		}
		f.MustNot = append(f.MustNot, qdrant.MatchAny("MemberId", ids))
	}
	return f, nil
}

// SearchHansardContributions searches contribution chunks. With a query
// the two vector branches are fused with RRF and results come back by
// descending score; without one, results are the newest matching chunks.
func (h *Handler) SearchHansardContributions(ctx context.Context, p ContributionParams) ([]ContributionHit, error) {
	if p.MaxResults <= 0 {
		p.MaxResults = 100
	}
	filter, err := p.filter()
	if err != nil {
		return nil, err
	}

	var points []qdrant.ScoredPoint
	if p.Query != "" {
		dense, sparse, err := h.embedQuery(ctx, p.Query)
		if err != nil {
			return nil, err
		}
		points, err = h.vectors.QueryHybrid(ctx, qdrant.HansardCollection, qdrant.HybridQuery{
			Dense:    dense,
			Sparse:   sparse,
			Filter:   filter,
			Limit:    p.MaxResults,
			MinScore: p.MinScore,
		})
		if err != nil {
			return nil, err
		}
	} else {
		points, err = h.vectors.Scroll(ctx, qdrant.HansardCollection, filter, p.MaxResults,
			&qdrant.OrderBy{Key: "SittingDate", Direction: "desc"})
		if err != nil {
			return nil, err
		}
	}

	hits := contributionHits(points)
	if p.Query != "" {
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].RelevanceScore > hits[j].RelevanceScore })
	} else {
		sort.SliceStable(hits, func(i, j int) bool {
			if hits[i].Date != hits[j].Date {
				return hits[i].Date < hits[j].Date
			}
			return hits[i].OrderInDebate < hits[j].OrderInDebate
		})
	}
	return hits, nil
}

// SearchHansardContributionsGrouped runs the same search diversified by a
// payload key, e.g. DebateSectionExtId for at most groupSize chunks per
// debate. A query is required: grouping is meaningless without scoring.
func (h *Handler) SearchHansardContributionsGrouped(ctx context.Context, p ContributionParams, groupBy string, groupSize int) ([][]ContributionHit, error) {
	if p.Query == "" {
		return nil, perr.InvalidArgf("grouped search requires a query")
	}
	if p.MaxResults <= 0 {
		p.MaxResults = 100
	}
	if groupSize <= 0 {
		groupSize = 1
	}
	filter, err := p.filter()
	if err != nil {
		return nil, err
	}
	dense, sparse, err := h.embedQuery(ctx, p.Query)
	if err != nil {
		return nil, err
	}

	groups, err := h.vectors.QueryHybridGroups(ctx, qdrant.HansardCollection, qdrant.HybridQuery{
		Dense:  dense,
		Sparse: sparse,
		Filter: filter,
		Limit:  p.MaxResults,
	}, groupBy, groupSize)
	if err != nil {
		return nil, err
	}

	out := make([][]ContributionHit, 0, len(groups))
	for _, g := range groups {
		out = append(out, contributionHits(g.Hits))
	}
	return out, nil
}

// FindRelevantContributors groups a hybrid search by MemberId: the top
// numContributors members, each with their numContributions best chunks
func (h *Handler) FindRelevantContributors(ctx context.Context, queryText string, numContributors, numContributions int, dateFrom, dateTo, house string) ([][]ContributionHit, error) {
	if queryText == "" {
		return nil, perr.InvalidArgf("a query must be provided")
	}
	if numContributors <= 0 {
		numContributors = 10
	}
	if numContributions <= 0 {
		numContributions = 10
	}
	return h.SearchHansardContributionsGrouped(ctx, ContributionParams{
		Query:      queryText,
		House:      house,
		DateFrom:   dateFrom,
		DateTo:     dateTo,
		MaxResults: numContributors,
	}, "MemberId", numContributions)
}

// RecommendContributions finds chunks similar to the positive point ids
// and dissimilar to the negative ones
func (h *Handler) RecommendContributions(ctx context.Context, positive, negative []string, maxResults int) ([]ContributionHit, error) {
	if len(positive) == 0 {
		return nil, perr.InvalidArgf("at least one positive id is required")
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	points, err := h.vectors.Recommend(ctx, qdrant.HansardCollection, positive, negative, nil, maxResults)
	if err != nil {
		return nil, err
	}
	return contributionHits(points), nil
}

// DiscoverContributions finds chunks near the target point, steered by
// (positive, negative) context pairs
func (h *Handler) DiscoverContributions(ctx context.Context, target string, pairs []qdrant.ContextPair, maxResults int) ([]ContributionHit, error) {
	if target == "" {
		return nil, perr.InvalidArgf("a target id is required")
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	points, err := h.vectors.Discover(ctx, qdrant.HansardCollection, target, pairs, nil, maxResults)
	if err != nil {
		return nil, err
	}
	return contributionHits(points), nil
}

func contributionHits(points []qdrant.ScoredPoint) []ContributionHit {
	hits := make([]ContributionHit, 0, len(points))
	for _, pt := range points {
		p := pt.Payload
		hits = append(hits, ContributionHit{
			ID:              pointID(pt.ID),
			Text:            str(p, "text"),
			Date:            str(p, "SittingDate"),
			House:           str(p, "House"),
			MemberID:        num(p, "MemberId"),
			MemberName:      str(p, "MemberName"),
			RelevanceScore:  pt.Score,
			DebateTitle:     str(p, "DebateSection"),
			DebateURL:       str(p, "debate_url"),
			ContributionURL: str(p, "contribution_url"),
			OrderInDebate:   num(p, "OrderInDebateSection"),
			DebateParents:   p["debate_parents"],
			payload:         p,
		})
	}
	return hits
}

// pointID unquotes a raw point id; numeric ids pass through as digits
func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// payload accessors: JSON-decoded payloads carry float64 numbers and may
// hold explicit nulls

func str(p map[string]any, key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func num(p map[string]any, key string) int {
	if v, ok := p[key].(float64); ok {
		return int(v)
	}
	return 0
}
