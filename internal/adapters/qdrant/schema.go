package qdrant

import (
	"context"
	"net/http"

	perr "westminster/internal/platform/errors"
)

// Collection names for the two record types
const (
	HansardCollection = "parliament_mcp_hansard_contributions"
	PQCollection      = "parliament_mcp_parliamentary_questions"
)

// EmbeddingDimensions is the dense vector size both collections use
const EmbeddingDimensions = 1024

// CollectionExists reports whether the collection exists
func (c *Client) CollectionExists(ctx context.Context, collection string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	if err := c.do(ctx, http.MethodGet, collectionPath(collection, "/exists"), nil, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// EnsureCollection creates the collection if missing: dense DOT vectors
// with INT8 always-RAM scalar quantization, sparse vectors with the IDF
// modifier.
func (c *Client) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	exists, err := c.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		c.log.Info().Str("collection", collection).Msg("collection already exists")
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			VectorDense: map[string]any{
				"size":     vectorSize,
				"distance": "Dot",
			},
		},
		"sparse_vectors": map[string]any{
			VectorSparse: map[string]any{
				"modifier": "idf",
			},
		},
		"quantization_config": map[string]any{
			"scalar": map[string]any{
				"type":       "int8",
				"always_ram": true,
			},
		},
	}
	if err := c.do(ctx, http.MethodPut, collectionPath(collection, ""), body, nil); err != nil {
		return perr.WithOp(err, "EnsureCollection")
	}
	c.log.Info().Str("collection", collection).Msg("created collection")
	return nil
}

// index schema shorthands
var (
	keywordIndex  = "keyword"
	datetimeIndex = "datetime"
	integerIndex  = map[string]any{"type": "integer", "lookup": true, "range": true}
	textIndex     = map[string]any{
		"type":          "text",
		"tokenizer":     "word",
		"min_token_len": 2,
		"max_token_len": 10,
		"lowercase":     true,
		"stopwords":     "english",
		"stemmer":       map[string]any{"type": "snowball", "language": "english"},
	}
)

// payloadIndex declares one payload index
type payloadIndex struct {
	field  string
	schema any
}

var hansardIndexes = []payloadIndex{
	{"SittingDate", datetimeIndex},
	{"DebateSectionExtId", keywordIndex},
	{"MemberId", integerIndex},
	{"House", keywordIndex},
	{"debate_parents[].Title", textIndex},
	{"debate_parents[].ExternalId", keywordIndex},
}

var pqIndexes = []payloadIndex{
	{"dateTabled", datetimeIndex},
	{"dateAnswered", datetimeIndex},
	{"house", keywordIndex},
	{"askingMember.id", integerIndex},
	{"askingMember.party", keywordIndex},
	{"answeringBodyName", textIndex},
	{"id", integerIndex},
}

// EnsureIndexes creates the payload indexes each collection needs for
// filtered search. Creation is idempotent on the Qdrant side.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	apply := func(collection string, idxs []payloadIndex) error {
		for _, idx := range idxs {
			body := map[string]any{
				"field_name":   idx.field,
				"field_schema": idx.schema,
			}
			if err := c.do(ctx, http.MethodPut, collectionPath(collection, "/index?wait=true"), body, nil); err != nil {
				return perr.WithOp(err, "EnsureIndexes")
			}
		}
		return nil
	}
	if err := apply(HansardCollection, hansardIndexes); err != nil {
		return err
	}
	return apply(PQCollection, pqIndexes)
}

// EnsureSchema bootstraps both collections and their indexes
func (c *Client) EnsureSchema(ctx context.Context) error {
	if err := c.EnsureCollection(ctx, HansardCollection, EmbeddingDimensions); err != nil {
		return err
	}
	if err := c.EnsureCollection(ctx, PQCollection, EmbeddingDimensions); err != nil {
		return err
	}
	return c.EnsureIndexes(ctx)
}

// Upsert writes one batch of points. Callers batch to UpsertBatchSize.
func (c *Client) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": points}
	if err := c.do(ctx, http.MethodPut, collectionPath(collection, "/points?wait=true"), body, nil); err != nil {
		return perr.WithOp(err, "Upsert")
	}
	return nil
}

// UpsertBatchSize is the sub-batch size for point upserts
const UpsertBatchSize = 100

// UpsertBatched writes points in sub-batches of UpsertBatchSize
func (c *Client) UpsertBatched(ctx context.Context, collection string, points []Point) error {
	for i := 0; i < len(points); i += UpsertBatchSize {
		end := min(i+UpsertBatchSize, len(points))
		if err := c.Upsert(ctx, collection, points[i:end]); err != nil {
			return err
		}
		c.log.Debug().Str("collection", collection).Int("from", i).Int("to", end).Int("total", len(points)).Msg("upserted batch")
	}
	return nil
}
