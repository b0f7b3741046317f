// Package records holds the typed source records ingested from the
// parliamentary APIs and their decomposition into embeddable chunks.
//
// A record is one of two tagged variants: a Hansard Contribution or a
// ParliamentaryQuestion. Each carries a deterministic document URI; every
// chunk derives its id as {document_uri}_chunk_{k} with k zero-based and
// unique within the document.
package records

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Chunk types stored in the vector payload
const (
	ChunkTypeContribution = "contribution"
	ChunkTypeQuestion     = "question"
	ChunkTypeAnswer       = "answer"
)

// Chunker is the sentence-chunking capability records need. Satisfied by
// chunk.Chunker.
type Chunker interface {
	Chunk(text string) []string
}

// Chunk is one embeddable window of a record plus the payload that will be
// stored alongside its vectors. Payload carries the full record minus the
// embedded text fields, plus text, chunk_type, chunk_id and created_at.
type Chunk struct {
	ID      string
	Type    string
	Text    string
	Payload map[string]any
}

// Document is the tagged-variant contract both record types satisfy
type Document interface {
	// DocumentURI is deterministic per record; re-processing the same
	// record yields the same URI and therefore the same chunk ids
	DocumentURI() string

	// Chunks decomposes the record into typed chunks. Empty embeddable
	// text yields zero chunks, which is still a successful outcome.
	Chunks(c Chunker) ([]Chunk, error)
}

// PointID derives the deterministic vector-store point id for a chunk id.
// Qdrant point ids must be UUIDs; SHA-1 in the URL namespace keeps upserts
// idempotent per chunk.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

// payloadOf serialises a record to a generic map, strips the embedded text
// fields, and leaves the rest as the chunk payload base.
func payloadOf(rec any, dropFields ...string) (map[string]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	for _, f := range dropFields {
		delete(m, f)
	}
	return m, nil
}

// clonePayload copies the base payload so chunks do not alias each other
func clonePayload(base map[string]any) map[string]any {
	out := make(map[string]any, len(base)+4)
	for k, v := range base {
		out[k] = v
	}
	return out
}

// nowRFC3339 stamps created_at the way the upstream serialisers do
func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }
