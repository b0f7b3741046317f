package records

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

// fixedChunker returns its configured pieces regardless of input
type fixedChunker struct{ pieces []string }

func (f fixedChunker) Chunk(string) []string { return f.pieces }

func strptr(s string) *string { return &s }
func intptr(i int) *int       { return &i }

func sampleContribution() *Contribution {
	return &Contribution{
		MemberName:           strptr("Angela Rayner"),
		MemberID:             intptr(4356),
		ContributionExtID:    strptr("ABCD-1234"),
		ContributionText:     strptr("short text"),
		ContributionTextFull: strptr("The full text of the contribution."),
		DebateSectionExtID:   "DEB-99",
		House:                strptr("Commons"),
		SittingDate:          mustAPITime("2024-07-18T00:00:00"),
		OrderInDebateSection: intptr(7),
	}
}

func mustAPITime(s string) *APITime {
	var t APITime
	if err := t.UnmarshalJSON([]byte(`"` + s + `"`)); err != nil {
		panic(err)
	}
	return &t
}

func TestDecodeContributionStrict(t *testing.T) {
	raw := []byte(`{"DebateSectionExtId":"DEB-1","ContributionExtId":"C-1","UnknownField":true}`)
	if _, err := DecodeContribution(raw); err == nil {
		t.Fatalf("unknown fields must fail decoding")
	}

	raw = []byte(`{"ContributionExtId":"C-1"}`)
	if _, err := DecodeContribution(raw); err == nil {
		t.Fatalf("missing DebateSectionExtId must fail validation")
	}

	raw = []byte(`{"DebateSectionExtId":"DEB-1","ContributionExtId":"C-1"}`)
	c, err := DecodeContribution(raw)
	if err != nil {
		t.Fatalf("valid contribution rejected: %v", err)
	}
	if c.DebateSectionExtID != "DEB-1" {
		t.Fatalf("wrong DebateSectionExtId: %q", c.DebateSectionExtID)
	}
}

func TestContributionDocumentURI(t *testing.T) {
	c := sampleContribution()
	if got := c.DocumentURI(); got != "debate_DEB-99_contrib_ABCD-1234" {
		t.Fatalf("unexpected URI %q", got)
	}

	// Without an external id the URI falls back to a content hash over
	// "{ext}_{text}_{order}"; that exact input keeps fallback URIs equal to
	// previously ingested ones, so reprocessing overwrites instead of
	// duplicating
	c.ContributionExtID = nil
	sum := sha256.Sum256([]byte("DEB-99_short text_7"))
	want := "debate_DEB-99_contrib_" + hex.EncodeToString(sum[:])
	if got := c.DocumentURI(); got != want {
		t.Fatalf("fallback URI = %q, want %q", got, want)
	}

	// Missing text and order render as "None" in the hash input
	c3 := &Contribution{DebateSectionExtID: "DEB-99"}
	sum = sha256.Sum256([]byte("DEB-99_None_None"))
	want = "debate_DEB-99_contrib_" + hex.EncodeToString(sum[:])
	if got := c3.DocumentURI(); got != want {
		t.Fatalf("empty fallback URI = %q, want %q", got, want)
	}

	// Different text, different hash
	c2 := sampleContribution()
	c2.ContributionExtID = nil
	c2.ContributionText = strptr("other text")
	if c2.DocumentURI() == c.DocumentURI() {
		t.Fatalf("different content should hash differently")
	}
}

func TestContributionURLs(t *testing.T) {
	c := sampleContribution()
	want := "https://hansard.parliament.uk/Commons/2024-07-18/debates/DEB-99/link"
	if got := c.DebateURL(); got != want {
		t.Fatalf("DebateURL = %q, want %q", got, want)
	}
	if got := c.ContributionURL(); got != want+"#contribution-ABCD-1234" {
		t.Fatalf("ContributionURL = %q", got)
	}
	c.ContributionExtID = nil
	if got := c.ContributionURL(); got != "" {
		t.Fatalf("ContributionURL without ext id should be empty, got %q", got)
	}
}

func TestContributionChunks(t *testing.T) {
	c := sampleContribution()
	chunks, err := c.Chunks(fixedChunker{pieces: []string{"first piece", "second piece"}})
	if err != nil {
		t.Fatalf("Chunks failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	uri := c.DocumentURI()
	for k, ch := range chunks {
		wantID := uri + "_chunk_" + string(rune('0'+k))
		if ch.ID != wantID {
			t.Fatalf("chunk %d id = %q, want %q", k, ch.ID, wantID)
		}
		if ch.Type != ChunkTypeContribution {
			t.Fatalf("chunk %d type = %q", k, ch.Type)
		}
		p := ch.Payload
		if _, ok := p["ContributionText"]; ok {
			t.Fatalf("payload must drop ContributionText")
		}
		if _, ok := p["ContributionTextFull"]; ok {
			t.Fatalf("payload must drop ContributionTextFull")
		}
		if p["document_uri"] != uri {
			t.Fatalf("payload document_uri = %v", p["document_uri"])
		}
		if p["text"] != ch.Text {
			t.Fatalf("payload text mismatch")
		}
		if p["chunk_id"] != ch.ID {
			t.Fatalf("payload chunk_id mismatch")
		}
		if p["created_at"] == "" {
			t.Fatalf("payload missing created_at")
		}
		if p["debate_url"] != c.DebateURL() {
			t.Fatalf("payload debate_url mismatch")
		}
	}

	// Chunks must not alias each other's payloads
	chunks[0].Payload["text"] = "mutated"
	if chunks[1].Payload["text"] == "mutated" {
		t.Fatalf("chunk payloads alias each other")
	}
}

func TestContributionChunksEmptyText(t *testing.T) {
	c := sampleContribution()
	c.ContributionTextFull = nil
	chunks, err := c.Chunks(fixedChunker{})
	if err != nil {
		t.Fatalf("Chunks failed: %v", err)
	}
	if chunks != nil {
		t.Fatalf("no text should yield no chunks, got %v", chunks)
	}
}

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("pq_123_chunk_0")
	b := PointID("pq_123_chunk_0")
	if a != b {
		t.Fatalf("point id not deterministic")
	}
	if a == PointID("pq_123_chunk_1") {
		t.Fatalf("different chunks must get different point ids")
	}
	if len(a) != 36 {
		t.Fatalf("point id should be a UUID, got %q", a)
	}
}
