package records

import (
	"fmt"
	"testing"
)

func samplePQ() *ParliamentaryQuestion {
	return &ParliamentaryQuestion{
		ID:             1700123,
		AskingMemberID: 4356,
		House:          "Commons",
		Uin:            strptr("12345"),
		DateTabled:     *mustAPITime("2024-07-18T00:00:00"),
		QuestionText:   strptr("What steps is the department taking?"),
		AnswerText:     strptr("The department has taken several steps."),
	}
}

func TestDecodeParliamentaryQuestionLenient(t *testing.T) {
	// Unknown fields are fine for PQs; the questions API adds them often
	raw := []byte(`{"id":9,"askingMemberId":2,"house":"Lords","someNewField":"x"}`)
	q, err := DecodeParliamentaryQuestion(raw)
	if err != nil {
		t.Fatalf("lenient decode rejected unknown field: %v", err)
	}
	if q.ID != 9 || q.House != "Lords" {
		t.Fatalf("decoded wrong values: %+v", q)
	}
}

func TestDecodeParliamentaryQuestionRequired(t *testing.T) {
	raw := []byte(`{"askingMemberId":2,"house":"Lords"}`)
	if _, err := DecodeParliamentaryQuestion(raw); err == nil {
		t.Fatalf("missing id must fail validation")
	}
}

func TestPQDocumentURI(t *testing.T) {
	q := samplePQ()
	if got := q.DocumentURI(); got != "pq_1700123" {
		t.Fatalf("unexpected URI %q", got)
	}
}

func TestPQQuestionURL(t *testing.T) {
	q := samplePQ()
	want := "https://questions-statements.parliament.uk/written-questions/detail/2024-07-18/12345"
	if got := q.QuestionURL(); got != want {
		t.Fatalf("QuestionURL = %q, want %q", got, want)
	}
}

func TestPQEmbeddableText(t *testing.T) {
	q := samplePQ()
	want := "QUESTION: What steps is the department taking?\n ANSWER: The department has taken several steps."
	if got := q.EmbeddableText(); got != want {
		t.Fatalf("EmbeddableText = %q", got)
	}
}

// splitChunker emulates the sentence chunker by returning one piece per
// input; the test swaps behavior per call via the counter
type perCallChunker struct {
	calls  int
	pieces [][]string
}

func (p *perCallChunker) Chunk(string) []string {
	out := p.pieces[p.calls%len(p.pieces)]
	p.calls++
	return out
}

func TestPQChunksOrdering(t *testing.T) {
	q := samplePQ()
	// First call chunks the question into 2 pieces, second the answer into 1
	ch := &perCallChunker{pieces: [][]string{{"q0", "q1"}, {"a0"}}}
	chunks, err := q.Chunks(ch)
	if err != nil {
		t.Fatalf("Chunks failed: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	wantTypes := []string{ChunkTypeQuestion, ChunkTypeQuestion, ChunkTypeAnswer}
	for i, ch := range chunks {
		if ch.Type != wantTypes[i] {
			t.Fatalf("chunk %d type = %q, want %q", i, ch.Type, wantTypes[i])
		}
		wantID := fmt.Sprintf("pq_1700123_chunk_%d", i)
		if ch.ID != wantID {
			t.Fatalf("chunk %d id = %q, want %q", i, ch.ID, wantID)
		}
		p := ch.Payload
		if _, ok := p["questionText"]; ok {
			t.Fatalf("payload must drop questionText")
		}
		if _, ok := p["answerText"]; ok {
			t.Fatalf("payload must drop answerText")
		}
		if p["document_uri"] != "pq_1700123" {
			t.Fatalf("payload document_uri = %v", p["document_uri"])
		}
		if p["question_url"] != q.QuestionURL() {
			t.Fatalf("payload question_url = %v", p["question_url"])
		}
		if p["chunk_type"] != ch.Type {
			t.Fatalf("payload chunk_type mismatch")
		}
	}
}

func TestPQChunksEmpty(t *testing.T) {
	q := samplePQ()
	q.QuestionText = nil
	q.AnswerText = nil
	chunks, err := q.Chunks(&perCallChunker{pieces: [][]string{nil}})
	if err != nil {
		t.Fatalf("Chunks failed: %v", err)
	}
	if chunks != nil {
		t.Fatalf("no text should yield no chunks")
	}
}

func TestAPITimeLayouts(t *testing.T) {
	cases := []string{
		"2024-07-18T14:30:00Z",
		"2024-07-18T14:30:00",
		"2024-07-18",
	}
	for _, s := range cases {
		var at APITime
		if err := at.UnmarshalJSON([]byte(`"` + s + `"`)); err != nil {
			t.Fatalf("failed to parse %q: %v", s, err)
		}
		if at.DateString() != "2024-07-18" {
			t.Fatalf("wrong date for %q: %s", s, at.DateString())
		}
	}

	var at APITime
	if err := at.UnmarshalJSON([]byte("null")); err != nil {
		t.Fatalf("null must parse: %v", err)
	}
	if !at.IsZero() {
		t.Fatalf("null should be the zero time")
	}
	out, err := at.MarshalJSON()
	if err != nil || string(out) != "null" {
		t.Fatalf("zero time should marshal as null, got %s (%v)", out, err)
	}
}
