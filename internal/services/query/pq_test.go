package query

import (
	"context"
	"encoding/json"
	"testing"

	"westminster/internal/adapters/qdrant"
)

func pqChunk(id int, chunkID, chunkType, text, createdAt string) qdrant.ScoredPoint {
	return scored("x", 0, map[string]any{
		"id":                float64(id),
		"chunk_id":          chunkID,
		"chunk_type":        chunkType,
		"text":              text,
		"created_at":        createdAt,
		"dateTabled":        "2024-07-18T00:00:00Z",
		"answeringBodyName": "Home Office",
		"question_url":      "https://questions-statements.parliament.uk/written-questions/detail/2024-07-18/901",
	})
}

func TestSearchParliamentaryQuestionsReassembly(t *testing.T) {
	v := &fakeVectors{
		hybridResult: []qdrant.ScoredPoint{
			// Multiple chunks of the same question collapse to one id
			scored("a", 0.9, map[string]any{"id": float64(900)}),
			scored("b", 0.8, map[string]any{"id": float64(900)}),
			scored("c", 0.7, map[string]any{"id": float64(901)}),
		},
		groupResult: []qdrant.Group{
			{ID: json.RawMessage(`900`), Hits: []qdrant.ScoredPoint{
				// Deliberately out of order
				pqChunk(900, "pq_900_chunk_1", "question", "second question piece", "2024-07-18T10:00:00Z"),
				pqChunk(900, "pq_900_chunk_2", "answer", "the answer", "2024-07-18T10:00:00Z"),
				pqChunk(900, "pq_900_chunk_0", "question", "first question piece", "2024-07-18T10:00:00Z"),
			}},
			{ID: json.RawMessage(`901`), Hits: []qdrant.ScoredPoint{
				pqChunk(901, "pq_901_chunk_0", "question", "other question", "2024-07-19T09:00:00Z"),
			}},
		},
	}
	h := newHandler(v)

	questions, err := h.SearchParliamentaryQuestions(context.Background(), PQParams{Query: "passports"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}

	// Most recently ingested first
	if questions[0].QuestionText != "other question" {
		t.Fatalf("expected the newer question first, got %+v", questions[0])
	}

	q := questions[1]
	if q.QuestionText != "first question piece\nsecond question piece" {
		t.Fatalf("question chunks out of order: %q", q.QuestionText)
	}
	if q.AnswerText != "the answer" {
		t.Fatalf("answer = %q", q.AnswerText)
	}
	if q.DateTabled != "2024-07-18" {
		t.Fatalf("dateTabled = %q", q.DateTabled)
	}
	if q.AnsweringBodyName != "Home Office" {
		t.Fatalf("answeringBodyName = %q", q.AnsweringBodyName)
	}
	if q.QuestionURL == "" {
		t.Fatalf("missing question url")
	}

	// Stage two must select exactly the deduplicated ids
	if len(v.groupFilters) != 1 {
		t.Fatalf("expected one group query")
	}
	must := v.groupFilters[0].Must
	if len(must) != 1 || must[0].Key != "id" || len(must[0].Match.Any) != 2 {
		t.Fatalf("bad id filter: %+v", must)
	}
}

func TestSearchParliamentaryQuestionsNoHits(t *testing.T) {
	h := newHandler(&fakeVectors{})
	questions, err := h.SearchParliamentaryQuestions(context.Background(), PQParams{Query: "nothing"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(questions) != 0 {
		t.Fatalf("expected no questions, got %+v", questions)
	}
}

func TestSearchParliamentaryQuestionsFilters(t *testing.T) {
	v := &fakeVectors{hybridResult: []qdrant.ScoredPoint{
		scored("a", 0.9, map[string]any{"id": float64(900)}),
	}}
	h := newHandler(v)

	mid := 42
	_, err := h.SearchParliamentaryQuestions(context.Background(), PQParams{
		Query:             "passports",
		DateFrom:          "2024-07-01",
		DateTo:            "2024-07-31",
		Party:             "Labour",
		AskingMemberID:    &mid,
		AnsweringBodyName: "Home Office",
	})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	filter := v.hybridCalls[0].q.Filter
	byKey := map[string]qdrant.Condition{}
	for _, c := range filter.Must {
		byKey[c.Key] = c
	}
	if c, ok := byKey["dateTabled"]; !ok || c.Range == nil {
		t.Fatalf("missing dateTabled range")
	}
	if c, ok := byKey["askingMember.party"]; !ok || c.Match.Value != "Labour" {
		t.Fatalf("missing party filter")
	}
	if c, ok := byKey["askingMember.id"]; !ok || c.Match.Value != 42 {
		t.Fatalf("missing member filter")
	}
	if c, ok := byKey["answeringBodyName"]; !ok || c.Match.Text != "Home Office" {
		t.Fatalf("answering body should be a text match")
	}
}

func TestSearchParliamentaryQuestionsWithoutQueryScrolls(t *testing.T) {
	v := &fakeVectors{scrollResult: [][]qdrant.ScoredPoint{{
		scored("a", 0, map[string]any{"id": float64(900)}),
	}}}
	h := newHandler(v)

	if _, err := h.SearchParliamentaryQuestions(context.Background(), PQParams{}); err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(v.scrollCalls) != 1 {
		t.Fatalf("expected a scroll")
	}
	ob := v.scrollCalls[0].orderBy
	if ob == nil || ob.Key != "id" || ob.Direction != "desc" {
		t.Fatalf("bad order_by %+v", ob)
	}
}
