package query

import (
	"context"
	"fmt"
	"sort"

	"westminster/internal/adapters/qdrant"
	"westminster/internal/core/records"
)

// Question is one reassembled parliamentary question
type Question struct {
	QuestionText      string `json:"question_text"`
	AnswerText        string `json:"answer_text"`
	AskingMember      any    `json:"askingMember,omitempty"`
	AnsweringMember   any    `json:"answeringMember,omitempty"`
	DateTabled        string `json:"dateTabled,omitempty"`
	DateAnswered      string `json:"dateAnswered,omitempty"`
	AnsweringBodyName string `json:"answeringBodyName,omitempty"`
	QuestionURL       string `json:"question_url,omitempty"`
	CreatedAt         string `json:"created_at,omitempty"`
}

// PQParams filters a parliamentary question search
type PQParams struct {
	Query             string
	DateFrom          string // YYYY-MM-DD, on dateTabled
	DateTo            string // YYYY-MM-DD
	Party             string
	AskingMemberID    *int
	AnsweringBodyName string
	MinScore          float64
	MaxResults        int
}

func (p PQParams) filter() (*qdrant.Filter, error) {
	f := &qdrant.Filter{}
	cond, ok, err := dateRange("dateTabled", p.DateFrom, p.DateTo)
	if err != nil {
		return nil, err
	}
	if ok {
		f.Must = append(f.Must, cond)
	}
	if p.Party != "" {
		f.Must = append(f.Must, qdrant.MatchValue("askingMember.party", p.Party))
	}
	if p.AskingMemberID != nil {
		f.Must = append(f.Must, qdrant.MatchValue("askingMember.id", *p.AskingMemberID))
	}
	if p.AnsweringBodyName != "" {
		f.Must = append(f.Must, qdrant.MatchText("answeringBodyName", p.AnsweringBodyName))
	}
	return f, nil
}

// SearchParliamentaryQuestions searches PQ chunks and reassembles each
// matching question from all of its chunks. With a query, relevance picks
// the question ids; without one, the newest questions matching the
// filters are returned. Results come back most recently ingested first.
func (h *Handler) SearchParliamentaryQuestions(ctx context.Context, p PQParams) ([]Question, error) {
	if p.MaxResults <= 0 {
		p.MaxResults = 25
	}
	filter, err := p.filter()
	if err != nil {
		return nil, err
	}

	// Stage one: find the ids of questions with any relevant chunk
	var points []qdrant.ScoredPoint
	if p.Query != "" {
		dense, sparse, err := h.embedQuery(ctx, p.Query)
		if err != nil {
			return nil, err
		}
		points, err = h.vectors.QueryHybrid(ctx, qdrant.PQCollection, qdrant.HybridQuery{
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
		points, err = h.vectors.Scroll(ctx, qdrant.PQCollection, filter, p.MaxResults,
			&qdrant.OrderBy{Key: "id", Direction: "desc"})
		if err != nil {
			return nil, err
		}
	}

	var ids []any
	seen := make(map[int]bool)
	for _, pt := range points {
		id := num(pt.Payload, "id")
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return []Question{}, nil
	}

	// Stage two: pull every chunk of the selected questions and stitch
	// question and answer text back together
	groups, err := h.vectors.QueryGroupsByFilter(ctx, qdrant.PQCollection,
		&qdrant.Filter{Must: []qdrant.Condition{qdrant.MatchAny("id", ids)}},
		"id", 100, p.MaxResults)
	if err != nil {
		return nil, err
	}

	results := make([]Question, 0, len(groups))
	for _, g := range groups {
		results = append(results, assembleQuestion(g.Hits))
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].CreatedAt > results[j].CreatedAt })
	return results, nil
}

// assembleQuestion rebuilds one question from its chunks. Chunk ids embed
// the chunk index, so sorting by chunk_id restores text order within each
// chunk type; the payload with the newest created_at wins for metadata.
func assembleQuestion(hits []qdrant.ScoredPoint) Question {
	type piece struct {
		id   string
		text string
	}
	var questions, answers []piece
	var latest map[string]any
	for _, hit := range hits {
		p := hit.Payload
		pc := piece{id: str(p, "chunk_id"), text: str(p, "text")}
		switch str(p, "chunk_type") {
		case records.ChunkTypeQuestion:
			questions = append(questions, pc)
		case records.ChunkTypeAnswer:
			answers = append(answers, pc)
		}
		if latest == nil || str(p, "created_at") > str(latest, "created_at") {
			latest = p
		}
	}

	join := func(pieces []piece) string {
		sort.Slice(pieces, func(i, j int) bool { return pieces[i].id < pieces[j].id })
		out := ""
		for i, pc := range pieces {
			if i > 0 {
				out += "\n"
			}
			out += pc.text
		}
		return out
	}

	q := Question{
		QuestionText: join(questions),
		AnswerText:   join(answers),
	}
	if latest != nil {
		q.AskingMember = latest["askingMember"]
		q.AnsweringMember = latest["answeringMember"]
		q.DateTabled = dateOnly(str(latest, "dateTabled"))
		q.DateAnswered = dateOnly(str(latest, "dateAnswered"))
		q.AnsweringBodyName = str(latest, "answeringBodyName")
		q.CreatedAt = str(latest, "created_at")
		q.QuestionURL = str(latest, "question_url")
		if q.QuestionURL == "" {
			q.QuestionURL = fmt.Sprintf(
				"https://questions-statements.parliament.uk/written-questions/detail/%s/%s",
				q.DateTabled, str(latest, "uin"))
		}
	}
	return q
}

// dateOnly trims an RFC3339 timestamp to its date part
func dateOnly(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}
