package query

import (
	"context"

	"westminster/internal/adapters/qdrant"
	perr "westminster/internal/platform/errors"
)

// MinimumDebateHits is how many distinct contributions a debate needs
// before it counts as substantial. Single-hit debates are mostly
// procedural noise.
const MinimumDebateHits = 2

// debateScrollLimit is the page size for the accumulation scroll
const debateScrollLimit = 1000

// Debate summarizes one substantial debate found by title search
type Debate struct {
	DebateID      string `json:"debate_id"`
	Title         string `json:"title"`
	Date          string `json:"date"`
	House         string `json:"house"`
	DebateParents any    `json:"debate_parents"`
	DebateURL     string `json:"debate_url"`
}

// debateCollection accumulates contributions per debate so substantial
// debates can be separated from single-hit noise
type debateCollection struct {
	order         []string
	contributions map[string]map[string]bool // debate id -> contribution ids
	info          map[string]Debate
}

func newDebateCollection() *debateCollection {
	return &debateCollection{
		contributions: make(map[string]map[string]bool),
		info:          make(map[string]Debate),
	}
}

// add records one contribution payload, reporting whether it was new
func (dc *debateCollection) add(payload map[string]any) bool {
	debateID := str(payload, "DebateSectionExtId")
	contributionID := str(payload, "ContributionExtId")

	seen, ok := dc.contributions[debateID]
	if !ok {
		seen = make(map[string]bool)
		dc.contributions[debateID] = seen
		dc.order = append(dc.order, debateID)
		dc.info[debateID] = Debate{
			DebateID:      debateID,
			Title:         str(payload, "DebateSection"),
			Date:          str(payload, "SittingDate"),
			House:         str(payload, "House"),
			DebateParents: payload["debate_parents"],
			DebateURL:     str(payload, "debate_url"),
		}
	}
	if seen[contributionID] {
		return false
	}
	seen[contributionID] = true
	return true
}

// substantialIDs returns debates with enough distinct contributions, in
// first-seen order
func (dc *debateCollection) substantialIDs() []string {
	var ids []string
	for _, id := range dc.order {
		if len(dc.contributions[id]) >= MinimumDebateHits {
			ids = append(ids, id)
		}
	}
	return ids
}

func (dc *debateCollection) substantial() []Debate {
	ids := dc.substantialIDs()
	out := make([]Debate, 0, len(ids))
	for _, id := range ids {
		out = append(out, dc.info[id])
	}
	return out
}

// DebateTitleParams filters a debate title search. At least one of Query,
// DateFrom or DateTo must be set.
type DebateTitleParams struct {
	Query      string
	DateFrom   string // YYYY-MM-DD
	DateTo     string // YYYY-MM-DD
	House      string
	MaxResults int
}

// SearchDebateTitles finds substantial debates whose titles match the
// query, scanning newest first. Each pass excludes the debates already
// found, so repeated scrolls surface progressively older matches until
// maxResults debates are collected or the data runs out.
func (h *Handler) SearchDebateTitles(ctx context.Context, p DebateTitleParams) ([]Debate, error) {
	if p.Query == "" && p.DateFrom == "" && p.DateTo == "" {
		return nil, perr.InvalidArgf("at least one of query, from date or to date must be provided")
	}
	if p.MaxResults <= 0 {
		p.MaxResults = 50
	}

	filter := &qdrant.Filter{}
	cond, ok, err := dateRange("SittingDate", p.DateFrom, p.DateTo)
	if err != nil {
		return nil, err
	}
	if ok {
		filter.Must = append(filter.Must, cond)
	}
	if p.House != "" {
		filter.Must = append(filter.Must, qdrant.MatchValue("House", p.House))
	}
	if p.Query != "" {
		filter.Must = append(filter.Must, qdrant.MatchText("debate_parents[].Title", p.Query))
	}

	debates := newDebateCollection()
	for {
		ids := debates.substantialIDs()
		if len(ids) >= p.MaxResults {
			break
		}
		if len(ids) > 0 {
			exclude := make([]any, len(ids))
			for i, id := range ids {
				exclude[i] = id
			}
			filter.MustNot = []qdrant.Condition{qdrant.MatchAny("DebateSectionExtId", exclude)}
		}

		points, err := h.vectors.Scroll(ctx, qdrant.HansardCollection, filter, debateScrollLimit,
			&qdrant.OrderBy{Key: "SittingDate", Direction: "desc"})
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			break
		}

		newData := false
		for _, pt := range points {
			if debates.add(pt.Payload) {
				newData = true
			}
		}
		if !newData {
			break
		}
	}

	out := debates.substantial()
	if len(out) > p.MaxResults {
		out = out[:p.MaxResults]
	}
	return out, nil
}
