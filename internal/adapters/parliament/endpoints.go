package parliament

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"westminster/internal/core/records"
	perr "westminster/internal/platform/errors"
)

// ContributionType selects one of the four Hansard contribution streams
type ContributionType string

// The four contribution streams harvested per sitting day
const (
	Spoken      ContributionType = "Spoken"
	Written     ContributionType = "Written"
	Corrections ContributionType = "Corrections"
	Petitions   ContributionType = "Petitions"
)

// ContributionTypes lists all streams in harvest order
var ContributionTypes = []ContributionType{Spoken, Written, Corrections, Petitions}

// PQDateField selects which PQ date window a query filters on
type PQDateField string

// PQ harvest windows: tabled on the day, or answered on the day
const (
	Tabled   PQDateField = "tabled"
	Answered PQDateField = "answered"
)

// PageSize is the take parameter used for all paged endpoints
const PageSize = 100

// SearchContributions fetches one page of contributions of the given type
// for a single sitting date. Results stay raw so the processor can decode
// strictly later.
func (c *Client) SearchContributions(ctx context.Context, typ ContributionType, date string, take, skip int) (*records.ContributionsPage, error) {
	u := fmt.Sprintf("%s/search/contributions/%s.json", c.opts.HansardBaseURL, typ)
	q := url.Values{}
	q.Set("orderBy", "SittingDateAsc")
	q.Set("startDate", date)
	q.Set("endDate", date)
	q.Set("take", strconv.Itoa(take))
	q.Set("skip", strconv.Itoa(skip))

	var page records.ContributionsPage
	if err := c.getJSON(ctx, u, q, false, &page); err != nil {
		return nil, perr.WithOp(err, "SearchContributions")
	}
	return &page, nil
}

// ContributionsTotal returns the total result count for (type, date)
// without paging through results
func (c *Client) ContributionsTotal(ctx context.Context, typ ContributionType, date string) (int, error) {
	page, err := c.SearchContributions(ctx, typ, date, 1, 0)
	if err != nil {
		return 0, err
	}
	return page.TotalResultCount, nil
}

// OverviewSection is one node of a sitting day's debate hierarchy
type OverviewSection struct {
	ID         int    `json:"Id"`
	Title      string `json:"Title"`
	ParentID   *int   `json:"ParentId"`
	ExternalID string `json:"ExternalId"`
}

// SectionsForDay fetches the day's debate sections for a house. The
// response is idempotent per (date, house) and served from the disk cache
// when one is configured.
func (c *Client) SectionsForDay(ctx context.Context, date, house string) ([]OverviewSection, error) {
	u := c.opts.HansardBaseURL + "/overview/sectionsforday.json"
	q := url.Values{}
	q.Set("date", date)
	q.Set("house", house)

	var sections []OverviewSection
	if err := c.getJSON(ctx, u, q, true, &sections); err != nil {
		return nil, perr.WithOp(err, "SectionsForDay")
	}
	return sections, nil
}

// ListQuestions fetches one page of written questions whose tabled or
// answered date falls on the given day
func (c *Client) ListQuestions(ctx context.Context, field PQDateField, date string, take, skip int) (*records.PQPage, error) {
	u := c.opts.QuestionsBaseURL + "/writtenquestions/questions"
	q := url.Values{}
	q.Set(string(field)+"WhenFrom", date)
	q.Set(string(field)+"WhenTo", date)
	q.Set("take", strconv.Itoa(take))
	q.Set("skip", strconv.Itoa(skip))

	var page records.PQPage
	if err := c.getJSON(ctx, u, q, false, &page); err != nil {
		return nil, perr.WithOp(err, "ListQuestions")
	}
	return &page, nil
}

// QuestionsTotal returns totalResults for (field, date) without paging
func (c *Client) QuestionsTotal(ctx context.Context, field PQDateField, date string) (int, error) {
	page, err := c.ListQuestions(ctx, field, date, 1, 0)
	if err != nil {
		return 0, err
	}
	return page.TotalResults, nil
}

// GetQuestion fetches the full record for one question id with members
// expanded. The raw value is returned for strict decoding by the caller.
func (c *Client) GetQuestion(ctx context.Context, id int) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/writtenquestions/questions/%d", c.opts.QuestionsBaseURL, id)
	q := url.Values{}
	q.Set("expandMember", "true")

	var envelope struct {
		Value json.RawMessage `json:"value"`
	}
	if err := c.getJSON(ctx, u, q, false, &envelope); err != nil {
		return nil, perr.WithOp(err, "GetQuestion")
	}
	if len(envelope.Value) == 0 {
		return nil, perr.Validationf("question %d response has no value", id)
	}
	return envelope.Value, nil
}
