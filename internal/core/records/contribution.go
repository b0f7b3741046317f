package records

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"

	perr "westminster/internal/platform/errors"
)

// DebateParent is one ancestor in the debate hierarchy, root first
type DebateParent struct {
	ID         int    `json:"Id"`
	Title      string `json:"Title"`
	ParentID   *int   `json:"ParentId"`
	ExternalID string `json:"ExternalId"`
}

// Contribution is a single speech or utterance recorded in Hansard
type Contribution struct {
	MemberName           *string  `json:"MemberName"`
	MemberID             *int     `json:"MemberId"`
	AttributedTo         *string  `json:"AttributedTo"`
	ItemID               *int     `json:"ItemId"`
	ContributionExtID    *string  `json:"ContributionExtId"`
	ContributionText     *string  `json:"ContributionText"`
	ContributionTextFull *string  `json:"ContributionTextFull"`
	HRSTag               *string  `json:"HRSTag"`
	HansardSection       *string  `json:"HansardSection"`
	DebateSection        *string  `json:"DebateSection"`
	DebateSectionID      *int     `json:"DebateSectionId"`
	DebateSectionExtID   string   `json:"DebateSectionExtId" validate:"required"`
	SittingDate          *APITime `json:"SittingDate"`
	Section              *string  `json:"Section"`
	House                *string  `json:"House"`
	OrderInDebateSection *int     `json:"OrderInDebateSection"`
	DebateSectionOrder   *int     `json:"DebateSectionOrder"`
	Rank                 *int     `json:"Rank"`
	Timecode             *APITime `json:"Timecode"`

	// Resolved by the processor before chunking; ordered root to leaf
	DebateParents []DebateParent `json:"debate_parents,omitempty"`
}

var contributionValidate = validator.New()

// DecodeContribution parses a Contribution strictly: unknown fields surface
// upstream schema drift as a validation error rather than silent data loss.
func DecodeContribution(raw []byte) (*Contribution, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var c Contribution
	if err := dec.Decode(&c); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "contribution decode failed")
	}
	if err := contributionValidate.Struct(&c); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "contribution missing required fields")
	}
	return &c, nil
}

// DocumentURI implements Document. With an external id the URI is stable
// across re-harvests; without one it falls back to a content hash. The
// hash input joins with "_" and renders missing fields as "None" so
// fallback URIs line up with rows ingested before this codebase.
func (c *Contribution) DocumentURI() string {
	if c.ContributionExtID == nil {
		text := "None"
		if c.ContributionText != nil {
			text = *c.ContributionText
		}
		order := "None"
		if c.OrderInDebateSection != nil {
			order = strconv.Itoa(*c.OrderInDebateSection)
		}
		sum := sha256.Sum256(fmt.Appendf(nil, "%s_%s_%s", c.DebateSectionExtID, text, order))
		return fmt.Sprintf("debate_%s_contrib_%s", c.DebateSectionExtID, hex.EncodeToString(sum[:]))
	}
	return fmt.Sprintf("debate_%s_contrib_%s", c.DebateSectionExtID, *c.ContributionExtID)
}

// DebateURL is the public Hansard link for the parent debate section
func (c *Contribution) DebateURL() string {
	house := ""
	if c.House != nil {
		house = *c.House
	}
	date := ""
	if c.SittingDate != nil {
		date = c.SittingDate.DateString()
	}
	return fmt.Sprintf("https://hansard.parliament.uk/%s/%s/debates/%s/link", house, date, c.DebateSectionExtID)
}

// ContributionURL anchors the debate URL at this contribution; empty when
// there is no external id to anchor on
func (c *Contribution) ContributionURL() string {
	if c.ContributionExtID == nil {
		return ""
	}
	return fmt.Sprintf("%s#contribution-%s", c.DebateURL(), *c.ContributionExtID)
}

// EmbeddableText is the full contribution text
func (c *Contribution) EmbeddableText() string {
	if c.ContributionTextFull == nil {
		return ""
	}
	return *c.ContributionTextFull
}

// Chunks implements Document. The payload drops both text fields and adds
// the derived URLs alongside text, chunk_type, chunk_id and created_at.
func (c *Contribution) Chunks(ch Chunker) ([]Chunk, error) {
	pieces := ch.Chunk(c.EmbeddableText())
	if len(pieces) == 0 {
		return nil, nil
	}

	base, err := payloadOf(c, "ContributionText", "ContributionTextFull")
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "contribution payload failed")
	}
	uri := c.DocumentURI()
	base["document_uri"] = uri
	base["debate_url"] = c.DebateURL()
	base["contribution_url"] = c.ContributionURL()
	createdAt := nowRFC3339()

	chunks := make([]Chunk, 0, len(pieces))
	for k, text := range pieces {
		id := fmt.Sprintf("%s_chunk_%d", uri, k)
		p := clonePayload(base)
		p["text"] = text
		p["chunk_type"] = ChunkTypeContribution
		p["chunk_id"] = id
		p["created_at"] = createdAt
		chunks = append(chunks, Chunk{ID: id, Type: ChunkTypeContribution, Text: text, Payload: p})
	}
	return chunks, nil
}

// ContributionsPage is one page of the Hansard contributions search API
type ContributionsPage struct {
	Results          []json.RawMessage `json:"Results"`
	TotalResultCount int               `json:"TotalResultCount"`
}
