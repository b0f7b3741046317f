package records

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	perr "westminster/internal/platform/errors"
)

// Member is a parliamentary member as embedded in PQ records
type Member struct {
	ID                int     `json:"id"`
	ListAs            *string `json:"listAs,omitempty"`
	Name              *string `json:"name,omitempty"`
	Party             *string `json:"party,omitempty"`
	PartyColour       *string `json:"partyColour,omitempty"`
	PartyAbbreviation *string `json:"partyAbbreviation,omitempty"`
	MemberFrom        *string `json:"memberFrom,omitempty"`
	ThumbnailURL      *string `json:"thumbnailUrl,omitempty"`
}

// Attachment is a document attached to a question's answer
type Attachment struct {
	URL           *string `json:"url,omitempty"`
	Title         *string `json:"title,omitempty"`
	FileType      *string `json:"fileType,omitempty"`
	FileSizeBytes *int    `json:"fileSizeBytes,omitempty"`
}

// GroupedQuestionDate links a grouped question UIN with its tabling date
type GroupedQuestionDate struct {
	QuestionUin *string `json:"questionUin,omitempty"`
	DateTabled  APITime `json:"dateTabled"`
}

// ParliamentaryQuestion is a written question tabled by a member and its
// official answer
type ParliamentaryQuestion struct {
	ID                   int                   `json:"id" validate:"required"`
	AskingMemberID       int                   `json:"askingMemberId" validate:"required"`
	AskingMember         *Member               `json:"askingMember,omitempty"`
	House                string                `json:"house" validate:"required"`
	MemberHasInterest    bool                  `json:"memberHasInterest"`
	DateTabled           APITime               `json:"dateTabled"`
	DateForAnswer        *APITime              `json:"dateForAnswer,omitempty"`
	Uin                  *string               `json:"uin,omitempty"`
	QuestionText         *string               `json:"questionText,omitempty"`
	AnsweringBodyID      int                   `json:"answeringBodyId"`
	AnsweringBodyName    *string               `json:"answeringBodyName,omitempty"`
	IsWithdrawn          bool                  `json:"isWithdrawn"`
	IsNamedDay           bool                  `json:"isNamedDay"`
	GroupedQuestions     []string              `json:"groupedQuestions"`
	AnswerIsHolding      *bool                 `json:"answerIsHolding,omitempty"`
	AnswerIsCorrection   *bool                 `json:"answerIsCorrection,omitempty"`
	AnsweringMemberID    *int                  `json:"answeringMemberId,omitempty"`
	AnsweringMember      *Member               `json:"answeringMember,omitempty"`
	CorrectingMemberID   *int                  `json:"correctingMemberId,omitempty"`
	CorrectingMember     *Member               `json:"correctingMember,omitempty"`
	DateAnswered         *APITime              `json:"dateAnswered,omitempty"`
	AnswerText           *string               `json:"answerText,omitempty"`
	OriginalAnswerText   *string               `json:"originalAnswerText,omitempty"`
	ComparableAnswerText *string               `json:"comparableAnswerText,omitempty"`
	DateAnswerCorrected  *APITime              `json:"dateAnswerCorrected,omitempty"`
	DateHoldingAnswer    *APITime              `json:"dateHoldingAnswer,omitempty"`
	AttachmentCount      int                   `json:"attachmentCount"`
	Heading              *string               `json:"heading,omitempty"`
	Attachments          []Attachment          `json:"attachments"`
	GroupedQuestionsDate []GroupedQuestionDate `json:"groupedQuestionsDates"`
}

var pqValidate = validator.New()

// DecodeParliamentaryQuestion parses a PQ leniently: the questions API adds
// fields often and none of them affect ingestion.
func DecodeParliamentaryQuestion(raw []byte) (*ParliamentaryQuestion, error) {
	var q ParliamentaryQuestion
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "pq decode failed")
	}
	if err := pqValidate.Struct(&q); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "pq missing required fields")
	}
	return &q, nil
}

// DocumentURI implements Document
func (q *ParliamentaryQuestion) DocumentURI() string { return fmt.Sprintf("pq_%d", q.ID) }

// QuestionURL is the public written-questions link, built from the tabling
// date and UIN
func (q *ParliamentaryQuestion) QuestionURL() string {
	uin := ""
	if q.Uin != nil {
		uin = *q.Uin
	}
	return fmt.Sprintf("https://questions-statements.parliament.uk/written-questions/detail/%s/%s",
		q.DateTabled.DateString(), uin)
}

// EmbeddableText joins question and answer with an explicit boundary
func (q *ParliamentaryQuestion) EmbeddableText() string {
	question, answer := "", ""
	if q.QuestionText != nil {
		question = *q.QuestionText
	}
	if q.AnswerText != nil {
		answer = *q.AnswerText
	}
	return fmt.Sprintf("QUESTION: %s\n ANSWER: %s", question, answer)
}

// Chunks implements Document. Question chunks take indexes [0, Q), answer
// chunks [Q, Q+A); the payload drops questionText and answerText.
func (q *ParliamentaryQuestion) Chunks(ch Chunker) ([]Chunk, error) {
	var question, answer string
	if q.QuestionText != nil {
		question = *q.QuestionText
	}
	if q.AnswerText != nil {
		answer = *q.AnswerText
	}
	questionChunks := ch.Chunk(question)
	answerChunks := ch.Chunk(answer)
	if len(questionChunks)+len(answerChunks) == 0 {
		return nil, nil
	}

	base, err := payloadOf(q, "questionText", "answerText")
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "pq payload failed")
	}
	uri := q.DocumentURI()
	base["document_uri"] = uri
	base["question_url"] = q.QuestionURL()
	createdAt := nowRFC3339()

	emit := func(out []Chunk, texts []string, chunkType string, offset int) []Chunk {
		for i, text := range texts {
			id := fmt.Sprintf("%s_chunk_%d", uri, offset+i)
			p := clonePayload(base)
			p["text"] = text
			p["chunk_type"] = chunkType
			p["chunk_id"] = id
			p["created_at"] = createdAt
			out = append(out, Chunk{ID: id, Type: chunkType, Text: text, Payload: p})
		}
		return out
	}

	chunks := make([]Chunk, 0, len(questionChunks)+len(answerChunks))
	chunks = emit(chunks, questionChunks, ChunkTypeQuestion, 0)
	chunks = emit(chunks, answerChunks, ChunkTypeAnswer, len(questionChunks))
	return chunks, nil
}

// PQResultItem wraps one question in the list/detail API envelope
type PQResultItem struct {
	Value json.RawMessage `json:"value"`
}

// PQPage is one page of the written questions list API
type PQPage struct {
	Results      []PQResultItem `json:"results"`
	TotalResults int            `json:"totalResults"`
}
