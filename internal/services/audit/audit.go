// Package audit verifies ingestion coverage for a date range. It compares
// the local queue against upstream totals per day and source type, so a
// run answers "did we actually get everything" without reprocessing.
package audit

import (
	"context"
	"time"

	"westminster/internal/adapters/parliament"
	perr "westminster/internal/platform/errors"
	"westminster/internal/platform/logger"
	"westminster/internal/services/queue"
)

// Verdicts for one (date, source type) pair
const (
	VerdictOK         = "OK"         // everything queued completed, or an empty day
	VerdictIncomplete = "INCOMPLETE" // pending, processing or failed items remain
	VerdictMissing    = "MISSING"    // upstream has records the queue never saw
)

// Source selects which record families a run audits
type Source string

// Auditable sources, mirroring the harvest selector
const (
	SourceAll     Source = "all"
	SourceHansard Source = "hansard"
	SourcePQs     Source = "pqs"
)

// Totals is the slice of the Parliament client the auditor reads
type Totals interface {
	ContributionsTotal(ctx context.Context, typ parliament.ContributionType, date string) (int, error)
	QuestionsTotal(ctx context.Context, field parliament.PQDateField, date string) (int, error)
}

// Finding is the verdict for one (date, source type) pair
type Finding struct {
	Date       string
	SourceType string
	Verdict    string
	Local      queue.Stats
	Upstream   int // only populated when the queue was empty for the pair
}

// Auditor checks queue coverage against upstream counts
type Auditor struct {
	store *queue.Store
	api   Totals
	log   logger.Logger
}

// New builds an auditor
func New(store *queue.Store, api Totals) *Auditor {
	return &Auditor{store: store, api: api, log: *logger.Named("audit")}
}

// Run audits every day in [start, end] inclusive for the selected source
// types, returning only the findings that need attention. A fully green
// range returns an empty slice.
func (a *Auditor) Run(ctx context.Context, start, end time.Time, source Source) ([]Finding, error) {
	if end.Before(start) {
		return nil, perr.InvalidArgf("end date %s before start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	var sourceTypes []string
	switch source {
	case SourceAll, "":
		sourceTypes = []string{queue.SourceHansard, queue.SourcePQ}
	case SourceHansard:
		sourceTypes = []string{queue.SourceHansard}
	case SourcePQs:
		sourceTypes = []string{queue.SourcePQ}
	default:
		return nil, perr.InvalidArgf("unknown audit source %q", source)
	}

	var findings []Finding
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		date := day.Format("2006-01-02")
		for _, sourceType := range sourceTypes {
			f, err := a.auditPair(ctx, date, sourceType)
			if err != nil {
				return findings, err
			}
			if f.Verdict != VerdictOK {
				findings = append(findings, f)
			}
			a.log.Debug().
				Str("date", date).
				Str("source_type", sourceType).
				Str("verdict", f.Verdict).
				Int("completed", f.Local.Completed).
				Msg("audited")
		}
	}
	return findings, nil
}

// auditPair decides the verdict for one (date, source type) pair. The
// upstream API is only consulted when the queue has nothing for the pair;
// an unfinished local queue is already a finding on its own.
func (a *Auditor) auditPair(ctx context.Context, date, sourceType string) (Finding, error) {
	f := Finding{Date: date, SourceType: sourceType}

	local, err := a.store.DailyStats(ctx, date, sourceType)
	if err != nil {
		return f, err
	}
	f.Local = local

	switch {
	case local.Pending+local.Processing+local.Failed > 0:
		f.Verdict = VerdictIncomplete
		return f, nil
	case local.Completed > 0:
		f.Verdict = VerdictOK
		return f, nil
	}

	// Nothing local at all: either an empty day or a harvest gap
	upstream, err := a.upstreamTotal(ctx, date, sourceType)
	if err != nil {
		return f, err
	}
	f.Upstream = upstream
	if upstream > 0 {
		f.Verdict = VerdictMissing
	} else {
		f.Verdict = VerdictOK
	}
	return f, nil
}

func (a *Auditor) upstreamTotal(ctx context.Context, date, sourceType string) (int, error) {
	switch sourceType {
	case queue.SourceHansard:
		total := 0
		for _, typ := range parliament.ContributionTypes {
			n, err := a.api.ContributionsTotal(ctx, typ, date)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	case queue.SourcePQ:
		tabled, err := a.api.QuestionsTotal(ctx, parliament.Tabled, date)
		if err != nil {
			return 0, err
		}
		answered, err := a.api.QuestionsTotal(ctx, parliament.Answered, date)
		if err != nil {
			return 0, err
		}
		return tabled + answered, nil
	default:
		return 0, perr.InvalidArgf("unknown source type %q", sourceType)
	}
}
