// Package harvest enumerates what exists upstream for a date range and
// enqueues it. Harvesting only touches listing endpoints; hydration and
// embedding happen later in the processor, so a harvest run is cheap to
// repeat and idempotent against the queue.
package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"westminster/internal/adapters/parliament"
	perr "westminster/internal/platform/errors"
	"westminster/internal/platform/logger"
	"westminster/internal/services/queue"
)

// Source selects which record families a harvest run enqueues
type Source string

// Harvestable sources
const (
	SourceAll     Source = "all"
	SourceHansard Source = "hansard"
	SourcePQs     Source = "pqs"
)

// maxStreams caps concurrent per-day harvest streams
const maxStreams = 6

// Harvester walks a date range and fills the queue
type Harvester struct {
	api   *parliament.Client
	store *queue.Store
	log   logger.Logger
}

// New builds a harvester over the given API client and queue
func New(api *parliament.Client, store *queue.Store) *Harvester {
	return &Harvester{
		api:   api,
		store: store,
		log:   *logger.Named("harvest"),
	}
}

// Result counts what one run did
type Result struct {
	Added   int
	Skipped int // already queued
	Errors  int // failed (date, stream) pairs
}

// Run harvests every day in [start, end] inclusive. Stream failures are
// isolated per (date, stream): the run continues and reports the count.
func (h *Harvester) Run(ctx context.Context, start, end time.Time, source Source) (Result, error) {
	if end.Before(start) {
		return Result{}, perr.InvalidArgf("end date %s before start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	var total Result
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		r := h.harvestDay(ctx, day.Format("2006-01-02"), source)
		total.Added += r.Added
		total.Skipped += r.Skipped
		total.Errors += r.Errors
	}
	h.log.Info().
		Int("added", total.Added).
		Int("skipped", total.Skipped).
		Int("errors", total.Errors).
		Msg("harvest finished")
	return total, nil
}

// stream is one independent unit of harvest work for a single day
type stream func(ctx context.Context, date string) (added, skipped int, err error)

func (h *Harvester) harvestDay(ctx context.Context, date string, source Source) Result {
	var streams []struct {
		name string
		run  stream
	}
	if source == SourceAll || source == SourceHansard {
		for _, typ := range parliament.ContributionTypes {
			typ := typ
			streams = append(streams, struct {
				name string
				run  stream
			}{
				name: "hansard/" + string(typ),
				run: func(ctx context.Context, date string) (int, int, error) {
					return h.harvestContributions(ctx, typ, date)
				},
			})
		}
	}
	if source == SourceAll || source == SourcePQs {
		for _, field := range []parliament.PQDateField{parliament.Tabled, parliament.Answered} {
			field := field
			streams = append(streams, struct {
				name string
				run  stream
			}{
				name: "pq/" + string(field),
				run: func(ctx context.Context, date string) (int, int, error) {
					return h.harvestQuestions(ctx, field, date)
				},
			})
		}
	}

	var (
		mu  sync.Mutex
		res Result
		wg  sync.WaitGroup
		sem = make(chan struct{}, maxStreams)
	)
	for _, s := range streams {
		s := s
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			added, skipped, err := s.run(ctx, date)
			mu.Lock()
			defer mu.Unlock()
			res.Added += added
			res.Skipped += skipped
			if err != nil {
				res.Errors++
				h.log.Error().Err(err).Str("date", date).Str("stream", s.name).Msg("harvest stream failed")
			}
		}()
	}
	wg.Wait()
	return res
}

// hansardMetadata is what the processor needs to hydrate a contribution
// without refetching the search endpoint
type hansardMetadata struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	ItemData json.RawMessage `json:"item_data"`
}

// contributionKey is the minimal decode used to derive a stable queue id
type contributionKey struct {
	ContributionExtID string `json:"ContributionExtId"`
	ID                string `json:"Id"`
}

func (h *Harvester) harvestContributions(ctx context.Context, typ parliament.ContributionType, date string) (added, skipped int, err error) {
	for skip := 0; ; skip += parliament.PageSize {
		page, err := h.api.SearchContributions(ctx, typ, date, parliament.PageSize, skip)
		if err != nil {
			return added, skipped, err
		}
		if len(page.Results) == 0 {
			return added, skipped, nil
		}

		for _, raw := range page.Results {
			var key contributionKey
			if err := json.Unmarshal(raw, &key); err != nil {
				h.log.Warn().Err(err).Str("date", date).Msg("skipping undecodable contribution")
				continue
			}
			ext := key.ContributionExtID
			if ext == "" {
				ext = key.ID
			}
			if ext == "" {
				h.log.Warn().Str("date", date).Msg("skipping contribution without an id")
				continue
			}

			id := "hansard_" + ext
			meta, err := json.Marshal(hansardMetadata{ID: ext, Type: string(typ), ItemData: raw})
			if err != nil {
				return added, skipped, perr.Wrapf(err, perr.ErrorCodeUnknown, "encode metadata for %q failed", id)
			}
			fresh, err := h.store.AddItem(ctx, id, queue.SourceHansard, date, string(meta))
			if err != nil {
				return added, skipped, err
			}
			if fresh {
				added++
			} else {
				skipped++
			}
		}

		if skip+parliament.PageSize >= page.TotalResultCount {
			return added, skipped, nil
		}
	}
}

// pqMetadata carries the numeric question id for hydration
type pqMetadata struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
}

func (h *Harvester) harvestQuestions(ctx context.Context, field parliament.PQDateField, date string) (added, skipped int, err error) {
	for skip := 0; ; skip += parliament.PageSize {
		page, err := h.api.ListQuestions(ctx, field, date, parliament.PageSize, skip)
		if err != nil {
			return added, skipped, err
		}
		if len(page.Results) == 0 {
			return added, skipped, nil
		}

		for _, item := range page.Results {
			var key struct {
				ID int `json:"id"`
			}
			if err := json.Unmarshal(item.Value, &key); err != nil || key.ID == 0 {
				h.log.Warn().Err(err).Str("date", date).Msg("skipping question without an id")
				continue
			}

			id := fmt.Sprintf("pq_%d", key.ID)
			meta, err := json.Marshal(pqMetadata{ID: key.ID, Type: string(field)})
			if err != nil {
				return added, skipped, perr.Wrapf(err, perr.ErrorCodeUnknown, "encode metadata for %q failed", id)
			}
			fresh, err := h.store.AddItem(ctx, id, queue.SourcePQ, date, string(meta))
			if err != nil {
				return added, skipped, err
			}
			if fresh {
				added++
			} else {
				skipped++
			}
		}

		if skip+parliament.PageSize >= page.TotalResults {
			return added, skipped, nil
		}
	}
}
