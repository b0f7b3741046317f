// Package process drains the queue: claim a batch, hydrate each item into
// a full record, chunk, embed and upsert into the vector store, then mark
// the batch's outcome. Hydration failures are per item; embedding and
// upsert failures take down the whole claimed batch, which stays safe to
// retry because point ids are deterministic.
package process

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"westminster/internal/adapters/parliament"
	"westminster/internal/adapters/qdrant"
	"westminster/internal/core/records"
	"westminster/internal/core/sparse"
	perr "westminster/internal/platform/errors"
	"westminster/internal/platform/logger"
	"westminster/internal/services/queue"
)

// DefaultBatchSize is how many queue items one cycle claims
const DefaultBatchSize = 50

// pollInterval is how long a looping processor sleeps on an empty queue
const pollInterval = 30 * time.Second

var (
	itemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "westminster_items_processed_total",
		Help: "Queue items processed, by source type and outcome.",
	}, []string{"source_type", "outcome"})
	chunksUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "westminster_chunks_upserted_total",
		Help: "Chunks written to the vector store.",
	})
)

// API is the slice of the Parliament client hydration needs
type API interface {
	SectionsForDay(ctx context.Context, date, house string) ([]parliament.OverviewSection, error)
	GetQuestion(ctx context.Context, id int) (json.RawMessage, error)
}

// Embedder computes dense vectors for a batch of texts, order preserved
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// SparseEncoder computes the sparse vector for one text
type SparseEncoder interface {
	Encode(text string) sparse.Vector
}

// VectorWriter is the slice of the Qdrant client the processor writes to
type VectorWriter interface {
	UpsertBatched(ctx context.Context, collection string, points []qdrant.Point) error
}

// toSparse converts the encoder output to the wire shape
func toSparse(v sparse.Vector) qdrant.SparseVector {
	return qdrant.SparseVector{Indices: v.Indices, Values: v.Values}
}

// Options tunes one processing run
type Options struct {
	BatchSize int
	Loop      bool // keep polling after the queue drains
	Limit     int  // stop after this many items; 0 is unlimited
}

// Processor turns queue items into vector store points
type Processor struct {
	store   *queue.Store
	api     API
	embed   Embedder
	sparse  SparseEncoder
	vectors VectorWriter
	chunker records.Chunker
	log     logger.Logger
	sleep   func(context.Context, time.Duration) error
}

// New wires a processor
func New(store *queue.Store, api API, embed Embedder, sparse SparseEncoder, vectors VectorWriter, chunker records.Chunker) *Processor {
	return &Processor{
		store:   store,
		api:     api,
		embed:   embed,
		sparse:  sparse,
		vectors: vectors,
		chunker: chunker,
		log:     *logger.Named("process"),
		sleep:   sleepCtx,
	}
}

// Result counts what one run did
type Result struct {
	Completed int
	Failed    int
	Chunks    int
}

// Run drains the queue per Options. Returns early on context cancellation
// with whatever was already durably marked.
func (p *Processor) Run(ctx context.Context, opts Options) (Result, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	var total Result
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		size := opts.BatchSize
		if opts.Limit > 0 {
			remaining := opts.Limit - (total.Completed + total.Failed)
			if remaining <= 0 {
				return total, nil
			}
			if remaining < size {
				size = remaining
			}
		}

		items, err := p.store.GetPendingBatch(ctx, size)
		if err != nil {
			return total, err
		}
		if len(items) == 0 {
			if !opts.Loop {
				return total, nil
			}
			if err := p.sleep(ctx, pollInterval); err != nil {
				return total, err
			}
			continue
		}

		r, err := p.processBatch(ctx, items)
		total.Completed += r.Completed
		total.Failed += r.Failed
		total.Chunks += r.Chunks
		if err != nil {
			return total, err
		}
	}
}

// docItem pairs a claimed queue item with its hydrated record
type docItem struct {
	item queue.Item
	doc  records.Document
}

func (p *Processor) processBatch(ctx context.Context, items []queue.Item) (Result, error) {
	var res Result
	for _, it := range items {
		if err := p.store.MarkProcessing(ctx, it.ID); err != nil {
			return res, err
		}
	}

	// Hydrate per item: a bad record fails alone, not the batch
	parents := newParentResolver(p.api)
	live := make([]docItem, 0, len(items))
	for _, it := range items {
		doc, err := p.hydrate(ctx, it, parents)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			p.log.Warn().Err(err).Str("item", it.ID).Msg("hydration failed")
			if me := p.store.MarkFailed(ctx, it.ID, err.Error()); me != nil {
				return res, me
			}
			itemsProcessed.WithLabelValues(it.SourceType, "failed").Inc()
			res.Failed++
			continue
		}
		live = append(live, docItem{item: it, doc: doc})
	}
	if len(live) == 0 {
		return res, nil
	}

	// Chunk everything, tracking which chunks belong to which collection.
	// Only items that chunked cleanly survive into the embed/upsert stage.
	type pending struct {
		collection string
		chunk      records.Chunk
	}
	var all []pending
	survivors := make([]docItem, 0, len(live))
	for _, di := range live {
		chunks, err := di.doc.Chunks(p.chunker)
		if err != nil {
			p.log.Warn().Err(err).Str("item", di.item.ID).Msg("chunking failed")
			if me := p.store.MarkFailed(ctx, di.item.ID, err.Error()); me != nil {
				return res, me
			}
			itemsProcessed.WithLabelValues(di.item.SourceType, "failed").Inc()
			res.Failed++
			continue
		}
		survivors = append(survivors, di)
		collection := qdrant.HansardCollection
		if di.item.SourceType == queue.SourcePQ {
			collection = qdrant.PQCollection
		}
		for _, c := range chunks {
			all = append(all, pending{collection: collection, chunk: c})
		}
	}

	// Embed and upsert; any failure here fails every surviving item
	failAll := func(cause error) (Result, error) {
		for _, di := range survivors {
			if me := p.store.MarkFailed(ctx, di.item.ID, cause.Error()); me != nil {
				return res, me
			}
			itemsProcessed.WithLabelValues(di.item.SourceType, "failed").Inc()
			res.Failed++
		}
		p.log.Error().Err(cause).Int("items", len(survivors)).Msg("batch failed")
		return res, nil
	}

	if len(all) > 0 {
		texts := make([]string, len(all))
		for i, pc := range all {
			texts[i] = pc.chunk.Text
		}
		dense, err := p.embed.EmbedBatch(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			return failAll(err)
		}
		if len(dense) != len(all) {
			return failAll(perr.Internalf("embedding count mismatch: want %d got %d", len(all), len(dense)))
		}

		byCollection := make(map[string][]qdrant.Point)
		for i, pc := range all {
			point := qdrant.NewPoint(records.PointID(pc.chunk.ID), dense[i], toSparse(p.sparse.Encode(pc.chunk.Text)), pc.chunk.Payload)
			byCollection[pc.collection] = append(byCollection[pc.collection], point)
		}
		for collection, points := range byCollection {
			if err := p.vectors.UpsertBatched(ctx, collection, points); err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				return failAll(err)
			}
		}
		chunksUpserted.Add(float64(len(all)))
		res.Chunks += len(all)
	}

	for _, di := range survivors {
		if err := p.store.MarkCompleted(ctx, di.item.ID); err != nil {
			return res, err
		}
		itemsProcessed.WithLabelValues(di.item.SourceType, "completed").Inc()
		res.Completed++
	}
	p.log.Info().Int("completed", res.Completed).Int("failed", res.Failed).Int("chunks", res.Chunks).Msg("batch done")
	return res, nil
}

// hydrate turns a queue item back into a full record
func (p *Processor) hydrate(ctx context.Context, it queue.Item, parents *parentResolver) (records.Document, error) {
	switch it.SourceType {
	case queue.SourceHansard:
		var meta struct {
			ItemData json.RawMessage `json:"item_data"`
		}
		if err := json.Unmarshal([]byte(it.Metadata), &meta); err != nil {
			return nil, perr.Validationf("item %s has undecodable metadata: %v", it.ID, err)
		}
		c, err := records.DecodeContribution(meta.ItemData)
		if err != nil {
			return nil, err
		}
		c.DebateParents, err = parents.resolve(ctx, c)
		if err != nil {
			return nil, err
		}
		return c, nil

	case queue.SourcePQ:
		var meta struct {
			ID int `json:"id"`
		}
		if err := json.Unmarshal([]byte(it.Metadata), &meta); err != nil || meta.ID == 0 {
			return nil, perr.Validationf("item %s has no question id in metadata", it.ID)
		}
		raw, err := p.api.GetQuestion(ctx, meta.ID)
		if err != nil {
			return nil, err
		}
		return records.DecodeParliamentaryQuestion(raw)

	default:
		return nil, perr.Validationf("item %s has unknown source type %q", it.ID, it.SourceType)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parentResolver caches the per (date, house) section hierarchy while a
// batch is in flight; the disk cache behind the API client persists it
// across batches
type parentResolver struct {
	api      API
	sections map[string]map[string]parliament.OverviewSection // key: date|house, then ExternalId
	byID     map[string]map[int]parliament.OverviewSection
}

func newParentResolver(api API) *parentResolver {
	return &parentResolver{
		api:      api,
		sections: make(map[string]map[string]parliament.OverviewSection),
		byID:     make(map[string]map[int]parliament.OverviewSection),
	}
}

// resolve walks the debate hierarchy from this contribution's section to
// the root, returned root first. A contribution without a sitting date or
// house cannot be resolved and gets no parents.
func (r *parentResolver) resolve(ctx context.Context, c *records.Contribution) ([]records.DebateParent, error) {
	if c.SittingDate == nil || c.House == nil {
		return nil, nil
	}
	date := c.SittingDate.DateString()
	key := fmt.Sprintf("%s|%s", date, *c.House)

	if _, ok := r.sections[key]; !ok {
		sections, err := r.api.SectionsForDay(ctx, date, *c.House)
		if err != nil {
			return nil, err
		}
		byExt := make(map[string]parliament.OverviewSection, len(sections))
		byID := make(map[int]parliament.OverviewSection, len(sections))
		for _, s := range sections {
			byExt[s.ExternalID] = s
			byID[s.ID] = s
		}
		r.sections[key] = byExt
		r.byID[key] = byID
	}

	section, ok := r.sections[key][c.DebateSectionExtID]
	if !ok {
		return nil, nil
	}

	var chain []records.DebateParent
	for i := 0; ; i++ {
		if i > len(r.byID[key]) {
			// broken ParentId cycle upstream
			return nil, perr.Validationf("debate section hierarchy for %s loops", c.DebateSectionExtID)
		}
		chain = append(chain, records.DebateParent{
			ID:         section.ID,
			Title:      section.Title,
			ParentID:   section.ParentID,
			ExternalID: section.ExternalID,
		})
		if section.ParentID == nil {
			break
		}
		parent, ok := r.byID[key][*section.ParentID]
		if !ok {
			break
		}
		section = parent
	}

	// root first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
