// westminster-loader ingests UK parliamentary records into Qdrant.
//
// Subcommands:
//
//	init-db       create the queue schema and vector store collections
//	harvest       enqueue everything upstream for a date range
//	process       drain the queue: hydrate, chunk, embed, upsert
//	audit         verify ingestion coverage for a date range
//	reset         return stuck PROCESSING items to PENDING
//	retry-failed  return FAILED items to PENDING
//	stats         print queue counts
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"westminster/internal/adapters/openai"
	"westminster/internal/adapters/parliament"
	"westminster/internal/adapters/qdrant"
	"westminster/internal/core/chunk"
	"westminster/internal/core/sparse"
	"westminster/internal/platform/config"
	"westminster/internal/platform/logger"
	"westminster/internal/platform/ratelimit"
	"westminster/internal/services/audit"
	"westminster/internal/services/harvest"
	"westminster/internal/services/process"
	"westminster/internal/services/queue"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: westminster-loader <init-db|harvest|process|audit|reset|retry-failed|stats> [flags]")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	l := logger.Get()
	root := config.New()
	loaderCfg := root.Prefix("LOADER_")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := queue.Open(loaderCfg.MayString("DB_PATH", "westminster_queue.db"))
	if err != nil {
		l.Fatal().Err(err).Msg("open queue db failed")
	}
	defer store.Close()

	switch os.Args[1] {
	case "init-db":
		runInitDB(ctx, root)
	case "harvest":
		runHarvest(ctx, root, store)
	case "process":
		runProcess(ctx, root, store)
	case "audit":
		runAudit(ctx, root, store)
	case "reset":
		n, err := store.ResetProcessing(ctx)
		if err != nil {
			l.Fatal().Err(err).Msg("reset failed")
		}
		l.Info().Int("reset", n).Msg("reset done")
	case "retry-failed":
		n, err := store.RetryFailed(ctx)
		if err != nil {
			l.Fatal().Err(err).Msg("retry-failed failed")
		}
		l.Info().Int("requeued", n).Msg("retry-failed done")
	case "stats":
		st, err := store.Stats(ctx)
		if err != nil {
			l.Fatal().Err(err).Msg("stats failed")
		}
		l.Info().
			Int("pending", st.Pending).
			Int("processing", st.Processing).
			Int("completed", st.Completed).
			Int("failed", st.Failed).
			Int("total", st.Total()).
			Msg("queue stats")
	default:
		usage()
	}
}

// parliamentClient wires the shared HTTP-side dependencies: one rate
// limit bucket for all Parliament API calls and the disk cache for
// idempotent endpoints
func parliamentClient(root config.Conf) *parliament.Client {
	cfg := root.Prefix("PARLIAMENT_")
	limiter := ratelimit.NewBucket(cfg.MayFloat("RATE_LIMIT", 10))
	cache := parliament.NewDiskCache(
		cfg.MayString("CACHE_DIR", ".parliament_cache"),
		cfg.MayDuration("CACHE_MAX_AGE", 7*24*time.Hour),
	)
	return parliament.NewClient(parliament.Options{
		HansardBaseURL:   cfg.MayString("HANSARD_URL", ""),
		QuestionsBaseURL: cfg.MayString("QUESTIONS_URL", ""),
	}, limiter, cache)
}

func qdrantClient(root config.Conf) *qdrant.Client {
	cfg := root.Prefix("QDRANT_")
	c, err := qdrant.NewClient(qdrant.Options{
		URL:    cfg.MustString("URL"),
		APIKey: cfg.MayString("API_KEY", ""),
	})
	if err != nil {
		logger.Get().Fatal().Err(err).Msg("qdrant client failed")
	}
	return c
}

func embeddingClient(root config.Conf) *openai.Client {
	cfg := root.Prefix("AZURE_OPENAI_")
	limiter := ratelimit.NewBucket(cfg.MayFloat("RATE_LIMIT", 0.5))
	c, err := openai.NewClient(openai.Options{
		Endpoint:   cfg.MustString("ENDPOINT"),
		APIKey:     cfg.MustString("API_KEY"),
		Deployment: cfg.MustString("EMBEDDING_MODEL"),
		APIVersion: cfg.MayString("API_VERSION", ""),
		Dimensions: cfg.MayInt("EMBEDDING_DIMENSIONS", qdrant.EmbeddingDimensions),
	}, limiter)
	if err != nil {
		logger.Get().Fatal().Err(err).Msg("embedding client failed")
	}
	return c
}

func runInitDB(ctx context.Context, root config.Conf) {
	l := logger.Get()
	// The queue schema was created by Open; bring up the vector store side
	if root.Prefix("QDRANT_").MayString("URL", "") == "" {
		l.Info().Msg("QDRANT_URL not set; queue schema only")
		return
	}
	if err := qdrantClient(root).EnsureSchema(ctx); err != nil {
		l.Fatal().Err(err).Msg("vector store bootstrap failed")
	}
	l.Info().Msg("init-db done")
}

func dateRangeFlags(fs *flag.FlagSet) (start, end *string) {
	today := time.Now().UTC().Format("2006-01-02")
	start = fs.String("start-date", today, "first date (YYYY-MM-DD)")
	end = fs.String("end-date", today, "last date, inclusive (YYYY-MM-DD)")
	return start, end
}

func parseRange(startStr, endStr string) (time.Time, time.Time) {
	l := logger.Get()
	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		l.Fatal().Str("start", startStr).Msg("bad -start-date")
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		l.Fatal().Str("end", endStr).Msg("bad -end-date")
	}
	return start, end
}

func runHarvest(ctx context.Context, root config.Conf, store *queue.Store) {
	l := logger.Get()
	fs := flag.NewFlagSet("harvest", flag.ExitOnError)
	fStart, fEnd := dateRangeFlags(fs)
	fType := fs.String("type", "all", "source to harvest: all | hansard | pqs")
	_ = fs.Parse(os.Args[2:])

	source := harvest.Source(*fType)
	switch source {
	case harvest.SourceAll, harvest.SourceHansard, harvest.SourcePQs:
	default:
		l.Fatal().Str("type", *fType).Msg("bad -type")
	}
	start, end := parseRange(*fStart, *fEnd)

	ctx = logger.WithJob(ctx, fmt.Sprintf("harvest %s..%s", *fStart, *fEnd))
	res, err := harvest.New(parliamentClient(root), store).Run(ctx, start, end, source)
	if err != nil {
		l.Fatal().Err(err).Msg("harvest failed")
	}
	if res.Errors > 0 {
		os.Exit(1)
	}
}

func runProcess(ctx context.Context, root config.Conf, store *queue.Store) {
	l := logger.Get()
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	fBatch := fs.Int("batch-size", process.DefaultBatchSize, "queue items per cycle")
	fLoop := fs.Bool("loop", false, "keep polling after the queue drains")
	fLimit := fs.Int("limit", 0, "stop after this many items (0 = unlimited)")
	_ = fs.Parse(os.Args[2:])

	loaderCfg := root.Prefix("LOADER_")
	chunker := chunk.New(
		loaderCfg.MayInt("CHUNK_SIZE", chunk.DefaultChunkSize),
		loaderCfg.MayInt("SENTENCE_OVERLAP", chunk.DefaultSentenceOverlap),
	)
	p := process.New(store, parliamentClient(root), embeddingClient(root), sparse.Encoder{}, qdrantClient(root), chunker)

	res, err := p.Run(ctx, process.Options{BatchSize: *fBatch, Loop: *fLoop, Limit: *fLimit})
	if err != nil && ctx.Err() == nil {
		l.Fatal().Err(err).Msg("process failed")
	}
	l.Info().Int("completed", res.Completed).Int("failed", res.Failed).Int("chunks", res.Chunks).Msg("process done")
	if res.Failed > 0 {
		os.Exit(1)
	}
}

func runAudit(ctx context.Context, root config.Conf, store *queue.Store) {
	l := logger.Get()
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	fStart, fEnd := dateRangeFlags(fs)
	fType := fs.String("type", "all", "source to audit: all | hansard | pqs")
	_ = fs.Parse(os.Args[2:])

	source := audit.Source(*fType)
	switch source {
	case audit.SourceAll, audit.SourceHansard, audit.SourcePQs:
	default:
		l.Fatal().Str("type", *fType).Msg("bad -type")
	}
	start, end := parseRange(*fStart, *fEnd)

	findings, err := audit.New(store, parliamentClient(root)).Run(ctx, start, end, source)
	if err != nil {
		l.Fatal().Err(err).Msg("audit failed")
	}
	for _, f := range findings {
		l.Warn().
			Str("date", f.Date).
			Str("source_type", f.SourceType).
			Str("verdict", f.Verdict).
			Int("pending", f.Local.Pending).
			Int("processing", f.Local.Processing).
			Int("failed", f.Local.Failed).
			Int("upstream", f.Upstream).
			Msg("audit finding")
	}
	if len(findings) > 0 {
		os.Exit(1)
	}
	l.Info().Msg("audit clean")
}
