// westminster-api serves the search API over the ingested collections
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"westminster/internal/adapters/openai"
	"westminster/internal/adapters/qdrant"
	"westminster/internal/core/sparse"
	"westminster/internal/platform/config"
	"westminster/internal/platform/logger"
	phttp "westminster/internal/platform/net/http"
	"westminster/internal/platform/ratelimit"
	"westminster/internal/services/api"
	"westminster/internal/services/query"
)

func main() {
	l := logger.Get()
	root := config.New()
	apiCfg := root.Prefix("API_")

	qdrantCfg := root.Prefix("QDRANT_")
	vectors, err := qdrant.NewClient(qdrant.Options{
		URL:    qdrantCfg.MustString("URL"),
		APIKey: qdrantCfg.MayString("API_KEY", ""),
	})
	if err != nil {
		l.Fatal().Err(err).Msg("qdrant client failed")
	}

	embedCfg := root.Prefix("AZURE_OPENAI_")
	embedder, err := openai.NewClient(openai.Options{
		Endpoint:   embedCfg.MustString("ENDPOINT"),
		APIKey:     embedCfg.MustString("API_KEY"),
		Deployment: embedCfg.MustString("EMBEDDING_MODEL"),
		APIVersion: embedCfg.MayString("API_VERSION", ""),
		Dimensions: embedCfg.MayInt("EMBEDDING_DIMENSIONS", qdrant.EmbeddingDimensions),
	}, ratelimit.NewBucket(embedCfg.MayFloat("RATE_LIMIT", 0.5)))
	if err != nil {
		l.Fatal().Err(err).Msg("embedding client failed")
	}

	srv := phttp.NewServer(apiCfg)
	api.Mount(srv.Router(), api.Options{
		Queries:        query.New(vectors, embedder, sparse.Encoder{}),
		AllowedOrigins: splitCSV(apiCfg.MayString("CORS_ORIGINS", "")),
		EnableMetrics:  apiCfg.MayBool("METRICS", true),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Run(ctx); err != nil {
		l.Fatal().Err(err).Msg("http server stopped")
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
