// Package openai provides the dense embedding capability backed by an
// Azure-OpenAI-compatible embeddings endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	perr "westminster/internal/platform/errors"
	"westminster/internal/platform/logger"
	"westminster/internal/platform/ratelimit"
)

// Defaults for the embedding retry policy
const (
	BatchSize = 100

	maxAttempts      = 5
	backoffMin       = 4 * time.Second
	backoffMax       = 60 * time.Second
	rateLimitBuffer  = 5 * time.Second
	defaultTimeout   = 30 * time.Second
	defaultDimension = 1024
)

// Options configures the embedding client
type Options struct {
	Endpoint   string // https://<resource>.openai.azure.com
	APIKey     string
	Deployment string // embedding model deployment name
	APIVersion string
	Dimensions int
	Timeout    time.Duration
}

// Client computes dense embeddings in rate-limited, retried batches
type Client struct {
	http    *http.Client
	opts    Options
	limiter ratelimit.Waiter
	log     logger.Logger
	sleep   func(context.Context, time.Duration) error
}

// NewClient builds a client. Endpoint, key and deployment are fatal when
// missing: the processor cannot run without an embedder.
func NewClient(o Options, limiter ratelimit.Waiter) (*Client, error) {
	if o.Endpoint == "" || o.APIKey == "" || o.Deployment == "" {
		return nil, perr.Configf("embedding endpoint, api key and deployment are required")
	}
	if o.APIVersion == "" {
		o.APIVersion = "2024-02-01"
	}
	if o.Dimensions <= 0 {
		o.Dimensions = defaultDimension
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if limiter == nil {
		panic("openai.NewClient requires a rate limiter")
	}
	return &Client{
		http:    &http.Client{Timeout: o.Timeout},
		opts:    o,
		limiter: limiter,
		log:     *logger.Named("embeddings"),
		sleep:   sleepCtx,
	}, nil
}

// Dimensions returns the configured vector size
func (c *Client) Dimensions() int { return c.opts.Dimensions }

// EmbedBatch embeds texts in sub-batches of BatchSize, preserving order.
// Each sub-batch retries up to 5 times with exponential backoff between
// 4s and 60s; a rate-limit reply carrying a "retry after N seconds" hint
// sleeps N plus a 5s buffer instead.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += BatchSize {
		end := min(i+BatchSize, len(texts))
		vecs, err := c.embedWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedSingle embeds one text (used for query-time embedding)
func (c *Client) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var last error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		vecs, err := c.embedOnce(ctx, batch)
		if err == nil {
			return vecs, nil
		}
		last = err
		if !perr.Retryable(err) || attempt == maxAttempts-1 {
			break
		}

		wait := backoffMin << uint(attempt)
		if wait > backoffMax {
			wait = backoffMax
		}
		if hint, ok := perr.RetryAfterHint(err); ok && perr.IsRateLimited(err) {
			wait = hint + rateLimitBuffer
		}
		c.log.Warn().Err(err).Dur("sleep", wait).Int("attempt", attempt).Msg("embedding retry")
		if se := c.sleep(ctx, wait); se != nil {
			return nil, se
		}
	}
	return nil, last
}

func (c *Client) embedOnce(ctx context.Context, batch []string) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
		c.opts.Endpoint, c.opts.Deployment, c.opts.APIVersion)
	body, err := json.Marshal(map[string]any{
		"input":      batch,
		"dimensions": c.opts.Dimensions,
	})
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "embedding request encode failed")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "embedding new request failed")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.opts.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "embedding request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "embedding response read failed")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// decoded below
	case resp.StatusCode == http.StatusTooManyRequests:
		// keep the body in the message so the retry-after hint survives
		return nil, perr.RateLimitedf("embedding rate limited: %s", truncate(raw, 512))
	case resp.StatusCode >= 500:
		return nil, perr.Unavailablef("embedding server error %d: %s", resp.StatusCode, truncate(raw, 512))
	default:
		return nil, perr.ClientRequestf("embedding status %d: %s", resp.StatusCode, truncate(raw, 512))
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "embedding response decode failed")
	}
	if len(parsed.Data) != len(batch) {
		return nil, perr.Internalf("embedding count mismatch: want %d got %d", len(batch), len(parsed.Data))
	}

	vecs := make([][]float32, len(batch))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, perr.Internalf("embedding index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
