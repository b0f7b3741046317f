// Package parliament provides a resilient, rate-limited client for the
// Hansard and Written Questions REST APIs. Every outbound API call in the
// system goes through Client.get.
package parliament

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	perr "westminster/internal/platform/errors"
	"westminster/internal/platform/logger"
	"westminster/internal/platform/ratelimit"
)

const (
	hansardBaseDefault   = "https://hansard-api.parliament.uk"
	questionsBaseDefault = "https://questions-statements.parliament.uk/api"
	defaultUA            = "parliament-mcp"
	defaultTimeout       = 120 * time.Second
	defaultMaxRetries    = 3
	defaultRetryBase     = 500 * time.Millisecond
)

// Options configures the Client
type Options struct {
	HansardBaseURL   string
	QuestionsBaseURL string
	UserAgent        string
	Timeout          time.Duration

	// Retry config for transient and rate limited responses
	MaxRetries int
	RetryBase  time.Duration
}

// Client is the single entrypoint for upstream API calls. A process-wide
// token bucket paces all requests; callers receive classified errors
// (Unavailable, TooManyRequests, ClientRequest) and decide policy.
type Client struct {
	http    *http.Client
	opts    Options
	limiter ratelimit.Waiter
	cache   *DiskCache // optional; nil disables caching
	log     logger.Logger
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

// NewClient creates a Client with sane defaults. limiter is required;
// cache may be nil.
func NewClient(o Options, limiter ratelimit.Waiter, cache *DiskCache) *Client {
	if o.HansardBaseURL == "" {
		o.HansardBaseURL = hansardBaseDefault
	}
	if o.QuestionsBaseURL == "" {
		o.QuestionsBaseURL = questionsBaseDefault
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	if limiter == nil {
		panic("parliament.NewClient requires a rate limiter")
	}
	return &Client{
		http:    &http.Client{Timeout: o.Timeout},
		opts:    o,
		limiter: limiter,
		cache:   cache,
		log:     *logger.Named("parliament"),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// get issues a GET with rate limiting, retries and error classification.
// cacheable marks idempotent endpoints eligible for the disk cache.
func (c *Client) get(ctx context.Context, rawURL string, query url.Values, cacheable bool) ([]byte, error) {
	full := rawURL
	if len(query) > 0 {
		full = rawURL + "?" + query.Encode()
	}

	if cacheable && c.cache != nil {
		if body, ok := c.cache.Get(full); ok {
			return body, nil
		}
	}

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Token acquisition is the only suspension point before I/O
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "parliament new request failed")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Accept", "application/json")

		start := c.now()
		resp, err := c.http.Do(req)
		lat := c.now().Sub(start)

		if err != nil {
			if !c.shouldRetry(attempts) {
				return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "parliament request failed")
			}
			back := c.backoff(attempts)
			c.log.Warn().Str("url", rawURL).Dur("retry_in", back).Int("attempt", attempts).Msg("transport error, retrying")
			if se := c.sleep(ctx, back); se != nil {
				return nil, se
			}
			attempts++
			continue
		}

		c.log.Debug().
			Str("url", rawURL).
			Int("status", resp.StatusCode).
			Int("attempt", attempts).
			Dur("latency", lat).
			Msg("parliament http response")

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			body, rerr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if rerr != nil {
				return nil, perr.Wrapf(rerr, perr.ErrorCodeUnavailable, "parliament body read failed")
			}
			if cacheable && c.cache != nil {
				c.cache.Put(full, body)
			}
			return body, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp.Header)
			_ = drainAndClose(resp.Body)
			if !c.shouldRetry(attempts) {
				return nil, perr.RateLimitedf("parliament rate limited on %s", rawURL)
			}
			if wait <= 0 {
				wait = c.backoff(attempts)
			}
			c.log.Warn().Str("url", rawURL).Dur("sleep", wait).Msg("parliament rate limited, backing off")
			if se := c.sleep(ctx, wait); se != nil {
				return nil, se
			}
			attempts++

		case resp.StatusCode >= 500:
			_ = drainAndClose(resp.Body)
			if !c.shouldRetry(attempts) {
				return nil, perr.Unavailablef("parliament server error %d on %s", resp.StatusCode, rawURL)
			}
			back := c.backoff(attempts)
			c.log.Warn().Str("url", rawURL).Int("status", resp.StatusCode).Dur("retry_in", back).Msg("transient server error, retrying")
			if se := c.sleep(ctx, back); se != nil {
				return nil, se
			}
			attempts++

		default:
			// Other 4xx: never retried; keep a diagnostic tail of the body
			tail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			_ = resp.Body.Close()
			return nil, perr.ClientRequestf("parliament status %d on %s body %s", resp.StatusCode, rawURL, string(tail))
		}
	}
}

// getJSON fetches and decodes into v
func (c *Client) getJSON(ctx context.Context, rawURL string, query url.Values, cacheable bool, v any) error {
	body, err := c.get(ctx, rawURL, query, cacheable)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeValidation, "parliament response decode failed for %s", rawURL)
	}
	return nil
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.RetryBase << uint(attempt)
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func (c *Client) shouldRetry(attempt int) bool { return attempt < c.opts.MaxRetries }

// retryAfter parses a seconds-valued Retry-After header
func retryAfter(h http.Header) time.Duration {
	s := h.Get("Retry-After")
	if s == "" {
		return 0
	}
	if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 1<<20))
	return rc.Close()
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
