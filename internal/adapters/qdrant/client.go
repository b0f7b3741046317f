// Package qdrant is a minimal Qdrant HTTP client covering what the loader
// and query handler need: collection bootstrap, batched upserts, hybrid
// queries with fusion, group-by queries, scroll, recommend and discover.
package qdrant

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
)

// Options configures the client
type Options struct {
	URL     string // e.g. http://localhost:6333
	APIKey  string // optional
	Timeout time.Duration
}

// Client talks to one Qdrant instance. A single client is shared by the
// loader and the query handler.
type Client struct {
	http *http.Client
	base string
	key  string
	log  logger.Logger
}

// NewClient builds a client; URL is required
func NewClient(o Options) (*Client, error) {
	if o.URL == "" {
		return nil, perr.Configf("qdrant URL is required")
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	return &Client{
		http: &http.Client{Timeout: o.Timeout},
		base: o.URL,
		key:  o.APIKey,
		log:  *logger.Named("qdrant"),
	}, nil
}

// do issues a JSON request and decodes the result envelope into out (when
// out is non-nil). All failures map to the VectorStore error code.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return perr.Wrapf(err, perr.ErrorCodeVectorStore, "qdrant request encode failed")
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeVectorStore, "qdrant new request failed")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("api-key", c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeVectorStore, "qdrant %s %s failed", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeVectorStore, "qdrant response read failed")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return perr.VectorStoref("qdrant %s %s status %d body %s", method, path, resp.StatusCode, truncate(raw, 1024))
	}
	if out == nil {
		return nil
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Status json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeVectorStore, "qdrant envelope decode failed")
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeVectorStore, "qdrant result decode failed")
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

func collectionPath(collection, suffix string) string {
	return fmt.Sprintf("/collections/%s%s", collection, suffix)
}
