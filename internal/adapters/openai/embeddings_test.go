package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	perr "westminster/internal/platform/errors"
	"westminster/internal/platform/ratelimit"
)

// embedServer answers the embeddings route with per-call scripted statuses;
// once the script runs out every call succeeds
type embedServer struct {
	t        *testing.T
	statuses []int
	body     string // body for non-200 scripted replies
	calls    int
	inputs   [][]string
}

func (s *embedServer) handler(w http.ResponseWriter, r *http.Request) {
	s.calls++
	if r.URL.Path != "/openai/deployments/emb/embeddings" {
		s.t.Errorf("unexpected path %s", r.URL.Path)
	}
	if r.Header.Get("api-key") != "secret" {
		s.t.Errorf("missing api-key header")
	}

	var req struct {
		Input      []string `json:"input"`
		Dimensions int      `json:"dimensions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.t.Errorf("bad request body: %v", err)
	}
	s.inputs = append(s.inputs, req.Input)

	if len(s.statuses) > 0 {
		status := s.statuses[0]
		s.statuses = s.statuses[1:]
		if status != http.StatusOK {
			w.WriteHeader(status)
			fmt.Fprint(w, s.body)
			return
		}
	}

	data := make([]map[string]any, len(req.Input))
	for i := range req.Input {
		// Reverse delivery order; the client must restore it by index
		j := len(req.Input) - 1 - i
		data[i] = map[string]any{"index": j, "embedding": []float32{float32(j)}}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func testClient(t *testing.T, srv *embedServer) (*Client, *[]time.Duration) {
	t.Helper()
	hs := httptest.NewServer(http.HandlerFunc(srv.handler))
	t.Cleanup(hs.Close)

	c, err := NewClient(Options{
		Endpoint:   hs.URL,
		APIKey:     "secret",
		Deployment: "emb",
		Dimensions: 4,
	}, ratelimit.NewBucket(0))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, &sleeps
}

func TestNewClientRequiresConfig(t *testing.T) {
	_, err := NewClient(Options{APIKey: "k", Deployment: "d"}, ratelimit.NewBucket(0))
	if err == nil || perr.CodeOf(err) != perr.ErrorCodeConfig {
		t.Fatalf("missing endpoint should be a config error, got %v", err)
	}
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	srv := &embedServer{t: t}
	c, _ := testClient(t, srv)

	texts := make([]string, BatchSize+50)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}
	vecs, err := c.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors for %d texts", len(vecs), len(texts))
	}
	if srv.calls != 2 || len(srv.inputs[0]) != BatchSize || len(srv.inputs[1]) != 50 {
		t.Fatalf("bad sub-batching: %d calls, sizes %d/%d", srv.calls, len(srv.inputs[0]), len(srv.inputs[1]))
	}
	// Index 0 of every sub-batch maps back to vector value 0
	if vecs[0][0] != 0 || vecs[BatchSize][0] != 0 {
		t.Fatalf("delivery order not restored: %v, %v", vecs[0], vecs[BatchSize])
	}
	if vecs[BatchSize-1][0] != float32(BatchSize-1) {
		t.Fatalf("delivery order not restored: %v", vecs[BatchSize-1])
	}
}

func TestEmbedRateLimitHonorsHint(t *testing.T) {
	srv := &embedServer{
		t:        t,
		statuses: []int{http.StatusTooManyRequests},
		body:     `{"error":{"message":"Rate limit exceeded. Retry after 7 seconds."}}`,
	}
	c, sleeps := testClient(t, srv)

	vec, err := c.EmbedSingle(context.Background(), "hello")
	if err != nil {
		t.Fatalf("EmbedSingle failed after retry: %v", err)
	}
	if len(vec) == 0 {
		t.Fatalf("no vector returned")
	}
	if srv.calls != 2 {
		t.Fatalf("expected retry, got %d calls", srv.calls)
	}
	// Hinted wait plus the 5s buffer, not the exponential schedule
	if len(*sleeps) != 1 || (*sleeps)[0] != 12*time.Second {
		t.Fatalf("sleeps = %v, want [12s]", *sleeps)
	}
}

func TestEmbedRateLimitWithoutHintBacksOff(t *testing.T) {
	srv := &embedServer{
		t:        t,
		statuses: []int{http.StatusTooManyRequests},
		body:     `{"error":{"message":"Too many requests"}}`,
	}
	c, sleeps := testClient(t, srv)

	if _, err := c.EmbedSingle(context.Background(), "hello"); err != nil {
		t.Fatalf("EmbedSingle failed: %v", err)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 4*time.Second {
		t.Fatalf("sleeps = %v, want the first backoff step", *sleeps)
	}
}

func TestEmbedRetriesExhausted(t *testing.T) {
	srv := &embedServer{
		t:        t,
		statuses: []int{500, 500, 500, 500, 500},
		body:     `{"error":"upstream down"}`,
	}
	c, sleeps := testClient(t, srv)

	_, err := c.EmbedSingle(context.Background(), "hello")
	if err == nil {
		t.Fatalf("exhausted retries must fail")
	}
	if perr.CodeOf(err) != perr.ErrorCodeUnavailable {
		t.Fatalf("code = %v, want unavailable", perr.CodeOf(err))
	}
	if srv.calls != 5 {
		t.Fatalf("calls = %d, want 5 attempts", srv.calls)
	}
	want := []time.Duration{4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", *sleeps, want)
	}
	for i := range want {
		if (*sleeps)[i] != want[i] {
			t.Fatalf("sleeps = %v, want %v", *sleeps, want)
		}
	}
}

func TestEmbedClientErrorNotRetried(t *testing.T) {
	srv := &embedServer{
		t:        t,
		statuses: []int{http.StatusBadRequest},
		body:     `{"error":"bad input"}`,
	}
	c, sleeps := testClient(t, srv)

	_, err := c.EmbedSingle(context.Background(), "hello")
	if err == nil || perr.CodeOf(err) != perr.ErrorCodeClientRequest {
		t.Fatalf("expected a client request error, got %v", err)
	}
	if srv.calls != 1 || len(*sleeps) != 0 {
		t.Fatalf("4xx must not retry: %d calls, sleeps %v", srv.calls, *sleeps)
	}
}
