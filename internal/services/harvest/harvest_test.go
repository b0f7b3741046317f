package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"westminster/internal/adapters/parliament"
	"westminster/internal/platform/ratelimit"
	"westminster/internal/services/queue"
)

func testQueue(t *testing.T) *queue.Store {
	t.Helper()
	s, err := queue.Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("queue.Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

// fakeParliament serves a fixed upstream: 150 Spoken contributions split
// over two pages, nothing in the other streams, and 2 tabled questions
// (one shared with the answered stream)
func fakeParliament(t *testing.T) *parliament.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/search/contributions/Spoken"):
			skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
			take, _ := strconv.Atoi(r.URL.Query().Get("take"))
			total := 150
			var results []json.RawMessage
			for i := skip; i < skip+take && i < total; i++ {
				results = append(results, json.RawMessage(fmt.Sprintf(
					`{"ContributionExtId":"C%d","DebateSectionExtId":"D1"}`, i)))
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"Results": results, "TotalResultCount": total,
			})
		case strings.HasPrefix(r.URL.Path, "/search/contributions/"):
			w.Write([]byte(`{"Results":[],"TotalResultCount":0}`))
		case r.URL.Path == "/writtenquestions/questions":
			if r.URL.Query().Get("tabledWhenFrom") != "" {
				w.Write([]byte(`{"results":[{"value":{"id":100}},{"value":{"id":101}}],"totalResults":2}`))
				return
			}
			// answered stream shares one question with the tabled stream
			w.Write([]byte(`{"results":[{"value":{"id":101}}],"totalResults":1}`))
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	return parliament.NewClient(parliament.Options{
		HansardBaseURL:   srv.URL,
		QuestionsBaseURL: srv.URL,
	}, ratelimit.NewBucket(0), nil)
}

func TestHarvestSingleDay(t *testing.T) {
	store := testQueue(t)
	h := New(fakeParliament(t), store)
	ctx := context.Background()

	res, err := h.Run(ctx, day("2024-07-18"), day("2024-07-18"), SourceAll)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// 150 contributions + 2 questions; the answered stream's duplicate is
	// skipped, regardless of which pq stream got there first
	if res.Added != 152 {
		t.Fatalf("added = %d, want 152", res.Added)
	}
	if res.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", res.Skipped)
	}
	if res.Errors != 0 {
		t.Fatalf("errors = %d", res.Errors)
	}

	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Pending != 152 {
		t.Fatalf("pending = %d, want 152", st.Pending)
	}

	// Spot-check stored hansard metadata
	items, _ := store.GetPendingBatch(ctx, 1000)
	var hansard, pqs int
	for _, it := range items {
		switch it.SourceType {
		case queue.SourceHansard:
			hansard++
			if !strings.HasPrefix(it.ID, "hansard_C") {
				t.Fatalf("bad hansard id %q", it.ID)
			}
			var meta struct {
				ID       string          `json:"id"`
				Type     string          `json:"type"`
				ItemData json.RawMessage `json:"item_data"`
			}
			if err := json.Unmarshal([]byte(it.Metadata), &meta); err != nil {
				t.Fatalf("bad metadata: %v", err)
			}
			if meta.Type != "Spoken" || len(meta.ItemData) == 0 {
				t.Fatalf("bad metadata %+v", meta)
			}
		case queue.SourcePQ:
			pqs++
			if it.ID != "pq_100" && it.ID != "pq_101" {
				t.Fatalf("bad pq id %q", it.ID)
			}
		}
	}
	if hansard != 150 || pqs != 2 {
		t.Fatalf("got %d hansard, %d pqs", hansard, pqs)
	}
}

func TestHarvestIdempotent(t *testing.T) {
	store := testQueue(t)
	h := New(fakeParliament(t), store)
	ctx := context.Background()

	if _, err := h.Run(ctx, day("2024-07-18"), day("2024-07-18"), SourceAll); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	res, err := h.Run(ctx, day("2024-07-18"), day("2024-07-18"), SourceAll)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if res.Added != 0 {
		t.Fatalf("second run added %d items", res.Added)
	}
	if res.Skipped != 153 {
		t.Fatalf("second run skipped %d, want 153", res.Skipped)
	}
}

func TestHarvestSourceSelection(t *testing.T) {
	store := testQueue(t)
	h := New(fakeParliament(t), store)
	ctx := context.Background()

	res, err := h.Run(ctx, day("2024-07-18"), day("2024-07-18"), SourcePQs)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Added != 2 {
		t.Fatalf("pq-only run added %d, want 2", res.Added)
	}

	res, err = h.Run(ctx, day("2024-07-18"), day("2024-07-18"), SourceHansard)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Added != 150 {
		t.Fatalf("hansard-only run added %d, want 150", res.Added)
	}
}

func TestHarvestStreamFailureIsIsolated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/search/contributions/Spoken") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/search/contributions/") {
			w.Write([]byte(`{"Results":[],"TotalResultCount":0}`))
			return
		}
		w.Write([]byte(`{"results":[{"value":{"id":7}}],"totalResults":1}`))
	}))
	defer srv.Close()

	api := parliament.NewClient(parliament.Options{
		HansardBaseURL:   srv.URL,
		QuestionsBaseURL: srv.URL,
	}, ratelimit.NewBucket(0), nil)

	store := testQueue(t)
	res, err := New(api, store).Run(context.Background(), day("2024-07-18"), day("2024-07-18"), SourceAll)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Errors != 1 {
		t.Fatalf("errors = %d, want 1 (the Spoken stream)", res.Errors)
	}
	// The pq streams still landed their item
	if res.Added != 1 {
		t.Fatalf("added = %d, want 1", res.Added)
	}
}

func TestHarvestRejectsInvertedRange(t *testing.T) {
	store := testQueue(t)
	h := New(fakeParliament(t), store)
	if _, err := h.Run(context.Background(), day("2024-07-19"), day("2024-07-18"), SourceAll); err == nil {
		t.Fatalf("inverted range must fail")
	}
}
