package errors

import (
	"errors"
	"testing"
	"time"
)

func TestRetryableByCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"unavailable", Unavailablef("server melted"), true},
		{"rate limited", RateLimitedf("slow down"), true},
		{"client request", ClientRequestf("bad query"), false},
		{"validation", Validationf("schema drift"), false},
		{"invalid argument", InvalidArgf("nope"), false},
		{"config", Configf("missing env"), false},
		{"nil", nil, false},
		{"plain error", errors.New("mystery"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Retryable(tc.err); got != tc.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestRetryableWrapped(t *testing.T) {
	err := Wrapf(Unavailablef("inner"), ErrorCodeUnavailable, "outer")
	if !Retryable(err) {
		t.Fatalf("wrapped unavailable should be retryable")
	}
}

func TestRetryAfterHint(t *testing.T) {
	err := RateLimitedf("throttled: Please retry after 17 seconds.")
	d, ok := RetryAfterHint(err)
	if !ok {
		t.Fatalf("expected a hint")
	}
	if d != 17*time.Second {
		t.Fatalf("hint = %v, want 17s", d)
	}
}

func TestRetryAfterHintCaseInsensitive(t *testing.T) {
	err := RateLimitedf("Retry After 3 Seconds")
	d, ok := RetryAfterHint(err)
	if !ok || d != 3*time.Second {
		t.Fatalf("got (%v, %v), want (3s, true)", d, ok)
	}
}

func TestRetryAfterHintAbsent(t *testing.T) {
	if _, ok := RetryAfterHint(RateLimitedf("too many requests")); ok {
		t.Fatalf("expected no hint")
	}
	if _, ok := RetryAfterHint(nil); ok {
		t.Fatalf("nil error should have no hint")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(VectorStoref("boom")) != ErrorCodeVectorStore {
		t.Fatalf("wrong code for vector store error")
	}
	if CodeOf(errors.New("plain")) != ErrorCodeUnknown {
		t.Fatalf("plain errors should map to unknown")
	}
}

func TestWithOpKeepsCode(t *testing.T) {
	err := WithOp(DBf("locked"), "AddItem")
	if CodeOf(err) != ErrorCodeDB {
		t.Fatalf("WithOp must preserve the code")
	}
}
