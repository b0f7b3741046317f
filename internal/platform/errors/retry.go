package errors

// Retry classification for the ingestion pipeline. Mirrors the role pg.go
// plays for the relational backends: backend-specific knowledge about which
// failures are worth another attempt lives here, not in the callers.

import (
	"context"
	stderrs "errors"
	"net"
	"regexp"
	"strconv"
	"time"
)

// Retryable reports whether the error is worth retrying.
// Rate-limited and transient (5xx/timeout/network) errors retry; client
// request and validation errors never do.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch CodeOf(err) {
	case ErrorCodeUnavailable, ErrorCodeTooManyRequests:
		return true
	case ErrorCodeClientRequest, ErrorCodeValidation, ErrorCodeInvalidArgument, ErrorCodeConfig:
		return false
	}
	// Foreign errors: network-level failures are transient
	if stderrs.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if stderrs.As(Root(err), &ne) {
		return ne.Timeout()
	}
	return false
}

// IsRateLimited reports whether the error is a rate-limit reply (HTTP 429
// or an embedding-provider "rate limit" error)
func IsRateLimited(err error) bool { return IsCode(err, ErrorCodeTooManyRequests) }

// retryAfterRe matches provider messages like
// "Requests to ... have exceeded call rate limit ... Please retry after 7 seconds."
var retryAfterRe = regexp.MustCompile(`(?i)retry after (\d+) second`)

// RetryAfterHint extracts a server-supplied wait hint from the error text.
// Returns (0, false) when no hint is present. Callers are expected to add
// their own safety buffer on top of the hint.
func RetryAfterHint(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	m := retryAfterRe.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	secs, convErr := strconv.Atoi(m[1])
	if convErr != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
