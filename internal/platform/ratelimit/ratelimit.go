// Package ratelimit wraps a token bucket behind a small Waiter port so
// components depend on the capability, not on a process-wide singleton.
// Buckets are constructed once at startup and threaded through explicitly.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Waiter blocks until a token is available or ctx is done.
// Acquisition is the only suspension point rate limiting introduces.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Bucket is a token bucket Waiter backed by golang.org/x/time/rate
type Bucket struct {
	l *rate.Limiter
}

// NewBucket returns a bucket that admits perSecond tokens per second.
// Fractional rates are supported (0.5 means one token every two seconds).
// perSecond <= 0 yields an unlimited bucket.
func NewBucket(perSecond float64) *Bucket {
	if perSecond <= 0 {
		return &Bucket{l: rate.NewLimiter(rate.Inf, 1)}
	}
	// Burst of 1 keeps acquisition strictly paced
	return &Bucket{l: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// Wait blocks until a token is granted or ctx is cancelled
func (b *Bucket) Wait(ctx context.Context) error { return b.l.Wait(ctx) }
