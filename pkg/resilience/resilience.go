// Package resilience provides the rate limiter and circuit breaker used
// around the remote model adapters: the tei clients throttle their HTTP
// calls through Limiter, and the ingest pipeline wraps the embedder stage
// with the Breaker.
package resilience

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket.
type Limiter struct {
	l *rate.Limiter
}

// NewLimiter allows ratePerSecond events with the given burst.
func NewLimiter(ratePerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{l: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Allow reports whether an event may proceed now.
func (l *Limiter) Allow() bool { return l.l.Allow() }

// Wait blocks until an event may proceed or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error { return l.l.Wait(ctx) }
