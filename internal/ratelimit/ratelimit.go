// Package ratelimit paces outbound RPC traffic against provider quotas.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter smooths request bursts to stay under an RPC provider's
// requests-per-second cap. Multicall batches count as one request.
type Limiter struct {
	limiter *rate.Limiter
}

// NewWithBurst creates a limiter with an explicit sustained rate and burst.
func NewWithBurst(requestsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may go out now without waiting.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// SetLimit updates the sustained rate, for quota changes at runtime.
func (l *Limiter) SetLimit(requestsPerSecond float64) {
	l.limiter.SetLimit(rate.Limit(requestsPerSecond))
}
