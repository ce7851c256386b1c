package papersources

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter wraps a token bucket limiter for requests to one API.
// It is safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter allowing ratePerSecond sustained requests
// with bursts of up to burst.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Wait blocks until a request is allowed or the context is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow reports whether a request may happen now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Rate returns the current sustained rate.
func (r *RateLimiter) Rate() float64 {
	return float64(r.limiter.Limit())
}

// Slow halves the sustained rate, down to floor. It is called after the API
// answers 429 so later pages back off.
func (r *RateLimiter) Slow(floor float64) {
	next := r.Rate() / 2
	if next < floor {
		next = floor
	}
	r.limiter.SetLimit(rate.Limit(next))
}
