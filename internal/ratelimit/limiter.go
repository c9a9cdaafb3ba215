// Package ratelimit throttles outbound action executions.
package ratelimit

import (
	"context"
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter paces callers to at most perSecond calls per second.
// A rate of zero disables limiting.
type RateLimiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex
}

func NewRateLimiter(perSecond float64) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burstFor(perSecond)),
	}
}

func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.RLock()
	limiter := r.limiter
	limit := limiter.Limit()
	r.mu.RUnlock()

	if limit <= 0 {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}

func (r *RateLimiter) SetRate(perSecond float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiter.SetLimit(rate.Limit(perSecond))
	r.limiter.SetBurst(burstFor(perSecond))
}

// Rate returns the configured calls per second.
func (r *RateLimiter) Rate() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return float64(r.limiter.Limit())
}

// burstFor allows one second worth of calls at once, and at least one.
func burstFor(perSecond float64) int {
	if perSecond <= 1 {
		return 1
	}
	return int(math.Ceil(perSecond))
}
