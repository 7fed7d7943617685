// Package ratelimiter throttles connection admission with a token bucket.
//
// The accept loop calls Wait before accepting each connection. A limiter
// never rejects: when the bucket is empty it delays admission and peers
// queue in the listen backlog. A zero rate disables throttling.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// AcceptLimiter bounds the rate at which connections are admitted.
type AcceptLimiter struct {
	// limiter is nil when throttling is disabled.
	limiter *rate.Limiter
}

// New creates a limiter admitting perSecond connections on average with bursts
// of up to burst. perSecond == 0 means unlimited. A zero burst with a non-zero
// rate defaults to one.
func New(perSecond float64, burst int) *AcceptLimiter {
	if perSecond <= 0 {
		return &AcceptLimiter{}
	}
	if burst <= 0 {
		burst = 1
	}

	return &AcceptLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Unlimited reports whether throttling is disabled.
func (l *AcceptLimiter) Unlimited() bool {
	return l == nil || l.limiter == nil
}

// Wait blocks until the next admission is allowed or ctx is done.
func (l *AcceptLimiter) Wait(ctx context.Context) error {
	if l.Unlimited() {
		return ctx.Err()
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether an admission is available right now and consumes it.
func (l *AcceptLimiter) Allow() bool {
	if l.Unlimited() {
		return true
	}
	return l.limiter.Allow()
}

// SetRate changes the admission rate. Zero keeps the burst but effectively
// removes the limit.
func (l *AcceptLimiter) SetRate(perSecond float64) {
	if l.Unlimited() {
		return
	}
	if perSecond <= 0 {
		l.limiter.SetLimit(rate.Inf)
		return
	}
	l.limiter.SetLimit(rate.Limit(perSecond))
}

// Tokens returns the admissions currently available without waiting.
func (l *AcceptLimiter) Tokens() float64 {
	if l.Unlimited() {
		return float64(rate.Inf)
	}
	return l.limiter.Tokens()
}
