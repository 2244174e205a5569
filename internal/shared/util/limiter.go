package util

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter to provide a simpler interface.
type Limiter struct {
	inner *rate.Limiter
}

// NewLimiter creates a new token bucket limiter.
// r: tokens per second.
// b: burst size.
func NewLimiter(r float64, b int) *Limiter {
	if b < 1 {
		b = 1
	}
	return &Limiter{
		inner: rate.NewLimiter(rate.Limit(r), b),
	}
}

// Unlimited returns a limiter that never blocks.
func Unlimited() *Limiter {
	return &Limiter{inner: rate.NewLimiter(rate.Inf, 1)}
}

// Wait blocks until n tokens are available.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	return l.inner.WaitN(ctx, n)
}
