package rate

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter throttles segment loads. A non-positive limit means unlimited.
type Limiter struct {
	l     *rate.Limiter
	limit float64
}

func NewLimiter(limit float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	lim := rate.Inf
	if limit > 0 {
		lim = rate.Limit(limit)
	}
	return &Limiter{
		l:     rate.NewLimiter(lim, burst),
		limit: limit,
	}
}

// Take blocks until a token is available or ctx is done.
func (l *Limiter) Take(ctx context.Context) error {
	return l.l.Wait(ctx)
}

// Allow takes a token if one is available right now.
func (l *Limiter) Allow() bool {
	return l.l.Allow()
}

func (l *Limiter) Limit() float64 {
	return l.limit
}

func (l *Limiter) IsUnlimited() bool {
	return l.l.Limit() == rate.Inf
}
