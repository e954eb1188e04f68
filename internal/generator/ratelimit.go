package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when the shared rate limiter cannot grant a
// token within the configured wait window. It is not a hard failure: the
// revision loop re-attempts a bounded number of times before giving up.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter is the token bucket shared by every session using the same
// Caller. Capacity and refill rate both come from requestsPerMinute, so
// a burst may consume a full minute's quota at once but sustained load
// cannot exceed it.
type Limiter struct {
	bucket      *rate.Limiter
	waitTimeout time.Duration
}

// NewLimiter builds a token bucket admitting requestsPerMinute calls,
// with a burst of the same size. waitTimeout bounds how long Acquire may
// block waiting for a token; zero means wait indefinitely. A
// requestsPerMinute of zero or less disables limiting (nil Limiter).
func NewLimiter(requestsPerMinute int, waitTimeout time.Duration) *Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return &Limiter{
		bucket:      rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute),
		waitTimeout: waitTimeout,
	}
}

// Acquire blocks until a token is available, the wait window elapses, or
// ctx is canceled. A nil Limiter admits every call.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}

	waitCtx := ctx
	if l.waitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.waitTimeout)
		defer cancel()
	}

	if err := l.bucket.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: no token within %v", ErrRateLimited, l.waitTimeout)
	}
	return nil
}
