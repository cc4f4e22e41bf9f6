// Package pace provides polling cadence helpers for the watch loop:
// a rate limiter for drain polls, a cancellable sleep, and deterministic
// jitter. The client never retries failed requests; pacing only spaces
// out requests that would otherwise fire back to back.
package pace

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket rate limiter. A zero or negative rps
// disables limiting entirely, so Wait returns immediately.
type Limiter struct {
	enabled bool
	rps     float64
	limiter *rate.Limiter
}

// New creates a Limiter allowing rps requests per second.
// rps <= 0 returns a disabled limiter.
func New(rps float64) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}
	return &Limiter{
		enabled: true,
		rps:     rps,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Enabled reports whether the limiter is active.
func (l *Limiter) Enabled() bool {
	return l.enabled
}

// RPS returns the configured requests-per-second, or 0 when disabled.
func (l *Limiter) RPS() float64 {
	return l.rps
}

// Wait blocks until the limiter permits the next request or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if !l.enabled {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
// Returns ctx.Err() when cancelled, nil when the full duration elapsed.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// JitterFraction returns a deterministic fraction in [0, 1) derived from
// the poll counter n. Successive polls walk a fixed 16-step cycle, which
// spreads load without making test timing nondeterministic.
func JitterFraction(n uint64) float64 {
	return float64(n%16) / 16.0
}
