package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter bounds outbound calls to at most maxCalls within any trailing
// window. It keeps a log of recent call timestamps rather than a token bucket,
// so a burst can never exceed the limit inside one window.
//
// One limiter is owned by one in-flight analysis. The mutex is held while a
// caller sleeps, which serializes waiters in arrival order; concurrent
// analyses sharing a limiter interleave their waits but cannot corrupt the log.
type RateLimiter struct {
	maxCalls int
	window   time.Duration

	mu    sync.Mutex
	calls []time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewRateLimiter creates a limiter allowing maxCallsPerSecond calls in any
// one-second window.
func NewRateLimiter(maxCallsPerSecond int) *RateLimiter {
	if maxCallsPerSecond < 1 {
		maxCallsPerSecond = 1
	}
	return &RateLimiter{
		maxCalls: maxCallsPerSecond,
		window:   time.Second,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Wait blocks until issuing another call would not exceed the limit, then
// records the call.
func (l *RateLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.calls) >= l.maxCalls {
		wait := l.window - now.Sub(l.calls[0])
		if wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
		}
		now = l.now()
		l.prune(now)
	}

	l.calls = append(l.calls, now)
	return nil
}

// InFlight returns the number of calls recorded in the current window.
func (l *RateLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	return len(l.calls)
}

// prune drops timestamps that have left the window. Callers hold mu.
func (l *RateLimiter) prune(now time.Time) {
	keep := 0
	for keep < len(l.calls) && now.Sub(l.calls[keep]) >= l.window {
		keep++
	}
	if keep > 0 {
		l.calls = append(l.calls[:0], l.calls[keep:]...)
	}
}
