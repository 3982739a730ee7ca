package ingestion

import (
	"context"
	"time"

	"github.com/mpawatch/mpawatch/internal/models"
)

// ActivitySource retrieves monthly per-vessel fishing activity rows for a
// region. Implementations must not be called with a range longer than
// MaxQueryDays; the aggregator enforces this.
//
// Failures should be returned as *FetchError so the fetcher can tell
// credential problems from transient ones.
type ActivitySource interface {
	FetchActivity(ctx context.Context, region models.Region, start, end time.Time) ([]models.ActivityRecord, error)
}

// ActivitySourceFunc adapts a function to ActivitySource.
type ActivitySourceFunc func(ctx context.Context, region models.Region, start, end time.Time) ([]models.ActivityRecord, error)

// FetchActivity calls f.
func (f ActivitySourceFunc) FetchActivity(ctx context.Context, region models.Region, start, end time.Time) ([]models.ActivityRecord, error) {
	return f(ctx, region, start, end)
}

// FetchObserver receives instrumentation events from the fetch pipeline.
type FetchObserver interface {
	ObserveAttempt(outcome string, duration time.Duration)
	ObserveRateLimitWait(wait time.Duration)
	ObserveFailedRange()
}

// Attempt outcomes reported to FetchObserver.
const (
	AttemptSuccess   = "success"
	AttemptRetryable = "retryable_error"
	AttemptAuth      = "auth_error"
)

type nopObserver struct{}

func (nopObserver) ObserveAttempt(string, time.Duration) {}
func (nopObserver) ObserveRateLimitWait(time.Duration)   {}
func (nopObserver) ObserveFailedRange()                  {}
