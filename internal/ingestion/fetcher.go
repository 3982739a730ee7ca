package ingestion

import (
	"context"
	"log/slog"
	"time"

	"github.com/mpawatch/mpawatch/internal/models"
)

// YearFetcher fetches one sub-range through the shared rate limiter with
// bounded retries and exponential backoff.
type YearFetcher struct {
	source   ActivitySource
	limiter  *RateLimiter
	policy   RetryPolicy
	logger   *slog.Logger
	observer FetchObserver

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewYearFetcher creates a fetcher. A nil limiter disables rate limiting.
func NewYearFetcher(source ActivitySource, limiter *RateLimiter, policy RetryPolicy, logger *slog.Logger) *YearFetcher {
	return &YearFetcher{
		source:   source,
		limiter:  limiter,
		policy:   policy,
		logger:   logger,
		observer: nopObserver{},
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// SetObserver installs an instrumentation hook.
func (f *YearFetcher) SetObserver(observer FetchObserver) {
	if observer == nil {
		observer = nopObserver{}
	}
	f.observer = observer
}

// Fetch retrieves the rows for one sub-range. It never returns an error:
// failure is reported in the outcome so sibling ranges are unaffected.
func (f *YearFetcher) Fetch(ctx context.Context, region models.Region, r models.DateSubRange) models.FetchOutcome {
	started := f.now()
	outcome := models.FetchOutcome{Range: r}

	var lastErr error
	for attempt := 0; attempt <= f.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := f.policy.Backoff(attempt)
			f.logger.Info("retrying sub-range fetch",
				"range", r.String(),
				"attempt", attempt+1,
				"backoff", backoff,
			)
			if err := f.sleep(ctx, backoff); err != nil {
				lastErr = err
				break
			}
		}

		if f.limiter != nil {
			waitStart := f.now()
			if err := f.limiter.Wait(ctx); err != nil {
				lastErr = err
				break
			}
			f.observer.ObserveRateLimitWait(f.now().Sub(waitStart))
		}

		outcome.Attempts = attempt + 1
		callStart := f.now()
		records, err := f.source.FetchActivity(ctx, region, r.Start, r.End)
		callDuration := f.now().Sub(callStart)

		if err == nil {
			f.observer.ObserveAttempt(AttemptSuccess, callDuration)
			outcome.Success = true
			outcome.Records = records
			outcome.Elapsed = f.now().Sub(started)

			f.logger.Info("sub-range fetch completed",
				"range", r.String(),
				"records", len(records),
				"attempts", outcome.Attempts,
				"duration", outcome.Elapsed,
			)
			return outcome
		}

		lastErr = err
		if KindOf(err) == ErrorKindAuth {
			f.observer.ObserveAttempt(AttemptAuth, callDuration)
			f.logger.Error("sub-range fetch rejected credentials",
				"range", r.String(),
				"error", err,
			)
			break
		}

		f.observer.ObserveAttempt(AttemptRetryable, callDuration)
		f.logger.Warn("sub-range fetch attempt failed",
			"range", r.String(),
			"attempt", attempt+1,
			"max_attempts", f.policy.MaxRetries+1,
			"error", err,
		)

		if !IsRetryable(err) {
			break
		}
	}

	outcome.Err = lastErr
	if lastErr != nil {
		outcome.Error = lastErr.Error()
	}
	outcome.Elapsed = f.now().Sub(started)
	return outcome
}
