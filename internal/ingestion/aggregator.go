package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mpawatch/mpawatch/internal/models"
)

// AggregationError reports that no sub-range could be fetched. The combined
// dataset returned alongside it is empty.
type AggregationError struct {
	FailedRanges []models.FailedRange
	Err          error // error from the last failed range
}

func (e *AggregationError) Error() string {
	if len(e.FailedRanges) <= 1 {
		return e.Err.Error()
	}
	return fmt.Sprintf("all %d yearly fetches failed: %v", len(e.FailedRanges), e.Err)
}

func (e *AggregationError) Unwrap() error {
	return e.Err
}

// Aggregator fetches an arbitrary date range, splitting it into upstream-sized
// sub-ranges when needed, and merges the successful results.
type Aggregator struct {
	source   ActivitySource
	fetcher  *YearFetcher
	logger   *slog.Logger
	observer FetchObserver
	now      func() time.Time
}

// NewAggregator wires a source, the shared limiter and a retry policy. The
// limiter and policy apply only to multi-range requests.
func NewAggregator(source ActivitySource, limiter *RateLimiter, policy RetryPolicy, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		source:   source,
		fetcher:  NewYearFetcher(source, limiter, policy, logger),
		logger:   logger,
		observer: nopObserver{},
		now:      time.Now,
	}
}

// SetObserver installs an instrumentation hook on the aggregator and its fetcher.
func (a *Aggregator) SetObserver(observer FetchObserver) {
	if observer == nil {
		observer = nopObserver{}
	}
	a.observer = observer
	a.fetcher.SetObserver(observer)
}

// Aggregate returns every activity row for region within [start, end].
//
// Partial failures are reported in CombinedDataset.FailedRanges with a nil
// error. An authentication failure aborts immediately. If nothing could be
// fetched the error is an *AggregationError.
func (a *Aggregator) Aggregate(ctx context.Context, region models.Region, start, end time.Time) (models.CombinedDataset, error) {
	var dataset models.CombinedDataset

	if end.Before(start) {
		return dataset, fmt.Errorf("end date %s is before start date %s",
			end.Format(models.DateLayout), start.Format(models.DateLayout))
	}

	ranges, split := SplitDateRange(start, end)
	if !split {
		return a.aggregateSingle(ctx, region, start, end)
	}

	a.logger.Info("splitting request into yearly sub-ranges",
		"region", region.ID,
		"start", start.Format(models.DateLayout),
		"end", end.Format(models.DateLayout),
		"sub_ranges", len(ranges),
	)

	var lastErr error
	succeeded := 0

	// Sequential by design: every sub-range shares one limiter and the
	// upstream's own throughput limits.
	for _, r := range ranges {
		outcome := a.fetcher.Fetch(ctx, region, r)
		dataset.Outcomes = append(dataset.Outcomes, outcome)

		if outcome.Success {
			succeeded++
			dataset.Records = append(dataset.Records, outcome.Records...)
			continue
		}

		lastErr = outcome.Err
		dataset.FailedRanges = append(dataset.FailedRanges, models.NewFailedRange(outcome))
		a.observer.ObserveFailedRange()

		if errors.Is(outcome.Err, ErrAuthentication) {
			return models.CombinedDataset{}, fmt.Errorf("fetching %s: %w", r.String(), outcome.Err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.CombinedDataset{}, fmt.Errorf("aggregation interrupted at %s: %w", r.String(), ctxErr)
		}
	}

	a.logger.Info("multi-year aggregation finished",
		"region", region.ID,
		"succeeded", succeeded,
		"failed", len(dataset.FailedRanges),
		"records", len(dataset.Records),
	)

	if succeeded == 0 {
		return models.CombinedDataset{FailedRanges: dataset.FailedRanges, Outcomes: dataset.Outcomes},
			&AggregationError{FailedRanges: dataset.FailedRanges, Err: lastErr}
	}

	return dataset, nil
}

// aggregateSingle issues exactly one direct call: no limiter, no retries.
func (a *Aggregator) aggregateSingle(ctx context.Context, region models.Region, start, end time.Time) (models.CombinedDataset, error) {
	started := a.now()
	r := models.DateSubRange{Start: start, End: end, Label: start.Year()}

	records, err := a.source.FetchActivity(ctx, region, start, end)
	outcome := models.FetchOutcome{
		Success:  err == nil,
		Records:  records,
		Range:    r,
		Err:      err,
		Attempts: 1,
		Elapsed:  a.now().Sub(started),
	}

	if err != nil {
		outcome.Error = err.Error()
		a.logger.Error("single-range fetch failed",
			"region", region.ID,
			"range", r.String(),
			"error", err,
		)
		if errors.Is(err, ErrAuthentication) {
			return models.CombinedDataset{}, fmt.Errorf("fetching %s: %w", r.String(), err)
		}
		failed := []models.FailedRange{models.NewFailedRange(outcome)}
		return models.CombinedDataset{FailedRanges: failed, Outcomes: []models.FetchOutcome{outcome}},
			&AggregationError{FailedRanges: failed, Err: err}
	}

	a.logger.Info("single-range fetch completed",
		"region", region.ID,
		"range", r.String(),
		"records", len(records),
	)

	return models.CombinedDataset{Records: records, Outcomes: []models.FetchOutcome{outcome}}, nil
}
