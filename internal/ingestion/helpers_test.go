package ingestion

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mpawatch/mpawatch/internal/models"
)

// fakeClock advances only when something sleeps on it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// scriptedSource returns queued responses in order and records every call.
type scriptedSource struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     []models.DateSubRange
	fallback  scriptedResponse
}

type scriptedResponse struct {
	records []models.ActivityRecord
	err     error
}

func (s *scriptedSource) FetchActivity(_ context.Context, _ models.Region, start, end time.Time) ([]models.ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, models.DateSubRange{Start: start, End: end})
	if len(s.responses) == 0 {
		return s.fallback.records, s.fallback.err
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp.records, resp.err
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type countingObserver struct {
	mu           sync.Mutex
	attempts     map[string]int
	waits        int
	failedRanges int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{attempts: make(map[string]int)}
}

func (o *countingObserver) ObserveAttempt(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts[outcome]++
}

func (o *countingObserver) ObserveRateLimitWait(time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.waits++
}

func (o *countingObserver) ObserveFailedRange() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failedRanges++
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func record(vessel string, month time.Time, gear string, hours float64) models.ActivityRecord {
	return models.ActivityRecord{Date: month, VesselID: vessel, GearType: gear, Hours: hours}
}

var testRegion = models.Region{Dataset: "public-mpa-all", ID: "555556875"}

// newTestFetcher builds a fetcher whose sleeps and limiter run on clock.
func newTestFetcher(source ActivitySource, clock *fakeClock, maxCalls int, policy RetryPolicy) *YearFetcher {
	limiter := NewRateLimiter(maxCalls)
	limiter.now = clock.Now
	limiter.sleep = clock.Sleep

	fetcher := NewYearFetcher(source, limiter, policy, discardLogger())
	fetcher.now = clock.Now
	fetcher.sleep = clock.Sleep
	return fetcher
}

func newTestAggregator(source ActivitySource, clock *fakeClock, maxCalls int, policy RetryPolicy) *Aggregator {
	agg := NewAggregator(source, nil, policy, discardLogger())
	agg.fetcher = newTestFetcher(source, clock, maxCalls, policy)
	agg.now = clock.Now
	return agg
}
