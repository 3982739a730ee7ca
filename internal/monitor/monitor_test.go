package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpawatch/mpawatch/internal/analysis"
	"github.com/mpawatch/mpawatch/internal/catalog"
	"github.com/mpawatch/mpawatch/internal/ingestion"
	"github.com/mpawatch/mpawatch/internal/models"
)

type stubAggregator struct {
	dataset models.CombinedDataset
	err     error
	region  models.Region
}

func (s *stubAggregator) Aggregate(_ context.Context, region models.Region, _, _ time.Time) (models.CombinedDataset, error) {
	s.region = region
	return s.dataset, s.err
}

type memoryStore struct {
	runs []*models.AnalysisRun
	err  error
}

func (s *memoryStore) Create(_ context.Context, run *models.AnalysisRun) error {
	if s.err != nil {
		return s.err
	}
	s.runs = append(s.runs, run)
	return nil
}

type countingRecorder map[string]int

func (c countingRecorder) ObserveAnalysis(outcome string) { c[outcome]++ }

var (
	fixedNow = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	features = catalog.New(nil, []catalog.SiteFeatures{
		{SiteName: "Dogger Bank SAC", Features: []string{"Sandbanks", "Harbour porpoise"}},
	})
)

func newTestMonitor(agg Aggregator) (*Monitor, *memoryStore, countingRecorder) {
	m := New(agg, analysis.NewEngine(analysis.DefaultTrendPolicy()), features, "public-mpa-all",
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.now = func() time.Time { return fixedNow }
	m.newID = func() string { return "run-1" }

	store := &memoryStore{}
	rec := countingRecorder{}
	m.SetStore(store)
	m.SetRecorder(rec)
	return m, store, rec
}

func request(start, end time.Time) Request {
	return Request{MPAName: "Dogger Bank", WDPACode: "555591636", Start: start, End: end}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAnalyzeSuccess(t *testing.T) {
	agg := &stubAggregator{dataset: models.CombinedDataset{Records: []models.ActivityRecord{
		{Date: day(2023, time.March, 1), VesselID: "v1", GearType: "trawlers", Hours: 4},
	}}}
	m, store, rec := newTestMonitor(agg)

	result := m.Analyze(context.Background(), request(day(2023, time.January, 1), day(2023, time.June, 30)))

	assert.Equal(t, models.Region{Dataset: "public-mpa-all", ID: "555591636"}, agg.region)
	assert.Equal(t, models.AnalysisStatusSuccess, result.Status)
	assert.Empty(t, result.Error)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, "555591636", result.WDPACode)
	assert.Equal(t, []string{"Sandbanks", "Harbour porpoise"}, result.ProtectedFeatures)
	assert.Empty(t, result.Summary.Message)
	assert.Equal(t, 4.0, result.Summary.TotalFishingHours)
	assert.Empty(t, result.FailedPeriods)

	require.Len(t, store.runs, 1)
	run := store.runs[0]
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, 4.0, run.TotalHours)
	assert.Equal(t, 1, run.UniqueVessels)
	assert.Equal(t, 1, rec[OutcomeSuccess])
}

func TestAnalyzePartialFailure(t *testing.T) {
	failed := []models.FailedRange{{Start: "2020-12-31", End: "2021-12-30", Year: 2020, Error: "transient error (status 503): down", Attempts: 3}}
	agg := &stubAggregator{dataset: models.CombinedDataset{
		Records: []models.ActivityRecord{
			{Date: day(2020, time.March, 1), VesselID: "v1", GearType: "trawlers", Hours: 4},
		},
		FailedRanges: failed,
	}}
	m, _, rec := newTestMonitor(agg)

	result := m.Analyze(context.Background(), request(day(2020, time.January, 1), day(2022, time.June, 1)))

	assert.Equal(t, models.AnalysisStatusSuccess, result.Status)
	assert.Empty(t, result.Error)
	assert.Equal(t, failed, result.FailedPeriods)
	assert.NotNil(t, result.MultiYear)
	assert.Equal(t, 1, rec[OutcomePartial])
}

func TestAnalyzeNoActivity(t *testing.T) {
	m, store, rec := newTestMonitor(&stubAggregator{})

	result := m.Analyze(context.Background(), request(day(2023, time.January, 1), day(2023, time.January, 31)))

	assert.Equal(t, models.AnalysisStatusSuccess, result.Status)
	assert.Empty(t, result.Error)
	require.NotNil(t, result.Summary)
	assert.Equal(t, models.NoActivityMessage, result.Summary.Message)
	assert.Zero(t, result.Summary.TotalFishingHours)
	assert.Zero(t, result.Summary.UniqueVessels)
	assert.Equal(t, &models.DateRange{Start: "2023-01-01", End: "2023-01-31"}, result.DateRange)
	assert.Equal(t, fixedNow, result.GeneratedAt)
	assert.Nil(t, result.Temporal)
	assert.Equal(t, 1, rec[OutcomeNoActivity])
	require.Len(t, store.runs, 1)
	assert.Equal(t, models.AnalysisStatusSuccess, store.runs[0].Status)
}

func TestAnalyzeTotalFailure(t *testing.T) {
	failed := []models.FailedRange{
		{Start: "2020-01-01", End: "2020-12-30", Year: 2020, Error: "boom", Attempts: 3},
		{Start: "2020-12-31", End: "2021-12-30", Year: 2020, Error: "boom", Attempts: 3},
		{Start: "2021-12-31", End: "2022-06-01", Year: 2021, Error: "boom", Attempts: 3},
	}
	aggErr := &ingestion.AggregationError{FailedRanges: failed, Err: errors.New("boom")}
	m, store, rec := newTestMonitor(&stubAggregator{err: aggErr})

	result := m.Analyze(context.Background(), request(day(2020, time.January, 1), day(2022, time.June, 1)))

	assert.Equal(t, models.AnalysisStatusError, result.Status)
	assert.Equal(t, aggErr.Error(), result.Error)
	assert.Equal(t, "Dogger Bank", result.MPAName)
	assert.Equal(t, "555591636", result.WDPACode)
	assert.Equal(t, failed, result.FailedPeriods)
	assert.Nil(t, result.Summary)
	assert.Equal(t, 1, rec[OutcomeError])

	require.Len(t, store.runs, 1)
	assert.Equal(t, models.AnalysisStatusError, store.runs[0].Status)
	assert.Equal(t, aggErr.Error(), store.runs[0].ErrorMsg)
}

func TestAnalyzeAuthFailure(t *testing.T) {
	authErr := fmt.Errorf("fetching 2023-01-01..2023-01-31: %w", ingestion.NewAuthError(401, errors.New("invalid token")))
	m, _, _ := newTestMonitor(&stubAggregator{err: authErr})

	result := m.Analyze(context.Background(), request(day(2023, time.January, 1), day(2023, time.January, 31)))

	assert.Equal(t, models.AnalysisStatusError, result.Status)
	assert.Contains(t, result.Error, "invalid token")
	assert.Empty(t, result.FailedPeriods)
}

func TestAnalyzeStoreFailureDoesNotFailAnalysis(t *testing.T) {
	m, store, _ := newTestMonitor(&stubAggregator{})
	store.err = errors.New("db down")

	result := m.Analyze(context.Background(), request(day(2023, time.January, 1), day(2023, time.January, 31)))

	assert.Equal(t, models.AnalysisStatusSuccess, result.Status)
}

func TestAnalyzeWithoutStoreOrRecorder(t *testing.T) {
	m := New(&stubAggregator{}, analysis.NewEngine(analysis.DefaultTrendPolicy()), catalog.Empty(), "public-mpa-all",
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	result := m.Analyze(context.Background(), request(day(2023, time.January, 1), day(2023, time.January, 31)))

	assert.Equal(t, models.AnalysisStatusSuccess, result.Status)
	assert.NotEmpty(t, result.RunID)
}
