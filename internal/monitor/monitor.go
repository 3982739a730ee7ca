// Package monitor runs one MPA analysis end to end: fetch the activity for
// the requested window, analyse it, shape the outcome and record the run.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mpawatch/mpawatch/internal/ingestion"
	"github.com/mpawatch/mpawatch/internal/models"
)

// Outcome labels used for metrics and logs.
const (
	OutcomeSuccess    = "success"
	OutcomePartial    = "partial"
	OutcomeNoActivity = "no_activity"
	OutcomeError      = "error"
)

// Aggregator fetches the combined dataset for a region and window.
type Aggregator interface {
	Aggregate(ctx context.Context, region models.Region, start, end time.Time) (models.CombinedDataset, error)
}

// Analyzer turns a combined dataset into a result.
type Analyzer interface {
	Analyze(dataset models.CombinedDataset, mpaName string, start, end time.Time) models.AnalysisResult
}

// FeatureSource looks up the protected features of a site.
type FeatureSource interface {
	ProtectedFeatures(mpaName string) []string
}

// RunStore persists finished runs.
type RunStore interface {
	Create(ctx context.Context, run *models.AnalysisRun) error
}

// Recorder counts finished analyses by outcome.
type Recorder interface {
	ObserveAnalysis(outcome string)
}

// Request identifies the site and window to analyse.
type Request struct {
	MPAName  string
	WDPACode string
	Start    time.Time
	End      time.Time
}

// Monitor coordinates aggregation, analysis and persistence.
type Monitor struct {
	aggregator    Aggregator
	analyzer      Analyzer
	features      FeatureSource
	regionDataset string
	store         RunStore
	recorder      Recorder
	logger        *slog.Logger
	now           func() time.Time
	newID         func() string
}

// New creates a Monitor. regionDataset names the upstream dataset WDPA codes
// are resolved against.
func New(aggregator Aggregator, analyzer Analyzer, features FeatureSource, regionDataset string, logger *slog.Logger) *Monitor {
	return &Monitor{
		aggregator:    aggregator,
		analyzer:      analyzer,
		features:      features,
		regionDataset: regionDataset,
		logger:        logger,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// SetStore enables run persistence.
func (m *Monitor) SetStore(store RunStore) {
	m.store = store
}

// SetRecorder enables outcome counting.
func (m *Monitor) SetRecorder(recorder Recorder) {
	m.recorder = recorder
}

// Analyze runs one analysis. It always returns a result; failures are
// reported in the result's status and error fields.
func (m *Monitor) Analyze(ctx context.Context, req Request) models.AnalysisResult {
	started := m.now()
	runID := m.newID()
	logger := m.logger.With("run_id", runID, "mpa", req.MPAName, "wdpa_code", req.WDPACode)

	logger.Info("analysis started",
		"start", req.Start.Format(models.DateLayout),
		"end", req.End.Format(models.DateLayout))

	region := models.Region{Dataset: m.regionDataset, ID: req.WDPACode}
	dataset, err := m.aggregator.Aggregate(ctx, region, req.Start, req.End)

	var (
		result  models.AnalysisResult
		outcome string
	)
	switch {
	case err != nil:
		result = m.errorResult(req, err)
		outcome = OutcomeError
		logger.Error("analysis failed", "error", err, "auth", errors.Is(err, ingestion.ErrAuthentication))
	case dataset.Empty():
		result = m.noActivityResult(req, dataset)
		outcome = OutcomeNoActivity
		logger.Info("no fishing activity detected", "failed_ranges", len(dataset.FailedRanges))
	default:
		result = m.analyzer.Analyze(dataset, req.MPAName, req.Start, req.End)
		result.WDPACode = req.WDPACode
		result.ProtectedFeatures = m.features.ProtectedFeatures(req.MPAName)
		outcome = OutcomeSuccess
		if len(dataset.FailedRanges) > 0 {
			outcome = OutcomePartial
		}
		logger.Info("analysis completed",
			"records", result.TotalRecords,
			"failed_ranges", len(dataset.FailedRanges))
	}
	result.RunID = runID

	if m.recorder != nil {
		m.recorder.ObserveAnalysis(outcome)
	}
	m.persist(ctx, logger, req, result, m.now().Sub(started))

	return result
}

func (m *Monitor) errorResult(req Request, err error) models.AnalysisResult {
	result := models.AnalysisResult{
		Status:      models.AnalysisStatusError,
		Error:       err.Error(),
		MPAName:     req.MPAName,
		WDPACode:    req.WDPACode,
		GeneratedAt: m.now().UTC(),
	}

	var aggErr *ingestion.AggregationError
	if errors.As(err, &aggErr) {
		result.FailedPeriods = aggErr.FailedRanges
	}
	return result
}

func (m *Monitor) noActivityResult(req Request, dataset models.CombinedDataset) models.AnalysisResult {
	return models.AnalysisResult{
		Status:   models.AnalysisStatusSuccess,
		MPAName:  req.MPAName,
		WDPACode: req.WDPACode,
		DateRange: &models.DateRange{
			Start: req.Start.Format(models.DateLayout),
			End:   req.End.Format(models.DateLayout),
		},
		GeneratedAt: m.now().UTC(),
		Summary: &models.Summary{
			Message: models.NoActivityMessage,
		},
		FailedPeriods: dataset.FailedRanges,
	}
}

func (m *Monitor) persist(ctx context.Context, logger *slog.Logger, req Request, result models.AnalysisResult, elapsed time.Duration) {
	if m.store == nil {
		return
	}

	run := &models.AnalysisRun{
		ID:            result.RunID,
		MPAName:       req.MPAName,
		WDPACode:      req.WDPACode,
		StartDate:     req.Start,
		EndDate:       req.End,
		Status:        result.Status,
		ErrorMsg:      result.Error,
		FailedPeriods: result.FailedPeriods,
		Result:        &result,
		DurationMs:    int(elapsed.Milliseconds()),
	}
	if result.Summary != nil {
		run.TotalHours = result.Summary.TotalFishingHours
		run.UniqueVessels = result.Summary.UniqueVessels
	}

	// Persist even when the caller has gone away so the run is not lost.
	if err := m.store.Create(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("failed to persist analysis run", "error", err)
	}
}
