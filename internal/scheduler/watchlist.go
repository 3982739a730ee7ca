package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mpawatch/mpawatch/internal/models"
	"github.com/mpawatch/mpawatch/internal/monitor"
)

// Analyzer runs one MPA analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req monitor.Request) models.AnalysisResult
}

// SiteLookup resolves a WDPA code to its catalog entry.
type SiteLookup interface {
	Lookup(wdpaCode string) (models.MPA, bool)
}

// WatchlistScheduler re-analyses a fixed set of MPAs on an interval so run
// history accumulates without manual requests.
type WatchlistScheduler struct {
	analyzer Analyzer
	sites    SiteLookup
	codes    []string
	interval time.Duration
	window   time.Duration
	logger   *slog.Logger
	now      func() time.Time
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewWatchlistScheduler creates a scheduler for the given WDPA codes. Each
// pass analyses the trailing window ending today.
func NewWatchlistScheduler(
	analyzer Analyzer,
	sites SiteLookup,
	codes []string,
	interval time.Duration,
	window time.Duration,
	logger *slog.Logger,
) *WatchlistScheduler {
	return &WatchlistScheduler{
		analyzer: analyzer,
		sites:    sites,
		codes:    codes,
		interval: interval,
		window:   window,
		logger:   logger,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start begins the scheduler loop
func (s *WatchlistScheduler) Start(ctx context.Context) {
	s.logger.Info("starting watchlist scheduler", "sites", len(s.codes), "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run once immediately on start
	s.runPass(ctx)

	for {
		select {
		case <-ticker.C:
			s.runPass(ctx)
		case <-s.stopChan:
			s.logger.Info("watchlist scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("watchlist scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler. It is safe to call more than once.
func (s *WatchlistScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// runPass analyses every watched site once, sequentially. The outbound rate
// limiter is shared with interactive requests.
func (s *WatchlistScheduler) runPass(ctx context.Context) {
	now := s.now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := end.Add(-s.window)

	for _, code := range s.codes {
		if ctx.Err() != nil {
			return
		}

		mpa, ok := s.sites.Lookup(code)
		if !ok {
			s.logger.Warn("watchlist site not in catalog, skipping", "wdpa_code", code)
			continue
		}

		result := s.analyzer.Analyze(ctx, monitor.Request{
			MPAName:  mpa.SiteName,
			WDPACode: code,
			Start:    start,
			End:      end,
		})
		if result.Status == models.AnalysisStatusError {
			s.logger.Warn("scheduled analysis failed", "wdpa_code", code, "error", result.Error)
			continue
		}
		s.logger.Info("scheduled analysis completed", "wdpa_code", code, "run_id", result.RunID)
	}
}
