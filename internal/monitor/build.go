package monitor

import (
	"log/slog"
	"time"

	"github.com/mpawatch/mpawatch/internal/analysis"
	"github.com/mpawatch/mpawatch/internal/config"
	"github.com/mpawatch/mpawatch/internal/gfw"
	"github.com/mpawatch/mpawatch/internal/ingestion"
)

// FromConfig wires the GFW client, outbound limiter, aggregator and analysis
// engine described by cfg into a Monitor. observer may be nil.
func FromConfig(cfg config.Config, features FeatureSource, observer ingestion.FetchObserver, logger *slog.Logger) *Monitor {
	client := gfw.NewClient(gfw.Config{
		BaseURL: cfg.GFW.BaseURL,
		Token:   cfg.GFW.APIToken,
		Dataset: cfg.GFW.Dataset,
		Timeout: cfg.GFW.RequestTimeout,
	}, logger)

	policy := ingestion.RetryPolicy{
		MaxRetries:  cfg.Fetch.MaxRetries,
		BackoffBase: cfg.Fetch.BackoffBase,
		BackoffUnit: time.Second,
	}
	aggregator := ingestion.NewAggregator(client, ingestion.NewRateLimiter(cfg.Fetch.MaxCallsPerSecond), policy, logger)
	if observer != nil {
		aggregator.SetObserver(observer)
	}

	engine := analysis.NewEngine(analysis.TrendPolicy{
		StrongCorrelation:   cfg.Analysis.StrongCorrelation,
		ModerateCorrelation: cfg.Analysis.ModerateCorrelation,
	})

	return New(aggregator, engine, features, cfg.GFW.RegionDataset, logger)
}
