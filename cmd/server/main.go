package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mpawatch/mpawatch/internal/api"
	"github.com/mpawatch/mpawatch/internal/catalog"
	"github.com/mpawatch/mpawatch/internal/cloudsql"
	"github.com/mpawatch/mpawatch/internal/config"
	"github.com/mpawatch/mpawatch/internal/database"
	"github.com/mpawatch/mpawatch/internal/gfw"
	"github.com/mpawatch/mpawatch/internal/logging"
	"github.com/mpawatch/mpawatch/internal/metrics"
	"github.com/mpawatch/mpawatch/internal/monitor"
	"github.com/mpawatch/mpawatch/internal/scheduler"
	"github.com/mpawatch/mpawatch/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting mpawatch")

	checkToken(cfg.GFW.APIToken, logger)

	collector, err := metrics.New()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	cat := catalog.Load(cfg.Catalog, logger)
	mon := monitor.FromConfig(cfg, cat, collector, logger)
	mon.SetRecorder(collector)

	handler := api.NewHandler(mon, cat, logger)
	handler.SetRateLimit(cfg.Server.AnalyzeRateLimit, cfg.Server.AnalyzeBurst)

	if cfg.Database.Enabled() {
		db, err := openDatabase(cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		runs := database.NewPostgresAnalysisRunRepository(db)
		mon.SetStore(runs)
		handler.SetRuns(runs)
		handler.SetHealthCheck(func(ctx context.Context) error {
			return database.HealthCheck(ctx, db)
		})
	} else {
		logger.Info("DATABASE_URL not set, run history disabled")
	}

	if cfg.Watchlist.Enabled() {
		watchlist := scheduler.NewWatchlistScheduler(mon, cat, cfg.Watchlist.WDPACodes,
			cfg.Watchlist.Interval, cfg.Watchlist.Window, logger)
		go watchlist.Start(context.Background())
		defer watchlist.Stop()
	}

	mux := http.NewServeMux()
	api.SetupRoutes(mux, handler, collector, collector.Handler())

	srv := server.New(cfg.Server, logger, mux)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("API available", "url", fmt.Sprintf("http://localhost:%s", cfg.Server.Port))

	waitForSignal(logger)

	logger.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func openDatabase(cfg config.DatabaseConfig, logger *slog.Logger) (*sql.DB, error) {
	ctx := context.Background()

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.URL

	logger.Info("connecting to database", "config", cloudsql.Describe(os.Getenv))
	db, err := database.Connect(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	logger.Info("database connected")

	// Non-fatal so the API stays up even if a migration fails.
	if err := database.RunMigrations(ctx, db, cfg.MigrationsDir, logger); err != nil {
		logger.Warn("failed to run migrations, continuing anyway", "error", err)
	}
	return db, nil
}

func checkToken(raw string, logger *slog.Logger) {
	info, err := gfw.InspectToken(raw)
	switch {
	case errors.Is(err, gfw.ErrMissingToken):
		logger.Warn("GFW_API_TOKEN is not set, every analysis will fail authentication")
	case err != nil:
		logger.Warn("GFW API token could not be decoded", "error", err)
	case info.Expired(time.Now()):
		logger.Warn("GFW API token has expired", "expired_at", info.ExpiresAt)
	case !info.ExpiresAt.IsZero():
		logger.Info("GFW API token loaded", "expires_at", info.ExpiresAt)
	default:
		logger.Info("GFW API token loaded", "expires_at", "never")
	}
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
	close(c)
}
