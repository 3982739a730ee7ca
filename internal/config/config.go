package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mpawatch/mpawatch/internal/cloudsql"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Database  DatabaseConfig
	GFW       GFWConfig
	Fetch     FetchConfig
	Analysis  AnalysisConfig
	Catalog   CatalogConfig
	Watchlist WatchlistConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// AnalyzeRateLimit caps inbound analysis requests per second across the
	// process. Zero disables the limit.
	AnalyzeRateLimit float64
	AnalyzeBurst     int
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig holds the optional PostgreSQL connection used for run history.
type DatabaseConfig struct {
	URL           string
	MigrationsDir string
}

// Enabled reports whether a database has been configured.
func (c DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// GFWConfig holds Global Fishing Watch API access parameters.
type GFWConfig struct {
	APIToken       string
	BaseURL        string
	RequestTimeout time.Duration
	Dataset        string
	RegionDataset  string
}

// FetchConfig controls outbound rate limiting and retries.
type FetchConfig struct {
	MaxCallsPerSecond int
	MaxRetries        int
	BackoffBase       float64
}

// AnalysisConfig holds trend classification thresholds.
type AnalysisConfig struct {
	StrongCorrelation   float64
	ModerateCorrelation float64
}

// WatchlistConfig lists MPAs re-analysed on a schedule. An empty list
// disables the scheduler.
type WatchlistConfig struct {
	WDPACodes []string
	Interval  time.Duration
	Window    time.Duration
}

// Enabled reports whether any site is being watched.
func (c WatchlistConfig) Enabled() bool {
	return len(c.WDPACodes) > 0
}

// CatalogConfig locates the MPA reference CSVs. Each entry is tried in order.
type CatalogConfig struct {
	MasterPaths   []string
	FeaturesPaths []string
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 5 * time.Minute
	defaultShutdownTimeout = 5 * time.Second
	defaultAnalyzeRate     = 1.0
	defaultAnalyzeBurst    = 3

	defaultLogFormat = "json"

	defaultMigrationsDir = "migrations"

	defaultGFWBaseURL        = "https://gateway.api.globalfishingwatch.org/v3"
	defaultGFWTimeout        = 60 * time.Second
	defaultGFWDataset        = "public-global-fishing-effort:latest"
	defaultGFWRegionDataset  = "public-mpa-all"
	defaultMaxCallsPerSecond = 2
	defaultMaxRetries        = 2
	defaultBackoffBase       = 2.0

	defaultStrongCorrelation   = 0.7
	defaultModerateCorrelation = 0.4

	defaultWatchlistInterval = 24 * time.Hour
	defaultWatchlistWindow   = 30 * 24 * time.Hour
)

var (
	defaultMasterPaths   = []string{"data/uk_mpas_master.csv", "../data/uk_mpas_master.csv"}
	defaultFeaturesPaths = []string{"data/all_mpas_and_features.csv", "../data/all_mpas_and_features.csv"}
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided or invalid.
func Load() (Config, error) {
	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	dbURL, err := cloudsql.BuildDatabaseURL(os.Getenv)
	if err != nil {
		return Config{}, fmt.Errorf("invalid database settings: %w", err)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:             port,
			ReadTimeout:      defaultReadTimeout,
			WriteTimeout:     defaultWriteTimeout,
			ShutdownTimeout:  defaultShutdownTimeout,
			AnalyzeRateLimit: defaultAnalyzeRate,
			AnalyzeBurst:     defaultAnalyzeBurst,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			URL:           dbURL,
			MigrationsDir: getEnv("MIGRATIONS_DIR", defaultMigrationsDir),
		},
		GFW: GFWConfig{
			APIToken:       os.Getenv("GFW_API_TOKEN"),
			BaseURL:        getEnv("GFW_BASE_URL", defaultGFWBaseURL),
			RequestTimeout: defaultGFWTimeout,
			Dataset:        getEnv("GFW_DATASET", defaultGFWDataset),
			RegionDataset:  getEnv("GFW_REGION_DATASET", defaultGFWRegionDataset),
		},
		Fetch: FetchConfig{
			MaxCallsPerSecond: defaultMaxCallsPerSecond,
			MaxRetries:        defaultMaxRetries,
			BackoffBase:       defaultBackoffBase,
		},
		Analysis: AnalysisConfig{
			StrongCorrelation:   defaultStrongCorrelation,
			ModerateCorrelation: defaultModerateCorrelation,
		},
		Catalog: CatalogConfig{
			MasterPaths:   pathsFromEnv("MPA_MASTER_CSV", defaultMasterPaths),
			FeaturesPaths: pathsFromEnv("MPA_FEATURES_CSV", defaultFeaturesPaths),
		},
		Watchlist: WatchlistConfig{
			WDPACodes: splitList(os.Getenv("WATCHLIST_WDPA_CODES")),
			Interval:  defaultWatchlistInterval,
			Window:    defaultWatchlistWindow,
		},
	}

	if v := os.Getenv("SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_READ_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}

	if v := os.Getenv("SERVER_WRITE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}

	if v := os.Getenv("ANALYZE_RATE_LIMIT"); v != "" {
		f, err := parseNonNegativeFloat(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ANALYZE_RATE_LIMIT: %w", err)
		}
		cfg.Server.AnalyzeRateLimit = f
	}

	if v := os.Getenv("ANALYZE_BURST"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ANALYZE_BURST: %w", err)
		}
		cfg.Server.AnalyzeBurst = n
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if v := os.Getenv("GFW_REQUEST_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid GFW_REQUEST_TIMEOUT_SECONDS: %w", err)
		}
		cfg.GFW.RequestTimeout = d
	}

	if v := os.Getenv("FETCH_MAX_CALLS_PER_SECOND"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FETCH_MAX_CALLS_PER_SECOND: %w", err)
		}
		cfg.Fetch.MaxCallsPerSecond = n
	}

	if v := os.Getenv("FETCH_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid FETCH_MAX_RETRIES: must be a non-negative integer")
		}
		cfg.Fetch.MaxRetries = n
	}

	if v := os.Getenv("FETCH_BACKOFF_BASE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 1 {
			return Config{}, fmt.Errorf("invalid FETCH_BACKOFF_BASE: must be a number >= 1")
		}
		cfg.Fetch.BackoffBase = f
	}

	if v := os.Getenv("TREND_STRONG_CORRELATION"); v != "" {
		f, err := parseUnitInterval(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TREND_STRONG_CORRELATION: %w", err)
		}
		cfg.Analysis.StrongCorrelation = f
	}

	if v := os.Getenv("TREND_MODERATE_CORRELATION"); v != "" {
		f, err := parseUnitInterval(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TREND_MODERATE_CORRELATION: %w", err)
		}
		cfg.Analysis.ModerateCorrelation = f
	}

	if v := os.Getenv("WATCHLIST_INTERVAL_MINUTES"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid WATCHLIST_INTERVAL_MINUTES: %w", err)
		}
		cfg.Watchlist.Interval = time.Duration(n) * time.Minute
	}

	if v := os.Getenv("WATCHLIST_WINDOW_DAYS"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid WATCHLIST_WINDOW_DAYS: %w", err)
		}
		cfg.Watchlist.Window = time.Duration(n) * 24 * time.Hour
	}

	if cfg.Analysis.ModerateCorrelation > cfg.Analysis.StrongCorrelation {
		return Config{}, fmt.Errorf("TREND_MODERATE_CORRELATION must not exceed TREND_STRONG_CORRELATION")
	}

	return cfg, nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}

func parseNonNegativeFloat(raw string) (float64, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("must be a non-negative number")
	}
	return f, nil
}

func parseUnitInterval(raw string) (float64, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || f > 1 {
		return 0, fmt.Errorf("must be a number between 0 and 1")
	}
	return f, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// pathsFromEnv returns the single configured path, or the fallbacks.
func pathsFromEnv(key string, fallbacks []string) []string {
	if v := os.Getenv(key); v != "" {
		return []string{v}
	}
	return append([]string(nil), fallbacks...)
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
