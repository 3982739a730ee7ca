package catalog

import (
	"log/slog"

	"github.com/mpawatch/mpawatch/internal/config"
)

// Load reads both reference CSVs. A missing or unreadable file is logged and
// leaves that half of the catalog empty; analysis still works without it.
func Load(cfg config.CatalogConfig, logger *slog.Logger) *Catalog {
	mpas, err := LoadMPAs(cfg.MasterPaths)
	if err != nil {
		logger.Warn("MPA master list unavailable", "paths", cfg.MasterPaths, "error", err)
	}

	features, err := LoadFeatures(cfg.FeaturesPaths)
	if err != nil {
		logger.Warn("protected features unavailable", "paths", cfg.FeaturesPaths, "error", err)
	}

	logger.Info("catalog loaded", "mpas", len(mpas), "feature_sites", len(features))
	return New(mpas, features)
}
