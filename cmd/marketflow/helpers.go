package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/marketflow/marketflow/internal/common"
	"github.com/marketflow/marketflow/internal/config"
	"github.com/marketflow/marketflow/internal/stager"
	"github.com/marketflow/marketflow/internal/zone"
)

func parseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// openZones loads configuration and opens the zone store behind it.
func openZones() (*config.Config, *zone.SQLiteStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	zones, err := zone.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return nil, nil, common.NewUserError(
			fmt.Sprintf("failed to open zone database at %s", cfg.DatabasePath), err)
	}
	return cfg, zones, nil
}

// loadColumnMap resolves an entity's column map, either from an explicit
// path or from the configured column map directory.
func loadColumnMap(cfg *config.Config, entity, explicitPath string) (*stager.ColumnMap, error) {
	path := explicitPath
	if path == "" {
		if cfg.ColumnMapDir == "" {
			return nil, fmt.Errorf("no column map path given and column_map_dir is not configured")
		}
		path = filepath.Join(cfg.ColumnMapDir, entity+".yaml")
	}
	return stager.LoadColumnMap(path)
}
