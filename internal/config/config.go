// Package config loads the per-run pipeline configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/marketflow/marketflow/internal/common"

	"github.com/spf13/viper"
)

// SegmentConfig identifies one independent unit of derivation.
type SegmentConfig struct {
	ID         string `mapstructure:"id"`
	InputTable string `mapstructure:"input_table"`
	// DateColumn names the column data_version is computed from. Segments
	// without one are permanently degraded and always produce the
	// empty-schema sentinel.
	DateColumn    string `mapstructure:"date_column"`
	OutcomeColumn string `mapstructure:"outcome_column"`
	Dateless      bool   `mapstructure:"dateless"`
}

// Thresholds holds the data-quality limits for the join and derive phases.
type Thresholds struct {
	// MinMatchRate is the matched/input ratio below which a join is a
	// quality warning. The run still proceeds.
	MinMatchRate float64 `mapstructure:"min_match_rate"`
	// MinPositives is the smallest count of non-zero outcomes a segment
	// may have and still be modeled.
	MinPositives int `mapstructure:"min_positives"`
	// MaxZeroRate is the largest zero-outcome share a segment may have and
	// still be modeled.
	MaxZeroRate float64 `mapstructure:"max_zero_rate"`
}

// Config is the full run configuration, loaded once per run.
type Config struct {
	DatabasePath string          `mapstructure:"database_path"`
	ColumnMapDir string          `mapstructure:"column_map_dir"`
	Segments     []SegmentConfig `mapstructure:"segments"`
	Thresholds   Thresholds      `mapstructure:"thresholds"`
}

// Load reads the configuration out of viper's resolved state. Defaults are
// registered with viper so an explicit value of zero is honored; in
// particular `min_match_rate: 0` disables the match-rate warning.
func Load() (*Config, error) {
	viper.SetDefault("thresholds.min_match_rate", 0.5)
	viper.SetDefault("thresholds.min_positives", 20)
	viper.SetDefault("thresholds.max_zero_rate", 0.99)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if cfg.DatabasePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DatabasePath = filepath.Join(home, ".local", "share", "marketflow", "zones.db")
	}

	return &cfg, cfg.Validate()
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Thresholds.MinMatchRate < 0 || c.Thresholds.MinMatchRate > 1 {
		return fmt.Errorf("%w: min_match_rate must be in [0, 1]", common.ErrInvalidConfig)
	}
	if c.Thresholds.MaxZeroRate <= 0 || c.Thresholds.MaxZeroRate > 1 {
		return fmt.Errorf("%w: max_zero_rate must be in (0, 1]", common.ErrInvalidConfig)
	}
	if c.Thresholds.MinPositives < 1 {
		return fmt.Errorf("%w: min_positives must be positive", common.ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Segments))
	for _, s := range c.Segments {
		if s.ID == "" {
			return fmt.Errorf("%w: segment with empty id", common.ErrInvalidConfig)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate segment id %q", common.ErrInvalidConfig, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}
