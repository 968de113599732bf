package config

import (
	"errors"
	"testing"

	"github.com/marketflow/marketflow/internal/common"
	"github.com/spf13/viper"
)

func validConfig() *Config {
	return &Config{
		DatabasePath: "/tmp/zones.db",
		Thresholds:   Thresholds{MinMatchRate: 0.5, MinPositives: 20, MaxZeroRate: 0.99},
		Segments: []SegmentConfig{
			{ID: "amazon", InputTable: "sales___transformed", DateColumn: "order_date", OutcomeColumn: "quantity"},
		},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"valid", func(c *Config) {}, true},
		{"match rate above one", func(c *Config) { c.Thresholds.MinMatchRate = 1.5 }, false},
		{"negative match rate", func(c *Config) { c.Thresholds.MinMatchRate = -0.1 }, false},
		{"zero rate ceiling zero", func(c *Config) { c.Thresholds.MaxZeroRate = 0 }, false},
		{"min positives zero", func(c *Config) { c.Thresholds.MinPositives = 0 }, false},
		{"empty segment id", func(c *Config) { c.Segments[0].ID = "" }, false},
		{
			"duplicate segment ids",
			func(c *Config) { c.Segments = append(c.Segments, c.Segments[0]) },
			false,
		},
		{"no segments is fine", func(c *Config) { c.Segments = nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.valid {
				if err == nil {
					t.Fatal("Validate() = nil, want error")
				}
				if !errors.Is(err, common.ErrInvalidConfig) {
					t.Errorf("err = %v, want ErrInvalidConfig", err)
				}
			}
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("database_path", "/tmp/zones.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Thresholds.MinMatchRate != 0.5 {
		t.Errorf("default min_match_rate = %v, want 0.5", cfg.Thresholds.MinMatchRate)
	}
	if cfg.Thresholds.MinPositives != 20 {
		t.Errorf("default min_positives = %v, want 20", cfg.Thresholds.MinPositives)
	}
	if cfg.Thresholds.MaxZeroRate != 0.99 {
		t.Errorf("default max_zero_rate = %v, want 0.99", cfg.Thresholds.MaxZeroRate)
	}
}

func TestLoadHonorsExplicitZeroMatchRate(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("database_path", "/tmp/zones.db")
	viper.Set("thresholds.min_match_rate", 0.0)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// An explicit zero disables the match-rate warning; it must not be
	// silently bumped back to the default.
	if cfg.Thresholds.MinMatchRate != 0 {
		t.Errorf("min_match_rate = %v, want 0", cfg.Thresholds.MinMatchRate)
	}
}

func TestLoadReadsSegments(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("database_path", "/tmp/zones.db")
	viper.Set("segments", []map[string]any{
		{
			"id":             "amazon",
			"input_table":    "sales___transformed",
			"date_column":    "order_date",
			"outcome_column": "quantity",
		},
		{
			"id":          "legacy",
			"input_table": "legacy_sales___transformed",
			"dateless":    true,
		},
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(cfg.Segments))
	}
	if cfg.Segments[0].OutcomeColumn != "quantity" {
		t.Errorf("outcome_column = %q, want quantity", cfg.Segments[0].OutcomeColumn)
	}
	if !cfg.Segments[1].Dateless {
		t.Error("dateless flag did not unmarshal")
	}
}
