package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marketflow/marketflow/internal/common"
	"github.com/marketflow/marketflow/internal/model"

	"github.com/jackc/pgx/v5"
)

// LegacyConfig holds the connection settings for the legacy relational
// database. Credential and tunnel management lives outside the pipeline; the
// DSN arrives here already resolved.
type LegacyConfig struct {
	DSN   string
	Query string
	Alias string // human-readable name recorded as import_source
}

// Validate ensures all required fields are present.
func (c *LegacyConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("%w: legacy DSN is required", common.ErrMissingConfig)
	}
	if c.Query == "" {
		return fmt.Errorf("%w: legacy query is required", common.ErrMissingConfig)
	}
	return nil
}

// LegacySource reads rows for one fixed SQL statement from the legacy
// database and normalizes them to a RecordBatch. Column names arrive exactly
// as the legacy schema spells them; renaming belongs to the Stage phase.
type LegacySource struct {
	logger *slog.Logger
	desc   model.SourceDescriptor
	cfg    LegacyConfig
}

// NewLegacySource creates a source for one legacy entity query.
func NewLegacySource(cfg LegacyConfig, desc model.SourceDescriptor) (*LegacySource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &LegacySource{
		cfg:    cfg,
		desc:   desc,
		logger: slog.Default().With("component", "source.legacy", "entity", desc.Entity),
	}, nil
}

// Describe returns the source descriptor used for raw-zone tagging.
func (s *LegacySource) Describe() model.SourceDescriptor {
	return s.desc
}

// Fetch connects, runs the fixed query, and drains it into one batch.
func (s *LegacySource) Fetch(ctx context.Context) (model.RecordBatch, error) {
	conn, err := pgx.Connect(ctx, s.cfg.DSN)
	if err != nil {
		return model.RecordBatch{}, fmt.Errorf("%w: %v", common.ErrUpstreamGone, err)
	}
	defer func() { _ = conn.Close(ctx) }()

	rows, err := conn.Query(ctx, s.cfg.Query)
	if err != nil {
		return model.RecordBatch{}, fmt.Errorf("legacy query failed: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	batch := model.RecordBatch{Columns: make([]string, len(fields))}
	for i, f := range fields {
		batch.Columns[i] = f.Name
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return model.RecordBatch{}, fmt.Errorf("failed to read legacy row: %w", err)
		}
		row := make([]any, len(values))
		copy(row, values)
		batch.Rows = append(batch.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return model.RecordBatch{}, fmt.Errorf("legacy row stream failed: %w", err)
	}

	s.logger.Info("Fetched records from legacy database",
		"alias", s.cfg.Alias,
		"records", len(batch.Rows))

	return batch, nil
}
