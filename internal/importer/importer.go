// Package importer implements the Import phase: pull a raw batch from an
// upstream source and persist it into the raw zone unmodified.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/marketflow/marketflow/internal/model"
	"github.com/marketflow/marketflow/internal/service"
	"github.com/marketflow/marketflow/internal/zone"
)

// Importer writes upstream record batches into the raw zone. Source column
// names and values pass through exactly as fetched; the only additions are
// the import metadata columns.
type Importer struct {
	zones  service.ZoneStore
	logger *slog.Logger
	runID  string
}

// New creates an importer bound to a zone store.
func New(zones service.ZoneStore, runID string) *Importer {
	return &Importer{
		zones:  zones,
		runID:  runID,
		logger: slog.Default().With("component", "importer"),
	}
}

// Import fetches one entity from its source and overwrites the raw table.
// A fetch error aborts before any write, leaving the previous raw table
// untouched.
func (i *Importer) Import(ctx context.Context, src service.Source) (model.Result, error) {
	desc := src.Describe()
	tableName := model.RawTableName(desc.Platform, desc.Entity)

	batch, err := src.Fetch(ctx)
	if err != nil {
		i.logger.Error("Import failed, previous raw table preserved",
			"entity", desc.Entity,
			"platform", desc.Platform,
			"error", err)
		return model.Failed(desc.Entity, err.Error()), fmt.Errorf("import of %s/%s failed: %w", desc.Platform, desc.Entity, err)
	}

	table := batch.ToTable(tableName)
	stampImportMetadata(table, desc, i.runID, time.Now().UTC())

	if err := i.zones.Write(ctx, zone.Raw, table, service.Overwrite); err != nil {
		return model.Failed(desc.Entity, err.Error()), fmt.Errorf("failed to persist raw table %s: %w", tableName, err)
	}

	i.logger.Info("Imported raw table",
		"table", tableName,
		"rows", table.NumRows(),
		"source", desc.Source)

	return model.Success(desc.Entity, tableName, len(batch.Rows), table.NumRows()), nil
}

// stampImportMetadata appends the import tagging columns to every row.
func stampImportMetadata(t *model.Table, desc model.SourceDescriptor, runID string, now time.Time) {
	t.Columns = append(t.Columns,
		model.Column{Name: "import_source", Type: model.TypeText},
		model.Column{Name: "import_timestamp", Type: model.TypeTimestamp},
		model.Column{Name: "platform_code", Type: model.TypeText},
		model.Column{Name: "import_run_id", Type: model.TypeText},
	)
	for i, row := range t.Rows {
		t.Rows[i] = append(row, desc.Source, now, desc.Platform, runID)
	}
}
