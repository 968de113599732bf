package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/marketflow/marketflow/internal/common"
	"github.com/marketflow/marketflow/internal/model"
)

// CSVSource reads flat-file exports matching a glob. Every matched file must
// carry the same header row; files are concatenated in path order.
type CSVSource struct {
	logger *slog.Logger
	desc   model.SourceDescriptor
	glob   string
}

// NewCSVSource creates a source over a file glob.
func NewCSVSource(glob string, desc model.SourceDescriptor) (*CSVSource, error) {
	if glob == "" {
		return nil, fmt.Errorf("%w: file glob is required", common.ErrMissingConfig)
	}
	return &CSVSource{
		glob:   glob,
		desc:   desc,
		logger: slog.Default().With("component", "source.csv", "entity", desc.Entity),
	}, nil
}

// Describe returns the source descriptor used for raw-zone tagging.
func (s *CSVSource) Describe() model.SourceDescriptor {
	return s.desc
}

// Fetch reads all matching files into one batch. Empty cells become nulls so
// downstream null handling sees them uniformly.
func (s *CSVSource) Fetch(_ context.Context) (model.RecordBatch, error) {
	paths, err := filepath.Glob(s.glob)
	if err != nil {
		return model.RecordBatch{}, fmt.Errorf("invalid file glob %q: %w", s.glob, err)
	}
	if len(paths) == 0 {
		return model.RecordBatch{}, fmt.Errorf("%w: no files match %q", common.ErrNotFound, s.glob)
	}
	sort.Strings(paths)

	var batch model.RecordBatch
	for _, path := range paths {
		if err := s.readFile(path, &batch); err != nil {
			return model.RecordBatch{}, err
		}
	}

	s.logger.Info("Read flat files",
		"files", len(paths),
		"records", len(batch.Rows))

	return batch, nil
}

func (s *CSVSource) readFile(path string, batch *model.RecordBatch) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from a configured glob
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil
	}

	header := records[0]
	if batch.Columns == nil {
		batch.Columns = header
	} else if !equalHeaders(batch.Columns, header) {
		return fmt.Errorf("%w: header of %s differs from first file", common.ErrUpstreamPayload, path)
	}

	for _, rec := range records[1:] {
		row := make([]any, len(batch.Columns))
		for i := range batch.Columns {
			if i < len(rec) && rec[i] != "" {
				row[i] = rec[i]
			}
		}
		batch.Rows = append(batch.Rows, row)
	}
	return nil
}

func equalHeaders(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
