// Package service defines the interfaces consumed across the pipeline.
package service

import (
	"context"
	"time"

	"github.com/marketflow/marketflow/internal/model"
)

// WriteMode controls how a zone write treats an existing table.
type WriteMode int

const (
	// Overwrite replaces any existing table of the same name wholesale.
	Overwrite WriteMode = iota
	// FailIfExists refuses to replace an existing table.
	FailIfExists
)

// ZoneStore is the contract for the named storage zones. Each write is
// atomic at single-table granularity: a failed write leaves any previous
// table of that name untouched.
type ZoneStore interface {
	Exists(ctx context.Context, zone, table string) (bool, error)
	Read(ctx context.Context, zone, table string) (*model.Table, error)
	Write(ctx context.Context, zone string, table *model.Table, mode WriteMode) error
	List(ctx context.Context, zone string) ([]string, error)
	Drop(ctx context.Context, zone, table string) error
	Close() error
}

// Source is an upstream producer of record batches: a paged HTTP API, a
// legacy relational database, or a flat-file glob. Implementations normalize
// whatever they read into the same RecordBatch shape.
type Source interface {
	Fetch(ctx context.Context) (model.RecordBatch, error)
	Describe() model.SourceDescriptor
}

// RetryOptions configures retry behavior for transport operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryOptions returns sensible retry defaults for upstream calls.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}
