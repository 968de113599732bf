// Package testutil provides shared fixtures for pipeline tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/marketflow/marketflow/internal/model"
	"github.com/marketflow/marketflow/internal/service"
	"github.com/marketflow/marketflow/internal/zone"
)

// SetupZones creates an in-memory zone store with automatic cleanup.
func SetupZones(t *testing.T) service.ZoneStore {
	t.Helper()

	store, err := zone.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create zone store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustWrite writes a table or fails the test.
func MustWrite(t *testing.T, zones service.ZoneStore, zoneName string, table *model.Table) {
	t.Helper()
	if err := zones.Write(context.Background(), zoneName, table, service.Overwrite); err != nil {
		t.Fatalf("failed to write %s/%s: %v", zoneName, table.Name, err)
	}
}

// Date builds a UTC midnight timestamp for fixture rows.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
