package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/marketflow/marketflow/internal/model"
	"github.com/marketflow/marketflow/internal/testutil"
	"github.com/marketflow/marketflow/internal/zone"
)

type fakeSource struct {
	desc  model.SourceDescriptor
	batch model.RecordBatch
	err   error
}

func (f *fakeSource) Fetch(ctx context.Context) (model.RecordBatch, error) {
	if f.err != nil {
		return model.RecordBatch{}, f.err
	}
	return f.batch, nil
}

func (f *fakeSource) Describe() model.SourceDescriptor { return f.desc }

func ordersSource() *fakeSource {
	return &fakeSource{
		desc: model.SourceDescriptor{
			Platform: "amazon",
			Entity:   "orders",
			Company:  "acme",
			Source:   "https://api.example.com/orders",
		},
		batch: model.RecordBatch{
			Columns: []string{"Bestellnummer", "Haendler"},
			Rows: [][]any{
				{"101", "A"},
				{"102", "B"},
			},
		},
	}
}

func TestImport_WritesRawTableWithMetadata(t *testing.T) {
	ctx := context.Background()
	zones := testutil.SetupZones(t)

	imp := New(zones, "run-1")
	result, err := imp.Import(ctx, ordersSource())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Status != model.StatusSuccess {
		t.Errorf("status = %s, want %s", result.Status, model.StatusSuccess)
	}

	raw, err := zones.Read(ctx, zone.Raw, "amazon_orders_raw")
	if err != nil {
		t.Fatalf("read raw table: %v", err)
	}
	if raw.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", raw.NumRows())
	}

	// Source columns pass through verbatim, metadata columns are appended.
	if got := raw.Value(0, "Bestellnummer"); got != "101" {
		t.Errorf("Bestellnummer = %v, want 101 unmodified", got)
	}
	if got := raw.Value(0, "import_source"); got != "https://api.example.com/orders" {
		t.Errorf("import_source = %v", got)
	}
	if got := raw.Value(1, "platform_code"); got != "amazon" {
		t.Errorf("platform_code = %v, want amazon", got)
	}
	if _, ok := raw.Time(0, "import_timestamp"); !ok {
		t.Error("import_timestamp must be a timestamp")
	}
	if got := raw.Value(0, "import_run_id"); got != "run-1" {
		t.Errorf("import_run_id = %v, want run-1", got)
	}
}

func TestImport_PreservesUpstreamColumnNames(t *testing.T) {
	ctx := context.Background()
	zones := testutil.SetupZones(t)

	src := ordersSource()
	src.batch = model.RecordBatch{
		Columns: []string{"Order ID", "Buyer Email", "12_month_total"},
		Rows: [][]any{
			{"101", "a@example.com", 12.5},
		},
	}

	imp := New(zones, "run-1")
	if _, err := imp.Import(ctx, src); err != nil {
		t.Fatalf("Import with realistic export header: %v", err)
	}

	raw, err := zones.Read(ctx, zone.Raw, "amazon_orders_raw")
	if err != nil {
		t.Fatalf("read raw table: %v", err)
	}
	if got := raw.Value(0, "Order ID"); got != "101" {
		t.Errorf("Order ID = %v, want 101 under the verbatim header", got)
	}
	if got := raw.Value(0, "Buyer Email"); got != "a@example.com" {
		t.Errorf("Buyer Email = %v", got)
	}
}

func TestImport_FetchFailurePreservesPreviousTable(t *testing.T) {
	ctx := context.Background()
	zones := testutil.SetupZones(t)

	imp := New(zones, "run-1")
	if _, err := imp.Import(ctx, ordersSource()); err != nil {
		t.Fatalf("first import: %v", err)
	}

	broken := ordersSource()
	broken.err = errors.New("upstream exploded")
	result, err := imp.Import(ctx, broken)
	if err == nil {
		t.Fatal("expected fetch error to propagate")
	}
	if result.Status != model.StatusFailed {
		t.Errorf("status = %s, want %s", result.Status, model.StatusFailed)
	}

	// The previous import is still readable.
	raw, err := zones.Read(ctx, zone.Raw, "amazon_orders_raw")
	if err != nil {
		t.Fatalf("previous raw table must survive a failed fetch: %v", err)
	}
	if raw.NumRows() != 2 {
		t.Errorf("rows = %d, want 2 from the previous import", raw.NumRows())
	}
}

func TestImport_RerunOverwritesWholesale(t *testing.T) {
	ctx := context.Background()
	zones := testutil.SetupZones(t)

	imp := New(zones, "run-1")
	if _, err := imp.Import(ctx, ordersSource()); err != nil {
		t.Fatalf("first import: %v", err)
	}

	smaller := ordersSource()
	smaller.batch.Rows = smaller.batch.Rows[:1]
	if _, err := imp.Import(ctx, smaller); err != nil {
		t.Fatalf("second import: %v", err)
	}

	raw, err := zones.Read(ctx, zone.Raw, "amazon_orders_raw")
	if err != nil {
		t.Fatalf("read raw table: %v", err)
	}
	if raw.NumRows() != 1 {
		t.Errorf("rows = %d, want 1 (replace, not append)", raw.NumRows())
	}
}
