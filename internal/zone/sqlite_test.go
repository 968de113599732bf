package zone

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marketflow/marketflow/internal/common"
	"github.com/marketflow/marketflow/internal/model"
	"github.com/marketflow/marketflow/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleTable(name string) *model.Table {
	table := model.NewTable(name, []model.Column{
		{Name: "order_number", Type: model.TypeText},
		{Name: "quantity", Type: model.TypeInteger},
		{Name: "unit_price", Type: model.TypeReal},
		{Name: "order_date", Type: model.TypeTimestamp},
		{Name: "gift_wrap", Type: model.TypeBool},
	})
	table.Rows = [][]any{
		{"101", int64(2), 9.99, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"102", nil, 5.25, nil, false},
	}
	return table
}

func TestSQLiteStore_WriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := sampleTable("orders_raw")
	require.NoError(t, store.Write(ctx, Raw, in, service.Overwrite))

	out, err := store.Read(ctx, Raw, "orders_raw")
	require.NoError(t, err)

	assert.Equal(t, in.Columns, out.Columns)
	require.Equal(t, 2, out.NumRows())

	assert.Equal(t, "101", out.Value(0, "order_number"))
	assert.Equal(t, int64(2), out.Value(0, "quantity"))
	assert.Equal(t, 9.99, out.Value(0, "unit_price"))
	assert.Equal(t, true, out.Value(0, "gift_wrap"))

	ts, ok := out.Time(0, "order_date")
	require.True(t, ok)
	assert.True(t, ts.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	// Nulls survive the round trip.
	assert.Nil(t, out.Value(1, "quantity"))
	assert.Nil(t, out.Value(1, "order_date"))
}

func TestSQLiteStore_OverwriteReplacesWholesale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, Raw, sampleTable("orders_raw"), service.Overwrite))

	replacement := model.NewTable("orders_raw", []model.Column{
		{Name: "order_number", Type: model.TypeText},
	})
	replacement.Rows = [][]any{{"999"}}
	require.NoError(t, store.Write(ctx, Raw, replacement, service.Overwrite))

	out, err := store.Read(ctx, Raw, "orders_raw")
	require.NoError(t, err)
	assert.Equal(t, 1, out.NumRows())
	assert.Len(t, out.Columns, 1)
}

func TestSQLiteStore_FailIfExists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, Raw, sampleTable("orders_raw"), service.FailIfExists))
	err := store.Write(ctx, Raw, sampleTable("orders_raw"), service.FailIfExists)
	assert.True(t, errors.Is(err, common.ErrTableExists))
}

func TestSQLiteStore_ZonesAreIndependent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, Raw, sampleTable("orders"), service.Overwrite))

	exists, err := store.Exists(ctx, Staged, "orders")
	require.NoError(t, err)
	assert.False(t, exists, "table written to raw must not exist in staged")

	exists, err = store.Exists(ctx, Raw, "orders")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQLiteStore_List(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, Staged, sampleTable("orders___staged"), service.Overwrite))
	require.NoError(t, store.Write(ctx, Staged, sampleTable("order_items___staged"), service.Overwrite))

	names, err := store.List(ctx, Staged)
	require.NoError(t, err)
	assert.Equal(t, []string{"order_items___staged", "orders___staged"}, names)
}

func TestSQLiteStore_Drop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, App, sampleTable("predictors___x"), service.Overwrite))
	require.NoError(t, store.Drop(ctx, App, "predictors___x"))

	exists, err := store.Exists(ctx, App, "predictors___x")
	require.NoError(t, err)
	assert.False(t, exists)

	err = store.Drop(ctx, App, "predictors___x")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestSQLiteStore_UpstreamColumnNamesRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Flat-file and API exports ship headers with spaces, dashes, leading
	// digits, and non-ASCII text. Raw tables must carry them verbatim.
	in := model.NewTable("amazon_orders_raw", []model.Column{
		{Name: "Order ID", Type: model.TypeText},
		{Name: "Buyer Email", Type: model.TypeText},
		{Name: "ship-city", Type: model.TypeText},
		{Name: "12_month_total", Type: model.TypeReal},
		{Name: "Preis (€)", Type: model.TypeReal},
	})
	in.Rows = [][]any{
		{"101", "a@example.com", "Berlin", 12.5, 9.99},
	}
	require.NoError(t, store.Write(ctx, Raw, in, service.Overwrite))

	out, err := store.Read(ctx, Raw, "amazon_orders_raw")
	require.NoError(t, err)
	assert.Equal(t, in.Columns, out.Columns)
	require.Equal(t, 1, out.NumRows())
	assert.Equal(t, "a@example.com", out.Value(0, "Buyer Email"))
	assert.Equal(t, 12.5, out.Value(0, "12_month_total"))
}

func TestSQLiteStore_ColumnNameValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		column  string
		wantErr bool
	}{
		{"spaces allowed", "Order ID", false},
		{"dash allowed", "ship-city", false},
		{"leading digit allowed", "12_month_total", false},
		{"double quote rejected", `order"number`, true},
		{"backslash rejected", `order\number`, true},
		{"newline rejected", "order\nnumber", true},
		{"empty rejected", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := model.NewTable("orders_raw", []model.Column{
				{Name: tt.column, Type: model.TypeText},
			})
			table.Rows = [][]any{{"x"}}
			err := store.Write(ctx, Raw, table, service.Overwrite)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSQLiteStore_Validation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Read(ctx, "nope", "orders")
	assert.True(t, errors.Is(err, common.ErrUnknownZone))

	_, err = store.Read(ctx, Raw, "orders; DROP TABLE zone_catalog")
	assert.Error(t, err)

	_, err = store.Read(ctx, Raw, "missing_table")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}
