package model

import (
	"testing"
	"time"
)

func TestTable_ColumnIndex(t *testing.T) {
	table := NewTable("orders___staged", []Column{
		{Name: "order_number", Type: TypeText},
		{Name: "quantity", Type: TypeInteger},
	})

	tests := []struct {
		name   string
		column string
		want   int
	}{
		{name: "first column", column: "order_number", want: 0},
		{name: "second column", column: "quantity", want: 1},
		{name: "absent column", column: "unit_price", want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := table.ColumnIndex(tt.column); got != tt.want {
				t.Errorf("ColumnIndex(%q) = %d, want %d", tt.column, got, tt.want)
			}
		})
	}
}

func TestTable_AppendRow(t *testing.T) {
	table := NewTable("orders___staged", []Column{
		{Name: "order_number", Type: TypeText},
		{Name: "quantity", Type: TypeInteger},
	})

	if err := table.AppendRow([]any{"101", int64(2)}); err != nil {
		t.Fatalf("AppendRow failed: %v", err)
	}
	if err := table.AppendRow([]any{"101"}); err == nil {
		t.Error("expected error for short row, got nil")
	}
	if table.NumRows() != 1 {
		t.Errorf("NumRows = %d, want 1", table.NumRows())
	}
}

func TestAsFloat(t *testing.T) {
	tests := []struct {
		value  any
		name   string
		want   float64
		wantOK bool
	}{
		{name: "float64", value: 2.5, want: 2.5, wantOK: true},
		{name: "int64", value: int64(3), want: 3, wantOK: true},
		{name: "bool true", value: true, want: 1, wantOK: true},
		{name: "bool false", value: false, want: 0, wantOK: true},
		{name: "nil", value: nil, wantOK: false},
		{name: "string", value: "2.5", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AsFloat(tt.value)
			if ok != tt.wantOK || (ok && got != tt.want) {
				t.Errorf("AsFloat(%v) = (%v, %v), want (%v, %v)", tt.value, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTableName(t *testing.T) {
	tests := []struct {
		name      string
		entity    string
		qualifier string
		source    []string
		want      string
	}{
		{name: "two parts", entity: "sales", qualifier: "transformed", want: "sales___transformed"},
		{name: "with source", entity: "orders", qualifier: "staged", source: []string{"amazon"}, want: "orders___staged___amazon"},
		{name: "empty source skipped", entity: "orders", qualifier: "staged", source: []string{""}, want: "orders___staged"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TableName(tt.entity, tt.qualifier, tt.source...); got != tt.want {
				t.Errorf("TableName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTable_Time(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	table := NewTable("orders___staged", []Column{{Name: "order_date", Type: TypeTimestamp}})
	if err := table.AppendRow([]any{ts}); err != nil {
		t.Fatalf("AppendRow failed: %v", err)
	}

	got, ok := table.Time(0, "order_date")
	if !ok || !got.Equal(ts) {
		t.Errorf("Time = (%v, %v), want (%v, true)", got, ok, ts)
	}
}
