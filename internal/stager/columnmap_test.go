package stager

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/marketflow/marketflow/internal/common"
	"github.com/marketflow/marketflow/internal/model"
)

func TestLoadColumnMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.yaml")
	content := `entity: orders
date_column: order_date
natural_key: [order_number, owner_id]
drop_unmapped: true
columns:
  - raw: Bestellnummer
    name: order_number
    type: text
  - raw: Haendler
    name: owner_id
    type: text
    repair_text: true
  - raw: Bestelldatum
    name: order_date
    type: timestamp
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	m, err := LoadColumnMap(path)
	if err != nil {
		t.Fatalf("LoadColumnMap: %v", err)
	}
	if m.Entity != "orders" || len(m.Columns) != 3 {
		t.Errorf("loaded map = %+v", m)
	}
	if !m.Columns[1].RepairText {
		t.Error("repair_text did not unmarshal")
	}
	if m.Columns[2].Type != model.TypeTimestamp {
		t.Errorf("type = %q, want timestamp", m.Columns[2].Type)
	}
}

func TestLoadColumnMap_MissingFile(t *testing.T) {
	if _, err := LoadColumnMap(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestColumnMapValidate(t *testing.T) {
	valid := func() *ColumnMap {
		return &ColumnMap{
			Entity:     "orders",
			DateColumn: "order_date",
			NaturalKey: []string{"order_number"},
			Columns: []ColumnSpec{
				{Raw: "A", Name: "order_number", Type: model.TypeText},
				{Raw: "B", Name: "order_date", Type: model.TypeTimestamp},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(*ColumnMap)
	}{
		{"empty entity", func(m *ColumnMap) { m.Entity = "" }},
		{"no columns", func(m *ColumnMap) { m.Columns = nil }},
		{"missing raw", func(m *ColumnMap) { m.Columns[0].Raw = "" }},
		{"duplicate raw", func(m *ColumnMap) { m.Columns[1].Raw = "A" }},
		{"duplicate name", func(m *ColumnMap) { m.Columns[1].Name = "order_number" }},
		{"unknown type", func(m *ColumnMap) { m.Columns[0].Type = "varchar" }},
		{"key not mapped", func(m *ColumnMap) { m.NaturalKey = []string{"nope"} }},
		{"date not mapped", func(m *ColumnMap) { m.DateColumn = "nope" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid()
			tt.mutate(m)
			if err := m.Validate(); !errors.Is(err, common.ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("valid map rejected: %v", err)
	}
}
