// Package model defines the data types shared across the pipeline: tables,
// record batches, phase tags, and the predictor record schema.
package model

import (
	"fmt"
	"time"
)

// ColumnType is the semantic type of a table column.
type ColumnType string

const (
	// TypeText holds free-form text values.
	TypeText ColumnType = "text"
	// TypeReal holds floating-point values.
	TypeReal ColumnType = "real"
	// TypeInteger holds whole-number values.
	TypeInteger ColumnType = "integer"
	// TypeTimestamp holds point-in-time values.
	TypeTimestamp ColumnType = "timestamp"
	// TypeBool holds true/false values.
	TypeBool ColumnType = "bool"
)

// Column describes one column of a table: its name and semantic type.
type Column struct {
	Name string
	Type ColumnType
}

// Table is an ordered collection of rows under a fixed column schema.
// Cell values are nil (null), string, float64, int64, bool, or time.Time
// according to the column type.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// NewTable creates an empty table with the given schema.
func NewTable(name string, columns []Column) *Table {
	return &Table{Name: name, Columns: columns}
}

// NumRows returns the number of rows in the table.
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of the named column, or -1 if absent.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// ColumnNames returns the column names in schema order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// AppendRow adds a row, validating its width against the schema.
func (t *Table) AppendRow(row []any) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table %q has %d columns", len(row), t.Name, len(t.Columns))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Value returns the cell at (row, column name), or nil if the column is absent.
func (t *Table) Value(row int, column string) any {
	idx := t.ColumnIndex(column)
	if idx < 0 || row < 0 || row >= len(t.Rows) {
		return nil
	}
	return t.Rows[row][idx]
}

// Float returns the cell at (row, column) coerced to float64. The second
// return is false for nulls and non-numeric values.
func (t *Table) Float(row int, column string) (float64, bool) {
	return AsFloat(t.Value(row, column))
}

// Time returns the cell at (row, column) as a time.Time if it holds one.
func (t *Table) Time(row int, column string) (time.Time, bool) {
	v, ok := t.Value(row, column).(time.Time)
	return v, ok
}

// AsFloat coerces a cell value to float64 where the value is numeric.
func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
