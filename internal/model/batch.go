package model

// RecordBatch is the normalized shape every upstream source produces: an
// ordered set of rows under a fixed column list. Rows are independent; no
// intra-batch ordering is guaranteed downstream.
type RecordBatch struct {
	Columns []string
	Rows    [][]any
}

// ToTable converts a batch to a table, typing every column as text except
// those the caller cannot know; the Stage phase applies real types later.
func (b RecordBatch) ToTable(name string) *Table {
	cols := make([]Column, len(b.Columns))
	for i, c := range b.Columns {
		cols[i] = Column{Name: c, Type: TypeText}
	}
	return &Table{Name: name, Columns: cols, Rows: b.Rows}
}

// SourceDescriptor tells the importer where a batch comes from and how to
// tag it in the raw zone.
type SourceDescriptor struct {
	Platform string // e.g. "amazon", "shopify"
	Entity   string // e.g. "orders", "order_items", "reviews"
	Company  string
	Source   string // human-readable origin: endpoint URL, file glob, DSN alias
}
