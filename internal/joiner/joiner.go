// Package joiner resolves the denormalized composite-key relationship
// between staged order headers and staged order line items into one
// transaction-level table.
//
// Header uniqueness requires (order_number, owner_id); a line item references
// its header through (order_number, owner_id_copy), a denormalized duplicate
// of the owner identifier stored on every line item. Joining on order_number
// alone silently fans out across distinct owners that share an order number,
// so the join always matches on both components, and the integrity checks
// before it are load-bearing, not diagnostics.
package joiner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/marketflow/marketflow/internal/common"
	"github.com/marketflow/marketflow/internal/model"
	"github.com/marketflow/marketflow/internal/service"
	"github.com/marketflow/marketflow/internal/zone"
)

// Keys names the composite-key columns on both sides of the join.
type Keys struct {
	OrderNumber string // shared column name on header and detail
	HeaderOwner string // owner identifier on the header side
	DetailOwner string // denormalized owner copy on the detail side
}

// Options configures one join run.
type Options struct {
	Entity       string // output entity name, e.g. "sales"
	Keys         Keys
	LineNumber   string  // detail column; used to build transaction ids
	Quantity     string  // detail column for line totals
	UnitPrice    string  // detail column for line totals
	OrderDate    string  // header column time parts derive from
	MinMatchRate float64 // matched/detail ratio below this is a warning
}

// Stats reports what the join saw and did.
type Stats struct {
	HeaderRows          int
	DetailRows          int
	MatchedRows         int
	DuplicateHeaderKeys int
	DuplicateSamples    []string
	OwnerOverlap        int
	MatchRate           float64
}

// Joiner reads staged tables and writes the transformed transaction table.
type Joiner struct {
	zones  service.ZoneStore
	logger *slog.Logger
}

// New creates a joiner bound to a zone store.
func New(zones service.ZoneStore) *Joiner {
	return &Joiner{
		zones:  zones,
		logger: slog.Default().With("component", "joiner"),
	}
}

// Join reads the two staged tables, resolves the composite-key relationship,
// and overwrites the transformed table. An empty owner-id domain overlap is
// a hard failure: no output is produced for that run.
func (j *Joiner) Join(ctx context.Context, headerTable, detailTable string, opts Options) (model.Result, *Stats, error) {
	headers, err := j.zones.Read(ctx, zone.Staged, headerTable)
	if err != nil {
		return model.Failed(opts.Entity, err.Error()), nil, fmt.Errorf("failed to read headers %s: %w", headerTable, err)
	}
	details, err := j.zones.Read(ctx, zone.Staged, detailTable)
	if err != nil {
		return model.Failed(opts.Entity, err.Error()), nil, fmt.Errorf("failed to read line items %s: %w", detailTable, err)
	}

	out, stats, warnings, err := Resolve(headers, details, opts)
	if err != nil {
		return model.Failed(opts.Entity, err.Error()), &stats, err
	}
	for _, w := range warnings {
		j.logger.Warn("Join data-quality signal", "entity", opts.Entity, "warning", w)
	}

	if err := j.zones.Write(ctx, zone.Transformed, out, service.Overwrite); err != nil {
		return model.Failed(opts.Entity, err.Error()), &stats, fmt.Errorf("failed to persist transformed table %s: %w", out.Name, err)
	}

	j.logger.Info("Resolved composite-key join",
		"table", out.Name,
		"headers", stats.HeaderRows,
		"details", stats.DetailRows,
		"matched", stats.MatchedRows,
		"match_rate", fmt.Sprintf("%.2f", stats.MatchRate))

	result := model.Success(opts.Entity, out.Name, stats.DetailRows, stats.MatchedRows)
	for _, w := range warnings {
		result = result.Warn(w)
	}
	return result, &stats, nil
}

// Resolve performs the composite-key join on in-memory tables. Non-matching
// detail rows are dropped: a line item whose header cannot be resolved is not
// reportable as a sale.
func Resolve(headers, details *model.Table, opts Options) (*model.Table, Stats, []string, error) {
	stats := Stats{HeaderRows: headers.NumRows(), DetailRows: details.NumRows()}
	var warnings []string

	hOrder := headers.ColumnIndex(opts.Keys.OrderNumber)
	hOwner := headers.ColumnIndex(opts.Keys.HeaderOwner)
	dOrder := details.ColumnIndex(opts.Keys.OrderNumber)
	dOwner := details.ColumnIndex(opts.Keys.DetailOwner)
	if hOrder < 0 || hOwner < 0 {
		return nil, stats, nil, fmt.Errorf("header table lacks key columns %q/%q", opts.Keys.OrderNumber, opts.Keys.HeaderOwner)
	}
	if dOrder < 0 || dOwner < 0 {
		return nil, stats, nil, fmt.Errorf("detail table lacks key columns %q/%q", opts.Keys.OrderNumber, opts.Keys.DetailOwner)
	}

	// 1. Integrity pre-check: duplicate composite keys on the header side
	// violate the uniqueness assumption and are surfaced, never silently
	// deduplicated.
	headerIdx := make(map[string]int, headers.NumRows())
	for i, row := range headers.Rows {
		key := compositeKey(row[hOrder], row[hOwner])
		if _, dup := headerIdx[key]; dup {
			stats.DuplicateHeaderKeys++
			if len(stats.DuplicateSamples) < 5 {
				stats.DuplicateSamples = append(stats.DuplicateSamples, key)
			}
			continue
		}
		headerIdx[key] = i
	}
	if stats.DuplicateHeaderKeys > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"%d duplicate header keys violate uniqueness (samples: %v)",
			stats.DuplicateHeaderKeys, stats.DuplicateSamples))
	}

	// 2. Key-domain overlap check. An empty intersection means the
	// denormalized copy field is not populated as expected (e.g. the wrong
	// source column was mapped), which is structurally different from zero
	// matching rows.
	headerOwners := make(map[string]bool)
	for _, row := range headers.Rows {
		if row[hOwner] != nil {
			headerOwners[fmt.Sprintf("%v", row[hOwner])] = true
		}
	}
	detailOwners := make(map[string]bool)
	for _, row := range details.Rows {
		if row[dOwner] != nil {
			detailOwners[fmt.Sprintf("%v", row[dOwner])] = true
		}
	}
	for o := range detailOwners {
		if headerOwners[o] {
			stats.OwnerOverlap++
		}
	}
	if stats.OwnerOverlap == 0 && len(headerOwners) > 0 && len(detailOwners) > 0 {
		return nil, stats, warnings, fmt.Errorf(
			"%w: %d header owners and %d detail owner copies share no values",
			common.ErrKeyDomainDisjoint, len(headerOwners), len(detailOwners))
	}

	// 3. Inner join on both key components.
	out := buildOutputSchema(headers, details, opts)
	build := newRowBuilder(headers, details, opts)
	for _, dRow := range details.Rows {
		hIdx, ok := headerIdx[compositeKey(dRow[dOrder], dRow[dOwner])]
		if !ok {
			continue
		}
		out.Rows = append(out.Rows, build(headers.Rows[hIdx], dRow))
		stats.MatchedRows++
	}

	// 4. Match-rate validation.
	if stats.DetailRows > 0 {
		stats.MatchRate = float64(stats.MatchedRows) / float64(stats.DetailRows)
		if stats.MatchRate < opts.MinMatchRate {
			warnings = append(warnings, fmt.Sprintf(
				"match rate %.2f below threshold %.2f (%d of %d line items resolved)",
				stats.MatchRate, opts.MinMatchRate, stats.MatchedRows, stats.DetailRows))
		}
	}

	return out, stats, warnings, nil
}

func compositeKey(orderNumber, owner any) string {
	return fmt.Sprintf("%v\x1f%v", orderNumber, owner)
}

// detailColumns lists the detail columns carried into the output: everything
// except the key columns (already present from the header side) and staging
// metadata, with name collisions suffixed _item.
func detailColumns(headers, details *model.Table, opts Options) (indices []int, names []string) {
	for i, c := range details.Columns {
		if c.Name == opts.Keys.OrderNumber || c.Name == opts.Keys.DetailOwner {
			continue
		}
		name := c.Name
		if headers.HasColumn(name) {
			name += "_item"
		}
		indices = append(indices, i)
		names = append(names, name)
	}
	return indices, names
}

func buildOutputSchema(headers, details *model.Table, opts Options) *model.Table {
	columns := make([]model.Column, 0, len(headers.Columns)+len(details.Columns)+6)
	columns = append(columns, headers.Columns...)

	idx, names := detailColumns(headers, details, opts)
	for i, di := range idx {
		columns = append(columns, model.Column{Name: names[i], Type: details.Columns[di].Type})
	}

	// 5. Row-level derived fields exist only after the join succeeds.
	columns = append(columns,
		model.Column{Name: "transaction_id", Type: model.TypeText},
		model.Column{Name: "line_total", Type: model.TypeReal},
		model.Column{Name: "order_year", Type: model.TypeInteger},
		model.Column{Name: "order_month", Type: model.TypeInteger},
		model.Column{Name: "order_weekday", Type: model.TypeInteger},
	)
	return model.NewTable(model.TableName(opts.Entity, "transformed"), columns)
}

// newRowBuilder resolves all column positions once and returns a builder
// for the joined rows.
func newRowBuilder(headers, details *model.Table, opts Options) func(hRow, dRow []any) []any {
	carried, _ := detailColumns(headers, details, opts)
	orderIdx := headers.ColumnIndex(opts.Keys.OrderNumber)
	lineIdx := details.ColumnIndex(opts.LineNumber)
	qtyIdx := details.ColumnIndex(opts.Quantity)
	priceIdx := details.ColumnIndex(opts.UnitPrice)
	dateIdx := headers.ColumnIndex(opts.OrderDate)

	return func(hRow, dRow []any) []any {
		row := make([]any, 0, len(hRow)+len(carried)+5)
		row = append(row, hRow...)
		for _, di := range carried {
			row = append(row, dRow[di])
		}

		orderNumber := hRow[orderIdx]
		var txnID any
		if lineIdx >= 0 && dRow[lineIdx] != nil {
			txnID = fmt.Sprintf("%v_%v", orderNumber, dRow[lineIdx])
		} else {
			txnID = fmt.Sprintf("%v", orderNumber)
		}

		var lineTotal any
		if qtyIdx >= 0 && priceIdx >= 0 {
			if q, qok := model.AsFloat(dRow[qtyIdx]); qok {
				if p, pok := model.AsFloat(dRow[priceIdx]); pok {
					lineTotal = q * p
				}
			}
		}

		var year, month, weekday any
		if dateIdx >= 0 {
			if ts, ok := hRow[dateIdx].(time.Time); ok {
				year = int64(ts.Year())
				month = int64(ts.Month())
				weekday = int64(ts.Weekday())
			}
		}

		return append(row, txnID, lineTotal, year, month, weekday)
	}
}
