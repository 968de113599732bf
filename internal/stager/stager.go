package stager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/marketflow/marketflow/internal/model"
	"github.com/marketflow/marketflow/internal/service"
	"github.com/marketflow/marketflow/internal/zone"
)

// metadata columns stamped by the importer; they never survive staging.
var importMetadata = map[string]bool{
	"import_source":    true,
	"import_timestamp": true,
	"platform_code":    true,
	"import_run_id":    true,
}

// Stager reads raw tables and writes standardized staged tables.
type Stager struct {
	zones   service.ZoneStore
	logger  *slog.Logger
	version string
}

// New creates a stager bound to a zone store. version is stamped into every
// staged row as staging_version.
func New(zones service.ZoneStore, version string) *Stager {
	return &Stager{
		zones:   zones,
		version: version,
		logger:  slog.Default().With("component", "stager"),
	}
}

// Stage reads the named raw table, applies the column map, and overwrites
// the entity's staged table.
func (s *Stager) Stage(ctx context.Context, rawTable string, m *ColumnMap) (model.Result, error) {
	raw, err := s.zones.Read(ctx, zone.Raw, rawTable)
	if err != nil {
		return model.Failed(m.Entity, err.Error()), fmt.Errorf("failed to read raw table %s: %w", rawTable, err)
	}

	staged, warnings := Apply(raw, m, time.Now().UTC(), s.version)
	for _, w := range warnings {
		s.logger.Warn("Staging data-quality signal", "entity", m.Entity, "warning", w)
	}

	if err := s.zones.Write(ctx, zone.Staged, staged, service.Overwrite); err != nil {
		return model.Failed(m.Entity, err.Error()), fmt.Errorf("failed to persist staged table %s: %w", staged.Name, err)
	}

	s.logger.Info("Staged table",
		"table", staged.Name,
		"rows_in", raw.NumRows(),
		"rows_out", staged.NumRows())

	result := model.Success(m.Entity, staged.Name, raw.NumRows(), staged.NumRows())
	for _, w := range warnings {
		result = result.Warn(w)
	}
	return result, nil
}

// Apply runs the staging steps in order: rename, coerce, repair, dedup,
// stamp. It never fails on schema drift: absent mapped columns are skipped
// and reported as warnings. Output row count never exceeds input row count.
func Apply(raw *model.Table, m *ColumnMap, now time.Time, version string) (*model.Table, []string) {
	var warnings []string

	// 1. Resolve the column map against the columns actually present.
	type binding struct {
		spec   ColumnSpec
		srcIdx int
	}
	var bindings []binding
	mappedRaw := make(map[string]bool, len(m.Columns))
	for _, spec := range m.Columns {
		mappedRaw[spec.Raw] = true
		idx := raw.ColumnIndex(spec.Raw)
		if idx < 0 {
			warnings = append(warnings, fmt.Sprintf("schema drift: raw column %q absent, mapping to %q skipped", spec.Raw, spec.Name))
			continue
		}
		bindings = append(bindings, binding{spec: spec, srcIdx: idx})
	}

	// Unmapped raw columns are dropped or passed through unchanged, and
	// reported either way. Import metadata never passes through.
	for i, c := range raw.Columns {
		if mappedRaw[c.Name] || importMetadata[c.Name] {
			continue
		}
		if m.DropUnmapped {
			warnings = append(warnings, fmt.Sprintf("unmapped raw column %q dropped", c.Name))
			continue
		}
		warnings = append(warnings, fmt.Sprintf("unmapped raw column %q passed through unchanged", c.Name))
		bindings = append(bindings, binding{
			spec:   ColumnSpec{Raw: c.Name, Name: c.Name, Type: model.TypeText},
			srcIdx: i,
		})
	}

	columns := make([]model.Column, 0, len(bindings)+2)
	for _, b := range bindings {
		t := b.spec.Type
		if t == "" {
			t = model.TypeText
		}
		columns = append(columns, model.Column{Name: b.spec.Name, Type: t})
	}

	out := model.NewTable(model.TableName(m.Entity, "staged"), columns)

	// 2+3. Coerce declared types and repair flagged text columns.
	for _, srcRow := range raw.Rows {
		row := make([]any, len(bindings))
		for j, b := range bindings {
			v := coerceValue(srcRow[b.srcIdx], out.Columns[j].Type)
			if b.spec.RepairText {
				if s, ok := v.(string); ok {
					v = RepairText(s)
				}
			}
			row[j] = v
		}
		out.Rows = append(out.Rows, row)
	}

	// 4. Deduplicate on the natural key, keeping the most-recently-dated
	// row on conflict, or first-seen when no date column exists. A natural
	// key with missing columns is flagged and dedup is skipped: removing
	// rows on a partial key would conflate distinct entities.
	if len(m.NaturalKey) > 0 {
		missing := missingKeyColumns(out, m.NaturalKey)
		if len(missing) > 0 {
			warnings = append(warnings, fmt.Sprintf("natural key incomplete, columns %v absent; deduplication skipped", missing))
		} else {
			before := out.NumRows()
			dedupe(out, m)
			if removed := before - out.NumRows(); removed > 0 {
				warnings = append(warnings, fmt.Sprintf("deduplication removed %d rows", removed))
			}
		}
	}

	// 5. Stamp staging metadata.
	out.Columns = append(out.Columns,
		model.Column{Name: "staged_timestamp", Type: model.TypeTimestamp},
		model.Column{Name: "staging_version", Type: model.TypeText},
	)
	for i, row := range out.Rows {
		out.Rows[i] = append(row, now, version)
	}

	return out, warnings
}

func missingKeyColumns(t *model.Table, key []string) []string {
	var missing []string
	for _, k := range key {
		if !t.HasColumn(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

// dedupe removes natural-key duplicates in place, preserving the original
// order of the rows that survive.
func dedupe(t *model.Table, m *ColumnMap) {
	keyIdx := make([]int, len(m.NaturalKey))
	for i, k := range m.NaturalKey {
		keyIdx[i] = t.ColumnIndex(k)
	}
	dateIdx := -1
	if m.DateColumn != "" {
		dateIdx = t.ColumnIndex(m.DateColumn)
	}

	best := make(map[string]int, len(t.Rows))
	for i, row := range t.Rows {
		key := rowKey(row, keyIdx)
		prev, seen := best[key]
		if !seen {
			best[key] = i
			continue
		}
		if dateIdx >= 0 && laterDate(row[dateIdx], t.Rows[prev][dateIdx]) {
			best[key] = i
		}
	}

	kept := make([]int, 0, len(best))
	for _, idx := range best {
		kept = append(kept, idx)
	}
	sort.Ints(kept)

	rows := make([][]any, 0, len(kept))
	for _, idx := range kept {
		rows = append(rows, t.Rows[idx])
	}
	t.Rows = rows
}

func rowKey(row []any, keyIdx []int) string {
	parts := make([]string, len(keyIdx))
	for i, idx := range keyIdx {
		parts[i] = fmt.Sprintf("%v", row[idx])
	}
	return strings.Join(parts, "\x1f")
}

// laterDate reports whether a is a parseable date strictly after b. A null
// or unparseable date never displaces an existing row.
func laterDate(a, b any) bool {
	at, aok := a.(time.Time)
	if !aok {
		return false
	}
	bt, bok := b.(time.Time)
	if !bok {
		return true
	}
	return at.After(bt)
}

// coerceValue converts a raw value to the declared column type. Unparsable
// values become nulls rather than errors.
func coerceValue(v any, t model.ColumnType) any {
	if v == nil {
		return nil
	}
	switch t {
	case model.TypeReal:
		return coerceReal(v)
	case model.TypeInteger:
		return coerceInteger(v)
	case model.TypeTimestamp:
		return coerceTimestamp(v)
	case model.TypeBool:
		return coerceBool(v)
	default:
		return coerceText(v)
	}
}

func coerceText(v any) any {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func coerceReal(v any) any {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case string:
		s := strings.TrimSpace(x)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		// Legacy exports use a comma decimal separator.
		if f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64); err == nil {
			return f
		}
		return nil
	default:
		return nil
	}
}

func coerceInteger(v any) any {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		if x == float64(int64(x)) {
			return int64(x)
		}
		return nil
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return n
		}
		return nil
	default:
		return nil
	}
}

// timestampLayouts are tried in order when coercing text dates.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006",
}

func coerceTimestamp(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts
			}
		}
		return nil
	default:
		return nil
	}
}

func coerceBool(v any) any {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "yes", "y":
			return true
		case "false", "0", "no", "n":
			return false
		}
		return nil
	default:
		return nil
	}
}
