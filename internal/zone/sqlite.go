package zone

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marketflow/marketflow/internal/common"
	"github.com/marketflow/marketflow/internal/model"
	"github.com/marketflow/marketflow/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements service.ZoneStore on a single SQLite database.
// Logical tables are namespaced by zone; a catalog table preserves each
// logical table's column schema and semantic types.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (or creates) the zone database at dbPath. Pass
// ":memory:" for an ephemeral store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath cannot be empty")
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS zone_catalog (
			zone     TEXT NOT NULL,
			tbl      TEXT NOT NULL,
			col_pos  INTEGER NOT NULL,
			col_name TEXT NOT NULL,
			col_type TEXT NOT NULL,
			PRIMARY KEY (zone, tbl, col_pos)
		)`)
	if err != nil {
		return fmt.Errorf("failed to create zone catalog: %w", err)
	}
	return nil
}

// physName maps a (zone, table) pair to the physical SQLite table name.
func physName(zone, table string) string {
	return "zt_" + zone + "__" + table
}

// Exists reports whether the named table exists in the zone.
func (s *SQLiteStore) Exists(ctx context.Context, zone, table string) (bool, error) {
	if err := validateZone(zone); err != nil {
		return false, err
	}
	if err := validateTableName(table); err != nil {
		return false, err
	}

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT col_pos) FROM zone_catalog WHERE zone = ? AND tbl = ?`,
		zone, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	return n > 0, nil
}

// List returns the names of all tables in the zone, sorted.
func (s *SQLiteStore) List(ctx context.Context, zone string) ([]string, error) {
	if err := validateZone(zone); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT tbl FROM zone_catalog WHERE zone = ? ORDER BY tbl`, zone)
	if err != nil {
		return nil, fmt.Errorf("failed to list zone %s: %w", zone, err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Drop removes a table from the zone. Dropping an absent table is an error.
func (s *SQLiteStore) Drop(ctx context.Context, zone, table string) error {
	if err := validateZone(zone); err != nil {
		return err
	}
	if err := validateTableName(table); err != nil {
		return err
	}

	exists, err := s.Exists(ctx, zone, table)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s/%s", common.ErrNotFound, zone, table)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM zone_catalog WHERE zone = ? AND tbl = ?`, zone, table); err != nil {
		return fmt.Errorf("failed to drop catalog entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, physName(zone, table))); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	return tx.Commit()
}

// Write persists a table into the zone. The write is all-or-nothing: on any
// failure the previous table of the same name is left untouched.
func (s *SQLiteStore) Write(ctx context.Context, zone string, table *model.Table, mode service.WriteMode) error {
	if err := validateZone(zone); err != nil {
		return err
	}
	if table == nil {
		return fmt.Errorf("table cannot be nil")
	}
	if err := validateTableName(table.Name); err != nil {
		return err
	}
	if len(table.Columns) == 0 {
		return fmt.Errorf("table %q has no columns", table.Name)
	}
	for _, c := range table.Columns {
		if err := validateColumnName(c.Name); err != nil {
			return err
		}
	}

	if mode == service.FailIfExists {
		exists, err := s.Exists(ctx, zone, table.Name)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s/%s", common.ErrTableExists, zone, table.Name)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	phys := physName(zone, table.Name)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, phys)); err != nil {
		return fmt.Errorf("failed to replace table %s: %w", table.Name, err)
	}

	ddl := fmt.Sprintf(`CREATE TABLE %q (`, phys)
	for i, c := range table.Columns {
		if i > 0 {
			ddl += ", "
		}
		ddl += fmt.Sprintf(`%q %s`, c.Name, sqliteType(c.Type))
	}
	ddl += ")"
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table.Name, err)
	}

	insert := fmt.Sprintf(`INSERT INTO %q VALUES (`, phys)
	for i := range table.Columns {
		if i > 0 {
			insert += ", "
		}
		insert += "?"
	}
	insert += ")"
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, row := range table.Rows {
		if len(row) != len(table.Columns) {
			return fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(table.Columns))
		}
		args := make([]any, len(row))
		for j, v := range row {
			args[j] = toSQLValue(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM zone_catalog WHERE zone = ? AND tbl = ?`, zone, table.Name); err != nil {
		return fmt.Errorf("failed to refresh catalog: %w", err)
	}
	for i, c := range table.Columns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO zone_catalog (zone, tbl, col_pos, col_name, col_type) VALUES (?, ?, ?, ?, ?)`,
			zone, table.Name, i, c.Name, string(c.Type)); err != nil {
			return fmt.Errorf("failed to record catalog entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit write of %s/%s: %w", zone, table.Name, err)
	}
	return nil
}

// Read loads a table from the zone, restoring its semantic column types.
func (s *SQLiteStore) Read(ctx context.Context, zone, table string) (*model.Table, error) {
	if err := validateZone(zone); err != nil {
		return nil, err
	}
	if err := validateTableName(table); err != nil {
		return nil, err
	}

	catRows, err := s.db.QueryContext(ctx,
		`SELECT col_name, col_type FROM zone_catalog WHERE zone = ? AND tbl = ? ORDER BY col_pos`,
		zone, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	defer func() { _ = catRows.Close() }()

	var columns []model.Column
	for catRows.Next() {
		var name, typ string
		if err := catRows.Scan(&name, &typ); err != nil {
			return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
		}
		columns = append(columns, model.Column{Name: name, Type: model.ColumnType(typ)})
	}
	if err := catRows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", common.ErrNotFound, zone, table)
	}

	out := model.NewTable(table, columns)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %q`, physName(zone, table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s/%s: %w", zone, table, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make([]any, len(columns))
		for i, c := range columns {
			v, convErr := fromSQLValue(raw[i], c.Type)
			if convErr != nil {
				return nil, fmt.Errorf("column %s: %w", c.Name, convErr)
			}
			row[i] = v
		}
		out.Rows = append(out.Rows, row)
	}
	return out, rows.Err()
}

func sqliteType(t model.ColumnType) string {
	switch t {
	case model.TypeReal:
		return "REAL"
	case model.TypeInteger, model.TypeBool:
		return "INTEGER"
	default:
		// text and timestamp both round-trip as TEXT
		return "TEXT"
	}
}

func toSQLValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

func fromSQLValue(v any, t model.ColumnType) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case model.TypeTimestamp:
		s, ok := v.(string)
		if !ok {
			if b, isBytes := v.([]byte); isBytes {
				s, ok = string(b), true
			}
		}
		if !ok {
			return nil, fmt.Errorf("timestamp value has unexpected type %T", v)
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
		}
		return ts, nil
	case model.TypeBool:
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("bool value has unexpected type %T", v)
		}
		return n != 0, nil
	case model.TypeReal:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		}
		return nil, fmt.Errorf("real value has unexpected type %T", v)
	case model.TypeInteger:
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("integer value has unexpected type %T", v)
		}
		return n, nil
	default:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
		return fmt.Sprintf("%v", v), nil
	}
}
