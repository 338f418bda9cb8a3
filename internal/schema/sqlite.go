package schema

import (
	"context"
	"database/sql"
	"fmt"
)

// SystemTablePrefix is reserved by SQLite for its internal tables.
const SystemTablePrefix = "sqlite_"

const sqliteTablesSQL = `
SELECT name
FROM sqlite_master
WHERE type = 'table'
  AND name NOT LIKE 'sqlite\_%' ESCAPE '\'`

const sqliteColumnsSQL = `
SELECT name, type
FROM pragma_table_info(?)
ORDER BY cid`

// SQLite reads sqlite_master and pragma_table_info. It also serves libsql.
type SQLite struct{}

func (SQLite) Describe(ctx context.Context, db *sql.DB) (Snapshot, error) {
	if db == nil {
		return Snapshot{}, fmt.Errorf("%w: database is not configured", ErrUnavailable)
	}

	names, err := listNames(ctx, db, sqliteTablesSQL)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: list tables: %w", ErrUnavailable, err)
	}

	snapshot := Snapshot{Tables: make([]Table, 0, len(names))}
	for _, name := range names {
		columns, err := listColumns(ctx, db, sqliteColumnsSQL, name)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: columns of %q: %w", ErrUnavailable, name, err)
		}
		snapshot.Tables = append(snapshot.Tables, Table{Name: name, Columns: columns})
	}
	return snapshot, nil
}

// listNames drains the result before returning so single-connection pools can
// run the per-table queries that follow.
func listNames(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return names, nil
}

func listColumns(ctx context.Context, db *sql.DB, query string, args ...any) ([]Column, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns := make([]Column, 0)
	for rows.Next() {
		var column Column
		var columnType sql.NullString
		if err := rows.Scan(&column.Name, &columnType); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		column.Type = columnType.String
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}
