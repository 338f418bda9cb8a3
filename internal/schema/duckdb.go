package schema

import (
	"context"
	"database/sql"
	"fmt"
)

const duckDBTablesSQL = `
SELECT table_schema, table_name
FROM information_schema.tables
WHERE table_type = 'BASE TABLE'
  AND table_schema NOT IN ('information_schema', 'pg_catalog')
  AND table_name NOT LIKE 'duckdb\_%' ESCAPE '\'
ORDER BY table_catalog, table_schema, table_name`

const duckDBColumnsSQL = `
SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = ? AND table_name = ?
ORDER BY ordinal_position`

// DuckDB reads information_schema. Tables outside the main schema are
// reported as schema.table.
type DuckDB struct{}

type qualifiedName struct {
	schema string
	name   string
}

func (DuckDB) Describe(ctx context.Context, db *sql.DB) (Snapshot, error) {
	if db == nil {
		return Snapshot{}, fmt.Errorf("%w: database is not configured", ErrUnavailable)
	}

	tables, err := listDuckDBTables(ctx, db)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: list tables: %w", ErrUnavailable, err)
	}

	snapshot := Snapshot{Tables: make([]Table, 0, len(tables))}
	for _, table := range tables {
		displayName := table.name
		if table.schema != "" && table.schema != "main" {
			displayName = table.schema + "." + table.name
		}
		columns, err := listColumns(ctx, db, duckDBColumnsSQL, table.schema, table.name)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: columns of %q: %w", ErrUnavailable, displayName, err)
		}
		snapshot.Tables = append(snapshot.Tables, Table{Name: displayName, Columns: columns})
	}
	return snapshot, nil
}

func listDuckDBTables(ctx context.Context, db *sql.DB) ([]qualifiedName, error) {
	rows, err := db.QueryContext(ctx, duckDBTablesSQL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tables []qualifiedName
	for rows.Next() {
		var table qualifiedName
		if err := rows.Scan(&table.schema, &table.name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}
