// Package schema reads table and column metadata from the live database catalog.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// ErrUnavailable marks every failure to read the catalog. A snapshot is either
// complete or not returned at all.
var ErrUnavailable = errors.New("schema unavailable")

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

type Snapshot struct {
	Tables []Table `json:"tables"`
}

// Introspector describes the user tables visible through db.
type Introspector interface {
	Describe(ctx context.Context, db *sql.DB) (Snapshot, error)
}

// ForDriver returns the introspector matching a database driver name.
func ForDriver(driver string) Introspector {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "duckdb":
		return DuckDB{}
	default:
		return SQLite{}
	}
}

func (s Snapshot) Table(name string) (Table, bool) {
	for _, table := range s.Tables {
		if table.Name == name {
			return table, true
		}
	}
	return Table{}, false
}

func (t Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, column := range t.Columns {
		names = append(names, column.Name)
	}
	return names
}

// String renders the snapshot in the plain-text form embedded in prompts.
func (s Snapshot) String() string {
	var b strings.Builder
	for i, table := range s.Tables {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(table.String())
	}
	return b.String()
}

func (t Table) String() string {
	var b strings.Builder
	b.WriteString("Table \"")
	b.WriteString(t.Name)
	b.WriteString("\":\n")
	for _, column := range t.Columns {
		columnType := strings.TrimSpace(column.Type)
		if columnType == "" {
			columnType = "ANY"
		}
		b.WriteString("- ")
		b.WriteString(column.Name)
		b.WriteString(" (")
		b.WriteString(columnType)
		b.WriteString(")\n")
	}
	return b.String()
}
