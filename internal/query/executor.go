// Package query runs generated SQL against the configured database and renders
// the rows for the answer prompt.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dbtalk/dbtalk/internal/observability"
)

type Policy string

const (
	// PolicyStrict surfaces execution failures to the caller.
	PolicyStrict Policy = "strict"
	// PolicyDegraded replaces a failed execution with DegradedResult.
	PolicyDegraded Policy = "degraded"
)

// DegradedResult is the context handed to the answer stage when the query could
// not run under PolicyDegraded.
const DegradedResult = "no result available — query could not be executed"

const (
	emptyResult     = "no rows returned"
	truncatedMarker = "(result truncated after %d rows)"
)

type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute query: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

type Result struct {
	Columns   []string
	Rows      [][]Cell
	Truncated bool
	Duration  time.Duration
}

// Render joins cells with " | " and rows with newlines. A truncated result
// ends with a marker line naming the row count kept.
func (r Result) Render() string {
	if len(r.Rows) == 0 {
		return emptyResult
	}
	var b strings.Builder
	for i, row := range r.Rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		for j, cell := range row {
			if j > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(cell.String())
		}
	}
	if r.Truncated {
		fmt.Fprintf(&b, "\n"+truncatedMarker, len(r.Rows))
	}
	return b.String()
}

type Executor struct {
	DB       *sql.DB
	Policy   Policy
	RowLimit int
	Timeout  time.Duration
	Logger   *slog.Logger
}

func (e *Executor) Execute(ctx context.Context, sqlText string) (Result, error) {
	statement := StripTrailingSemicolons(sqlText)
	if statement == "" {
		return Result{}, &ExecutionError{SQL: sqlText, Err: errors.New("sql is required")}
	}
	if e.DB == nil {
		return Result{}, &ExecutionError{SQL: statement, Err: errors.New("database is not configured")}
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := e.DB.QueryContext(ctx, statement)
	if err != nil {
		return Result{}, &ExecutionError{SQL: statement, Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, &ExecutionError{SQL: statement, Err: fmt.Errorf("query columns: %w", err)}
	}

	result := Result{Columns: columns, Rows: make([][]Cell, 0)}
	for rows.Next() {
		if e.RowLimit > 0 && len(result.Rows) >= e.RowLimit {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			e.logger().WarnContext(ctx, "scan row failed, substituting nulls", append(observability.LogAttrs(ctx), "row", len(result.Rows), "error", err)...)
			result.Rows = append(result.Rows, nullRow(len(columns)))
			continue
		}
		result.Rows = append(result.Rows, toCells(values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, &ExecutionError{SQL: statement, Err: fmt.Errorf("iterate rows: %w", err)}
	}
	result.Duration = time.Since(start)
	return result, nil
}

// Retrieve executes sqlText and renders the rows. Under PolicyDegraded an
// execution failure is logged and DegradedResult is returned with degraded set.
func (e *Executor) Retrieve(ctx context.Context, sqlText string) (string, bool, error) {
	result, err := e.Execute(ctx, sqlText)
	if err == nil {
		if result.Truncated {
			e.logger().InfoContext(ctx, "query result truncated", append(observability.LogAttrs(ctx), "row_limit", e.RowLimit)...)
		}
		return result.Render(), false, nil
	}
	if e.Policy == PolicyStrict {
		return "", false, err
	}
	e.logger().WarnContext(ctx, "query execution failed, continuing with degraded result", append(observability.LogAttrs(ctx), "sql", sqlText, "error", err)...)
	observability.IncrementDegradedQuery()
	return DegradedResult, true, nil
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger == nil {
		return observability.DiscardLogger()
	}
	return e.Logger
}

// ParsePolicy maps a configured policy name; anything but "strict" degrades.
func ParsePolicy(value string) Policy {
	if strings.EqualFold(strings.TrimSpace(value), string(PolicyStrict)) {
		return PolicyStrict
	}
	return PolicyDegraded
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func toCells(values []any) []Cell {
	cells := make([]Cell, len(values))
	for i, value := range values {
		cells[i] = NewCell(value)
	}
	return cells
}

func nullRow(width int) []Cell {
	cells := make([]Cell, width)
	for i := range cells {
		cells[i] = NullCell
	}
	return cells
}
