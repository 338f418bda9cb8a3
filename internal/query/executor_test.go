package query

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	_ "modernc.org/sqlite"
)

func TestExecuteRendersRowsWithNulls(t *testing.T) {
	db := openTodoDB(t)
	executor := &Executor{DB: db}

	result, err := executor.Execute(context.Background(), "SELECT id, title, detail FROM todolist ORDER BY id;")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 || len(result.Columns) != 3 {
		t.Fatalf("result = %+v", result)
	}
	if !result.Rows[1][2].IsNull() {
		t.Fatalf("detail of row 2 = %#v, want null", result.Rows[1][2])
	}
	if result.Rows[0][0].Kind != KindInteger || result.Rows[0][1].Kind != KindText {
		t.Fatalf("row 1 kinds = %s, %s", result.Rows[0][0].Kind, result.Rows[0][1].Kind)
	}

	want := "1 | Task 1 | first task\n2 | Task 2 | NULL"
	if got := result.Render(); got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestRetrieveCount(t *testing.T) {
	db := openTodoDB(t)
	executor := &Executor{DB: db, Policy: PolicyStrict}

	text, degraded, err := executor.Retrieve(context.Background(), "SELECT COUNT(*) FROM todolist")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if degraded {
		t.Fatal("Retrieve() reported degraded for a valid query")
	}
	if text != "2" {
		t.Fatalf("Retrieve() = %q, want %q", text, "2")
	}
}

func TestRetrieveInvalidSQLStrict(t *testing.T) {
	db := openTodoDB(t)
	executor := &Executor{DB: db, Policy: PolicyStrict}

	_, _, err := executor.Retrieve(context.Background(), "SELEC * FRM todolist")
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Retrieve() error = %v, want *ExecutionError", err)
	}
	if execErr.SQL != "SELEC * FRM todolist" {
		t.Fatalf("ExecutionError.SQL = %q", execErr.SQL)
	}
}

func TestRetrieveInvalidSQLDegraded(t *testing.T) {
	db := openTodoDB(t)
	executor := &Executor{DB: db, Policy: PolicyDegraded}

	text, degraded, err := executor.Retrieve(context.Background(), "SELEC * FRM todolist")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !degraded || text != DegradedResult {
		t.Fatalf("Retrieve() = (%q, %v), want degraded result", text, degraded)
	}
}

func TestRetrieveDefaultPolicyDegrades(t *testing.T) {
	executor := &Executor{}
	text, degraded, err := executor.Retrieve(context.Background(), "SELECT 1")
	if err != nil || !degraded || text != DegradedResult {
		t.Fatalf("Retrieve() = (%q, %v, %v)", text, degraded, err)
	}
}

func TestExecuteEmptyResult(t *testing.T) {
	db := openTodoDB(t)
	executor := &Executor{DB: db}

	result, err := executor.Execute(context.Background(), "SELECT title FROM todolist WHERE id > 100")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := result.Render(); got != "no rows returned" {
		t.Fatalf("Render() = %q", got)
	}
}

func TestExecuteStopsAtRowLimit(t *testing.T) {
	db := openTodoDB(t)
	executor := &Executor{DB: db, RowLimit: 1}

	result, err := executor.Execute(context.Background(), "SELECT id FROM todolist ORDER BY id")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 1 || !result.Truncated {
		t.Fatalf("rows = %d truncated = %v", len(result.Rows), result.Truncated)
	}
}

func TestRetrieveMarksTruncatedContext(t *testing.T) {
	db := openTodoDB(t)
	if _, err := db.Exec(`INSERT INTO todolist (title)
		WITH RECURSIVE seq(n) AS (SELECT 1 UNION ALL SELECT n + 1 FROM seq WHERE n < 248)
		SELECT 'Bulk ' || n FROM seq`); err != nil {
		t.Fatalf("seed rows error = %v", err)
	}
	executor := &Executor{DB: db, Policy: PolicyStrict, RowLimit: 200}

	rendered, degraded, err := executor.Retrieve(context.Background(), "SELECT id, title FROM todolist ORDER BY id")
	if err != nil || degraded {
		t.Fatalf("Retrieve() degraded = %v error = %v", degraded, err)
	}
	lines := strings.Split(rendered, "\n")
	if len(lines) != 201 {
		t.Fatalf("rendered lines = %d, want 201", len(lines))
	}
	if got := lines[200]; got != "(result truncated after 200 rows)" {
		t.Fatalf("last line = %q", got)
	}
}

func TestRenderWithoutTruncationHasNoMarker(t *testing.T) {
	result := Result{Columns: []string{"n"}, Rows: [][]Cell{{NewCell(int64(1))}}}
	if got := result.Render(); got != "1" {
		t.Fatalf("Render() = %q", got)
	}
}

func TestExecuteRejectsBlankSQL(t *testing.T) {
	executor := &Executor{DB: openTodoDB(t)}
	_, err := executor.Execute(context.Background(), " ;; ")
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Execute() error = %v, want *ExecutionError", err)
	}
}

func TestExecuteIterationErrorIsExecutionError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM todolist")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).
			AddRow(int64(1)).
			AddRow(int64(2)).
			RowError(1, errors.New("database disk image is malformed")))

	executor := &Executor{DB: db, Policy: PolicyStrict}
	_, _, err = executor.Retrieve(context.Background(), "SELECT id FROM todolist")
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Retrieve() error = %v, want *ExecutionError", err)
	}
	if !strings.Contains(err.Error(), "malformed") {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestStripTrailingSemicolons(t *testing.T) {
	if got := StripTrailingSemicolons("  SELECT 1 ; ;\n"); got != "SELECT 1" {
		t.Fatalf("StripTrailingSemicolons() = %q", got)
	}
}

func TestParsePolicy(t *testing.T) {
	if ParsePolicy("STRICT") != PolicyStrict {
		t.Fatal("ParsePolicy(STRICT) should be strict")
	}
	if ParsePolicy("") != PolicyDegraded {
		t.Fatal("ParsePolicy(\"\") should degrade")
	}
}

func openTodoDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	statements := []string{
		`CREATE TABLE todolist (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT NOT NULL, detail TEXT, is_done BOOLEAN NOT NULL DEFAULT 0)`,
		`INSERT INTO todolist (title, detail) VALUES ('Task 1', 'first task')`,
		`INSERT INTO todolist (title) VALUES ('Task 2')`,
	}
	for _, statement := range statements {
		if _, err := db.Exec(statement); err != nil {
			t.Fatalf("Exec(%q) error = %v", statement, err)
		}
	}
	return db
}
