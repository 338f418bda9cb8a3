package migrations

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestLoadMigrationsSortsAndPairsUpDown(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000002_two.up.sql":   {Data: []byte("SELECT 2;")},
		"sql/000002_two.down.sql": {Data: []byte("SELECT -2;")},
		"sql/000001_one.up.sql":   {Data: []byte("SELECT 1;")},
		"sql/000001_one.down.sql": {Data: []byte("SELECT -1;")},
		"sql/README.md":           {Data: []byte("ignored")},
	}

	items, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d", len(items))
	}
	if items[0].Version != 1 || items[1].Version != 2 || items[0].Name != "one" {
		t.Fatalf("unexpected migration order: %+v", items)
	}
}

func TestLoadMigrationsErrorsWhenDownMissing(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000001_one.up.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := loadMigrations(fsys)
	if err == nil {
		t.Fatal("expected error for missing down migration")
	}
	if !strings.Contains(err.Error(), "missing down SQL") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunHistoryMigrationDefinesTables(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000001_run_history.up.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, snippet := range []string{
		"CREATE TABLE dbtalk_run",
		"run_seq BIGSERIAL PRIMARY KEY",
		"CREATE UNIQUE INDEX idx_dbtalk_run_run_id",
		"CREATE TABLE dbtalk_archive_watermark",
	} {
		if !strings.Contains(string(body), snippet) {
			t.Fatalf("migration missing required snippet: %s", snippet)
		}
	}
}

func TestUpAppliesPendingMigrationsOnly(t *testing.T) {
	db, mock := newSQLMock(t)
	runner := &Runner{fsys: fstest.MapFS{
		"sql/000001_one.up.sql":   {Data: []byte("CREATE TABLE one (id INT)")},
		"sql/000001_one.down.sql": {Data: []byte("DROP TABLE one")},
		"sql/000002_two.up.sql":   {Data: []byte("CREATE TABLE two (id INT)")},
		"sql/000002_two.down.sql": {Data: []byte("DROP TABLE two")},
	}}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS dbtalk_schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM dbtalk_schema_migrations ORDER BY version ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(1)))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE two (id INT)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO dbtalk_schema_migrations (version) VALUES ($1)")).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := runner.Up(context.Background(), db, 0)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if applied != 1 {
		t.Fatalf("Up() applied %d, want 1", applied)
	}
	assertSQLMock(t, mock)
}

func TestStatusReportsAppliedVersions(t *testing.T) {
	db, mock := newSQLMock(t)
	runner := NewRunner()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS dbtalk_schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM dbtalk_schema_migrations ORDER BY version ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))

	statuses, err := runner.Status(context.Background(), db)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(statuses) == 0 || statuses[0].Name != "run_history" || statuses[0].Applied {
		t.Fatalf("statuses = %+v", statuses)
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
