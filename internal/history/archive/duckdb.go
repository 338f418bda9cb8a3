package archive

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/dbtalk/dbtalk/internal/query"
	"github.com/dbtalk/dbtalk/internal/storage"
)

// ArchiveView is the table name archived runs are exposed under.
const ArchiveView = "dbtalk_run"

// QueryEngine runs SQL over archive files by staging them locally and loading
// them into an in-memory DuckDB table with read_parquet. The SQL runs after
// external access is switched off and the configuration locked.
type QueryEngine struct {
	Store    storage.ObjectStore
	RowLimit int
}

func (e *QueryEngine) Query(ctx context.Context, files []storage.ObjectInfo, sqlText string) (query.Result, error) {
	if strings.TrimSpace(sqlText) == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if hasStatementBreak(query.StripTrailingSemicolons(sqlText)) {
		return query.Result{}, fmt.Errorf("only a single statement is allowed")
	}
	if len(files) == 0 {
		return query.Result{}, fmt.Errorf("no archive files to query")
	}
	if e.Store == nil {
		return query.Result{}, fmt.Errorf("object store is required")
	}

	workDir, err := os.MkdirTemp("", "dbtalk-archive-")
	if err != nil {
		return query.Result{}, fmt.Errorf("create archive temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPaths := make([]string, 0, len(files))
	for index, file := range files {
		localPath := filepath.Join(workDir, fmt.Sprintf("%05d-%s", index, path.Base(file.Key)))
		if err := e.download(ctx, file.Key, localPath); err != nil {
			return query.Result{}, err
		}
		localPaths = append(localPaths, localPath)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	loadSQL := fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(ArchiveView), quoteStringArray(localPaths))
	if _, err := db.ExecContext(ctx, loadSQL); err != nil {
		return query.Result{}, fmt.Errorf("load archive files: %w", err)
	}
	for _, statement := range []string{
		`SET enable_external_access = false`,
		`SET lock_configuration = true`,
	} {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return query.Result{}, fmt.Errorf("restrict archive connection: %w", err)
		}
	}

	executor := &query.Executor{DB: db, Policy: query.PolicyStrict, RowLimit: e.RowLimit}
	return executor.Execute(ctx, sqlText)
}

func (e *QueryEngine) download(ctx context.Context, key, localPath string) error {
	reader, err := e.Store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get archive %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local archive %q: %w", localPath, err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return fmt.Errorf("write local archive %q: %w", localPath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close local archive %q: %w", localPath, err)
	}
	return nil
}

// hasStatementBreak reports a semicolon outside quoted literals and identifiers.
func hasStatementBreak(sqlText string) bool {
	var quote rune
	for _, c := range sqlText {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ';':
			return true
		}
	}
	return false
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

// Query runs sqlText over every archive file currently in the store.
func (s *Service) Query(ctx context.Context, sqlText string, rowLimit int) (query.Result, error) {
	files, err := s.List(ctx)
	if err != nil {
		return query.Result{}, err
	}
	engine := &QueryEngine{Store: s.Store, RowLimit: rowLimit}
	return engine.Query(ctx, files, sqlText)
}
