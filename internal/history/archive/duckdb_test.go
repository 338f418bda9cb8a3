package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestQueryEngineReadsArchivedRuns(t *testing.T) {
	store := newMemoryStore()
	service := &Service{
		Source: &fakeSource{records: sampleRecords(1, 4)},
		Store:  store,
		Config: Config{BatchSize: 2},
		Clock:  func() time.Time { return time.Date(2026, 2, 19, 9, 0, 0, 0, time.UTC) },
	}
	for i := 0; i < 2; i++ {
		if _, err := service.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce() error = %v", err)
		}
	}
	files, err := service.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	engine := &QueryEngine{Store: store}
	result, err := engine.Query(context.Background(), files, "SELECT status, COUNT(*) AS runs FROM dbtalk_run GROUP BY status ORDER BY status;")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if got, want := result.Render(), "failed | 2\nsucceeded | 2"; got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestQueryEngineBlocksFileAccess(t *testing.T) {
	store := newMemoryStore()
	service := &Service{Source: &fakeSource{records: sampleRecords(1, 2)}, Store: store}
	if _, err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	files, err := service.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	dir := t.TempDir()
	secret := filepath.Join(dir, "secret.csv")
	if err := os.WriteFile(secret, []byte("token\nabc123\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	exported := filepath.Join(dir, "out.csv")

	engine := &QueryEngine{Store: store}
	for _, sqlText := range []string{
		"SELECT * FROM read_csv('" + secret + "')",
		"COPY dbtalk_run TO '" + exported + "'",
		"SET enable_external_access = true",
		"SELECT 1; COPY dbtalk_run TO '" + exported + "'",
	} {
		if _, err := engine.Query(context.Background(), files, sqlText); err == nil {
			t.Fatalf("Query(%q) expected error", sqlText)
		}
	}
	if _, err := os.Stat(exported); !os.IsNotExist(err) {
		t.Fatalf("export file exists, stat error = %v", err)
	}

	result, err := engine.Query(context.Background(), files, "SELECT run_id FROM dbtalk_run WHERE question LIKE '%;%' ORDER BY run_id")
	if err != nil {
		t.Fatalf("Query() with quoted semicolon error = %v", err)
	}
	if strings.TrimSpace(result.Render()) != "no rows returned" {
		t.Fatalf("Render() = %q", result.Render())
	}
}

func TestQueryEngineRequiresFiles(t *testing.T) {
	engine := &QueryEngine{Store: newMemoryStore()}
	if _, err := engine.Query(context.Background(), nil, "SELECT 1"); err == nil {
		t.Fatal("expected error without archive files")
	}
}
