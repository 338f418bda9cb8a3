package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("dbtalk", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Fatalf("Database.Driver = %q", cfg.Database.Driver)
	}
	if cfg.Database.URL != "dbtalk.db" {
		t.Fatalf("Database.URL = %q", cfg.Database.URL)
	}
	if cfg.Generation.Provider != ProviderOllama {
		t.Fatalf("Generation.Provider = %q", cfg.Generation.Provider)
	}
	if cfg.Generation.SQLModel != "sqlcoder:7b" {
		t.Fatalf("Generation.SQLModel = %q", cfg.Generation.SQLModel)
	}
	if cfg.Generation.AnswerModel != "llama3" {
		t.Fatalf("Generation.AnswerModel = %q", cfg.Generation.AnswerModel)
	}
	if got := cfg.Generation.BaseURL(); got != "http://localhost:11434" {
		t.Fatalf("Generation.BaseURL() = %q", got)
	}
	if cfg.Query.Policy != PolicyDegraded {
		t.Fatalf("Query.Policy = %q", cfg.Query.Policy)
	}
	if cfg.Query.RowLimit != 200 {
		t.Fatalf("Query.RowLimit = %d", cfg.Query.RowLimit)
	}
	if cfg.History.Enabled() {
		t.Fatal("history should be disabled without a DSN")
	}
	if cfg.Archive.Interval != time.Hour {
		t.Fatalf("Archive.Interval = %v", cfg.Archive.Interval)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("dbtalk-api", mapLookup(map[string]string{"DBTALK_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
	if cfg.ObjectStore.AutoCreateBucket {
		t.Fatal("ObjectStore.AutoCreateBucket should default to false in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"DBTALK_PROFILE":                     "test",
		"DBTALK_SERVICE_NAME":                "dbtalk-custom",
		"DBTALK_HTTP_ADDR":                   ":9999",
		"DBTALK_HTTP_READ_TIMEOUT":           "2s",
		"DBTALK_DATABASE_DRIVER":             "DuckDB",
		"DBTALK_DATABASE_URL":                "/tmp/talk.duckdb",
		"DBTALK_DATABASE_MAX_OPEN_CONNS":     "9",
		"DBTALK_DATABASE_CONN_MAX_IDLE_TIME": "1m",
		"DBTALK_GENERATION_PROVIDER":         "openai",
		"DBTALK_GENERATION_HOST":             "https://api.example.com/",
		"DBTALK_GENERATION_PORT":             "0",
		"DBTALK_GENERATION_API_KEY":          "secret-key",
		"DBTALK_GENERATION_TIMEOUT":          "21s",
		"DBTALK_GENERATION_TEMPERATURE":      "0.3",
		"DBTALK_SQL_MODEL":                   "gpt-sql",
		"DBTALK_ANSWER_MODEL":                "gpt-chat",
		"DBTALK_EXECUTION_POLICY":            "Strict",
		"DBTALK_QUERY_TIMEOUT":               "3s",
		"DBTALK_QUERY_ROW_LIMIT":             "50",
		"DBTALK_HISTORY_DSN":                 "postgres://example",
		"DBTALK_HISTORY_MAX_OPEN_CONNS":      "3",
		"DBTALK_OBJECTSTORE_BUCKET":          "archive",
		"DBTALK_OBJECTSTORE_USE_SSL":         "true",
		"DBTALK_ARCHIVE_INTERVAL":            "15m",
		"DBTALK_ARCHIVE_BATCH_SIZE":          "100",
		"DBTALK_LOG_LEVEL":                   "error",
		"DBTALK_LOG_JSON":                    "false",
	})
	cfg, err := Load("dbtalk-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "dbtalk-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" || cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.Database.Driver != DriverDuckDB || cfg.Database.URL != "/tmp/talk.duckdb" {
		t.Fatalf("Database = %+v", cfg.Database)
	}
	if cfg.Database.MaxOpenConns != 9 || cfg.Database.ConnMaxIdleTime != time.Minute {
		t.Fatalf("Database pool = %+v", cfg.Database)
	}
	if got := cfg.Generation.BaseURL(); got != "https://api.example.com" {
		t.Fatalf("Generation.BaseURL() = %q", got)
	}
	if cfg.Generation.Timeout != 21*time.Second || cfg.Generation.Temperature != 0.3 {
		t.Fatalf("Generation = %+v", cfg.Generation)
	}
	if cfg.Generation.SQLModel != "gpt-sql" || cfg.Generation.AnswerModel != "gpt-chat" {
		t.Fatalf("models = %q/%q", cfg.Generation.SQLModel, cfg.Generation.AnswerModel)
	}
	if cfg.Query.Policy != PolicyStrict || cfg.Query.Timeout != 3*time.Second || cfg.Query.RowLimit != 50 {
		t.Fatalf("Query = %+v", cfg.Query)
	}
	if !cfg.History.Enabled() || cfg.History.MaxOpenConns != 3 {
		t.Fatalf("History = %+v", cfg.History)
	}
	if cfg.ObjectStore.Bucket != "archive" || !cfg.ObjectStore.UseSSL {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if cfg.Archive.Interval != 15*time.Minute || cfg.Archive.BatchSize != 100 {
		t.Fatalf("Archive = %+v", cfg.Archive)
	}
	if cfg.Observability.LogLevel != slog.LevelError || cfg.Observability.LogJSON {
		t.Fatalf("Observability = %+v", cfg.Observability)
	}
}

func TestLoadHonoursPlainDatabaseURL(t *testing.T) {
	cfg, err := Load("dbtalk", mapLookup(map[string]string{"DATABASE_URL": "file:todo.db"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.URL != "file:todo.db" {
		t.Fatalf("Database.URL = %q", cfg.Database.URL)
	}

	cfg, err = Load("dbtalk", mapLookup(map[string]string{
		"DATABASE_URL":        "file:todo.db",
		"DBTALK_DATABASE_URL": "file:other.db",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.URL != "file:other.db" {
		t.Fatalf("Database.URL = %q, want prefixed variable to win", cfg.Database.URL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"profile":       {"DBTALK_PROFILE": "staging"},
		"duration":      {"DBTALK_GENERATION_TIMEOUT": "soon"},
		"int":           {"DBTALK_GENERATION_PORT": "eleven"},
		"port range":    {"DBTALK_GENERATION_PORT": "70000"},
		"bool":          {"DBTALK_LOG_JSON": "maybe"},
		"log level":     {"DBTALK_LOG_LEVEL": "loud"},
		"driver":        {"DBTALK_DATABASE_DRIVER": "oracle"},
		"provider":      {"DBTALK_GENERATION_PROVIDER": "bard"},
		"policy":        {"DBTALK_EXECUTION_POLICY": "lenient"},
		"openai key":    {"DBTALK_GENERATION_PROVIDER": "openai"},
		"same models":   {"DBTALK_SQL_MODEL": "llama3"},
		"empty model":   {"DBTALK_ANSWER_MODEL": " "},
		"row limit":     {"DBTALK_QUERY_ROW_LIMIT": "-1"},
		"sqlite no url": {"DBTALK_DATABASE_URL": ""},
		"empty host":    {"DBTALK_GENERATION_HOST": ""},
		"http addr":     {"DBTALK_HTTP_ADDR": ""},
		"archive":       {"DBTALK_ARCHIVE_ENABLED": "true"},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load("dbtalk", mapLookup(values)); err == nil {
				t.Fatalf("Load(%v) expected error", values)
			}
		})
	}
}

func TestLoadRequiresLookup(t *testing.T) {
	_, err := Load("dbtalk", nil)
	if err == nil || !strings.Contains(err.Error(), "lookup") {
		t.Fatalf("Load(nil) error = %v", err)
	}
}

func TestDuckDBAllowsEmptyURL(t *testing.T) {
	cfg, err := Load("dbtalk", mapLookup(map[string]string{
		"DBTALK_DATABASE_DRIVER": "duckdb",
		"DBTALK_DATABASE_URL":    "",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.URL != "" {
		t.Fatalf("Database.URL = %q", cfg.Database.URL)
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
