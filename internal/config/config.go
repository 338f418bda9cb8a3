package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	DriverSQLite = "sqlite"
	DriverLibSQL = "libsql"
	DriverDuckDB = "duckdb"

	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	PolicyStrict   = "strict"
	PolicyDegraded = "degraded"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	Generation    GenerationConfig
	Query         QueryConfig
	History       HistoryConfig
	ObjectStore   ObjectStoreConfig
	Archive       ArchiveConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	ConnMaxIdleTime time.Duration
}

// GenerationConfig describes the model service and the two models used per run.
// SQLModel synthesizes SQL; AnswerModel phrases the final answer.
type GenerationConfig struct {
	Provider    string
	Host        string
	Port        int
	APIKey      string
	Timeout     time.Duration
	Temperature float64
	SQLModel    string
	AnswerModel string
}

type QueryConfig struct {
	Policy   string
	Timeout  time.Duration
	RowLimit int
}

type HistoryConfig struct {
	DSN          string
	MaxOpenConns int
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// ArchiveConfig controls the in-process archiver of dbtalk-api. The
// standalone archiver binary runs regardless of Enabled.
type ArchiveConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

// BaseURL joins host and port into the address of the generation service.
func (g GenerationConfig) BaseURL() string {
	host := strings.TrimRight(strings.TrimSpace(g.Host), "/")
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	if g.Port <= 0 {
		return host
	}
	return host + ":" + strconv.Itoa(g.Port)
}

func (h HistoryConfig) Enabled() bool {
	return strings.TrimSpace(h.DSN) != ""
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("DBTALK_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid DBTALK_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	// DATABASE_URL is honoured for compatibility with plain .env files.
	if err := applyString(lookup, "DATABASE_URL", &cfg.Database.URL); err != nil {
		return Config{}, err
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "DBTALK_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "DBTALK_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "DBTALK_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "DBTALK_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "DBTALK_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "DBTALK_DATABASE_DRIVER", &cfg.Database.Driver) },
		func() error { return applyString(lookup, "DBTALK_DATABASE_URL", &cfg.Database.URL) },
		func() error { return applyInt(lookup, "DBTALK_DATABASE_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error {
			return applyDuration(lookup, "DBTALK_DATABASE_CONN_MAX_IDLE_TIME", &cfg.Database.ConnMaxIdleTime)
		},
		func() error { return applyString(lookup, "DBTALK_GENERATION_PROVIDER", &cfg.Generation.Provider) },
		func() error { return applyString(lookup, "DBTALK_GENERATION_HOST", &cfg.Generation.Host) },
		func() error { return applyInt(lookup, "DBTALK_GENERATION_PORT", &cfg.Generation.Port) },
		func() error { return applyString(lookup, "DBTALK_GENERATION_API_KEY", &cfg.Generation.APIKey) },
		func() error { return applyDuration(lookup, "DBTALK_GENERATION_TIMEOUT", &cfg.Generation.Timeout) },
		func() error { return applyFloat(lookup, "DBTALK_GENERATION_TEMPERATURE", &cfg.Generation.Temperature) },
		func() error { return applyString(lookup, "DBTALK_SQL_MODEL", &cfg.Generation.SQLModel) },
		func() error { return applyString(lookup, "DBTALK_ANSWER_MODEL", &cfg.Generation.AnswerModel) },
		func() error { return applyString(lookup, "DBTALK_EXECUTION_POLICY", &cfg.Query.Policy) },
		func() error { return applyDuration(lookup, "DBTALK_QUERY_TIMEOUT", &cfg.Query.Timeout) },
		func() error { return applyInt(lookup, "DBTALK_QUERY_ROW_LIMIT", &cfg.Query.RowLimit) },
		func() error { return applyString(lookup, "DBTALK_HISTORY_DSN", &cfg.History.DSN) },
		func() error { return applyInt(lookup, "DBTALK_HISTORY_MAX_OPEN_CONNS", &cfg.History.MaxOpenConns) },
		func() error { return applyString(lookup, "DBTALK_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "DBTALK_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "DBTALK_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "DBTALK_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error {
			return applyString(lookup, "DBTALK_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "DBTALK_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "DBTALK_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "DBTALK_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyBool(lookup, "DBTALK_ARCHIVE_ENABLED", &cfg.Archive.Enabled) },
		func() error { return applyDuration(lookup, "DBTALK_ARCHIVE_INTERVAL", &cfg.Archive.Interval) },
		func() error { return applyInt(lookup, "DBTALK_ARCHIVE_BATCH_SIZE", &cfg.Archive.BatchSize) },
		func() error { return applyBool(lookup, "DBTALK_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "DBTALK_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)
	cfg.Generation.Provider = strings.ToLower(cfg.Generation.Provider)
	cfg.Query.Policy = strings.ToLower(cfg.Query.Policy)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverLibSQL, DriverDuckDB:
	default:
		return fmt.Errorf("invalid DBTALK_DATABASE_DRIVER: %q", c.Database.Driver)
	}
	if c.Database.Driver != DriverDuckDB && c.Database.URL == "" {
		return fmt.Errorf("database url is required for driver %q", c.Database.Driver)
	}
	switch c.Generation.Provider {
	case ProviderOllama:
	case ProviderOpenAI:
		if c.Generation.APIKey == "" {
			return fmt.Errorf("DBTALK_GENERATION_API_KEY is required for provider %q", ProviderOpenAI)
		}
	default:
		return fmt.Errorf("invalid DBTALK_GENERATION_PROVIDER: %q", c.Generation.Provider)
	}
	if c.Generation.Host == "" {
		return fmt.Errorf("generation host is required")
	}
	if c.Generation.Port < 0 || c.Generation.Port > 65535 {
		return fmt.Errorf("invalid DBTALK_GENERATION_PORT: %d", c.Generation.Port)
	}
	if c.Generation.SQLModel == "" || c.Generation.AnswerModel == "" {
		return fmt.Errorf("sql and answer model identifiers are required")
	}
	if c.Generation.SQLModel == c.Generation.AnswerModel {
		return fmt.Errorf("sql model and answer model must differ, both are %q", c.Generation.SQLModel)
	}
	switch c.Query.Policy {
	case PolicyStrict, PolicyDegraded:
	default:
		return fmt.Errorf("invalid DBTALK_EXECUTION_POLICY: %q", c.Query.Policy)
	}
	if c.Query.RowLimit < 0 {
		return fmt.Errorf("invalid DBTALK_QUERY_ROW_LIMIT: %d", c.Query.RowLimit)
	}
	if c.Archive.Enabled && !c.History.Enabled() {
		return fmt.Errorf("DBTALK_ARCHIVE_ENABLED requires DBTALK_HISTORY_DSN")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "dbtalk"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          DriverSQLite,
			URL:             "dbtalk.db",
			MaxOpenConns:    4,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Generation: GenerationConfig{
			Provider:    ProviderOllama,
			Host:        "http://localhost",
			Port:        11434,
			Timeout:     60 * time.Second,
			Temperature: 0,
			SQLModel:    "sqlcoder:7b",
			AnswerModel: "llama3",
		},
		Query: QueryConfig{
			Policy:   PolicyDegraded,
			Timeout:  30 * time.Second,
			RowLimit: 200,
		},
		History: HistoryConfig{
			DSN:          "",
			MaxOpenConns: 10,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "dbtalk",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		Archive: ArchiveConfig{
			Interval:  time.Hour,
			BatchSize: 5000,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
