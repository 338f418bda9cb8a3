// Package database opens the embedded database a chain answers questions about.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite = "sqlite"
	DriverLibSQL = "libsql"
	DriverDuckDB = "duckdb"
)

type Config struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// Open opens and pings the database. An empty duckdb URL opens an in-memory database.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverSQLite
	}
	dsn := strings.TrimSpace(cfg.URL)

	switch driver {
	case DriverSQLite, DriverLibSQL:
		if dsn == "" {
			return nil, fmt.Errorf("database url is required for driver %q", driver)
		}
		dsn = normalizeSQLiteDSN(driver, dsn)
	case DriverDuckDB:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	return db, nil
}

// normalizeSQLiteDSN accepts the sqlite:// URLs common in .env files.
func normalizeSQLiteDSN(driver, dsn string) string {
	if driver != DriverSQLite {
		return dsn
	}
	for _, prefix := range []string{"sqlite://", "sqlite:"} {
		if strings.HasPrefix(dsn, prefix) {
			return strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

// DialectName is the SQL dialect advertised to the model for a driver.
func DialectName(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverDuckDB:
		return "DuckDB"
	default:
		return "SQLite"
	}
}
