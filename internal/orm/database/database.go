// Package database opens the connection pool the executor runs against.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver "pgx"
	_ "github.com/lib/pq"              // PostgreSQL driver "postgres"
	_ "github.com/mattn/go-sqlite3"    // SQLite driver "sqlite3"

	"github.com/conduit-lang/querykit/internal/orm/query"
)

// ErrNoURL is returned when no data source name is configured
var ErrNoURL = errors.New("database url is required")

// Config holds the driver name, data source and pool settings
type Config struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// PingTimeout bounds the initial connectivity check; zero means 5s
	PingTimeout time.Duration
}

// DB is a connection pool together with the SQL dialect of its driver
type DB struct {
	*sql.DB
	Driver  string
	Dialect query.Dialect
}

// Open opens and pings the database
func Open(ctx context.Context, cfg Config) (*DB, error) {
	dialect, err := query.DialectForDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, ErrNoURL
	}

	db, err := sql.Open(registeredName(cfg.Driver), cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	configurePool(db, dialect, cfg)

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	return &DB{DB: db, Driver: cfg.Driver, Dialect: dialect}, nil
}

func configurePool(db *sql.DB, dialect query.Dialect, cfg Config) {
	// every connection to an in-memory SQLite database sees its own empty database
	if dialect == query.SQLite && strings.Contains(cfg.URL, ":memory:") {
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		return
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// registeredName maps driver aliases onto the names the blank imports register
func registeredName(driver string) string {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return "sqlite3"
	case "postgres", "postgresql":
		return "postgres"
	default:
		return strings.ToLower(driver)
	}
}
