package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/rulesql/internal/querysql"

	_ "github.com/go-sql-driver/mysql"  // mysql driver
	_ "github.com/jackc/pgx/v5/stdlib"  // pgx driver
	_ "github.com/marcboeker/go-duckdb" // duckdb driver
	_ "github.com/mattn/go-sqlite3"     // sqlite3 driver
)

// Config selects the driver and data source.
type Config struct {
	// Driver is the database/sql driver name: sqlite3, pgx, mysql or duckdb.
	Driver string

	// DSN is the driver-specific data source name.
	DSN string
}

// DefaultConfig is an in-memory SQLite database.
func DefaultConfig() Config {
	return Config{Driver: "sqlite3", DSN: ":memory:"}
}

// Store owns a database handle and its dialect.
type Store struct {
	db      *sqlx.DB
	dialect querysql.Dialect
	logger  *slog.Logger
}

// Open connects to the configured database and verifies the connection.
// If logger is nil, a discard logger is used.
//
// SQLite databases get the pragmas listed in the package documentation.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DefaultConfig().Driver
	}
	if cfg.DSN == "" && cfg.Driver == "sqlite3" {
		cfg.DSN = DefaultConfig().DSN
	}

	dialect, err := querysql.LookupDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Driver == "sqlite3" {
		// SQLite only supports one writer at a time, and every connection to
		// :memory: is a separate database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if err := applyPragmas(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	s := New(db, dialect, logger)
	s.logger.Debug("database opened", slog.String("driver", cfg.Driver))
	return s, nil
}

// New wraps an existing handle. Tests use it with go-sqlmock.
// If logger is nil, a discard logger is used.
func New(db *sqlx.DB, dialect querysql.Dialect, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{db: db, dialect: dialect, logger: logger}
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.logger.Debug("closing database")
	return s.db.Close()
}

// DB returns the underlying handle for direct queries.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the dialect matching the store's driver.
func (s *Store) Dialect() querysql.Dialect {
	return s.dialect
}

// Exec runs a script that returns no rows, such as schema setup.
func (s *Store) Exec(ctx context.Context, script string) error {
	if _, err := s.db.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Conn pins a dedicated connection. The caller must Close it.
func (s *Store) Conn(ctx context.Context) (*Conn, error) {
	c, err := s.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &Conn{conn: c, dialect: s.dialect, logger: s.logger}, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
