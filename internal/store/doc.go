// Package store opens database handles for rulesql and hands out dedicated
// connections that execute rendered statements.
//
// A transaction in rulesql is a sequence of statements on one physical
// connection bracketed by the dialect's BEGIN/COMMIT/ROLLBACK text, so the
// store never uses database/sql's Tx type. Conn pins a single connection for
// the lifetime of one coordinator.
//
// # Drivers
//
//   - sqlite3 (github.com/mattn/go-sqlite3), the default
//   - pgx (github.com/jackc/pgx/v5/stdlib)
//   - mysql (github.com/go-sql-driver/mysql)
//   - duckdb (github.com/marcboeker/go-duckdb)
//
// # SQLite Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// SQLite handles are limited to one open connection. A held Conn therefore
// blocks Store.Exec until it is closed.
package store
