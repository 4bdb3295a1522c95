package querysql

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrUnsupportedDialect is returned for drivers without a known dialect or
// for escape-hatch statements a dialect cannot express.
var ErrUnsupportedDialect = errors.New("unsupported dialect")

func init() {
	// sqlx knows sqlite3, mysql and pgx; duckdb uses ? placeholders.
	sqlx.BindDriver("duckdb", sqlx.QUESTION)
}

// Dialect captures the backend-specific SQL the synthesizer does not render
// itself: placeholder style, transaction control and escape-hatch lookups.
type Dialect struct {
	// Name is the database/sql driver name.
	Name string

	// Begin, Commit and Rollback are the transaction control statements.
	Begin    string
	Commit   string
	Rollback string

	// LastInsertIDSQL and RowCountSQL back the escape-hatch statements.
	// Empty means the dialect has no equivalent.
	LastInsertIDSQL string
	RowCountSQL     string
}

var dialects = map[string]Dialect{
	"sqlite3": {
		Name:            "sqlite3",
		Begin:           "BEGIN",
		Commit:          "COMMIT",
		Rollback:        "ROLLBACK",
		LastInsertIDSQL: "SELECT last_insert_rowid()",
		RowCountSQL:     "SELECT changes()",
	},
	"mysql": {
		Name:            "mysql",
		Begin:           "START TRANSACTION",
		Commit:          "COMMIT",
		Rollback:        "ROLLBACK",
		LastInsertIDSQL: "SELECT LAST_INSERT_ID()",
		RowCountSQL:     "SELECT ROW_COUNT()",
	},
	"pgx": {
		Name:            "pgx",
		Begin:           "BEGIN",
		Commit:          "COMMIT",
		Rollback:        "ROLLBACK",
		LastInsertIDSQL: "SELECT lastval()",
	},
	"duckdb": {
		Name:     "duckdb",
		Begin:    "BEGIN TRANSACTION",
		Commit:   "COMMIT",
		Rollback: "ROLLBACK",
	},
}

// SQLite is the default dialect.
var SQLite = dialects["sqlite3"]

// LookupDialect returns the dialect for a database/sql driver name.
func LookupDialect(driver string) (Dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return Dialect{}, fmt.Errorf("%w: %q", ErrUnsupportedDialect, driver)
	}
	return d, nil
}

// Rebind rewrites the ? placeholders of s into the dialect's bind style
// ($1, $2, ... for pgx). Parameters are unchanged.
func (d Dialect) Rebind(s Statement) Statement {
	s.SQL = sqlx.Rebind(sqlx.BindType(d.Name), s.SQL)
	return s
}

// LastInsertID returns the zero-parameter statement that fetches the last
// inserted identifier on the current connection.
func LastInsertID(d Dialect) (Statement, error) {
	if d.LastInsertIDSQL == "" {
		return Statement{}, fmt.Errorf("%w: %s has no last-insert-id lookup", ErrUnsupportedDialect, d.Name)
	}
	return Statement{SQL: d.LastInsertIDSQL, Query: true}, nil
}

// RowCount returns the zero-parameter statement that fetches the number of
// rows affected by the previous statement on the current connection.
func RowCount(d Dialect) (Statement, error) {
	if d.RowCountSQL == "" {
		return Statement{}, fmt.Errorf("%w: %s has no row-count lookup", ErrUnsupportedDialect, d.Name)
	}
	return Statement{SQL: d.RowCountSQL, Query: true}, nil
}
