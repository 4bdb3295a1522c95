package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/rulesql/internal/ir"
	"github.com/roach88/rulesql/internal/querysql"
)

// Result is the generic value container for one executed statement.
// Row-returning statements fill Columns and Rows; the others fill
// RowsAffected and, when the driver reports it, LastInsertID.
type Result struct {
	Columns      []string
	Rows         []ir.IRObject
	RowsAffected int64
	LastInsertID int64
}

// Scalar returns the first column of the first row as an integer.
// The escape-hatch lookups (last insert id, row count) return one.
func (r *Result) Scalar() (int64, error) {
	if r == nil || len(r.Rows) == 0 || len(r.Columns) == 0 {
		return 0, fmt.Errorf("scalar: no rows")
	}
	v, ok := r.Rows[0][r.Columns[0]].(ir.IRInt)
	if !ok {
		return 0, fmt.Errorf("scalar: column %q is %T, not an integer", r.Columns[0], r.Rows[0][r.Columns[0]])
	}
	return int64(v), nil
}

// Conn is a dedicated connection. Every statement a transaction issues runs
// through the same Conn so that session state (open transaction, last
// insert id, change count) is shared between them.
type Conn struct {
	conn    *sqlx.Conn
	dialect querysql.Dialect
	logger  *slog.Logger
	closed  bool
}

// Dialect returns the dialect of the owning store.
func (c *Conn) Dialect() querysql.Dialect {
	return c.dialect
}

// Execute runs a rendered statement. Placeholders are rebound to the
// dialect's bind style first.
func (c *Conn) Execute(ctx context.Context, stmt querysql.Statement) (*Result, error) {
	if c.closed {
		return nil, fmt.Errorf("execute: connection closed")
	}
	stmt = c.dialect.Rebind(stmt)

	c.logger.Debug("executing statement",
		slog.String("statement_id", stmt.ID()),
		slog.String("sql", stmt.SQL),
		slog.Int("params", len(stmt.Params)),
	)

	if stmt.Query {
		return c.query(ctx, stmt)
	}

	res, err := c.conn.ExecContext(ctx, stmt.SQL, stmt.Params...)
	if err != nil {
		return nil, fmt.Errorf("exec: %w", err)
	}

	out := &Result{}
	if out.RowsAffected, err = res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	// pgx does not report insert ids; callers use the escape hatch instead.
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	return out, nil
}

func (c *Conn) query(ctx context.Context, stmt querysql.Statement) (*Result, error) {
	rows, err := c.conn.QueryxContext(ctx, stmt.SQL, stmt.Params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	out := &Result{Columns: cols, Rows: []ir.IRObject{}}
	for rows.Next() {
		raw := make(map[string]any, len(cols))
		if err := rows.MapScan(raw); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out.Rows = append(out.Rows, RowFromDriver(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Control runs a zero-parameter control statement (BEGIN, COMMIT, ROLLBACK).
func (c *Conn) Control(ctx context.Context, sql string) error {
	if c.closed {
		return fmt.Errorf("%s: connection closed", sql)
	}
	c.logger.Debug("control statement", slog.String("sql", sql))
	if _, err := c.conn.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("%s: %w", sql, err)
	}
	return nil
}

// Close returns the connection to the pool. Safe to call more than once.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// RowFromDriver converts a row scanned with sqlx MapScan into an IRObject.
func RowFromDriver(raw map[string]any) ir.IRObject {
	row := make(ir.IRObject, len(raw))
	for name, v := range raw {
		row[name] = fromDriver(v)
	}
	return row
}

// fromDriver converts a scanned column value into an IR value.
// Fractional floats and driver-specific types are rendered as strings
// because the IR has no float type.
func fromDriver(v any) ir.IRValue {
	switch val := v.(type) {
	case nil:
		return ir.IRNull{}
	case int64:
		return ir.IRInt(val)
	case int32:
		return ir.IRInt(val)
	case int:
		return ir.IRInt(val)
	case int16:
		return ir.IRInt(val)
	case int8:
		return ir.IRInt(val)
	case uint32:
		return ir.IRInt(val)
	case uint16:
		return ir.IRInt(val)
	case uint8:
		return ir.IRInt(val)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return ir.IRInt(int64(val))
		}
		return ir.IRString(strconv.FormatFloat(val, 'f', -1, 64))
	case float32:
		return fromDriver(float64(val))
	case bool:
		return ir.IRBool(val)
	case string:
		return ir.IRString(val)
	case []byte:
		return ir.IRString(string(val))
	case time.Time:
		return ir.IRString(val.UTC().Format(time.RFC3339Nano))
	default:
		return ir.IRString(fmt.Sprint(val))
	}
}
