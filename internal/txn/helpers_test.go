package txn

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/rulesql/internal/querysql"
	"github.com/roach88/rulesql/internal/rules"
	"github.com/roach88/rulesql/internal/store"
)

var errBackend = errors.New("backend failure")

// fakeConn records every statement and control statement it receives.
type fakeConn struct {
	dialect querysql.Dialect
	calls   []string

	// failOn makes the n-th Execute call (1-based) fail.
	failOn int
	execs  int

	// controlErr makes the named control statement fail.
	controlErr map[string]error

	result *store.Result
	closed int
}

func newFakeConn() *fakeConn {
	return &fakeConn{dialect: querysql.SQLite, controlErr: map[string]error{}}
}

func (c *fakeConn) Execute(ctx context.Context, stmt querysql.Statement) (*store.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.execs++
	c.calls = append(c.calls, stmt.SQL)
	if c.failOn > 0 && c.execs == c.failOn {
		return nil, errBackend
	}
	if c.result != nil {
		return c.result, nil
	}
	return &store.Result{RowsAffected: 1}, nil
}

// Control refuses to send anything on a done context, like database/sql.
func (c *fakeConn) Control(ctx context.Context, sql string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.calls = append(c.calls, sql)
	return c.controlErr[sql]
}

func (c *fakeConn) Dialect() querysql.Dialect {
	return c.dialect
}

func (c *fakeConn) Close() error {
	c.closed++
	return nil
}

// stubTable renders a fixed statement per operation.
type stubTable struct {
	name string
	err  error
	none map[rules.Operation]bool
}

func (s stubTable) render(op rules.Operation) (*querysql.Statement, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.none[op] {
		return nil, nil
	}
	return &querysql.Statement{SQL: fmt.Sprintf("%s %s", op, s.name)}, nil
}

func (s stubTable) Create() (*querysql.Statement, error) { return s.render(rules.Create) }
func (s stubTable) Read() (*querysql.Statement, error)   { return s.render(rules.Read) }
func (s stubTable) Update() (*querysql.Statement, error) { return s.render(rules.Update) }
func (s stubTable) Delete() (*querysql.Statement, error) { return s.render(rules.Delete) }
