package txn

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/rulesql/internal/querysql"
	"github.com/roach88/rulesql/internal/rules"
	"github.com/roach88/rulesql/internal/store"
	"github.com/roach88/rulesql/internal/table"
)

// Executor runs statements and control statements on one connection.
// *store.Conn implements it.
type Executor interface {
	Execute(ctx context.Context, stmt querysql.Statement) (*store.Result, error)
	Control(ctx context.Context, sql string) error
	Dialect() querysql.Dialect
}

// Conn is an Executor the Transaction owns and releases on Close.
type Conn interface {
	Executor
	Close() error
}

var _ Conn = (*store.Conn)(nil)

// State is the coordinator's position in the transaction lifecycle.
type State int

const (
	Idle State = iota
	InTransaction
	Committed
	RolledBack
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InTransaction:
		return "in_transaction"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handler turns a raw result into caller-defined output. It may fail, in
// which case the coordinator rolls back.
type Handler func(*store.Result) (any, error)

// Operation is one CRUD call against a bound table.
// A nil Handler returns the raw *store.Result.
type Operation struct {
	Kind    rules.Operation
	Table   table.Operable
	Handler Handler
}

// Transaction sequences operations on a single connection.
type Transaction struct {
	id     string
	conn   Conn
	logger *slog.Logger
	state  State
	closed bool
	seq    int64
}

// Option configures a Transaction.
type Option func(*txConfig)

type txConfig struct {
	logger *slog.Logger
	ids    IDSource
}

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *txConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// IDSource yields the id a Transaction tags its log records with.
type IDSource func() string

// NewTxID returns a time-ordered UUIDv7.
func NewTxID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// StaticID always yields id, keeping logs and snapshots stable.
func StaticID(id string) IDSource {
	return func() string { return id }
}

// WithIDSource sets where the transaction id comes from. The default is NewTxID.
func WithIDSource(src IDSource) Option {
	return func(c *txConfig) {
		if src != nil {
			c.ids = src
		}
	}
}

// New wraps an already acquired connection. The Transaction takes ownership
// and closes it on Close.
func New(conn Conn, opts ...Option) *Transaction {
	cfg := txConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		ids:    NewTxID,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	id := cfg.ids()
	return &Transaction{
		id:     id,
		conn:   conn,
		logger: cfg.logger.With(slog.String("tx", id)),
		state:  Idle,
	}
}

// Begin acquires a dedicated connection from s and wraps it.
func Begin(ctx context.Context, s *store.Store, opts ...Option) (*Transaction, error) {
	conn, err := s.Conn(ctx)
	if err != nil {
		return nil, &ConnectionError{Op: "open", Err: err}
	}
	return New(conn, opts...), nil
}

// ID returns the transaction id used in logs.
func (t *Transaction) ID() string {
	return t.id
}

// State returns the current lifecycle state.
func (t *Transaction) State() State {
	return t.state
}

// Dialect returns the dialect of the owned connection.
func (t *Transaction) Dialect() querysql.Dialect {
	return t.conn.Dialect()
}

// Start issues the dialect's begin statement.
func (t *Transaction) Start(ctx context.Context) error {
	if t.closed {
		return ErrClosed
	}
	if t.state == InTransaction {
		return ErrAlreadyInTransaction
	}

	if err := t.conn.Control(ctx, t.conn.Dialect().Begin); err != nil {
		return &ConnectionError{Op: "begin", Err: err}
	}
	t.state = InTransaction
	t.logger.Debug("transaction started")
	return nil
}

// Commit issues the dialect's commit statement. Valid only inside a
// transaction; on failure the state is unchanged so the caller can roll back.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.closed {
		return ErrClosed
	}
	if t.state != InTransaction {
		return fmt.Errorf("commit from %s: %w", t.state, ErrNotInTransaction)
	}

	if err := t.conn.Control(ctx, t.conn.Dialect().Commit); err != nil {
		return &ConnectionError{Op: "commit", Err: err}
	}
	t.state = Committed
	t.logger.Info("transaction committed", slog.Int64("statements", t.seq))
	return nil
}

// Rollback issues the dialect's rollback statement from any state.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.closed {
		return ErrClosed
	}

	if err := t.conn.Control(ctx, t.conn.Dialect().Rollback); err != nil {
		return &ConnectionError{Op: "rollback", Err: err}
	}
	t.state = RolledBack
	t.logger.Info("transaction rolled back", slog.Int64("statements", t.seq))
	return nil
}

// ExecuteOperation renders op's statement through its table binding,
// executes it and passes the result to op's handler.
//
// Any failure triggers a rollback before the original error is returned.
func (t *Transaction) ExecuteOperation(ctx context.Context, op Operation) (any, error) {
	if t.closed {
		return nil, ErrClosed
	}

	out, err := t.executeOperation(ctx, op)
	if err != nil {
		t.abort(ctx, op, err)
		return nil, err
	}
	return out, nil
}

// ExecuteAll runs ops in order and stops at the first failure, which has
// already been rolled back. Outputs of the operations that ran are returned.
func (t *Transaction) ExecuteAll(ctx context.Context, ops ...Operation) ([]any, error) {
	outs := make([]any, 0, len(ops))
	for i, op := range ops {
		out, err := t.ExecuteOperation(ctx, op)
		if err != nil {
			return outs, fmt.Errorf("operation %d: %w", i, err)
		}
		outs = append(outs, out)
	}
	return outs, nil
}

func (t *Transaction) executeOperation(ctx context.Context, op Operation) (any, error) {
	if op.Table == nil {
		return nil, fmt.Errorf("%s: no table binding: %w", op.Kind, ErrUnsupportedOperation)
	}

	stmt, err := table.Dispatch(op.Table, op.Kind)
	if err != nil {
		return nil, err
	}
	if stmt == nil {
		return nil, fmt.Errorf("%s: %w", op.Kind, ErrUnsupportedOperation)
	}

	t.seq++
	t.logger.Debug("executing operation",
		slog.String("operation", op.Kind.String()),
		slog.String("statement_id", stmt.ID()),
		slog.Int("params", len(stmt.Params)),
		slog.Int64("seq", t.seq),
	)

	res, err := t.conn.Execute(ctx, *stmt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op.Kind, err)
	}

	if op.Handler == nil {
		return res, nil
	}
	out, err := op.Handler(res)
	if err != nil {
		return nil, fmt.Errorf("%s: handler: %w", op.Kind, err)
	}
	return out, nil
}

// abort issues the automatic rollback after a failed operation. It runs
// detached from ctx's cancellation because ctx may be the reason the
// operation failed. A rollback failure is logged and dropped, and the state
// is left as it was so Close rolls back again.
func (t *Transaction) abort(ctx context.Context, op Operation, cause error) {
	if err := t.conn.Control(context.WithoutCancel(ctx), t.conn.Dialect().Rollback); err != nil {
		t.logger.Warn("automatic rollback failed",
			slog.String("operation", op.Kind.String()),
			slog.String("state", t.state.String()),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()),
		)
		return
	}
	t.state = RolledBack
	t.logger.Info("transaction rolled back after failure",
		slog.String("operation", op.Kind.String()),
		slog.String("cause", cause.Error()),
	)
}

// Exec runs a pre-built statement on the owned connection, bypassing the
// table binding layer. It does not roll back on failure.
func (t *Transaction) Exec(ctx context.Context, stmt querysql.Statement) (*store.Result, error) {
	if t.closed {
		return nil, ErrClosed
	}
	t.seq++
	return Execute(ctx, t.conn, stmt)
}

// LastInsertID runs the last-insert-id escape hatch on the owned connection.
func (t *Transaction) LastInsertID(ctx context.Context) (int64, error) {
	if t.closed {
		return 0, ErrClosed
	}
	return LastInsertID(ctx, t.conn)
}

// RowCount runs the affected-row-count escape hatch on the owned connection.
func (t *Transaction) RowCount(ctx context.Context) (int64, error) {
	if t.closed {
		return 0, ErrClosed
	}
	return RowCount(ctx, t.conn)
}

// Close releases the connection. An open transaction is rolled back first.
// Safe to call more than once.
func (t *Transaction) Close() error {
	if t.closed {
		return nil
	}
	if t.state == InTransaction {
		if err := t.Rollback(context.Background()); err != nil {
			t.logger.Warn("rollback on close failed", slog.String("error", err.Error()))
		}
	}
	t.closed = true
	return t.conn.Close()
}
