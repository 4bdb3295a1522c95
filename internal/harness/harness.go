package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/rulesql/internal/compiler"
	"github.com/roach88/rulesql/internal/ir"
	"github.com/roach88/rulesql/internal/querysql"
	"github.com/roach88/rulesql/internal/rules"
	"github.com/roach88/rulesql/internal/store"
	"github.com/roach88/rulesql/internal/table"
	"github.com/roach88/rulesql/internal/txn"
)

// Harness is the test execution engine for one scenario run.
type Harness struct {
	tx       *txn.Transaction
	entities map[string]*table.Definition
	logger   *slog.Logger
}

// Option configures a run.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger routes store and transaction logs to logger.
// Runs are silent by default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
// 1. Compile the scenario's entity definitions
// 2. Create a fresh in-memory database
// 3. Run setup SQL outside any transaction
// 4. Execute steps inside a transaction, checking expect clauses
// 5. Commit or roll back, then evaluate assertions
//
// Step and assertion mismatches are reported in the result; the returned
// error covers problems that stop the run itself.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	defs, err := compiler.LoadFiles(scenario.Specs...)
	if err != nil {
		return nil, fmt.Errorf("failed to load specs: %w", err)
	}
	entities := make(map[string]*table.Definition, len(defs))
	for _, def := range defs {
		entities[def.Name] = def
	}

	ctx := context.Background()

	st, err := store.Open(ctx, store.DefaultConfig(), o.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	txID := scenario.TxID
	if txID == "" {
		txID = DefaultTxID
	}
	tx, err := txn.Begin(ctx, st,
		txn.WithLogger(o.logger),
		txn.WithIDSource(txn.StaticID(txID)),
	)
	if err != nil {
		return nil, err
	}
	defer tx.Close()

	h := &Harness{
		tx:       tx,
		entities: entities,
		logger:   o.logger,
	}

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		trace, err := h.executeStep(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.AddStep(trace)
		for _, msg := range checkExpect(trace, step.Expect) {
			result.AddError(fmt.Sprintf("step %d (%s %s): %s", i, step.Op, step.Entity, msg))
		}
	}

	if err := h.finish(ctx, scenario.ShouldCommit()); err != nil {
		return nil, err
	}
	result.FinalState = tx.State().String()

	// The dedicated connection must go back to the pool before the
	// assertions query the database.
	if err := tx.Close(); err != nil {
		return nil, fmt.Errorf("failed to release connection: %w", err)
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// executeSetup runs the setup statements before the transaction starts.
func (h *Harness) executeSetup(ctx context.Context, setup []string) error {
	for i, sql := range setup {
		if _, err := h.tx.Exec(ctx, querysql.Statement{SQL: sql}); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		h.logger.Debug("setup statement executed", slog.Int("index", i))
	}
	return nil
}

// executeStep runs one step and records what happened. Binding and
// execution failures are recorded in the trace; only an unknown entity or
// a failed transaction start stops the run.
func (h *Harness) executeStep(ctx context.Context, index int, step Step) (StepTrace, error) {
	trace := StepTrace{Step: index, Entity: step.Entity, Op: step.Op}

	if h.tx.State() != txn.InTransaction {
		if err := h.tx.Start(ctx); err != nil {
			return trace, err
		}
	}

	switch step.Op {
	case OpLastInsertID:
		h.runScalar(ctx, &trace, h.tx.LastInsertID)
		return trace, nil
	case OpRowCount:
		h.runScalar(ctx, &trace, h.tx.RowCount)
		return trace, nil
	}

	def, ok := h.entities[step.Entity]
	if !ok {
		return trace, fmt.Errorf("unknown entity %q", step.Entity)
	}
	op, err := rules.ParseOperation(step.Op)
	if err != nil {
		return trace, err
	}

	binding, err := bindStep(def, step)
	if err != nil {
		trace.Error = err.Error()
		trace.State = h.tx.State().String()
		return trace, nil
	}

	// Render once more for the trace; ExecuteOperation renders its own copy.
	if stmt, err := table.Dispatch(binding, op); err == nil && stmt != nil {
		trace.SQL = stmt.SQL
		trace.Params = stmt.Params
	}

	out, err := h.tx.ExecuteOperation(ctx, txn.Operation{Kind: op, Table: binding})
	trace.State = h.tx.State().String()
	if err != nil {
		trace.Error = err.Error()
		return trace, nil
	}

	res := out.(*store.Result)
	trace.Rows = res.Rows
	trace.Affected = res.RowsAffected
	return trace, nil
}

// runScalar records an escape-hatch lookup in trace.
func (h *Harness) runScalar(ctx context.Context, trace *StepTrace, lookup func(context.Context) (int64, error)) {
	v, err := lookup(ctx)
	if err != nil {
		trace.Error = err.Error()
	} else {
		trace.Value = &v
	}
	trace.State = h.tx.State().String()
}

// finish commits or rolls back whatever transaction is still open.
func (h *Harness) finish(ctx context.Context, commit bool) error {
	if h.tx.State() != txn.InTransaction {
		return nil
	}
	if commit {
		if err := h.tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit: %w", err)
		}
		return nil
	}
	if err := h.tx.Rollback(ctx); err != nil {
		return fmt.Errorf("failed to roll back: %w", err)
	}
	return nil
}

// bindStep converts the step's YAML values and binds them to def.
func bindStep(def *table.Definition, step Step) (*table.Binding, error) {
	var req table.Request
	var err error

	if step.Values != nil {
		if req.Values, err = toValues(step.Values); err != nil {
			return nil, fmt.Errorf("values: %w", err)
		}
	}
	if step.Filter != nil {
		if req.Filter, err = toValues(step.Filter); err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
	}
	req.Columns = step.Columns

	return def.Bind(req)
}

// toValues converts YAML-decoded attribute values into rules.Values.
func toValues(m map[string]any) (rules.Values, error) {
	obj, err := ir.ObjectFromMap(m)
	if err != nil {
		return nil, err
	}
	return rules.Values(obj), nil
}

// checkExpect compares a step trace with its expect clause and returns
// one message per mismatch.
func checkExpect(trace StepTrace, expect *Expect) []string {
	if expect == nil {
		if trace.Failed() {
			return []string{"unexpected error: " + trace.Error}
		}
		return nil
	}

	var msgs []string
	if expect.Error != "" {
		if !trace.Failed() {
			return []string{fmt.Sprintf("expected error %q, step succeeded", expect.Error)}
		}
		if !strings.Contains(trace.Error, expect.Error) {
			msgs = append(msgs, fmt.Sprintf("expected error %q, got %q", expect.Error, trace.Error))
		}
	} else if trace.Failed() {
		return []string{"unexpected error: " + trace.Error}
	}

	if expect.SQL != "" && expect.SQL != trace.SQL {
		msgs = append(msgs, fmt.Sprintf("sql: expected %q, got %q", expect.SQL, trace.SQL))
	}
	if expect.Params != nil {
		if msg := compareCanonical("params", expect.Params, trace.Params); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	if expect.Rows != nil {
		expected := make([]any, len(expect.Rows))
		for i, row := range expect.Rows {
			expected[i] = row
		}
		actual := make([]any, len(trace.Rows))
		for i, row := range trace.Rows {
			actual[i] = row
		}
		if msg := compareCanonical("rows", expected, actual); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	if expect.Affected != nil && *expect.Affected != trace.Affected {
		msgs = append(msgs, fmt.Sprintf("affected: expected %d, got %d", *expect.Affected, trace.Affected))
	}
	if expect.Value != nil {
		switch {
		case trace.Value == nil:
			msgs = append(msgs, fmt.Sprintf("value: expected %d, got none", *expect.Value))
		case *expect.Value != *trace.Value:
			msgs = append(msgs, fmt.Sprintf("value: expected %d, got %d", *expect.Value, *trace.Value))
		}
	}
	return msgs
}

// compareCanonical compares two decoded values through their canonical JSON
// form, so YAML ints and IR values compare equal.
func compareCanonical(field string, expected, actual any) string {
	want, err := canonicalize(expected)
	if err != nil {
		return fmt.Sprintf("%s: invalid expectation: %v", field, err)
	}
	got, err := canonicalize(actual)
	if err != nil {
		return fmt.Sprintf("%s: %v", field, err)
	}
	if want != got {
		return fmt.Sprintf("%s: expected %s, got %s", field, want, got)
	}
	return ""
}

func canonicalize(v any) (string, error) {
	irv, err := ir.FromGo(normalizeYAML(v))
	if err != nil {
		return "", err
	}
	data, err := ir.MarshalCanonical(irv)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// normalizeYAML rewrites the typed maps and slices produced by yaml.v3 and
// by the trace into the generic shapes ir.FromGo accepts.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case []map[string]any:
		out := make([]any, len(val))
		for i, m := range val {
			out[i] = normalizeYAML(m)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalizeYAML(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalizeYAML(elem)
		}
		return out
	default:
		return val
	}
}

