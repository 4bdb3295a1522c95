package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulesql/internal/ir"
	"github.com/roach88/rulesql/internal/store"
)

func sampleTrace() []StepTrace {
	return []StepTrace{
		{Step: 0, Entity: "users", Op: "create", SQL: "INSERT INTO users (name) VALUES (?)", Affected: 1},
		{Step: 1, Entity: "users", Op: "create", Error: "create users: MISSING_REQUIRED_ATTRIBUTE"},
		{Step: 2, Entity: "users", Op: "read", SQL: "SELECT * FROM users"},
		{Step: 3, Entity: "users", Op: "create", SQL: "INSERT INTO users (name) VALUES (?)", Affected: 1},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{SQL: "SELECT * FROM users"}))

	err := assertTraceContains(trace, Assertion{SQL: "DELETE FROM users"})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Equal(t, "not found in trace", ae.Actual)
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	tests := []struct {
		name    string
		a       Assertion
		wantErr bool
	}{
		{"failed steps not counted", Assertion{Entity: "users", Op: "create", Count: 2}, false},
		{"case-insensitive op", Assertion{Entity: "users", Op: "READ", Count: 1}, false},
		{"zero", Assertion{Entity: "users", Op: "delete", Count: 0}, false},
		{"too few", Assertion{Entity: "users", Op: "create", Count: 3}, true},
		{"other entity", Assertion{Entity: "orders", Op: "create", Count: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceCount(trace, tt.a)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "2 successful create on users",
		Actual:   "1 occurrences",
		Trace:    sampleTrace()[:2],
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "Expected: 2 successful create on users")
	assert.Contains(t, msg, "Actual: 1 occurrences")
	assert.Contains(t, msg, "[1] create users: INSERT INTO users (name) VALUES (?)")
	assert.Contains(t, msg, "[2] create users: error: create users: MISSING_REQUIRED_ATTRIBUTE")
}

func TestBuildWhereClause(t *testing.T) {
	sql, args, err := buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Nil(t, args)

	sql, args, err = buildWhereClause(map[string]any{"name": "Ann", "id": 1, "active": true})
	require.NoError(t, err)
	assert.Equal(t, "active = ? AND id = ? AND name = ?", sql)
	assert.Equal(t, []any{true, int64(1), "Ann"}, args)
}

func TestBuildWhereClause_NoInterpolation(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]any{"name": "x' OR '1'='1"})
	require.NoError(t, err)
	assert.Equal(t, "name = ?", sql)
	assert.Equal(t, []any{"x' OR '1'='1"}, args)
}

func TestBuildWhereClause_InvalidColumnName(t *testing.T) {
	_, _, err := buildWhereClause(map[string]any{"name; DROP TABLE users": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column name")
}

func TestBuildQuery_InvalidTableName(t *testing.T) {
	_, _, err := buildQuery("SELECT *", Assertion{Type: AssertFinalState, Table: "users; DROP TABLE users"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")

	query, _, err := buildQuery("SELECT COUNT(*)", Assertion{Table: "main.users"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM main.users", query)
}

func TestFormatWhereClause(t *testing.T) {
	assert.Equal(t, "(no conditions)", formatWhereClause(nil))
	assert.Equal(t, "a=1 AND b=x", formatWhereClause(map[string]any{"b": "x", "a": 1}))
}

func TestStateValuesEqual(t *testing.T) {
	assert.True(t, stateValuesEqual("Ann", ir.IRString("Ann")))
	assert.False(t, stateValuesEqual("Ann", ir.IRString("Bob")))
	assert.True(t, stateValuesEqual(5, ir.IRInt(5)))
	assert.False(t, stateValuesEqual(5, ir.IRString("5")))
	assert.True(t, stateValuesEqual(true, ir.IRInt(1)))
	assert.True(t, stateValuesEqual(false, ir.IRInt(0)))
	assert.False(t, stateValuesEqual(true, ir.IRInt(0)))
	assert.True(t, stateValuesEqual(nil, ir.IRNull{}))
	assert.False(t, stateValuesEqual(nil, ir.IRInt(0)))
	assert.False(t, stateValuesEqual(1.5, ir.IRString("1.5")))
}

// setupTestStore opens an in-memory store with a seeded users table.
func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, store.DefaultConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.Exec(ctx, `
		CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, role TEXT, active INTEGER NOT NULL);
		INSERT INTO users (name, role, active) VALUES ('Ann', 'admin', 1), ('Bob', 'admin', 0), ('Cara', NULL, 1);
	`))
	return st
}

func TestAssertFinalState(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		a          Assertion
		wantActual string
	}{
		{
			name: "match",
			a:    Assertion{Table: "users", Where: map[string]any{"name": "Ann"}, Expect: map[string]any{"role": "admin", "active": true}},
		},
		{
			name: "null column",
			a:    Assertion{Table: "users", Where: map[string]any{"name": "Cara"}, Expect: map[string]any{"role": nil}},
		},
		{
			name:       "row not found",
			a:          Assertion{Table: "users", Where: map[string]any{"name": "Dan"}, Expect: map[string]any{"role": "admin"}},
			wantActual: "row not found",
		},
		{
			name:       "ambiguous",
			a:          Assertion{Table: "users", Where: map[string]any{"role": "admin"}, Expect: map[string]any{"active": 1}},
			wantActual: "multiple rows matched (assertion is ambiguous)",
		},
		{
			name:       "value mismatch",
			a:          Assertion{Table: "users", Where: map[string]any{"name": "Bob"}, Expect: map[string]any{"active": true}},
			wantActual: `field "active" = 0`,
		},
		{
			name:       "missing column",
			a:          Assertion{Table: "users", Where: map[string]any{"name": "Ann"}, Expect: map[string]any{"email": "x"}},
			wantActual: `field "email" not present`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(ctx, st, tt.a)
			if tt.wantActual == "" {
				assert.NoError(t, err)
				return
			}
			var ae *AssertionError
			require.ErrorAs(t, err, &ae)
			assert.Contains(t, ae.Actual, tt.wantActual)
		})
	}
}

func TestAssertFinalState_TableNotFound(t *testing.T) {
	st := setupTestStore(t)

	err := assertFinalState(context.Background(), st, Assertion{Table: "orders", Expect: map[string]any{"id": 1}})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Actual, "query error")
}

func TestAssertRowCount(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	assert.NoError(t, assertRowCount(ctx, st, Assertion{Table: "users", Count: 3}))
	assert.NoError(t, assertRowCount(ctx, st, Assertion{Table: "users", Where: map[string]any{"active": 1}, Count: 2}))
	assert.NoError(t, assertRowCount(ctx, st, Assertion{Table: "users", Where: map[string]any{"name": "Dan"}, Count: 0}))

	err := assertRowCount(ctx, st, Assertion{Table: "users", Count: 1})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "3 rows", ae.Actual)
}

func TestEvaluateAssertions(t *testing.T) {
	st := setupTestStore(t)
	result := &Result{Trace: sampleTrace()}
	actx := &AssertionContext{Store: st, Ctx: context.Background()}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, SQL: "SELECT * FROM users"},
		{Type: AssertTraceCount, Entity: "users", Op: "create", Count: 2},
		{Type: AssertRowCount, Table: "users", Count: 3},
		{Type: AssertFinalState, Table: "users", Where: map[string]any{"name": "Bob"}, Expect: map[string]any{"role": "admin"}},
	}, actx)
	assert.Empty(t, errs)

	errs = EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, SQL: "DELETE FROM users"},
		{Type: "eventually"},
	}, actx)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[1], `unknown assertion type "eventually"`)
}

func TestEvaluateAssertions_DatabaseWithoutContext(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: AssertRowCount, Table: "users"}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "row_count requires database context")
}
