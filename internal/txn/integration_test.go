package txn

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulesql/internal/ir"
	"github.com/roach88/rulesql/internal/querysql"
	"github.com/roach88/rulesql/internal/rules"
	"github.com/roach88/rulesql/internal/store"
	"github.com/roach88/rulesql/internal/table"
)

func usersDefinition() *table.Definition {
	return &table.Definition{
		Name: "users",
		Rules: rules.NewRuleset(map[string]rules.Rule{
			"id":    {rules.Create: rules.Absent, rules.Update: rules.Absent},
			"name":  {rules.Create: rules.Required},
			"email": {rules.Create: rules.Required},
		}),
	}
}

func bind(t *testing.T, req table.Request) *table.Binding {
	t.Helper()
	b, err := usersDefinition().Bind(req)
	require.NoError(t, err)
	return b
}

func TestCoordinator_MySQLStatements(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mysql, err := querysql.LookupDialect("mysql")
	require.NoError(t, err)
	s := store.New(sqlx.NewDb(db, "mysql"), mysql, nil)

	mock.ExpectExec("START TRANSACTION").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO users (email, name) VALUES (?, ?)").
		WithArgs("ann@example.com", "Ann").
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectQuery("SELECT LAST_INSERT_ID()").
		WillReturnRows(sqlmock.NewRows([]string{"LAST_INSERT_ID()"}).AddRow(int64(5)))
	mock.ExpectExec("UPDATE users SET name = ? WHERE id = ?").
		WithArgs("Bob", int64(5)).
		WillReturnError(errors.New("deadlock"))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := Begin(ctx, s)
	require.NoError(t, err)
	defer tx.Close()

	require.NoError(t, tx.Start(ctx))

	out, err := tx.ExecuteOperation(ctx, Operation{
		Kind: rules.Create,
		Table: bind(t, table.Request{Values: rules.Values{
			"name":  ir.IRString("Ann"),
			"email": ir.IRString("ann@example.com"),
		}}),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), out.(*store.Result).LastInsertID)

	id, err := tx.LastInsertID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)

	_, err = tx.ExecuteOperation(ctx, Operation{
		Kind: rules.Update,
		Table: bind(t, table.Request{
			Values: rules.Values{"name": ir.IRString("Bob")},
			Filter: rules.Values{"id": ir.IRInt(id)},
		}),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock")
	assert.Equal(t, RolledBack, tx.State())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCoordinator_PostgresRebinds(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	pgx, err := querysql.LookupDialect("pgx")
	require.NoError(t, err)
	s := store.New(sqlx.NewDb(db, "pgx"), pgx, nil)

	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM users WHERE id = $1").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := Begin(ctx, s)
	require.NoError(t, err)
	defer tx.Close()

	err = RunInTransaction(ctx, tx, func(tx *Transaction) error {
		_, err := tx.ExecuteOperation(ctx, Operation{
			Kind:  rules.Delete,
			Table: bind(t, table.Request{Filter: rules.Values{"id": ir.IRInt(7)}}),
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, Committed, tx.State())

	_, err = tx.RowCount(ctx)
	assert.ErrorIs(t, err, querysql.ErrUnsupportedDialect)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCoordinator_SQLite(t *testing.T) {
	ctx := context.Background()

	s, err := store.Open(ctx, store.DefaultConfig(), nil)
	require.NoError(t, err)
	defer s.Close()

	tx, err := Begin(ctx, s)
	require.NoError(t, err)
	defer tx.Close()

	_, err = tx.Exec(ctx, querysql.Statement{
		SQL: "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT NOT NULL)",
	})
	require.NoError(t, err)

	create := func(name, email string) Operation {
		values := rules.Values{"name": ir.IRString(name)}
		if email != "" {
			values["email"] = ir.IRString(email)
		}
		return Operation{Kind: rules.Create, Table: bind(t, table.Request{Values: values})}
	}
	countRows := func() int {
		out, err := tx.ExecuteOperation(ctx, Operation{
			Kind:    rules.Read,
			Table:   bind(t, table.Request{}),
			Handler: func(r *store.Result) (any, error) { return len(r.Rows), nil },
		})
		require.NoError(t, err)
		return out.(int)
	}

	// Second insert fails validation; the first is rolled back with it.
	require.NoError(t, tx.Start(ctx))
	_, err = tx.ExecuteAll(ctx, create("Ann", "ann@example.com"), create("Bob", ""))
	require.ErrorIs(t, err, rules.ErrMissingRequiredAttribute)
	assert.Equal(t, RolledBack, tx.State())
	assert.Equal(t, 0, countRows())

	// Same sequence with valid data commits.
	require.NoError(t, tx.Start(ctx))
	_, err = tx.ExecuteAll(ctx, create("Ann", "ann@example.com"), create("Bob", "bob@example.com"))
	require.NoError(t, err)

	id, err := tx.LastInsertID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, 2, countRows())

	// Update through the binding, then read the change count.
	_, err = tx.ExecuteOperation(ctx, Operation{
		Kind: rules.Update,
		Table: bind(t, table.Request{
			Values: rules.Values{"email": ir.IRString("ann@new.example.com")},
			Filter: rules.Values{"name": ir.IRString("Ann")},
		}),
	})
	require.NoError(t, err)
	n, err := tx.RowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	out, err := tx.ExecuteOperation(ctx, Operation{
		Kind:  rules.Read,
		Table: bind(t, table.Request{Filter: rules.Values{"id": ir.IRInt(1)}, Columns: []string{"email"}}),
	})
	require.NoError(t, err)
	res := out.(*store.Result)
	assert.Equal(t, []string{"email"}, res.Columns)
	assert.Equal(t, []ir.IRObject{{"email": ir.IRString("ann@new.example.com")}}, res.Rows)
}

func TestCoordinator_SQLiteRollbackAfterCancel(t *testing.T) {
	ctx := context.Background()

	s, err := store.Open(ctx, store.DefaultConfig(), nil)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Exec(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT NOT NULL)"))

	tx, err := Begin(ctx, s)
	require.NoError(t, err)
	require.NoError(t, tx.Start(ctx))

	_, err = tx.ExecuteOperation(ctx, Operation{
		Kind: rules.Create,
		Table: bind(t, table.Request{Values: rules.Values{
			"name":  ir.IRString("Ann"),
			"email": ir.IRString("ann@example.com"),
		}}),
	})
	require.NoError(t, err)

	// The handler sees the caller give up; the rollback must still reach
	// the database.
	cctx, cancel := context.WithCancel(ctx)
	_, err = tx.ExecuteOperation(cctx, Operation{
		Kind:  rules.Read,
		Table: bind(t, table.Request{}),
		Handler: func(*store.Result) (any, error) {
			cancel()
			return nil, cctx.Err()
		},
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, RolledBack, tx.State())
	require.NoError(t, tx.Close())

	// The single SQLite connection is back in the pool with no open
	// transaction and without Ann.
	next, err := Begin(ctx, s)
	require.NoError(t, err)
	defer next.Close()
	require.NoError(t, next.Start(ctx))

	out, err := next.ExecuteOperation(ctx, Operation{Kind: rules.Read, Table: bind(t, table.Request{})})
	require.NoError(t, err)
	assert.Empty(t, out.(*store.Result).Rows)
	require.NoError(t, next.Commit(ctx))
}
