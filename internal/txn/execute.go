package txn

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/rulesql/internal/querysql"
	"github.com/roach88/rulesql/internal/store"
)

// Execute runs a pre-built statement directly on exec. It is the entry point
// for escape-hatch statements and raw setup SQL.
func Execute(ctx context.Context, exec Executor, stmt querysql.Statement) (*store.Result, error) {
	res, err := exec.Execute(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("execute statement: %w", err)
	}
	return res, nil
}

// LastInsertID fetches the identifier generated by the most recent insert on
// exec's connection.
func LastInsertID(ctx context.Context, exec Executor) (int64, error) {
	stmt, err := querysql.LastInsertID(exec.Dialect())
	if err != nil {
		return 0, err
	}
	return scalar(ctx, exec, stmt)
}

// RowCount fetches the number of rows the previous statement on exec's
// connection affected.
func RowCount(ctx context.Context, exec Executor) (int64, error) {
	stmt, err := querysql.RowCount(exec.Dialect())
	if err != nil {
		return 0, err
	}
	return scalar(ctx, exec, stmt)
}

func scalar(ctx context.Context, exec Executor, stmt querysql.Statement) (int64, error) {
	res, err := Execute(ctx, exec, stmt)
	if err != nil {
		return 0, err
	}
	return res.Scalar()
}

// RunInTransaction starts a transaction on tx, runs fn and commits.
// If fn fails the transaction is rolled back, unless an operation already
// did so, and fn's error is returned.
func RunInTransaction(ctx context.Context, tx *Transaction, fn func(*Transaction) error) error {
	if err := tx.Start(ctx); err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if tx.State() == InTransaction {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
				tx.logger.Warn("rollback failed", slog.String("cause", err.Error()), slog.String("error", rbErr.Error()))
			}
		}
		return err
	}

	return tx.Commit(ctx)
}
