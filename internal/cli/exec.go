package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/rulesql/internal/ir"
	"github.com/roach88/rulesql/internal/querysql"
	"github.com/roach88/rulesql/internal/rules"
	"github.com/roach88/rulesql/internal/store"
	"github.com/roach88/rulesql/internal/txn"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Request  RequestOptions
	InitFile string // SQL script run before the transaction
	DryRun   bool   // roll back instead of committing
}

// ExecResult is the JSON payload of the exec command.
type ExecResult struct {
	Entity        string        `json:"entity"`
	Operation     string        `json:"operation"`
	TransactionID string        `json:"transaction_id"`
	SQL           string        `json:"sql"`
	Params        []any         `json:"params"`
	StatementID   string        `json:"statement_id"`
	Columns       []string      `json:"columns,omitempty"`
	Rows          []ir.IRObject `json:"rows,omitempty"`
	RowsAffected  int64         `json:"rows_affected"`
	LastInsertID  *int64        `json:"last_insert_id,omitempty"`
	State         string        `json:"state"`
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <specs> <entity> <operation>",
		Short: "Execute one operation in a transaction",
		Long: `Bind attribute data to an entity, execute the resulting statement in a
transaction against the configured database and commit.

The operation is rolled back if validation, rendering or execution fails.
Read results are printed as a table; writes print the affected row count
and, for create, the generated identifier when the dialect can fetch it.

Examples:
  rulesql exec ./specs users create --values '{"name":"Ann"}' --init schema.sql
  rulesql exec ./specs users read --filter '{"active":true}' --format json
  rulesql exec ./specs users delete --filter '{"id":3}' --driver pgx --dsn postgres://localhost/app`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd.Context(), opts, args[0], args[1], args[2], cmd)
		},
	}

	addRequestFlags(cmd, &opts.Request)
	cmd.Flags().StringVar(&opts.InitFile, "init", "", "SQL script to run before the transaction (schema, seed data)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "roll back instead of committing")

	return cmd
}

func runExec(ctx context.Context, opts *ExecOptions, specsPath, entity, op string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := opts.logger()

	req, err := bindRequest(specsPath, entity, op, &opts.Request)
	if err != nil {
		return reportError(formatter, err, ErrCodeInvalidInput)
	}
	stmt, err := req.Render()
	if err != nil {
		return reportError(formatter, err, ErrCodeBindFailed)
	}

	st, err := store.Open(ctx, opts.storeConfig(), logger)
	if err != nil {
		return reportError(formatter, WrapExitError(ExitCommandError, "failed to open database", err), ErrCodeGeneric)
	}
	defer st.Close()

	if opts.InitFile != "" {
		script, err := os.ReadFile(opts.InitFile)
		if err != nil {
			return reportError(formatter, WrapExitError(ExitCommandError, "failed to read init script", err), ErrCodeGeneric)
		}
		if err := st.Exec(ctx, string(script)); err != nil {
			return reportError(formatter, WrapExitError(ExitCommandError, "init script failed", err), ErrCodeExecFailed)
		}
	}

	tx, err := txn.Begin(ctx, st, txn.WithLogger(logger))
	if err != nil {
		return reportError(formatter, WrapExitError(ExitCommandError, "failed to begin", err), ErrCodeGeneric)
	}
	defer tx.Close()

	result := ExecResult{
		Entity:        req.Entity.Name,
		Operation:     req.Op.String(),
		TransactionID: tx.ID(),
		SQL:           stmt.SQL,
		Params:        stmt.Params,
		StatementID:   stmt.ID(),
	}
	if result.Params == nil {
		result.Params = []any{}
	}

	err = txn.RunInTransaction(ctx, tx, func(tx *txn.Transaction) error {
		out, err := tx.ExecuteOperation(ctx, txn.Operation{Kind: req.Op, Table: req.Binding})
		if err != nil {
			return err
		}
		res := out.(*store.Result)
		result.Columns = res.Columns
		result.Rows = res.Rows
		result.RowsAffected = res.RowsAffected

		if req.Op == rules.Create {
			id, err := tx.LastInsertID(ctx)
			switch {
			case err == nil:
				result.LastInsertID = &id
			case errors.Is(err, querysql.ErrUnsupportedDialect):
				logger.Debug("last insert id unavailable", slog.String("driver", tx.Dialect().Name))
			default:
				return err
			}
		}

		if opts.DryRun {
			return errDryRun
		}
		return nil
	})
	result.State = tx.State().String()
	if err != nil && !errors.Is(err, errDryRun) {
		return reportError(formatter, WrapExitError(ExitFailure, fmt.Sprintf("%s %s", req.Op, req.Entity.Name), err), ErrCodeExecFailed)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	return outputExecText(formatter, req, result)
}

// errDryRun aborts the transaction of a --dry-run execution.
var errDryRun = errors.New("dry run")

// outputExecText prints the statement and its outcome.
func outputExecText(formatter *OutputFormatter, req *boundRequest, result ExecResult) error {
	w := formatter.Writer
	formatter.VerboseLog("%s [%s]", result.SQL, result.StatementID)

	if req.Op == rules.Read {
		renderRows(w, result.Columns, result.Rows)
	} else {
		fmt.Fprintf(w, "%d row(s) affected\n", result.RowsAffected)
		if result.LastInsertID != nil {
			fmt.Fprintf(w, "last insert id: %d\n", *result.LastInsertID)
		}
	}
	fmt.Fprintf(w, "transaction %s: %s\n", result.TransactionID, result.State)
	return nil
}
