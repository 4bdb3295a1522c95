package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rulesql/internal/ir"
	"github.com/roach88/rulesql/internal/querysql"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	Request RequestOptions
	Dialect string // placeholder style; defaults to the configured driver
}

// RenderResult is the JSON payload of the render command.
type RenderResult struct {
	Entity      string `json:"entity"`
	Operation   string `json:"operation"`
	Table       string `json:"table"`
	Dialect     string `json:"dialect"`
	SQL         string `json:"sql"`
	Params      []any  `json:"params"`
	StatementID string `json:"statement_id"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render <specs> <entity> <operation>",
		Short: "Render the SQL for one operation without executing it",
		Long: `Validate attribute data against an entity's rules and print the
resulting statement, its parameters and its statement id.

Examples:
  rulesql render ./specs users create --values '{"name":"Ann","email":"ann@example.com"}'
  rulesql render ./specs users read --filter '{"id":1}' --columns name,email
  rulesql render ./specs users update --values '{"name":"Bo"}' --filter '{"id":2}' --dialect pgx`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(opts, args[0], args[1], args[2], cmd)
		},
	}

	addRequestFlags(cmd, &opts.Request)
	cmd.Flags().StringVar(&opts.Dialect, "dialect", "", "placeholder dialect (sqlite3|mysql|pgx|duckdb)")

	return cmd
}

func runRender(opts *RenderOptions, specsPath, entity, op string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	dialect, err := renderDialect(opts)
	if err != nil {
		return reportError(formatter, err, ErrCodeInvalidInput)
	}

	req, err := bindRequest(specsPath, entity, op, &opts.Request)
	if err != nil {
		return reportError(formatter, err, ErrCodeInvalidInput)
	}

	stmt, err := req.Render()
	if err != nil {
		return reportError(formatter, err, ErrCodeBindFailed)
	}
	rendered := dialect.Rebind(*stmt)

	opts.logger().Debug("rendered statement",
		"entity", req.Entity.Name,
		"op", req.Op.String(),
		"statement_id", rendered.ID(),
	)

	params := rendered.Params
	if params == nil {
		params = []any{}
	}
	result := RenderResult{
		Entity:      req.Entity.Name,
		Operation:   req.Op.String(),
		Table:       req.Entity.TableName(),
		Dialect:     dialect.Name,
		SQL:         rendered.SQL,
		Params:      params,
		StatementID: rendered.ID(),
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	paramText, err := ir.MarshalCanonical(params)
	if err != nil {
		return err
	}
	w := formatter.Writer
	fmt.Fprintf(w, "sql:          %s\n", result.SQL)
	fmt.Fprintf(w, "params:       %s\n", paramText)
	fmt.Fprintf(w, "statement_id: %s\n", result.StatementID)
	return nil
}

// renderDialect resolves --dialect, falling back to the configured driver.
func renderDialect(opts *RenderOptions) (querysql.Dialect, error) {
	name := opts.Dialect
	if name == "" {
		name = opts.storeConfig().Driver
	}
	d, err := querysql.LookupDialect(name)
	if err != nil {
		return querysql.Dialect{}, WrapExitError(ExitCommandError, ErrCodeInvalidInput, err)
	}
	return d, nil
}
