package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rulesql/internal/ir"
	"github.com/roach88/rulesql/internal/querysql"
	"github.com/roach88/rulesql/internal/rules"
	"github.com/roach88/rulesql/internal/table"
)

// RequestOptions holds the attribute data flags shared by render and exec.
type RequestOptions struct {
	Values  string // JSON object of creation/update values
	Filter  string // JSON object of filter values
	Columns []string
}

// addRequestFlags registers the request flags on cmd.
func addRequestFlags(cmd *cobra.Command, opts *RequestOptions) {
	cmd.Flags().StringVar(&opts.Values, "values", "", `attribute values as a JSON object, e.g. '{"name":"Ann"}'`)
	cmd.Flags().StringVar(&opts.Filter, "filter", "", `filter values as a JSON object, e.g. '{"id":1}'`)
	cmd.Flags().StringSliceVar(&opts.Columns, "columns", nil, "projection columns for read (default: all)")
}

// boundRequest is a loaded entity bound to the request data.
type boundRequest struct {
	Entity  *table.Definition
	Op      rules.Operation
	Binding *table.Binding
	Columns []string
}

// Render renders the statement for the requested operation. A nil
// statement means the binding does not support the operation.
func (r *boundRequest) Render() (*querysql.Statement, error) {
	stmt, err := table.Dispatch(r.Binding, r.Op)
	if err != nil {
		return nil, WrapExitError(ExitFailure, ErrCodeBindFailed, err)
	}
	if stmt == nil {
		return nil, NewExitError(ExitFailure, fmt.Sprintf("%s: %s %s: unsupported operation", ErrCodeBindFailed, r.Op, r.Entity.Name))
	}
	return stmt, nil
}

// bindRequest loads the specs at specsPath, looks up entity and binds the
// request data to it.
func bindRequest(specsPath, entity, opName string, opts *RequestOptions) (*boundRequest, error) {
	loadResult, loadErrors := LoadSpecs(specsPath, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, WrapExitError(ExitCommandError, "failed to load specs", loadErrors[0])
	}

	def := loadResult.Entity(entity)
	if def == nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("%s: unknown entity %q", ErrCodeUnknownEntity, entity))
	}

	op, err := rules.ParseOperation(opName)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeInvalidInput, err)
	}

	var req table.Request
	if req.Values, err = parseValues("--values", opts.Values); err != nil {
		return nil, err
	}
	if req.Filter, err = parseValues("--filter", opts.Filter); err != nil {
		return nil, err
	}
	for _, col := range opts.Columns {
		if col = strings.TrimSpace(col); col != "" {
			req.Columns = append(req.Columns, col)
		}
	}

	binding, err := def.Bind(req)
	if err != nil {
		return nil, WrapExitError(ExitFailure, ErrCodeBindFailed, err)
	}

	return &boundRequest{Entity: def, Op: op, Binding: binding, Columns: req.Columns}, nil
}

// parseValues decodes a JSON object flag. An empty flag yields nil, so the
// source is treated as not supplied.
func parseValues(flag, data string) (rules.Values, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	obj, err := ir.ParseObject([]byte(data))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", ErrCodeInvalidInput, flag), err)
	}
	if obj == nil {
		obj = ir.IRObject{}
	}
	return rules.Values(obj), nil
}

// errorCode picks the most specific code in err's chain, falling back to
// def.
func errorCode(err error, def string) string {
	var attrErr *rules.AttributeError
	if errors.As(err, &attrErr) {
		return string(attrErr.Code)
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code
	}
	return def
}

// reportError writes err as a JSON error response when the output format
// is JSON and returns it unchanged for the exit code.
func reportError(formatter *OutputFormatter, err error, def string) error {
	if formatter.Format == "json" {
		_ = formatter.Error(errorCode(err, def), err.Error(), nil)
	}
	return err
}
