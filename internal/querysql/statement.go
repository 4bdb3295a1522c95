package querysql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/rulesql/internal/ir"
)

var (
	// ErrNoCreationData is returned by Create when the validated data is empty.
	ErrNoCreationData = errors.New("no creation data")

	// ErrNoUpdateData is returned by Update when the validated values are empty.
	ErrNoUpdateData = errors.New("no update data")

	// ErrUnsupportedValue is returned when a value cannot be bound as a SQL
	// parameter (arrays and objects).
	ErrUnsupportedValue = errors.New("unsupported value for SQL parameter")
)

// Statement is rendered SQL text plus its ordered bind parameters.
// Params line up with the ? placeholders in SQL from left to right.
type Statement struct {
	SQL    string
	Params []any

	// Query marks statements that return rows (SELECT and the escape-hatch
	// lookups). Executors use QueryContext for them and ExecContext otherwise.
	Query bool
}

// Placeholders counts the ? placeholders in the SQL text.
func (s Statement) Placeholders() int {
	return strings.Count(s.SQL, "?")
}

// ID returns the statement fingerprint (see ir.StatementID).
func (s Statement) ID() string {
	id, err := ir.StatementID(s.SQL, s.Params)
	if err != nil {
		// Params come from irValueToParam and are always canonicalizable;
		// fall back to hashing the text alone.
		id, _ = ir.StatementID(s.SQL, nil)
	}
	return id
}

// String renders the statement for logs and CLI output.
func (s Statement) String() string {
	if len(s.Params) == 0 {
		return s.SQL
	}
	return fmt.Sprintf("%s %v", s.SQL, s.Params)
}

// irValueToParam converts an ir.IRValue to a Go native SQL parameter.
// Arrays and objects cannot be bound.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		return bool(val), nil
	case nil, ir.IRNull:
		return nil, nil
	case ir.IRArray, ir.IRObject:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}
