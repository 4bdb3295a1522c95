package txn

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedOperation is returned when the bound table renders no
	// statement for the requested operation.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrNotInTransaction is returned by Commit outside a transaction.
	ErrNotInTransaction = errors.New("not in transaction")

	// ErrAlreadyInTransaction is returned by Start inside a transaction.
	ErrAlreadyInTransaction = errors.New("already in transaction")

	// ErrClosed is returned by every call after Close.
	ErrClosed = errors.New("transaction closed")
)

// ConnectionError reports a backend rejection of a control statement.
type ConnectionError struct {
	// Op is the control operation: "begin", "commit" or "rollback".
	Op string

	// Err is the backend error.
	Err error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %s: %v", e.Op, e.Err)
}

// Unwrap returns the backend error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err wraps a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
