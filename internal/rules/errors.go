package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRequiredAttribute is matched by errors.Is when a Required
	// attribute has no value.
	ErrMissingRequiredAttribute = errors.New("missing required attribute")

	// ErrAttributeConflictsWithAbsenceRule is matched by errors.Is when an
	// Absent attribute has a value.
	ErrAttributeConflictsWithAbsenceRule = errors.New("attribute conflicts with absence rule")
)

// ErrorCode categorizes validation errors.
type ErrorCode string

const (
	CodeMissingRequired      ErrorCode = "MISSING_REQUIRED_ATTRIBUTE"
	CodeConflictsWithAbsence ErrorCode = "ATTRIBUTE_CONFLICTS_WITH_ABSENCE_RULE"
)

// AttributeError reports the attribute that failed validation.
type AttributeError struct {
	Code      ErrorCode
	Attribute string
	Operation Operation
}

func newAttributeError(code ErrorCode, attr string, op Operation) *AttributeError {
	return &AttributeError{Code: code, Attribute: attr, Operation: op}
}

// Error implements the error interface.
func (e *AttributeError) Error() string {
	return fmt.Sprintf("%s: %s (attribute=%s, operation=%s)", e.Code, e.Unwrap(), e.Attribute, e.Operation)
}

// Unwrap returns the sentinel error for the code.
func (e *AttributeError) Unwrap() error {
	switch e.Code {
	case CodeMissingRequired:
		return ErrMissingRequiredAttribute
	case CodeConflictsWithAbsence:
		return ErrAttributeConflictsWithAbsenceRule
	default:
		return nil
	}
}

// IsValidationError reports whether err is an attribute validation error.
// Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool {
	var ae *AttributeError
	return errors.As(err, &ae)
}
