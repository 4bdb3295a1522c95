package queryir

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidStatement is wrapped by every error returned from Validate.
var ErrInvalidStatement = errors.New("invalid statement")

// Validate checks a statement's structure before rendering.
//
// Table and column names are spliced into SQL text, so every identifier
// must be a plain (optionally schema-qualified) name: letters, digits and
// underscores, not starting with a digit. Insert and Update require at least
// one assignment.
//
// All problems are collected; the returned error joins them.
// Validate is a pure function with no side effects.
func Validate(stmt Statement) error {
	v := &validator{}
	v.validateStatement(stmt)
	if len(v.problems) == 0 {
		return nil
	}
	errs := make([]error, len(v.problems))
	for i, p := range v.problems {
		errs[i] = fmt.Errorf("%w: %s", ErrInvalidStatement, p)
	}
	return errors.Join(errs...)
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateStatement(stmt Statement) {
	if stmt == nil {
		v.addProblem("nil statement")
		return
	}

	v.validateIdentifier("table", stmt.Target(), true)

	switch s := stmt.(type) {
	case Insert:
		v.validateAssignments("insert", s.Assignments)
	case Select:
		for _, col := range s.Columns {
			v.validateIdentifier("column", col, false)
		}
		v.validatePredicate(s.Filter)
	case Update:
		v.validateAssignments("update", s.Assignments)
		v.validatePredicate(s.Filter)
	case Delete:
		v.validatePredicate(s.Filter)
	default:
		v.addProblem("unknown statement type %T", stmt)
	}
}

func (v *validator) validateAssignments(kind string, as []Assignment) {
	if len(as) == 0 {
		v.addProblem("%s requires at least one assignment", kind)
	}
	seen := make(map[string]bool, len(as))
	for _, a := range as {
		v.validateIdentifier("column", a.Column, false)
		if seen[a.Column] {
			v.addProblem("column %q assigned twice", a.Column)
		}
		seen[a.Column] = true
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.validateIdentifier("column", pred.Field, false)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addProblem("unknown predicate type %T", p)
	}
}

func (v *validator) validateIdentifier(kind, name string, qualified bool) {
	parts := []string{name}
	if qualified {
		parts = strings.Split(name, ".")
		if len(parts) > 2 {
			v.addProblem("%s name %q has too many qualifiers", kind, name)
			return
		}
	}
	for _, part := range parts {
		if !IsIdentifier(part) {
			v.addProblem("%s name %q is not a valid identifier", kind, name)
			return
		}
	}
}

// IsTableName reports whether name is an identifier, optionally qualified
// by one schema name ("schema.table").
func IsTableName(name string) bool {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return false
	}
	for _, part := range parts {
		if !IsIdentifier(part) {
			return false
		}
	}
	return true
}

// IsIdentifier reports whether s is a bare SQL identifier: letters, digits
// and underscores, not starting with a digit.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', unicode.IsLetter(r):
		case unicode.IsDigit(r) && i > 0:
		default:
			return false
		}
	}
	return true
}
