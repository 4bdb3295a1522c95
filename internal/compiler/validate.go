package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/rulesql/internal/queryir"
	"github.com/roach88/rulesql/internal/rules"
	"github.com/roach88/rulesql/internal/table"
)

// Validation error codes (E100-E199)
const (
	// Entity errors (E101-E109)
	ErrEntityNameEmpty      = "E101" // entity name is required
	ErrInvalidTableName     = "E102" // table name is not an identifier
	ErrEntityNoAttributes   = "E103" // at least one attribute required
	ErrInvalidAttributeName = "E104" // attribute name is not an identifier
	ErrRuleOnUnsupportedOp  = "E105" // requirement on an operation the entity omits
	ErrDuplicateOperation   = "E106" // operation listed twice
	ErrNoWritableAttributes = "E107" // create supported but every attribute is absent
	ErrEntityDuplicateName  = "E108" // two entities share a name
	ErrEntityDuplicateTable = "E109" // two entities share a table
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Entity  string `json:"entity,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Entity, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled definition. Returns all errors found (does not
// fail-fast).
func Validate(def *table.Definition) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Entity:  def.Name,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	// E101: name is required
	if strings.TrimSpace(def.Name) == "" {
		add("name", ErrEntityNameEmpty, "entity name is required and must be non-empty")
	}

	// E102: the table name is interpolated into SQL
	if tbl := def.TableName(); tbl != "" && !queryir.IsTableName(tbl) {
		add("table", ErrInvalidTableName, "table name %q is not a valid identifier", tbl)
	}

	// E103: at least one attribute
	if def.Rules.Len() == 0 {
		add("attributes", ErrEntityNoAttributes, "at least one attribute is required")
	}

	// E106: duplicate operations
	seenOps := make(map[rules.Operation]bool)
	for i, op := range def.Operations {
		if seenOps[op] {
			add(fmt.Sprintf("operations[%d]", i), ErrDuplicateOperation, "duplicate operation %q", op)
		}
		seenOps[op] = true
	}

	writable := false
	for _, name := range def.Rules.Names() {
		// E104: attribute names are interpolated into SQL
		if !queryir.IsIdentifier(name) {
			add("attributes."+name, ErrInvalidAttributeName, "attribute name %q is not a valid identifier", name)
		}

		for _, op := range rules.Operations {
			req := def.Rules.Requirement(name, op)
			// E105: a rule the entity can never apply
			if req != rules.Unconstrained && !def.Supports(op) {
				add(fmt.Sprintf("attributes.%s.%s", name, op), ErrRuleOnUnsupportedOp,
					"%s rule on operation %q, which the entity does not support", req, op)
			}
		}

		if def.Rules.Requirement(name, rules.Create) != rules.Absent {
			writable = true
		}
	}

	// E107: create can never produce data
	if def.Rules.Len() > 0 && def.Supports(rules.Create) && !writable {
		add("attributes", ErrNoWritableAttributes, "create is supported but every attribute is absent for create")
	}

	return errs
}

// ValidateAll validates each definition and checks for collisions between
// them.
func ValidateAll(defs []*table.Definition) []ValidationError {
	var errs []ValidationError
	names := make(map[string]bool)
	tables := make(map[string]string)

	for _, def := range defs {
		errs = append(errs, Validate(def)...)

		// E108: duplicate entity name
		if names[def.Name] {
			errs = append(errs, ValidationError{
				Entity:  def.Name,
				Field:   "name",
				Message: fmt.Sprintf("duplicate entity name: %q", def.Name),
				Code:    ErrEntityDuplicateName,
			})
		}
		names[def.Name] = true

		// E109: duplicate table
		tbl := def.TableName()
		if other, ok := tables[tbl]; ok && other != def.Name {
			errs = append(errs, ValidationError{
				Entity:  def.Name,
				Field:   "table",
				Message: fmt.Sprintf("table %q is already bound to entity %q", tbl, other),
				Code:    ErrEntityDuplicateTable,
			})
		}
		tables[tbl] = def.Name
	}

	return errs
}
