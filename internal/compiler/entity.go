package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/rulesql/internal/rules"
	"github.com/roach88/rulesql/internal/table"
)

// CompileEntities compiles every entity under the top-level "entity" field
// of v, in declaration order. A value without entities yields an empty
// slice.
func CompileEntities(v cue.Value) ([]*table.Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	entityVal := v.LookupPath(cue.ParsePath("entity"))
	if !entityVal.Exists() {
		return []*table.Definition{}, nil
	}

	iter, err := entityVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	defs := []*table.Definition{}
	for iter.Next() {
		def, err := CompileEntity(iter.Value())
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// CompileEntity parses a CUE value into an entity Definition.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the entity struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: users: { attributes: { ... } }`)
//	def, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.users")))
//
// Each attribute maps operation names (create, read, update, delete) to a
// requirement (required, absent, unconstrained). Missing operations are
// unconstrained.
func CompileEntity(v cue.Value) (*table.Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &table.Definition{}

	// Entity name comes from the struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		def.Name = unquoteLabel(labels[len(labels)-1])
	}

	tableVal := v.LookupPath(cue.ParsePath("table"))
	if tableVal.Exists() {
		name, err := tableVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		def.Table = name
	}

	ops, err := parseOperations(v)
	if err != nil {
		return nil, err
	}
	def.Operations = ops

	ruleset, err := parseAttributes(v)
	if err != nil {
		return nil, err
	}
	def.Rules = ruleset

	return def, nil
}

// parseOperations reads the optional "operations" list.
func parseOperations(v cue.Value) ([]rules.Operation, error) {
	opsVal := v.LookupPath(cue.ParsePath("operations"))
	if !opsVal.Exists() {
		return nil, nil
	}

	iter, err := opsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var ops []rules.Operation
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		op, err := rules.ParseOperation(s)
		if err != nil {
			return nil, &CompileError{
				Field:   "operations",
				Message: err.Error(),
				Pos:     iter.Value().Pos(),
			}
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// parseAttributes builds the ruleset from the "attributes" struct.
func parseAttributes(v cue.Value) (rules.Ruleset, error) {
	attrsVal := v.LookupPath(cue.ParsePath("attributes"))
	if !attrsVal.Exists() {
		return rules.NewRuleset(nil), nil
	}

	iter, err := attrsVal.Fields()
	if err != nil {
		return rules.Ruleset{}, formatCUEError(err)
	}

	rs := make(map[string]rules.Rule)
	seen := make(map[string]string)
	for iter.Next() {
		name := iter.Label()
		attrVal := iter.Value()

		// Names are NFC normalized by the ruleset; two spellings of the
		// same name would silently collapse.
		key := norm.NFC.String(name)
		if prev, ok := seen[key]; ok {
			return rules.Ruleset{}, &CompileError{
				Field:   fmt.Sprintf("attributes.%s", name),
				Message: fmt.Sprintf("duplicate attribute name (same as %q after normalization)", prev),
				Pos:     attrVal.Pos(),
			}
		}
		seen[key] = name

		rule, err := parseRule(name, attrVal)
		if err != nil {
			return rules.Ruleset{}, err
		}
		rs[name] = rule
	}

	return rules.NewRuleset(rs), nil
}

// parseRule reads one attribute's operation -> requirement struct.
func parseRule(attr string, v cue.Value) (rules.Rule, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, &CompileError{
			Field:   fmt.Sprintf("attributes.%s", attr),
			Message: "must be a struct of operation: requirement",
			Pos:     v.Pos(),
		}
	}

	rule := rules.Rule{}
	for iter.Next() {
		field := fmt.Sprintf("attributes.%s.%s", attr, iter.Label())

		op, err := rules.ParseOperation(iter.Label())
		if err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: iter.Value().Pos()}
		}

		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		req, err := rules.ParseRequirement(s)
		if err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: iter.Value().Pos()}
		}

		if req != rules.Unconstrained {
			rule[op] = req
		}
	}
	return rule, nil
}

// unquoteLabel returns a selector's label without CUE quoting.
func unquoteLabel(sel cue.Selector) string {
	if sel.LabelType() == cue.StringLabel {
		return sel.Unquoted()
	}
	return sel.String()
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
