package table

import (
	"github.com/roach88/rulesql/internal/ir"
	"github.com/roach88/rulesql/internal/rules"
)

// Definition is a declarative entity: a table name, an attribute ruleset
// and the operations it supports. Definitions are produced by the CUE
// compiler and the YAML loader.
type Definition struct {
	// Name identifies the entity (e.g. "users").
	Name string

	// Table is the backing table. Defaults to Name when empty.
	Table string

	// Rules holds the per-attribute, per-operation requirements.
	Rules rules.Ruleset

	// Operations lists the supported operations. Empty means all four.
	Operations []rules.Operation
}

var _ Entity = (*Definition)(nil)

// TableName implements Entity.
func (d *Definition) TableName() string {
	if d.Table != "" {
		return d.Table
	}
	return d.Name
}

// Supports reports whether the definition allows op.
func (d *Definition) Supports(op rules.Operation) bool {
	if len(d.Operations) == 0 {
		return true
	}
	for _, o := range d.Operations {
		if o == op {
			return true
		}
	}
	return false
}

// Request carries caller-supplied attribute data for one binding.
// Nil Values/Filter mean the source is not supplied at all; an empty
// Columns list selects every column.
type Request struct {
	Values  rules.Values
	Filter  rules.Values
	Columns []string
}

// Bind builds a Binding whose sources derive from the definition's ruleset.
// Projection columns are validated against the ruleset too, so a column the
// entity forbids for Read is rejected.
func (d *Definition) Bind(req Request) (*Binding, error) {
	var opts []Option
	if req.Values != nil {
		opts = append(opts, WithCreation(rules.NewSource(d.Rules, req.Values)))
	}
	if req.Filter != nil {
		opts = append(opts, WithFilter(rules.NewSource(d.filterRules(), req.Filter)))
	}
	if len(req.Columns) > 0 {
		proj := make(rules.Values, len(req.Columns))
		for _, col := range req.Columns {
			proj[col] = projected
		}
		opts = append(opts, WithProjection(rules.NewSource(d.projectionRules(), proj)))
	}

	var disabled []rules.Operation
	for _, op := range rules.Operations {
		if !d.Supports(op) {
			disabled = append(disabled, op)
		}
	}
	if len(disabled) > 0 {
		opts = append(opts, WithoutOperations(disabled...))
	}

	return NewBinding(d, opts...)
}

// projected marks a column as present in a projection source.
var projected = ir.IRBool(true)

// projectionRules derives the ruleset for projection sources: a column the
// entity marks Absent for Read stays Absent, everything else is
// Unconstrained so that Required filter attributes never force a column
// into the select list. Columns the entity does not declare are dropped.
func (d *Definition) projectionRules() rules.Ruleset {
	names := d.Rules.Names()
	rs := make(map[string]rules.Rule, len(names))
	for _, name := range names {
		rule := rules.Rule{}
		if d.Rules.Requirement(name, rules.Read) == rules.Absent {
			rule[rules.Read] = rules.Absent
		}
		rs[name] = rule
	}
	return rules.NewRuleset(rs)
}

// filterRules derives the ruleset for filter sources. Update rules describe
// the SET values, so they are cleared; a row can always be selected for
// update by any declared column.
func (d *Definition) filterRules() rules.Ruleset {
	names := d.Rules.Names()
	rs := make(map[string]rules.Rule, len(names))
	for _, name := range names {
		rule := rules.Rule{}
		for _, op := range []rules.Operation{rules.Read, rules.Delete} {
			if req := d.Rules.Requirement(name, op); req != rules.Unconstrained {
				rule[op] = req
			}
		}
		rs[name] = rule
	}
	return rules.NewRuleset(rs)
}
