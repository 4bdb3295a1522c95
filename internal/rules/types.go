package rules

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/rulesql/internal/ir"
)

// Operation is one of the four CRUD operation kinds.
type Operation int

const (
	Create Operation = iota
	Read
	Update
	Delete
)

// Operations lists every operation in declaration order.
var Operations = []Operation{Create, Read, Update, Delete}

// String returns the lowercase operation name.
func (o Operation) String() string {
	switch o {
	case Create:
		return "create"
	case Read:
		return "read"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// ParseOperation parses an operation name (case-insensitive).
func ParseOperation(s string) (Operation, error) {
	for _, op := range Operations {
		if strings.EqualFold(s, op.String()) {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q: must be one of create, read, update, delete", s)
}

// Requirement constrains an attribute for one operation.
// The zero value is Unconstrained.
type Requirement int

const (
	Unconstrained Requirement = iota
	Required
	Absent
)

// String returns the lowercase requirement name.
func (r Requirement) String() string {
	switch r {
	case Unconstrained:
		return "unconstrained"
	case Required:
		return "required"
	case Absent:
		return "absent"
	default:
		return fmt.Sprintf("requirement(%d)", int(r))
	}
}

// ParseRequirement parses a requirement name (case-insensitive).
func ParseRequirement(s string) (Requirement, error) {
	for _, r := range []Requirement{Unconstrained, Required, Absent} {
		if strings.EqualFold(s, r.String()) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown requirement %q: must be one of required, absent, unconstrained", s)
}

// Rule maps operations to the requirement of a single attribute.
// Operations missing from the map are Unconstrained.
type Rule map[Operation]Requirement

// Ruleset maps attribute names to their rules.
// It is immutable once built with NewRuleset.
type Ruleset struct {
	rules map[string]Rule
	names []string
}

// NewRuleset copies rules into an immutable Ruleset.
// Names are NFC normalized; if two names normalize to the same string the
// last one in lexicographic order of the original names wins.
func NewRuleset(rules map[string]Rule) Ruleset {
	originals := make([]string, 0, len(rules))
	for name := range rules {
		originals = append(originals, name)
	}
	sort.Strings(originals)

	rs := Ruleset{rules: make(map[string]Rule, len(rules))}
	for _, name := range originals {
		copied := make(Rule, len(rules[name]))
		for op, req := range rules[name] {
			copied[op] = req
		}
		rs.rules[normalizeName(name)] = copied
	}

	rs.names = make([]string, 0, len(rs.rules))
	for name := range rs.rules {
		rs.names = append(rs.names, name)
	}
	sort.Strings(rs.names)
	return rs
}

// Names returns the attribute names in lexicographic order.
func (r Ruleset) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of attributes in the ruleset.
func (r Ruleset) Len() int {
	return len(r.names)
}

// Has reports whether the ruleset lists the attribute.
func (r Ruleset) Has(name string) bool {
	_, ok := r.rules[normalizeName(name)]
	return ok
}

// Requirement returns the requirement of an attribute for op.
// Unknown attributes are Unconstrained.
func (r Ruleset) Requirement(name string, op Operation) Requirement {
	return r.rules[normalizeName(name)][op]
}

// Values maps attribute names to values. A missing entry, a nil value and
// ir.IRNull all mean the attribute is unset.
type Values map[string]ir.IRValue

// Source pairs a ruleset with the attribute values it governs.
// Entities supply up to three sources: creation, filter and projection.
type Source struct {
	rules  Ruleset
	values Values
}

// NewSource builds a Source. The values map is copied with normalized names.
func NewSource(rules Ruleset, values Values) *Source {
	return &Source{rules: rules, values: normalizeValues(values)}
}

// Rules returns the source's ruleset.
func (s *Source) Rules() Ruleset {
	return s.rules
}

// Validate runs the rule engine over the source's values for op.
func (s *Source) Validate(op Operation) (DataSet, error) {
	return Validate(s.rules, s.values, op)
}

// Columns builds a projection source from bare column names. Every column is
// Unconstrained and present, so all of them survive Read validation.
func Columns(names ...string) *Source {
	rules := make(map[string]Rule, len(names))
	values := make(Values, len(names))
	for _, name := range names {
		rules[name] = Rule{}
		values[name] = ir.IRBool(true)
	}
	return NewSource(NewRuleset(rules), values)
}

// DataSet is the validated subset of attribute values for one operation.
// Names are sorted; every entry carries a non-null value.
type DataSet struct {
	names  []string
	values map[string]ir.IRValue
}

// Len returns the number of attributes in the set.
func (d DataSet) Len() int {
	return len(d.names)
}

// IsEmpty reports whether the set holds no attributes.
func (d DataSet) IsEmpty() bool {
	return len(d.names) == 0
}

// Names returns the attribute names in column order.
func (d DataSet) Names() []string {
	return append([]string(nil), d.names...)
}

// Value returns the value of an attribute.
func (d DataSet) Value(name string) (ir.IRValue, bool) {
	v, ok := d.values[name]
	return v, ok
}

// Values returns the values in column order.
func (d DataSet) Values() []ir.IRValue {
	out := make([]ir.IRValue, len(d.names))
	for i, name := range d.names {
		out[i] = d.values[name]
	}
	return out
}

// Object returns the set as an IRObject.
func (d DataSet) Object() ir.IRObject {
	obj := make(ir.IRObject, len(d.names))
	for _, name := range d.names {
		obj[name] = d.values[name]
	}
	return obj
}

func normalizeName(name string) string {
	return norm.NFC.String(name)
}

func normalizeValues(values Values) Values {
	out := make(Values, len(values))
	for name, v := range values {
		out[normalizeName(name)] = v
	}
	return out
}
