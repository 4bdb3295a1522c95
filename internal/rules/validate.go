package rules

import "github.com/roach88/rulesql/internal/ir"

// Validate checks values against the ruleset for op.
//
// It fails with ErrMissingRequiredAttribute when a Required attribute has no
// value and with ErrAttributeConflictsWithAbsenceRule when an Absent attribute
// has one. Attributes that pass are copied into the result when they carry a
// value and omitted otherwise; nulls are never inserted.
//
// Attributes are visited in lexicographic order and the first violation is
// returned. Validate is a pure function: identical inputs yield identical
// DataSets and values is never modified.
func Validate(rules Ruleset, values Values, op Operation) (DataSet, error) {
	lookup := normalizeValues(values)

	ds := DataSet{values: make(map[string]ir.IRValue)}
	for _, name := range rules.names {
		v, ok := lookup[name]
		present := ok && !ir.IsNull(v)

		switch rules.rules[name][op] {
		case Required:
			if !present {
				return DataSet{}, newAttributeError(CodeMissingRequired, name, op)
			}
		case Absent:
			if present {
				return DataSet{}, newAttributeError(CodeConflictsWithAbsence, name, op)
			}
		}

		if present {
			ds.names = append(ds.names, name)
			ds.values[name] = v
		}
	}
	return ds, nil
}
