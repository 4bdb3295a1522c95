// Package rules implements the attribute rule engine.
//
// Every entity declares, per attribute and per CRUD operation, whether the
// attribute is Required, must be Absent, or is Unconstrained. Validate checks
// a set of attribute values against those requirements for one operation and
// returns the DataSet the query synthesizer renders from.
//
// Iteration is driven by the Ruleset: values whose names are not listed in
// the ruleset are ignored. Attribute names are NFC normalized and visited in
// lexicographic order, so the DataSet (and every statement built from it)
// has a deterministic column order.
package rules
