package queryir

import "github.com/roach88/rulesql/internal/ir"

// Statement is a sealed interface for the four statement kinds.
type Statement interface {
	statementNode()
	// Target returns the table the statement operates on.
	Target() string
}

// Predicate is a sealed interface for WHERE conditions.
type Predicate interface {
	predicateNode()
}

// Assignment pairs a column with the value bound to it.
type Assignment struct {
	Column string
	Value  ir.IRValue
}

// Insert adds one row. Assignments are rendered in slice order.
type Insert struct {
	Table       string
	Assignments []Assignment
}

func (Insert) statementNode()   {}
func (i Insert) Target() string { return i.Table }

// Select reads rows. An empty Columns list selects every column.
type Select struct {
	From    string
	Columns []string
	Filter  Predicate // nil = no WHERE clause
}

func (Select) statementNode()   {}
func (s Select) Target() string { return s.From }

// Update changes rows matching Filter.
type Update struct {
	Table       string
	Assignments []Assignment
	Filter      Predicate // nil = every row
}

func (Update) statementNode()   {}
func (u Update) Target() string { return u.Table }

// Delete removes rows matching Filter.
type Delete struct {
	From   string
	Filter Predicate // nil = every row
}

func (Delete) statementNode()   {}
func (d Delete) Target() string { return d.From }

// Equals compares a column to a bound value.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// And is a conjunction. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Conjunction builds an And of Equals predicates, one per assignment, in
// slice order. It returns nil when there are no assignments.
func Conjunction(assignments []Assignment) Predicate {
	if len(assignments) == 0 {
		return nil
	}
	preds := make([]Predicate, len(assignments))
	for i, a := range assignments {
		preds[i] = Equals{Field: a.Column, Value: a.Value}
	}
	return And{Predicates: preds}
}
