package querysql

import (
	"github.com/roach88/rulesql/internal/queryir"
	"github.com/roach88/rulesql/internal/rules"
)

// Create renders an INSERT for the validated creation data.
// Fails with ErrNoCreationData when data is empty.
func Create(table string, data rules.DataSet) (Statement, error) {
	if data.IsEmpty() {
		return Statement{}, ErrNoCreationData
	}
	return Compile(queryir.Insert{
		Table:       table,
		Assignments: assignments(data),
	})
}

// Read renders a SELECT. An empty filter omits the WHERE clause and an empty
// projection selects every column, so Read(t, DataSet{}, nil) yields
// "SELECT * FROM t" with no parameters.
func Read(table string, filter rules.DataSet, projection []string) (Statement, error) {
	return Compile(queryir.Select{
		From:    table,
		Columns: projection,
		Filter:  queryir.Conjunction(assignments(filter)),
	})
}

// Update renders an UPDATE setting the validated values, optionally
// restricted by filter. Parameters are the new values in column order
// followed by the filter values in column order.
// Fails with ErrNoUpdateData when values is empty.
func Update(table string, values, filter rules.DataSet) (Statement, error) {
	if values.IsEmpty() {
		return Statement{}, ErrNoUpdateData
	}
	return Compile(queryir.Update{
		Table:       table,
		Assignments: assignments(values),
		Filter:      queryir.Conjunction(assignments(filter)),
	})
}

// Delete renders a DELETE, optionally restricted by filter.
func Delete(table string, filter rules.DataSet) (Statement, error) {
	return Compile(queryir.Delete{
		From:   table,
		Filter: queryir.Conjunction(assignments(filter)),
	})
}

// assignments turns a DataSet into column/value pairs in column order.
func assignments(ds rules.DataSet) []queryir.Assignment {
	names := ds.Names()
	out := make([]queryir.Assignment, 0, len(names))
	for _, name := range names {
		v, _ := ds.Value(name)
		out = append(out, queryir.Assignment{Column: name, Value: v})
	}
	return out
}
