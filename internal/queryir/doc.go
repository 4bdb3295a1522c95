// Package queryir provides the structured statement tree the query
// synthesizer accumulates before rendering SQL.
//
// Statements are built from validated attribute data: column names and
// values are kept side by side in Assignment and Equals nodes, so a renderer
// can emit the column list, the placeholders and the ordered parameter list
// in a single pass without any string templating.
//
// The fragment is intentionally small:
//   - Insert(table, assignments)
//   - Select(from, columns, filter)
//   - Update(table, assignments, filter)
//   - Delete(from, filter)
//   - Predicates: Equals, And
//
// Joins, subqueries, grouping and OR predicates are not representable.
//
// Statement and Predicate are sealed interfaces using the marker method
// pattern, which lets renderers switch over them exhaustively:
//
//	switch s := stmt.(type) {
//	case Insert:
//	    // INSERT INTO ...
//	case Select:
//	    // SELECT ...
//	}
package queryir
