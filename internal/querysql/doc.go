// Package querysql renders validated attribute data into parameterized SQL.
//
// Create, Read, Update and Delete build a queryir statement from rules
// DataSets and Compile renders it. Rendering is a pure function family: no
// I/O and no mutable state. Columns follow DataSet order (lexicographic), so
// identical inputs always produce identical statements.
//
// CRITICAL: values are never interpolated; every value is a ? placeholder
// with a matching entry in Statement.Params. Dialect.Rebind converts the
// placeholders for backends that use another style.
package querysql
