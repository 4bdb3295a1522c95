package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/rulesql/internal/queryir"
)

// Compile renders a queryir statement to parameterized SQL.
//
// Column lists, placeholders and parameters are accumulated side by side
// and joined with ", " or " AND " at the end. Values are never interpolated;
// every value becomes a ? placeholder.
func Compile(stmt queryir.Statement) (Statement, error) {
	if err := queryir.Validate(stmt); err != nil {
		return Statement{}, err
	}

	switch s := stmt.(type) {
	case queryir.Insert:
		return compileInsert(s)
	case queryir.Select:
		return compileSelect(s)
	case queryir.Update:
		return compileUpdate(s)
	case queryir.Delete:
		return compileDelete(s)
	default:
		return Statement{}, fmt.Errorf("unsupported statement type: %T", stmt)
	}
}

// compileInsert renders INSERT INTO t (a, b) VALUES (?, ?).
func compileInsert(ins queryir.Insert) (Statement, error) {
	columns := make([]string, 0, len(ins.Assignments))
	marks := make([]string, 0, len(ins.Assignments))
	params := make([]any, 0, len(ins.Assignments))

	for _, a := range ins.Assignments {
		param, err := irValueToParam(a.Value)
		if err != nil {
			return Statement{}, fmt.Errorf("column %s: %w", a.Column, err)
		}
		columns = append(columns, a.Column)
		marks = append(marks, "?")
		params = append(params, param)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ins.Table,
		strings.Join(columns, ", "),
		strings.Join(marks, ", "))

	return Statement{SQL: sql, Params: params}, nil
}

// compileSelect renders SELECT cols|* FROM t [WHERE ...].
func compileSelect(sel queryir.Select) (Statement, error) {
	cols := "*"
	if len(sel.Columns) > 0 {
		cols = strings.Join(sel.Columns, ", ")
	}

	where, params, err := compileWhere(sel.Filter)
	if err != nil {
		return Statement{}, err
	}

	return Statement{
		SQL:    fmt.Sprintf("SELECT %s FROM %s%s", cols, sel.From, where),
		Params: params,
		Query:  true,
	}, nil
}

// compileUpdate renders UPDATE t SET a = ?, b = ? [WHERE ...].
// Parameters are the new values followed by the filter values.
func compileUpdate(upd queryir.Update) (Statement, error) {
	sets := make([]string, 0, len(upd.Assignments))
	params := make([]any, 0, len(upd.Assignments))

	for _, a := range upd.Assignments {
		param, err := irValueToParam(a.Value)
		if err != nil {
			return Statement{}, fmt.Errorf("column %s: %w", a.Column, err)
		}
		sets = append(sets, a.Column+" = ?")
		params = append(params, param)
	}

	where, filterParams, err := compileWhere(upd.Filter)
	if err != nil {
		return Statement{}, err
	}

	return Statement{
		SQL:    fmt.Sprintf("UPDATE %s SET %s%s", upd.Table, strings.Join(sets, ", "), where),
		Params: append(params, filterParams...),
	}, nil
}

// compileDelete renders DELETE FROM t [WHERE ...].
func compileDelete(del queryir.Delete) (Statement, error) {
	where, params, err := compileWhere(del.Filter)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		SQL:    fmt.Sprintf("DELETE FROM %s%s", del.From, where),
		Params: params,
	}, nil
}

// compileWhere renders " WHERE <predicate>" or "" for a nil/empty filter.
func compileWhere(p queryir.Predicate) (string, []any, error) {
	sql, params, err := compilePredicate(p)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	if sql == "" {
		return "", nil, nil
	}
	return " WHERE " + sql, params, nil
}

// compilePredicate renders a predicate fragment. Empty conjunctions render
// as "" so that no WHERE clause is emitted for them.
func compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "", nil, nil
	case queryir.Equals:
		param, err := irValueToParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", pred.Field, err)
		}
		return pred.Field + " = ?", []any{param}, nil
	case queryir.And:
		var parts []string
		var params []any
		for _, sub := range pred.Predicates {
			sql, subParams, err := compilePredicate(sub)
			if err != nil {
				return "", nil, err
			}
			if sql == "" {
				continue
			}
			parts = append(parts, sql)
			params = append(params, subParams...)
		}
		return strings.Join(parts, " AND "), params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}
