package cli

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/leporo/sqlrec"
)

// Filter is a WHERE condition given on the command line.
type Filter struct {
	Column string
	Op     string
	Values []any
}

/*
ParseFilter parses a "column op value" expression:

	email like %@example.com
	id in 1,2,3
	deleted_at is null
	deleted_at is not null

The value is everything after the operator and is passed as a string.
*/
func ParseFilter(expr string) (Filter, error) {
	fields := strings.Fields(expr)
	if len(fields) < 3 {
		return Filter{}, errors.Errorf("invalid filter %q: want \"column op value\"", expr)
	}
	column, op := fields[0], strings.ToLower(fields[1])
	rest := fields[2:]

	switch op {
	case "is":
		switch strings.ToLower(strings.Join(rest, " ")) {
		case "null":
			return Filter{Column: column, Op: "is null"}, nil
		case "not null":
			return Filter{Column: column, Op: "is not null"}, nil
		}
		return Filter{}, errors.Errorf("invalid filter %q: want \"is null\" or \"is not null\"", expr)
	case "in":
		var values []any
		for _, v := range strings.Split(strings.Join(rest, ""), ",") {
			if v != "" {
				values = append(values, v)
			}
		}
		return Filter{Column: column, Op: op, Values: values}, nil
	}
	return Filter{Column: column, Op: fields[1], Values: []any{valueAfter(expr, fields[1])}}, nil
}

// valueAfter returns the remainder of expr following the operator,
// keeping inner spaces.
func valueAfter(expr, op string) string {
	expr = strings.TrimSpace(expr)
	column := strings.Fields(expr)[0]
	rest := strings.TrimSpace(expr[len(column):])
	return strings.TrimSpace(rest[len(op):])
}

// Apply adds the filter to q.
func (f Filter) Apply(q *sqlrec.Query) {
	switch f.Op {
	case "is null":
		q.WhereNull(f.Column)
	case "is not null":
		q.WhereNotNull(f.Column)
	case "in":
		q.WhereIn(f.Column, f.Values...)
	default:
		q.Where(f.Column, f.Op, f.Values[0])
	}
}

// ParseOrder splits "column[:dir]" into a column and a direction.
func ParseOrder(expr string) (column, dir string) {
	column, dir, _ = strings.Cut(expr, ":")
	return column, strings.ToUpper(dir)
}
