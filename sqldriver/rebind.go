package sqldriver

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Placeholder selects the positional parameter style of a database.
type Placeholder int

const (
	// Question keeps ? placeholders (SQLite, MySQL).
	Question Placeholder = iota
	// Dollar rewrites ? to $1, $2... (PostgreSQL).
	Dollar
	// AtP rewrites ? to @p1, @p2... (SQL Server).
	AtP
	// ColonNum rewrites ? to :1, :2... (Oracle).
	ColonNum
)

// PlaceholderFor picks a Placeholder by database/sql driver name.
func PlaceholderFor(driverName string) Placeholder {
	switch strings.ToLower(driverName) {
	case "postgres", "postgresql", "pgx", "pq":
		return Dollar
	case "sqlserver", "mssql":
		return AtP
	case "godror", "oracle":
		return ColonNum
	}
	return Question
}

func (p Placeholder) String() string {
	switch p {
	case Dollar:
		return "$n"
	case AtP:
		return "@pn"
	case ColonNum:
		return ":n"
	}
	return "?"
}

/*
Rebind rewrites ? placeholders of query into the style of p:

	Rebind("SELECT * FROM users WHERE id = ? AND name = ?", Dollar)
	// SELECT * FROM users WHERE id = $1 AND name = $2

Question marks inside single-quoted literals are kept.
A question mark escaped with a backslash is written as a literal ?.
*/
func Rebind(query string, p Placeholder) string {
	if p == Question && !strings.Contains(query, `\?`) {
		return query
	}
	var buf strings.Builder
	buf.Grow(len(query) + 8)
	argNo := 1
	start := 0
	quoted := false
	for pos := 0; pos < len(query); {
		r, w := utf8.DecodeRuneInString(query[pos:])
		switch {
		case r == '\'':
			quoted = !quoted
		case quoted:
		case r == '\\' && pos+1 < len(query) && query[pos+1] == '?':
			buf.WriteString(query[start:pos])
			buf.WriteByte('?')
			pos += 2
			start = pos
			continue
		case r == '?':
			buf.WriteString(query[start:pos])
			writePlaceholder(&buf, p, argNo)
			argNo++
			start = pos + w
		}
		pos += w
	}
	buf.WriteString(query[start:])
	return buf.String()
}

func writePlaceholder(buf *strings.Builder, p Placeholder, n int) {
	switch p {
	case Dollar:
		buf.WriteByte('$')
	case AtP:
		buf.WriteString("@p")
	case ColonNum:
		buf.WriteByte(':')
	default:
		buf.WriteByte('?')
		return
	}
	buf.WriteString(strconv.Itoa(n))
}
