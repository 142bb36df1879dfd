package sqlrec

import (
	"slices"
	"strconv"

	"github.com/valyala/bytebufferpool"
)

type stmtChunk struct {
	pos     int
	bufLow  int
	bufHigh int
	hasExpr bool
	argLen  int
}
type stmtChunks []stmtChunk

/*
stmt assembles a single SQL statement from clauses and expressions.

Every clause has a fixed position, so the resulting SQL keeps the
canonical clause order no matter in which order clauses were added:

	s := getStmt()
	s.where("id = ?", 42)
	s.from("users")
	s.selectExpr("*")
	// SELECT * FROM users WHERE id = ?
	s.Close()

Expressions added to an existing clause are appended in call order,
separated by the separator passed along with each expression.
Arguments follow the same order as the placeholders they belong to.
*/
type stmt struct {
	pos    int
	chunks stmtChunks
	buf    *bytebufferpool.ByteBuffer
	sql    *bytebufferpool.ByteBuffer
	args   []any
}

func (q *stmt) selectExpr(expr string) *stmt {
	q.addChunk(posSelect, "SELECT", expr, nil, ", ")
	return q
}

func (q *stmt) from(table string) *stmt {
	q.addChunk(posFrom, "FROM", table, nil, ", ")
	return q
}

// join appends a join expression right after the FROM clause.
// An empty kind stands for an inner join, an empty on omits the ON part.
func (q *stmt) join(kind, table, on string) *stmt {
	buf := bytebufferpool.Get()
	if kind != "" {
		buf.WriteString(kind)
		buf.Write(space)
	}
	buf.WriteString("JOIN ")
	buf.WriteString(table)
	if on != "" {
		buf.Write(joinOn)
		buf.WriteString(on)
	}
	q.addChunk(posFrom, "", buf.String(), nil, " ")
	bytebufferpool.Put(buf)
	return q
}

// where appends a filter joined to the previous one with sep,
// which is either " AND " or " OR ".
func (q *stmt) where(expr string, args []any, sep string) *stmt {
	q.addChunk(posWhere, "WHERE", expr, args, sep)
	return q
}

func (q *stmt) groupBy(expr string) *stmt {
	q.addChunk(posGroupBy, "GROUP BY", expr, nil, ", ")
	return q
}

func (q *stmt) having(expr string, args []any, sep string) *stmt {
	q.addChunk(posHaving, "HAVING", expr, args, sep)
	return q
}

func (q *stmt) orderBy(expr string) *stmt {
	q.addChunk(posOrderBy, "ORDER BY", expr, nil, ", ")
	return q
}

func (q *stmt) limit(n int) *stmt {
	q.addChunk(posLimit, "LIMIT "+strconv.Itoa(n), "", nil, "")
	return q
}

func (q *stmt) offset(n int) *stmt {
	q.addChunk(posOffset, "OFFSET "+strconv.Itoa(n), "", nil, "")
	return q
}

// union appends a complete statement rendered elsewhere.
// Each call lands after the previous one.
func (q *stmt) union(all bool, sql string, args []any) *stmt {
	p := posUnion
	if len(q.chunks) > 0 {
		if last := q.chunks[len(q.chunks)-1].pos; last >= p {
			p = last + 1
		}
	}
	clause := "UNION"
	if all {
		clause = "UNION ALL"
	}
	q.addChunk(p, clause, sql, args, " ")
	return q
}

// insertInto renders INSERT INTO table (columns) VALUES (?, ...).
func (q *stmt) insertInto(table string, columns []string, values []any) *stmt {
	q.addChunk(posInsert, "INSERT INTO", table, nil, ", ")

	buf := bytebufferpool.Get()
	buf.WriteByte('(')
	for i, col := range columns {
		if i > 0 {
			buf.Write(comma)
		}
		buf.WriteString(col)
	}
	buf.WriteByte(')')
	q.addChunk(posInsertFields, "", buf.String(), nil, ", ")

	buf.Reset()
	buf.WriteByte('(')
	writePlaceholders(buf, len(values))
	buf.WriteByte(')')
	q.addChunk(posValues, "VALUES", buf.String(), values, ", ")
	bytebufferpool.Put(buf)
	return q
}

func (q *stmt) update(table string) *stmt {
	q.addChunk(posUpdate, "UPDATE", table, nil, ", ")
	return q
}

// set adds a "field = ?" item to the SET clause of an UPDATE statement.
func (q *stmt) set(field string, value any) *stmt {
	q.addChunk(posSet, "SET", field+" = ?", []any{value}, ", ")
	return q
}

func (q *stmt) deleteFrom(table string) *stmt {
	q.addChunk(posDelete, "DELETE FROM", table, nil, ", ")
	return q
}

// String builds and returns the SQL statement.
func (q *stmt) String() string {
	if q.sql == nil {
		buf := bytebufferpool.Get()
		q.sql = buf

		pos := 0
		for n, chunk := range q.chunks {
			// Separate clauses with spaces
			if n > 0 && chunk.pos > pos {
				buf.Write(space)
			}
			buf.Write(q.buf.B[chunk.bufLow:chunk.bufHigh])
			pos = chunk.pos
		}
	}
	return q.sql.String()
}

// Args returns the arguments in placeholder order.
// The slice is reused once the stmt is closed, so callers keep a copy.
func (q *stmt) Args() []any {
	return q.args
}

// invalidate drops the rendered SQL so the next String call rebuilds it.
func (q *stmt) invalidate() {
	if q.sql != nil {
		bytebufferpool.Put(q.sql)
		q.sql = nil
	}
}

// Close returns the stmt and its buffers to the pool.
// The stmt must not be used afterwards.
func (q *stmt) Close() {
	reuseStmt(q)
}

// addChunk adds a clause or an expression to a statement.
func (q *stmt) addChunk(pos int, clause, expr string, args []any, sep string) (index int) {
	q.pos = pos

	argLen := len(args)
	bufLow := len(q.buf.B)
	index = len(q.chunks)
	argTail := 0

	addNew := true
	addClause := clause != ""

	// Find the position to insert a chunk to
loop:
	for i := index - 1; i >= 0; i-- {
		chunk := &q.chunks[i]
		index = i
		switch {
		case chunk.pos == pos:
			// The clause is already there and there is nothing to add
			if expr == "" {
				return i
			}
			if chunk.hasExpr {
				q.buf.WriteString(sep)
			} else {
				q.buf.Write(space)
			}
			if chunk.bufHigh == bufLow {
				// The chunk ends at the buffer tail and can be extended in place
				addNew = false
				q.buf.WriteString(expr)
				chunk.argLen += argLen
				chunk.bufHigh = len(q.buf.B)
				chunk.hasExpr = true
			} else {
				addClause = false
				index = i + 1
			}
			break loop
		case chunk.pos < pos:
			index = i + 1
			break loop
		default:
			argTail += chunk.argLen
		}
	}

	if addNew {
		if addClause {
			q.buf.WriteString(clause)
			if expr != "" {
				q.buf.Write(space)
			}
		}
		q.buf.WriteString(expr)

		q.chunks = slices.Insert(q.chunks, index, stmtChunk{
			pos:     pos,
			bufLow:  bufLow,
			bufHigh: len(q.buf.B),
			argLen:  argLen,
			hasExpr: expr != "",
		})
	}

	if argLen > 0 {
		q.args = slices.Insert(q.args, len(q.args)-argTail, args...)
	}
	q.invalidate()

	return index
}

// writePlaceholders writes n comma separated ? placeholders.
func writePlaceholders(buf *bytebufferpool.ByteBuffer, n int) {
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.Write(comma)
		}
		buf.Write(placeholder)
	}
}

var (
	space       = []byte{' '}
	comma       = []byte{',', ' '}
	placeholder = []byte{'?'}
	joinOn      = []byte{' ', 'O', 'N', ' '}
)

const (
	_        = iota
	posStart = 100 * iota
	posInsert
	posInsertFields
	posValues
	posDelete
	posUpdate
	posSet
	posSelect
	posFrom
	posWhere
	posGroupBy
	posHaving
	posOrderBy
	posLimit
	posOffset
	posUnion
	posEnd
)
