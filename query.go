package sqlrec

import (
	"context"
	"slices"
	"strings"

	"github.com/spf13/cast"
	"github.com/valyala/bytebufferpool"
)

type predicateKind uint8

const (
	predCompare predicateKind = iota
	predIn
	predNull
	predNotNull
	predGroup
)

// predicate is a single filter of a WHERE or HAVING clause.
type predicate struct {
	kind   predicateKind
	or     bool
	column string
	op     string
	values []any
	group  []predicate
}

type join struct {
	kind  string
	table string
	left  string
	right string
}

type order struct {
	column string
	dir    string
}

type unionPart struct {
	all   bool
	query *Query
}

/*
Query accumulates a SELECT statement for an entity and runs it.

Every method that shapes the statement returns the same Query,
so calls can be chained:

	users, err := Users.Query().
		Select("id", "email").
		Where("email", "like", "%@example.com").
		OrderBy("name", "DESC").
		Limit(10).
		Get(ctx)

The rendered statement always follows the clause order

	SELECT … FROM … JOIN … WHERE … GROUP BY … HAVING … ORDER BY … LIMIT … OFFSET … UNION …

and items within a clause keep the order they were added in.
Column names and operators are used verbatim and never validated;
an invalid statement is reported by the database.
*/
type Query struct {
	entity  *Entity
	columns []string
	wheres  []predicate
	joins   []join
	groupBy []string
	having  []predicate
	orderBy []order
	limit   *int
	offset  *int
	unions  []unionPart
	with    []string
}

// Entity returns the entity the query reads.
func (q *Query) Entity() *Entity {
	return q.entity
}

// Select sets the columns to be returned. Without columns all of them are.
// Select can be called several times to add more columns.
func (q *Query) Select(columns ...string) *Query {
	q.columns = append(q.columns, columns...)
	return q
}

// Where adds a "column op ?" filter joined with AND.
func (q *Query) Where(column, op string, value any) *Query {
	q.wheres = append(q.wheres, predicate{column: column, op: op, values: []any{value}})
	return q
}

// OrWhere adds a "column op ?" filter joined with OR.
func (q *Query) OrWhere(column, op string, value any) *Query {
	q.wheres = append(q.wheres, predicate{or: true, column: column, op: op, values: []any{value}})
	return q
}

// WhereIn adds a "column IN (?, ...)" filter.
// An empty list renders IN (NULL) which matches no rows.
func (q *Query) WhereIn(column string, values ...any) *Query {
	q.wheres = append(q.wheres, predicate{kind: predIn, column: column, values: values})
	return q
}

// WhereNull adds a "column IS NULL" filter.
func (q *Query) WhereNull(column string) *Query {
	q.wheres = append(q.wheres, predicate{kind: predNull, column: column})
	return q
}

// WhereNotNull adds a "column IS NOT NULL" filter.
func (q *Query) WhereNotNull(column string) *Query {
	q.wheres = append(q.wheres, predicate{kind: predNotNull, column: column})
	return q
}

/*
WhereGroup adds filters enclosed in parentheses:

	Users.Query().
		Where("active", "=", true).
		WhereGroup(func(g *sqlrec.Query) {
			g.Where("role", "=", "admin").OrWhere("role", "=", "owner")
		})
	// SELECT * FROM users WHERE active = ? AND (role = ? OR role = ?)

Only filters added to g are used. An empty group is ignored.
*/
func (q *Query) WhereGroup(fn func(g *Query)) *Query {
	return q.group(false, fn)
}

// OrWhereGroup is like WhereGroup but joins the group with OR.
func (q *Query) OrWhereGroup(fn func(g *Query)) *Query {
	return q.group(true, fn)
}

func (q *Query) group(or bool, fn func(g *Query)) *Query {
	g := &Query{entity: q.entity}
	fn(g)
	if len(g.wheres) > 0 {
		q.wheres = append(q.wheres, predicate{kind: predGroup, or: or, group: g.wheres})
	}
	return q
}

// Join adds an inner join: JOIN table ON left = right.
func (q *Query) Join(table, left, right string) *Query {
	q.joins = append(q.joins, join{kind: "", table: table, left: left, right: right})
	return q
}

// LeftJoin adds LEFT JOIN table ON left = right.
func (q *Query) LeftJoin(table, left, right string) *Query {
	q.joins = append(q.joins, join{kind: "LEFT", table: table, left: left, right: right})
	return q
}

// RightJoin adds RIGHT JOIN table ON left = right.
func (q *Query) RightJoin(table, left, right string) *Query {
	q.joins = append(q.joins, join{kind: "RIGHT", table: table, left: left, right: right})
	return q
}

// CrossJoin adds CROSS JOIN table.
func (q *Query) CrossJoin(table string) *Query {
	q.joins = append(q.joins, join{kind: "CROSS", table: table})
	return q
}

// GroupBy adds columns to the GROUP BY clause.
func (q *Query) GroupBy(columns ...string) *Query {
	q.groupBy = append(q.groupBy, columns...)
	return q
}

// Having adds a "column op ?" filter to the HAVING clause.
func (q *Query) Having(column, op string, value any) *Query {
	q.having = append(q.having, predicate{column: column, op: op, values: []any{value}})
	return q
}

// OrderBy adds a column to the ORDER BY clause.
// Direction is ASC unless given.
func (q *Query) OrderBy(column string, direction ...string) *Query {
	dir := "ASC"
	if len(direction) > 0 && direction[0] != "" {
		dir = direction[0]
	}
	q.orderBy = append(q.orderBy, order{column: column, dir: dir})
	return q
}

// Limit sets the maximum number of rows, replacing a previous limit.
func (q *Query) Limit(n int) *Query {
	q.limit = &n
	return q
}

// Offset sets the number of rows to skip, replacing a previous offset.
func (q *Query) Offset(n int) *Query {
	q.offset = &n
	return q
}

// Paginate sets limit and offset for a 1-based page number.
// Zero and negative values are replaced with 1.
func (q *Query) Paginate(page, pageSize int) *Query {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if page > 1 {
		q.Offset((page - 1) * pageSize)
	} else {
		q.offset = nil
	}
	return q.Limit(pageSize)
}

// Union appends another query with UNION.
// The other query is rendered as is, including its own limits.
// It is copied, so changes made to it afterwards are not seen,
// and a query can be united with itself.
func (q *Query) Union(other *Query) *Query {
	q.unions = append(q.unions, unionPart{query: other.Clone()})
	return q
}

// UnionAll appends another query with UNION ALL.
func (q *Query) UnionAll(other *Query) *Query {
	q.unions = append(q.unions, unionPart{all: true, query: other.Clone()})
	return q
}

// With lists relations to be loaded for every fetched record.
// It does not change the statement.
func (q *Query) With(relations ...string) *Query {
	q.with = append(q.with, relations...)
	return q
}

// Clone returns an independent copy of the query.
func (q *Query) Clone() *Query {
	c := *q
	c.columns = slices.Clone(q.columns)
	c.wheres = slices.Clone(q.wheres)
	c.joins = slices.Clone(q.joins)
	c.groupBy = slices.Clone(q.groupBy)
	c.having = slices.Clone(q.having)
	c.orderBy = slices.Clone(q.orderBy)
	c.unions = slices.Clone(q.unions)
	c.with = slices.Clone(q.with)
	if q.limit != nil {
		c.Limit(*q.limit)
	}
	if q.offset != nil {
		c.Offset(*q.offset)
	}
	return &c
}

// Build returns the SQL statement and its arguments.
func (q *Query) Build() (string, []any) {
	s := getStmt()
	defer s.Close()
	q.render(s)
	return s.String(), slices.Clone(s.Args())
}

// String returns the SQL statement.
func (q *Query) String() string {
	sql, _ := q.Build()
	return sql
}

// Args returns the statement arguments in placeholder order.
func (q *Query) Args() []any {
	_, args := q.Build()
	return args
}

func (q *Query) render(s *stmt) {
	if len(q.columns) == 0 {
		s.selectExpr("*")
	} else {
		s.selectExpr(strings.Join(q.columns, ", "))
	}
	q.renderSource(s)
	for _, o := range q.orderBy {
		s.orderBy(o.column + " " + o.dir)
	}
	if q.limit != nil {
		s.limit(*q.limit)
	}
	if q.offset != nil {
		s.offset(*q.offset)
	}
	for _, u := range q.unions {
		sql, args := u.query.Build()
		s.union(u.all, sql, args)
	}
}

// renderSource renders FROM, JOIN, WHERE, GROUP BY and HAVING clauses.
func (q *Query) renderSource(s *stmt) {
	s.from(q.entity.Table)
	for _, j := range q.joins {
		kind, on := j.kind, ""
		if kind != "CROSS" {
			on = j.left + " = " + j.right
		}
		s.join(kind, j.table, on)
	}
	renderPredicates(q.wheres, s.where)
	for _, column := range q.groupBy {
		s.groupBy(column)
	}
	renderPredicates(q.having, s.having)
}

func renderPredicates(preds []predicate, add func(expr string, args []any, sep string) *stmt) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	for _, p := range preds {
		buf.Reset()
		args := p.write(buf, nil)
		add(buf.String(), args, p.sep())
	}
}

func (p predicate) sep() string {
	if p.or {
		return " OR "
	}
	return " AND "
}

// write renders the predicate into buf and returns args extended
// with the predicate arguments.
func (p predicate) write(buf *bytebufferpool.ByteBuffer, args []any) []any {
	switch p.kind {
	case predGroup:
		buf.WriteByte('(')
		for i, g := range p.group {
			if i > 0 {
				buf.WriteString(g.sep())
			}
			args = g.write(buf, args)
		}
		buf.WriteByte(')')
		return args
	case predNull:
		buf.WriteString(p.column)
		buf.WriteString(" IS NULL")
		return args
	case predNotNull:
		buf.WriteString(p.column)
		buf.WriteString(" IS NOT NULL")
		return args
	case predIn:
		buf.WriteString(p.column)
		buf.WriteString(" IN (")
		if len(p.values) == 0 {
			buf.WriteString("NULL")
		} else {
			writePlaceholders(buf, len(p.values))
		}
		buf.WriteByte(')')
		return append(args, p.values...)
	}
	buf.WriteString(p.column)
	buf.Write(space)
	buf.WriteString(p.op)
	buf.Write(space)
	buf.Write(placeholder)
	return append(args, p.values...)
}

// Get runs the query and returns the matching records,
// with relations listed by With attached to every one of them.
func (q *Query) Get(ctx context.Context) ([]*Record, error) {
	d, err := q.entity.driver()
	if err != nil {
		return nil, err
	}
	rels, err := q.relations()
	if err != nil {
		return nil, err
	}
	query, args := q.Build()
	rows, err := d.FetchAll(ctx, query, args)
	if err != nil {
		return nil, err
	}
	records := make([]*Record, 0, len(rows))
	for _, row := range rows {
		r, err := q.entity.Hydrate(row)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	// Relations are resolved one record at a time
	for _, r := range records {
		for i, rel := range rels {
			related, err := rel(ctx, r)
			if err != nil {
				return nil, err
			}
			r.SetRelation(q.with[i], related)
		}
	}
	return records, nil
}

func (q *Query) relations() ([]Relation, error) {
	rels := make([]Relation, len(q.with))
	for i, name := range q.with {
		rel, err := q.entity.relation(name)
		if err != nil {
			return nil, err
		}
		rels[i] = rel
	}
	return rels, nil
}

// First runs the query limited to a single row.
// The query itself keeps its limit.
// A nil record and a nil error are returned when nothing matched.
func (q *Query) First(ctx context.Context) (*Record, error) {
	records, err := q.Clone().Limit(1).Get(ctx)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

/*
Count returns the number of matching rows.
Ordering, limits and unions are ignored.

A grouped query counts its groups:

	SELECT COUNT(*) AS count FROM (SELECT role FROM users GROUP BY role) AS t
*/
func (q *Query) Count(ctx context.Context) (int64, error) {
	d, err := q.entity.driver()
	if err != nil {
		return 0, err
	}
	s := getStmt()
	s.selectExpr("COUNT(*) AS count")
	if len(q.groupBy) == 0 && len(q.having) == 0 {
		q.renderSource(s)
	} else {
		inner := getStmt()
		if len(q.columns) == 0 {
			inner.selectExpr("1")
		} else {
			inner.selectExpr(strings.Join(q.columns, ", "))
		}
		q.renderSource(inner)
		s.addChunk(posFrom, "FROM", "("+inner.String()+") AS t", inner.Args(), ", ")
		inner.Close()
	}
	query, args := s.String(), slices.Clone(s.Args())
	s.Close()

	row, err := d.FetchOne(ctx, query, args)
	if err != nil || row == nil {
		return 0, err
	}
	return cast.ToInt64E(row["count"])
}
