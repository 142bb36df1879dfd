package sqlrec

import (
	"context"
	"slices"

	"github.com/pkg/errors"
)

// DefaultPrimaryKey is used by entities with an empty PrimaryKey.
const DefaultPrimaryKey = "id"

// Attrs is a set of attribute values keyed by attribute name.
type Attrs map[string]any

/*
Entity describes a table and the records stored in it.

Define an entity once and share it:

	var Users = sqlrec.NewEntity("users",
		sqlrec.WithFillable("id", "name", "email"),
		sqlrec.WithCasts(sqlrec.Casts{"id": sqlrec.CastInt}),
	)

	func init() {
		Users.Bind(driver)
	}

Every data operation reads the bound Driver. Bind it before the entity
is used by more than one goroutine; the binding is not guarded by a lock.

Only attributes listed in Fillable take part in mass assignment
(Create, Update, Fill). Other attributes are dropped silently.
*/
type Entity struct {
	Table      string
	PrimaryKey string
	Fillable   []string
	Casts      Casts

	drv       Driver
	relations map[string]Relation
}

// Option configures an Entity created by NewEntity.
type Option func(*Entity)

// WithPrimaryKey sets the primary key column. Default is "id".
func WithPrimaryKey(column string) Option {
	return func(e *Entity) {
		e.PrimaryKey = column
	}
}

// WithFillable sets the mass assignment allow-list.
func WithFillable(columns ...string) Option {
	return func(e *Entity) {
		e.Fillable = append(e.Fillable, columns...)
	}
}

// WithCasts sets attribute coercion rules.
func WithCasts(casts Casts) Option {
	return func(e *Entity) {
		if e.Casts == nil {
			e.Casts = make(Casts, len(casts))
		}
		for k, c := range casts {
			e.Casts[k] = c
		}
	}
}

// WithDriver binds a driver at definition time.
func WithDriver(d Driver) Option {
	return func(e *Entity) {
		e.drv = d
	}
}

// NewEntity creates an entity backed by table.
func NewEntity(table string, opts ...Option) *Entity {
	e := &Entity{Table: table}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Bind sets the driver used by all operations of the entity.
func (e *Entity) Bind(d Driver) *Entity {
	e.drv = d
	return e
}

// Driver returns the bound driver or nil.
func (e *Entity) Driver() Driver {
	return e.drv
}

func (e *Entity) driver() (Driver, error) {
	if e.Table == "" {
		return nil, ErrEmptyTable
	}
	if e.drv == nil {
		return nil, errors.Wrapf(ErrNoDriver, "entity %q", e.Table)
	}
	return e.drv, nil
}

func (e *Entity) pk() string {
	if e.PrimaryKey == "" {
		return DefaultPrimaryKey
	}
	return e.PrimaryKey
}

// IsFillable reports if an attribute takes part in mass assignment.
func (e *Entity) IsFillable(name string) bool {
	return slices.Contains(e.Fillable, name)
}

// fillable returns the keys of attrs allowed for mass assignment,
// in the order they are listed in Fillable.
func (e *Entity) fillable(attrs Attrs) []string {
	keys := make([]string, 0, len(attrs))
	for _, name := range e.Fillable {
		if _, ok := attrs[name]; ok && !slices.Contains(keys, name) {
			keys = append(keys, name)
		}
	}
	return keys
}

func (e *Entity) cast(name string, v any) (any, error) {
	c, ok := e.Casts[name]
	if !ok {
		return v, nil
	}
	res, err := c.Apply(v)
	if err != nil {
		return nil, errors.Wrapf(err, "%s.%s: %s cast", e.Table, name, c)
	}
	return res, nil
}

// Query returns a new query builder bound to the entity.
func (e *Entity) Query() *Query {
	return &Query{entity: e}
}

// Where is a shortcut for Query().Where(column, op, value).
func (e *Entity) Where(column, op string, value any) *Query {
	return e.Query().Where(column, op, value)
}

// All returns every record of the table.
func (e *Entity) All(ctx context.Context) ([]*Record, error) {
	return e.Query().Get(ctx)
}

/*
Find fetches a record by its primary key:

	SELECT * FROM users WHERE id = ? LIMIT 1

A nil record and a nil error are returned when there is no such row.
*/
func (e *Entity) Find(ctx context.Context, id any) (*Record, error) {
	d, err := e.driver()
	if err != nil {
		return nil, err
	}
	query, args := e.Query().Where(e.pk(), "=", id).Limit(1).Build()
	row, err := d.FetchOne(ctx, query, args)
	if err != nil || row == nil {
		return nil, err
	}
	return e.Hydrate(row)
}

/*
Create inserts a record built of the fillable attributes of attrs:

	INSERT INTO users (name, email) VALUES (?, ?)

Columns follow the Fillable order. The returned record holds the values
that were sent to the database and is not re-read afterwards, so values
filled in by column defaults or triggers are not reflected in it.
*/
func (e *Entity) Create(ctx context.Context, attrs Attrs) (*Record, error) {
	d, err := e.driver()
	if err != nil {
		return nil, err
	}
	r := e.newRecord(len(attrs))
	columns := e.fillable(attrs)
	for _, name := range columns {
		if err := r.assign(name, attrs[name]); err != nil {
			return nil, err
		}
	}

	q := getStmt()
	q.insertInto(e.Table, columns, r.values(columns))
	err = d.Execute(ctx, q.String(), q.Args())
	q.Close()
	if err != nil {
		return nil, err
	}
	r.sync(columns)
	return r, nil
}

// New creates a record in memory without touching the database.
// All attributes are taken, fillable or not, and the record starts clean.
func (e *Entity) New(attrs Attrs) (*Record, error) {
	return e.Hydrate(Row(attrs))
}

// MustNew is like New but panics if a cast fails.
func (e *Entity) MustNew(attrs Attrs) *Record {
	r, err := e.New(attrs)
	if err != nil {
		panic(err)
	}
	return r
}

// Hydrate builds a clean record from a row returned by a driver.
func (e *Entity) Hydrate(row Row) (*Record, error) {
	r := e.newRecord(len(row))
	for _, name := range e.attributeOrder(row) {
		if err := r.assign(name, row[name]); err != nil {
			return nil, err
		}
	}
	r.sync(r.keys)
	return r, nil
}

// attributeOrder lists fillable keys of row first, in Fillable order,
// followed by the rest in lexical order.
func (e *Entity) attributeOrder(row Row) []string {
	keys := e.fillable(Attrs(row))
	rest := make([]string, 0, len(row)-len(keys))
	for name := range row {
		if !slices.Contains(keys, name) {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(keys, rest...)
}
