package sqlrec

import (
	"context"
	"encoding/json"
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/valyala/bytebufferpool"
)

/*
Record is an in-memory copy of a table row.

A record remembers the values it was loaded or last persisted with,
so Save sends only the attributes changed since then:

	u, err := Users.Find(ctx, 1)
	// ...
	u.Set("name", "New Name")
	saved, err := u.Save(ctx) // UPDATE users SET name = ? WHERE id = ?

Attributes keep a stable order: fillable attributes first, in the order
of Entity.Fillable, then the others by name. Attributes added later
by Set go last.

A Record is not safe for concurrent use.
*/
type Record struct {
	entity    *Entity
	keys      []string
	attrs     map[string]any
	original  map[string]any
	relations map[string][]*Record
}

func (e *Entity) newRecord(size int) *Record {
	return &Record{
		entity:   e,
		keys:     make([]string, 0, size),
		attrs:    make(map[string]any, size),
		original: make(map[string]any, size),
	}
}

// Entity returns the entity the record belongs to.
func (r *Record) Entity() *Entity {
	return r.entity
}

// assign casts and stores a value.
func (r *Record) assign(name string, v any) error {
	v, err := r.entity.cast(name, v)
	if err != nil {
		return err
	}
	if _, ok := r.attrs[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.attrs[name] = v
	return nil
}

// sync marks attributes as persisted.
// The snapshot gets its own copy of maps and slices, so values
// changed in place still show up as dirty.
func (r *Record) sync(names []string) {
	for _, name := range names {
		r.original[name] = cloneValue(r.attrs[name])
	}
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		c := make(map[string]any, len(v))
		for k, item := range v {
			c[k] = cloneValue(item)
		}
		return c
	case []any:
		c := make([]any, len(v))
		for i, item := range v {
			c[i] = cloneValue(item)
		}
		return c
	case []byte:
		return slices.Clone(v)
	}
	return v
}

func (r *Record) values(names []string) []any {
	values := make([]any, len(names))
	for i, name := range names {
		values[i] = r.attrs[name]
	}
	return values
}

// Set assigns an attribute, applying its cast.
// Set is not limited by Entity.Fillable.
func (r *Record) Set(name string, v any) error {
	return r.assign(name, v)
}

// Fill assigns the fillable attributes of attrs without saving them.
func (r *Record) Fill(attrs Attrs) error {
	for _, name := range r.entity.fillable(attrs) {
		if err := r.assign(name, attrs[name]); err != nil {
			return err
		}
	}
	return nil
}

// Get returns an attribute value or nil.
func (r *Record) Get(name string) any {
	return r.attrs[name]
}

// Has reports if the record has an attribute, even a nil one.
func (r *Record) Has(name string) bool {
	_, ok := r.attrs[name]
	return ok
}

// GetString returns an attribute converted to a string.
func (r *Record) GetString(name string) string {
	return cast.ToString(r.attrs[name])
}

// GetInt64 returns an attribute converted to an int64.
func (r *Record) GetInt64(name string) int64 {
	return cast.ToInt64(r.attrs[name])
}

// GetFloat64 returns an attribute converted to a float64.
func (r *Record) GetFloat64(name string) float64 {
	return cast.ToFloat64(r.attrs[name])
}

// GetBool returns an attribute converted to a bool.
func (r *Record) GetBool(name string) bool {
	return cast.ToBool(r.attrs[name])
}

// ID returns the primary key value.
func (r *Record) ID() any {
	return r.attrs[r.entity.pk()]
}

// Keys returns attribute names in attribute order.
func (r *Record) Keys() []string {
	return slices.Clone(r.keys)
}

// Attributes returns a copy of current attribute values.
func (r *Record) Attributes() Attrs {
	return Attrs(maps.Clone(r.attrs))
}

// Original returns a copy of the values the record was loaded or last saved with.
func (r *Record) Original() Attrs {
	return Attrs(maps.Clone(r.original))
}

// Dirty lists attributes changed since the record was loaded or saved,
// in attribute order.
func (r *Record) Dirty() []string {
	var dirty []string
	for _, name := range r.keys {
		old, ok := r.original[name]
		if !ok || !sameValue(old, r.attrs[name]) {
			dirty = append(dirty, name)
		}
	}
	return dirty
}

// IsDirty reports if any of the named attributes changed.
// With no names it reports if the record changed at all.
func (r *Record) IsDirty(names ...string) bool {
	dirty := r.Dirty()
	if len(names) == 0 {
		return len(dirty) > 0
	}
	for _, name := range names {
		if slices.Contains(dirty, name) {
			return true
		}
	}
	return false
}

// rowID returns the persisted primary key value, falling back to the current one.
func (r *Record) rowID() (any, error) {
	pk := r.entity.pk()
	id, ok := r.original[pk]
	if !ok || id == nil {
		id = r.attrs[pk]
	}
	if id == nil {
		return nil, errors.Wrapf(ErrNoPrimaryKey, "%s.%s", r.entity.Table, pk)
	}
	return id, nil
}

/*
Update assigns the fillable attributes of attrs and writes them:

	UPDATE users SET name = ? WHERE id = ?

Columns follow the Fillable order. Nothing is sent when attrs has no
fillable attributes. On failure the record keeps the new values but
stays dirty.
*/
func (r *Record) Update(ctx context.Context, attrs Attrs) error {
	d, err := r.entity.driver()
	if err != nil {
		return err
	}
	columns := r.entity.fillable(attrs)
	if len(columns) == 0 {
		return nil
	}
	for _, name := range columns {
		if err := r.assign(name, attrs[name]); err != nil {
			return err
		}
	}
	return r.persist(ctx, d, columns)
}

/*
Save writes the attributes changed since the record was loaded or saved.

Save returns false without touching the database if nothing changed,
so calling it twice in a row sends at most one statement.
*/
func (r *Record) Save(ctx context.Context) (bool, error) {
	d, err := r.entity.driver()
	if err != nil {
		return false, err
	}
	dirty := r.Dirty()
	if len(dirty) == 0 {
		return false, nil
	}
	if err := r.persist(ctx, d, dirty); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Record) persist(ctx context.Context, d Driver, columns []string) error {
	id, err := r.rowID()
	if err != nil {
		return err
	}
	q := getStmt()
	q.update(r.entity.Table)
	for _, name := range columns {
		q.set(name, r.attrs[name])
	}
	q.where(r.entity.pk()+" = ?", []any{id}, " AND ")
	err = d.Execute(ctx, q.String(), q.Args())
	q.Close()
	if err != nil {
		return err
	}
	r.sync(columns)
	return nil
}

// Delete removes the row of the record:
//
//	DELETE FROM users WHERE id = ?
//
// The record itself stays usable.
func (r *Record) Delete(ctx context.Context) error {
	d, err := r.entity.driver()
	if err != nil {
		return err
	}
	id, err := r.rowID()
	if err != nil {
		return err
	}
	q := getStmt()
	q.deleteFrom(r.entity.Table)
	q.where(r.entity.pk()+" = ?", []any{id}, " AND ")
	err = d.Execute(ctx, q.String(), q.Args())
	q.Close()
	return err
}

// MarshalJSON encodes attributes in attribute order
// followed by loaded relations ordered by name.
func (r *Record) MarshalJSON() ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.WriteByte('{')
	n := 0
	write := func(name string, v any) error {
		if n > 0 {
			buf.WriteByte(',')
		}
		n++
		key, err := json.Marshal(name)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(v)
		if err != nil {
			return errors.Wrapf(err, "%s.%s", r.entity.Table, name)
		}
		buf.Write(value)
		return nil
	}
	for _, name := range r.keys {
		if err := write(name, r.attrs[name]); err != nil {
			return nil, err
		}
	}
	for _, name := range slices.Sorted(maps.Keys(r.relations)) {
		if err := write(name, r.relations[name]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return slices.Clone(buf.B), nil
}

func sameValue(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}
