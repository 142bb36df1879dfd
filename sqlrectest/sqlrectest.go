// Package sqlrectest provides a scripted sqlrec.Driver that records every statement.
package sqlrectest

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/leporo/sqlrec"
)

// Kind names the driver method a Call went through.
type Kind string

const (
	FetchOne Kind = "fetch_one"
	FetchAll Kind = "fetch_all"
	Execute  Kind = "execute"
)

// Call is a statement received by the Driver.
type Call struct {
	Kind  Kind
	Query string
	Args  []any
}

/*
Driver records statements and answers them with canned rows.

	d := &sqlrectest.Driver{
		Rows: []sqlrec.Row{{"id": 1, "name": "Test"}},
	}
	users.Bind(d)
	// ...
	assert.Equal(t, "SELECT * FROM users WHERE id = ? LIMIT 1", d.Last().Query)

FetchOne answers with the first of Rows, FetchAll with all of them.
Set a hook to answer depending on the statement. Err, when set,
fails every call after recording it.
*/
type Driver struct {
	Rows []sqlrec.Row
	Err  error

	OnFetchOne func(query string, args []any) (sqlrec.Row, error)
	OnFetchAll func(query string, args []any) ([]sqlrec.Row, error)
	OnExecute  func(query string, args []any) error

	mu    sync.Mutex
	calls []Call
}

func (d *Driver) record(kind Kind, query string, args []any) {
	d.mu.Lock()
	d.calls = append(d.calls, Call{Kind: kind, Query: query, Args: slices.Clone(args)})
	d.mu.Unlock()
}

// FetchOne implements sqlrec.Driver.
func (d *Driver) FetchOne(ctx context.Context, query string, args []any) (sqlrec.Row, error) {
	d.record(FetchOne, query, args)
	if d.Err != nil {
		return nil, d.Err
	}
	if d.OnFetchOne != nil {
		return d.OnFetchOne(query, args)
	}
	if len(d.Rows) == 0 {
		return nil, nil
	}
	return cloneRow(d.Rows[0]), nil
}

// FetchAll implements sqlrec.Driver.
func (d *Driver) FetchAll(ctx context.Context, query string, args []any) ([]sqlrec.Row, error) {
	d.record(FetchAll, query, args)
	if d.Err != nil {
		return nil, d.Err
	}
	if d.OnFetchAll != nil {
		return d.OnFetchAll(query, args)
	}
	rows := make([]sqlrec.Row, len(d.Rows))
	for i, row := range d.Rows {
		rows[i] = cloneRow(row)
	}
	return rows, nil
}

// Execute implements sqlrec.Driver.
func (d *Driver) Execute(ctx context.Context, query string, args []any) error {
	d.record(Execute, query, args)
	if d.Err != nil {
		return d.Err
	}
	if d.OnExecute != nil {
		return d.OnExecute(query, args)
	}
	return nil
}

// Calls returns every recorded call in order.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.calls)
}

// Last returns the most recent call or a zero Call.
func (d *Driver) Last() Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.calls) == 0 {
		return Call{}
	}
	return d.calls[len(d.calls)-1]
}

// Count returns the number of calls of a kind.
func (d *Driver) Count(kind Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// Matching returns calls whose query contains substr.
func (d *Driver) Matching(substr string) []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	var res []Call
	for _, c := range d.calls {
		if strings.Contains(c.Query, substr) {
			res = append(res, c)
		}
	}
	return res
}

// Reset forgets recorded calls.
func (d *Driver) Reset() {
	d.mu.Lock()
	d.calls = nil
	d.mu.Unlock()
}

func cloneRow(row sqlrec.Row) sqlrec.Row {
	c := make(sqlrec.Row, len(row))
	for k, v := range row {
		c[k] = v
	}
	return c
}
