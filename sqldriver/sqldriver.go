/*
Package sqldriver runs sqlrec statements through database/sql.

	d, err := sqldriver.Open("sqlite3", "file:app.db")
	if err != nil {
		return err
	}
	defer d.Close()

	Users.Bind(d)

SQLite, PostgreSQL and MySQL drivers are registered by this package.
PostgreSQL statements get their ? placeholders rewritten to $1, $2...
*/
package sqldriver

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/leporo/sqlrec"
)

// Executor performs SQL queries.
// sql.DB, sql.Conn and sql.Tx can be passed as an executor.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Driver implements sqlrec.Driver on top of an Executor.
type Driver struct {
	db          Executor
	closer      io.Closer
	placeholder Placeholder
	log         *slog.Logger
}

var _ sqlrec.Driver = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithRebind sets the placeholder style statements are rewritten to.
func WithRebind(p Placeholder) Option {
	return func(d *Driver) {
		d.placeholder = p
	}
}

// WithLogger sets the logger statements are reported to at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		d.log = l
	}
}

// New wraps an executor. The caller keeps ownership of it.
func New(db Executor, opts ...Option) *Driver {
	d := &Driver{
		db:  db,
		log: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open opens a connection pool owned by the driver.
// The placeholder style is picked by driver name unless WithRebind is given.
func Open(driverName, dsn string, opts ...Option) (*Driver, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", driverName)
	}
	opts = append([]Option{WithRebind(PlaceholderFor(driverName))}, opts...)
	d := New(db, opts...)
	d.closer = db
	return d, nil
}

// DB returns the underlying executor.
func (d *Driver) DB() Executor {
	return d.db
}

// Close closes a connection pool opened by Open.
// It does nothing for drivers created by New.
func (d *Driver) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// FetchOne returns the first row of the result or nil if there is none.
func (d *Driver) FetchOne(ctx context.Context, query string, args []any) (sqlrec.Row, error) {
	var row sqlrec.Row
	err := d.query(ctx, query, args, func(r sqlrec.Row) bool {
		row = r
		return false
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// FetchAll returns every row of the result.
func (d *Driver) FetchAll(ctx context.Context, query string, args []any) ([]sqlrec.Row, error) {
	rows := []sqlrec.Row{}
	err := d.query(ctx, query, args, func(r sqlrec.Row) bool {
		rows = append(rows, r)
		return true
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Execute runs a statement that returns no rows.
func (d *Driver) Execute(ctx context.Context, query string, args []any) error {
	query = Rebind(query, d.placeholder)
	start := time.Now()
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		d.log.DebugContext(ctx, "exec failed", "sql", query, "args", len(args), "error", err)
		return err
	}
	attrs := []any{"sql", query, "args", len(args), "duration", time.Since(start)}
	if n, err := res.RowsAffected(); err == nil {
		attrs = append(attrs, "rows", n)
	}
	d.log.DebugContext(ctx, "exec", attrs...)
	return nil
}

// query calls handler for every row until it returns false.
func (d *Driver) query(ctx context.Context, query string, args []any, handler func(sqlrec.Row) bool) (err error) {
	query = Rebind(query, d.placeholder)
	start := time.Now()
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		d.log.DebugContext(ctx, "query failed", "sql", query, "args", len(args), "error", err)
		return err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}
	n := 0
	for rows.Next() {
		row, err := scanRow(rows, columns)
		if err != nil {
			return err
		}
		n++
		if !handler(row) {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	d.log.DebugContext(ctx, "query", "sql", query, "args", len(args), "rows", n, "duration", time.Since(start))
	return nil
}

func scanRow(rows *sql.Rows, columns []string) (sqlrec.Row, error) {
	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	row := make(sqlrec.Row, len(columns))
	for i, column := range columns {
		// Text columns come back as bytes from most drivers
		if b, ok := values[i].([]byte); ok {
			row[column] = string(b)
		} else {
			row[column] = values[i]
		}
	}
	return row, nil
}
