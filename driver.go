package sqlrec

import "context"

// Row is a single result row keyed by column name.
type Row map[string]any

// Driver executes parameterized SQL on behalf of entities and queries.
//
// Every method is a blocking call that receives the rendered SQL text and
// an argument list aligned 1:1 with its ? placeholders. Errors are returned
// to the caller unchanged.
//
// FetchOne returns a nil Row and a nil error when no row matched.
type Driver interface {
	FetchOne(ctx context.Context, query string, args []any) (Row, error)
	FetchAll(ctx context.Context, query string, args []any) ([]Row, error)
	Execute(ctx context.Context, query string, args []any) error
}
