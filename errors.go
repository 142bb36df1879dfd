package sqlrec

import "github.com/pkg/errors"

// Use errors.Is to detect these. Errors returned by entities and records
// wrap them with the table or attribute involved.
var (
	// ErrNoDriver is returned by any data operation on an entity
	// that has no Driver bound.
	ErrNoDriver = errors.New("sqlrec: no driver bound")
	// ErrEmptyTable is returned when an entity has no table name.
	ErrEmptyTable = errors.New("sqlrec: empty table name")
	// ErrUnknownRelation is returned when a relation name was never registered.
	ErrUnknownRelation = errors.New("sqlrec: unknown relation")
	// ErrNoPrimaryKey is returned by Update, Save and Delete when
	// a record has no primary key value.
	ErrNoPrimaryKey = errors.New("sqlrec: record has no primary key value")
	// ErrUnknownCast is returned by ParseCast.
	ErrUnknownCast = errors.New("sqlrec: unknown cast")
)
