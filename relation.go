package sqlrec

import (
	"context"
	"maps"
	"slices"

	"github.com/pkg/errors"
)

// Relation resolves the records related to r.
type Relation func(ctx context.Context, r *Record) ([]*Record, error)

/*
Relate registers a named relation:

	Users.Relate("posts", sqlrec.HasMany(Posts, "user_id"))

	Users.Relate("recent_posts", func(ctx context.Context, u *sqlrec.Record) ([]*sqlrec.Record, error) {
		return Posts.Query().
			Where("user_id", "=", u.ID()).
			OrderBy("created_at", "DESC").
			Limit(5).
			Get(ctx)
	})

Registered relations are resolved lazily by Record.Related and
eagerly by Query.With.
*/
func (e *Entity) Relate(name string, rel Relation) *Entity {
	if e.relations == nil {
		e.relations = make(map[string]Relation)
	}
	e.relations[name] = rel
	return e
}

// Relations lists registered relation names in lexical order.
func (e *Entity) Relations() []string {
	return slices.Sorted(maps.Keys(e.relations))
}

func (e *Entity) relation(name string) (Relation, error) {
	rel, ok := e.relations[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownRelation, "%s.%s", e.Table, name)
	}
	return rel, nil
}

// HasMany relates records of related whose foreignKey column
// holds the primary key of the owner.
func HasMany(related *Entity, foreignKey string) Relation {
	return func(ctx context.Context, r *Record) ([]*Record, error) {
		return related.Query().Where(foreignKey, "=", r.ID()).Get(ctx)
	}
}

// BelongsTo relates the record of related whose primary key
// is held by the foreignKey attribute of the owner.
// A nil foreign key resolves to no records without a query.
func BelongsTo(related *Entity, foreignKey string) Relation {
	return func(ctx context.Context, r *Record) ([]*Record, error) {
		fk := r.Get(foreignKey)
		if fk == nil {
			return []*Record{}, nil
		}
		return related.Query().Where(related.pk(), "=", fk).Limit(1).Get(ctx)
	}
}

// Related resolves a relation on every call without caching the result.
func (r *Record) Related(ctx context.Context, name string) ([]*Record, error) {
	rel, err := r.entity.relation(name)
	if err != nil {
		return nil, err
	}
	return rel(ctx, r)
}

// Load resolves relations and attaches them to the record.
func (r *Record) Load(ctx context.Context, names ...string) error {
	for _, name := range names {
		related, err := r.Related(ctx, name)
		if err != nil {
			return err
		}
		r.SetRelation(name, related)
	}
	return nil
}

// Relation returns records attached by Load, SetRelation or eager loading.
func (r *Record) Relation(name string) ([]*Record, bool) {
	related, ok := r.relations[name]
	return related, ok
}

// SetRelation attaches related records under name.
func (r *Record) SetRelation(name string, related []*Record) {
	if r.relations == nil {
		r.relations = make(map[string][]*Record)
	}
	r.relations[name] = related
}
