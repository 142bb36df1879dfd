package sqlrec_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leporo/sqlrec"
	"github.com/leporo/sqlrec/sqlrectest"
)

func TestEntityFind(t *testing.T) {
	d := &sqlrectest.Driver{Rows: twoUsers}
	u, err := newUsers(d).Find(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, u)

	assert.Equal(t, int64(1), u.ID())
	last := d.Last()
	assert.Equal(t, sqlrectest.FetchOne, last.Kind)
	assert.Equal(t, "SELECT * FROM users WHERE id = ? LIMIT 1", last.Query)
	assert.Equal(t, []any{1}, last.Args)
	assert.False(t, u.IsDirty())
}

func TestEntityFindNotFound(t *testing.T) {
	d := &sqlrectest.Driver{}
	u, err := newUsers(d).Find(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestEntityFindCustomPrimaryKey(t *testing.T) {
	d := &sqlrectest.Driver{Rows: []sqlrec.Row{{"code": "LV", "name": "Latvia"}}}
	countries := sqlrec.NewEntity("countries", sqlrec.WithPrimaryKey("code"), sqlrec.WithDriver(d))
	c, err := countries.Find(context.Background(), "LV")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM countries WHERE code = ? LIMIT 1", d.Last().Query)
	assert.Equal(t, "LV", c.ID())
}

func TestEntityCreate(t *testing.T) {
	d := &sqlrectest.Driver{}
	u, err := newUsers(d).Create(context.Background(), sqlrec.Attrs{
		"email":    "test@example.com",
		"name":     "Test",
		"is_admin": true,
	})
	require.NoError(t, err)

	last := d.Last()
	assert.Equal(t, sqlrectest.Execute, last.Kind)
	assert.Equal(t, "INSERT INTO users (name, email) VALUES (?, ?)", last.Query)
	assert.Equal(t, []any{"Test", "test@example.com"}, last.Args)

	assert.Equal(t, "Test", u.GetString("name"))
	assert.False(t, u.Has("is_admin"))
	assert.False(t, u.IsDirty())
	assert.Equal(t, []string{"name", "email"}, u.Keys())
}

func TestEntityCreateAppliesCasts(t *testing.T) {
	d := &sqlrectest.Driver{}
	u, err := newUsers(d).Create(context.Background(), sqlrec.Attrs{"id": "5", "name": "Five"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), u.ID())
	assert.Equal(t, []any{int64(5), "Five"}, d.Last().Args)
}

func TestEntityCreateFailure(t *testing.T) {
	boom := errors.New("UNIQUE constraint failed: users.email")
	d := &sqlrectest.Driver{Err: boom}
	u, err := newUsers(d).Create(context.Background(), sqlrec.Attrs{"name": "Test"})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, u)
}

func TestEntityCastFailure(t *testing.T) {
	d := &sqlrectest.Driver{}
	_, err := newUsers(d).Create(context.Background(), sqlrec.Attrs{"id": "not a number"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users.id")
	assert.Empty(t, d.Calls())
}

func TestEntityNoDriver(t *testing.T) {
	ctx := context.Background()
	users := newUsers(nil)

	_, err := users.Find(ctx, 1)
	assert.ErrorIs(t, err, sqlrec.ErrNoDriver)
	_, err = users.Create(ctx, sqlrec.Attrs{"name": "Test"})
	assert.ErrorIs(t, err, sqlrec.ErrNoDriver)
	_, err = users.All(ctx)
	assert.ErrorIs(t, err, sqlrec.ErrNoDriver)

	u := users.MustNew(sqlrec.Attrs{"id": 1, "name": "Old"})
	assert.ErrorIs(t, u.Update(ctx, sqlrec.Attrs{"name": "New"}), sqlrec.ErrNoDriver)
	_, err = u.Save(ctx)
	assert.ErrorIs(t, err, sqlrec.ErrNoDriver)
	assert.ErrorIs(t, u.Delete(ctx), sqlrec.ErrNoDriver)

	d := &sqlrectest.Driver{}
	users.Bind(d)
	_, err = users.Find(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, d.Calls(), 1)
}

func TestEntityEmptyTable(t *testing.T) {
	e := sqlrec.NewEntity("", sqlrec.WithDriver(&sqlrectest.Driver{}))
	_, err := e.Find(context.Background(), 1)
	assert.ErrorIs(t, err, sqlrec.ErrEmptyTable)
}

func TestRecordUpdate(t *testing.T) {
	d := &sqlrectest.Driver{}
	u := newUsers(d).MustNew(sqlrec.Attrs{"id": 1, "name": "Old", "email": "old@example.com"})

	err := u.Update(context.Background(), sqlrec.Attrs{"name": "New", "role": "admin"})
	require.NoError(t, err)

	last := d.Last()
	assert.Equal(t, "UPDATE users SET name = ? WHERE id = ?", last.Query)
	assert.Equal(t, []any{"New", int64(1)}, last.Args)
	assert.Equal(t, "New", u.Get("name"))
	assert.False(t, u.Has("role"))
	assert.False(t, u.IsDirty())
	assert.Equal(t, "New", u.Original()["name"])
}

func TestRecordUpdateNothingFillable(t *testing.T) {
	d := &sqlrectest.Driver{}
	u := newUsers(d).MustNew(sqlrec.Attrs{"id": 1})
	require.NoError(t, u.Update(context.Background(), sqlrec.Attrs{"role": "admin"}))
	assert.Empty(t, d.Calls())
}

func TestRecordUpdateFailureKeepsSnapshot(t *testing.T) {
	boom := errors.New("database is locked")
	d := &sqlrectest.Driver{Err: boom}
	u := newUsers(d).MustNew(sqlrec.Attrs{"id": 1, "name": "Old"})

	err := u.Update(context.Background(), sqlrec.Attrs{"name": "New"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "Old", u.Original()["name"])
	assert.Equal(t, []string{"name"}, u.Dirty())
}

func TestRecordSave(t *testing.T) {
	ctx := context.Background()
	d := &sqlrectest.Driver{}
	u := newUsers(d).MustNew(sqlrec.Attrs{"id": 1, "name": "Old Name", "email": "old@example.com"})

	require.NoError(t, u.Set("name", "New Name"))
	require.NoError(t, u.Set("email", "new@example.com"))
	assert.Equal(t, []string{"name", "email"}, u.Dirty())

	saved, err := u.Save(ctx)
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Equal(t, 1, d.Count(sqlrectest.Execute))
	assert.Equal(t, "UPDATE users SET name = ?, email = ? WHERE id = ?", d.Last().Query)
	assert.Equal(t, []any{"New Name", "new@example.com", int64(1)}, d.Last().Args)

	saved, err = u.Save(ctx)
	require.NoError(t, err)
	assert.False(t, saved)
	assert.Equal(t, 1, d.Count(sqlrectest.Execute))
}

func TestRecordSaveAfterHydrateIsNoop(t *testing.T) {
	ctx := context.Background()
	d := &sqlrectest.Driver{Rows: twoUsers}
	users := newUsers(d)

	list, err := users.All(ctx)
	require.NoError(t, err)
	d.Reset()
	for _, u := range list {
		saved, err := u.Save(ctx)
		require.NoError(t, err)
		assert.False(t, saved)
	}
	assert.Empty(t, d.Calls())
}

func TestRecordSaveSameValueIsNoop(t *testing.T) {
	d := &sqlrectest.Driver{}
	u := newUsers(d).MustNew(sqlrec.Attrs{"id": 1, "name": "Same"})
	require.NoError(t, u.Set("id", "1"))
	require.NoError(t, u.Set("name", "Same"))
	saved, err := u.Save(context.Background())
	require.NoError(t, err)
	assert.False(t, saved)
	assert.Empty(t, d.Calls())
}

func TestRecordSaveNewAttribute(t *testing.T) {
	d := &sqlrectest.Driver{}
	u := newUsers(d).MustNew(sqlrec.Attrs{"id": 1, "name": "A"})
	require.NoError(t, u.Set("nickname", "a"))
	saved, err := u.Save(context.Background())
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Equal(t, "UPDATE users SET nickname = ? WHERE id = ?", d.Last().Query)
}

func TestRecordSaveFailureKeepsDirty(t *testing.T) {
	boom := errors.New("disk I/O error")
	d := &sqlrectest.Driver{Err: boom}
	u := newUsers(d).MustNew(sqlrec.Attrs{"id": 1, "name": "Old"})
	require.NoError(t, u.Set("name", "New"))

	saved, err := u.Save(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, saved)
	assert.True(t, u.IsDirty("name"))
	assert.False(t, u.IsDirty("email"))

	d.Err = nil
	saved, err = u.Save(context.Background())
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Equal(t, 2, d.Count(sqlrectest.Execute))
}

func TestRecordChangedPrimaryKey(t *testing.T) {
	d := &sqlrectest.Driver{}
	u := newUsers(d).MustNew(sqlrec.Attrs{"id": 1, "name": "A"})
	require.NoError(t, u.Set("id", 2))
	_, err := u.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "UPDATE users SET id = ? WHERE id = ?", d.Last().Query)
	assert.Equal(t, []any{int64(2), int64(1)}, d.Last().Args)
}

func TestRecordNoPrimaryKey(t *testing.T) {
	d := &sqlrectest.Driver{}
	u := newUsers(d).MustNew(sqlrec.Attrs{"name": "A"})
	assert.ErrorIs(t, u.Delete(context.Background()), sqlrec.ErrNoPrimaryKey)
	assert.ErrorIs(t, u.Update(context.Background(), sqlrec.Attrs{"name": "B"}), sqlrec.ErrNoPrimaryKey)
	assert.Empty(t, d.Calls())
}

func TestRecordDelete(t *testing.T) {
	d := &sqlrectest.Driver{}
	u := newUsers(d).MustNew(sqlrec.Attrs{"id": 3, "name": "Gone"})
	require.NoError(t, u.Delete(context.Background()))
	assert.Equal(t, "DELETE FROM users WHERE id = ?", d.Last().Query)
	assert.Equal(t, []any{int64(3)}, d.Last().Args)
	assert.Equal(t, "Gone", u.Get("name"))
}

func TestRecordFill(t *testing.T) {
	u := newUsers(nil).MustNew(sqlrec.Attrs{"id": 1, "name": "A"})
	require.NoError(t, u.Fill(sqlrec.Attrs{"name": "B", "password": "secret"}))
	assert.Equal(t, "B", u.Get("name"))
	assert.False(t, u.Has("password"))
	assert.Equal(t, []string{"name"}, u.Dirty())
}

func TestRecordAttributeOrder(t *testing.T) {
	u := newUsers(nil).MustNew(sqlrec.Attrs{"zeta": 1, "email": "e", "alpha": 2, "id": 7, "name": "n"})
	assert.Equal(t, []string{"id", "name", "email", "alpha", "zeta"}, u.Keys())
	require.NoError(t, u.Set("beta", 3))
	assert.Equal(t, []string{"id", "name", "email", "alpha", "zeta", "beta"}, u.Keys())
}

func TestRecordTypedGetters(t *testing.T) {
	u := newUsers(nil).MustNew(sqlrec.Attrs{"id": 1, "score": "2.5", "active": "true", "age": "41"})
	assert.Equal(t, 2.5, u.GetFloat64("score"))
	assert.True(t, u.GetBool("active"))
	assert.Equal(t, int64(41), u.GetInt64("age"))
	assert.Equal(t, "1", u.GetString("id"))
	assert.Nil(t, u.Get("missing"))
}

func TestRecordAttributesAreCopies(t *testing.T) {
	u := newUsers(nil).MustNew(sqlrec.Attrs{"id": 1, "name": "A"})
	attrs := u.Attributes()
	attrs["name"] = "B"
	assert.Equal(t, "A", u.Get("name"))
}

func TestRecordLazyRelation(t *testing.T) {
	ctx := context.Background()
	d := &sqlrectest.Driver{Rows: []sqlrec.Row{{"id": 10, "user_id": int64(1), "title": "First"}}}
	users, posts := newUsers(d), newPosts(d)
	users.Relate("posts", sqlrec.HasMany(posts, "user_id"))
	posts.Relate("author", sqlrec.BelongsTo(users, "user_id"))

	u := users.MustNew(sqlrec.Attrs{"id": 1})
	related, err := u.Related(ctx, "posts")
	require.NoError(t, err)
	require.Len(t, related, 1)
	_, ok := u.Relation("posts")
	assert.False(t, ok, "lazy relations are not cached")

	_, err = related[0].Related(ctx, "author")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users WHERE id = ? LIMIT 1", d.Last().Query)
	assert.Equal(t, []any{int64(1)}, d.Last().Args)

	require.NoError(t, u.Load(ctx, "posts"))
	loaded, ok := u.Relation("posts")
	require.True(t, ok)
	assert.Len(t, loaded, 1)

	_, err = u.Related(ctx, "comments")
	assert.ErrorIs(t, err, sqlrec.ErrUnknownRelation)
	assert.Equal(t, []string{"posts"}, users.Relations())
}

func TestBelongsToNilForeignKey(t *testing.T) {
	d := &sqlrectest.Driver{}
	users, posts := newUsers(d), newPosts(d)
	posts.Relate("author", sqlrec.BelongsTo(users, "user_id"))
	p := posts.MustNew(sqlrec.Attrs{"id": 1, "user_id": nil})
	related, err := p.Related(context.Background(), "author")
	require.NoError(t, err)
	assert.Empty(t, related)
	assert.Empty(t, d.Calls())
}

func TestRecordMarshalJSON(t *testing.T) {
	users, posts := newUsers(nil), newPosts(nil)
	u := users.MustNew(sqlrec.Attrs{"email": "a@b.c", "id": 1, "name": "A"})
	u.SetRelation("posts", []*sqlrec.Record{posts.MustNew(sqlrec.Attrs{"id": 2, "title": "T"})})

	b, err := json.Marshal(u)
	require.NoError(t, err)
	assert.Equal(t, `{"id":1,"name":"A","email":"a@b.c","posts":[{"id":2,"title":"T"}]}`, string(b))
}

func TestRecordJSONChangedInPlace(t *testing.T) {
	d := &sqlrectest.Driver{}
	docs := sqlrec.NewEntity("docs",
		sqlrec.WithCasts(sqlrec.Casts{"id": sqlrec.CastInt, "meta": sqlrec.CastJSON}),
		sqlrec.WithDriver(d),
	)
	doc, err := docs.Hydrate(sqlrec.Row{"id": 1, "meta": `{"a":1,"tags":["x"]}`})
	require.NoError(t, err)

	doc.Get("meta").(map[string]any)["a"] = 2
	assert.Equal(t, []string{"meta"}, doc.Dirty())

	saved, err := doc.Save(context.Background())
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Equal(t, 1, d.Count(sqlrectest.Execute))
	assert.Equal(t, "UPDATE docs SET meta = ? WHERE id = ?", d.Last().Query)
	assert.False(t, doc.IsDirty())

	tags := doc.Get("meta").(map[string]any)["tags"].([]any)
	tags[0] = "y"
	assert.True(t, doc.IsDirty("meta"))
}
