// Package sqlrec maps table rows to records and builds the SQL to load and store them.
/*

Entities and records

An Entity describes a table: its name, primary key, the attributes open
to mass assignment and the casts applied to attribute values. A Record is
one row of that table held in memory. It remembers the values it was loaded
with, so Save writes only what changed.

	users := sqlrec.NewEntity("users",
		sqlrec.WithFillable("id", "name", "email"),
		sqlrec.WithCasts(sqlrec.Casts{"id": sqlrec.CastInt}),
		sqlrec.WithDriver(driver),
	)

	u, err := users.Create(ctx, sqlrec.Attrs{"name": "Test", "email": "test@example.com"})
	// INSERT INTO users (name, email) VALUES (?, ?)

	u.Set("name", "New Name")
	saved, err := u.Save(ctx)
	// UPDATE users SET name = ? WHERE id = ?

Query builder

Query accumulates a SELECT statement and renders it with ? placeholders
and an argument list in placeholder order:

	list, err := users.Query().
		Where("email", "like", "%@example.com").
		OrderBy("name", "DESC").
		Limit(10).
		With("posts").
		Get(ctx)

Drivers

sqlrec does not talk to a database itself. A Driver receives rendered
statements and returns rows. Package sqldriver implements it on top of
database/sql, package sqlrectest provides a recording driver for tests.
*/
package sqlrec
