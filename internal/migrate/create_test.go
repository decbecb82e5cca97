// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

package migrate_test

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"tempora.dev/tempora/internal/migrate"
)

func TestCreate(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	// first call creates the table
	err = migrate.Create("example", migrate.NewSqliteDB(db, `CREATE TABLE example_table (id TEXT)`))
	require.NoError(t, err)

	// the same schema is a no-op
	err = migrate.Create("example", migrate.NewSqliteDB(db, `CREATE TABLE example_table (id TEXT)`))
	require.NoError(t, err)

	// a changed schema is refused rather than silently applied
	err = migrate.Create("example", migrate.NewSqliteDB(db, `CREATE TABLE example_table (id TEXT, extra TEXT)`))
	require.Error(t, err)

	// the original table is still intact
	_, err = db.Exec(`INSERT INTO example_table (id) VALUES ('a')`)
	require.NoError(t, err)
}

func TestCreate_Rebind(t *testing.T) {
	db := migrate.NewPostgresDB(nil, "")
	require.Equal(t,
		`SELECT $1, $2, $3`,
		db.Rebind(`SELECT ?, ?, ?`))
}
