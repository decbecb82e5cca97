// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package migrate runs versioned schema migrations and guarded one-shot
// schema creation against sql databases.
package migrate

import (
	"database/sql"

	"github.com/zeebo/errs"
)

// Error is the default migrate error class.
var Error = errs.Class("migrate")

// DB is the minimal database surface needed by migrations.
type DB interface {
	Begin() (*sql.Tx, error)
	Schema() string
	Rebind(string) string
}

// Create with a previous schema check: the schema text is stored in a
// metadata table under the identifier; a changed schema is an error, a
// matching one is a no-op.
func Create(identifier string, db DB) error {
	tx, err := db.Begin()
	if err != nil {
		return Error.Wrap(err)
	}

	schema := db.Schema()

	_, err = tx.Exec(db.Rebind(`CREATE TABLE IF NOT EXISTS table_metadata (table_name TEXT, schema_text TEXT, PRIMARY KEY (table_name))`))
	if err != nil {
		return Error.Wrap(errs.Combine(err, tx.Rollback()))
	}

	row := tx.QueryRow(db.Rebind(`SELECT schema_text FROM table_metadata WHERE table_name = ?`), identifier)

	var previous string
	err = row.Scan(&previous)
	if err == sql.ErrNoRows {
		_, err := tx.Exec(schema)
		if err != nil {
			return Error.Wrap(errs.Combine(err, tx.Rollback()))
		}
		_, err = tx.Exec(db.Rebind(`INSERT INTO table_metadata (table_name, schema_text) VALUES (?, ?)`), identifier, schema)
		if err != nil {
			return Error.Wrap(errs.Combine(err, tx.Rollback()))
		}
		return Error.Wrap(tx.Commit())
	}
	if err != nil {
		return Error.Wrap(errs.Combine(err, tx.Rollback()))
	}

	if schema != previous {
		return Error.Wrap(errs.Combine(
			Error.New("schema mismatch for %q", identifier),
			tx.Rollback()))
	}
	return Error.Wrap(tx.Commit())
}

// sqlDB binds a raw database handle to a schema and dialect.
type sqlDB struct {
	db       *sql.DB
	schema   string
	postgres bool
}

// NewSqliteDB wraps a sqlite handle for Create.
func NewSqliteDB(db *sql.DB, schema string) DB {
	return &sqlDB{db: db, schema: schema}
}

// NewPostgresDB wraps a postgres handle for Create.
func NewPostgresDB(db *sql.DB, schema string) DB {
	return &sqlDB{db: db, schema: schema, postgres: true}
}

func (db *sqlDB) Begin() (*sql.Tx, error) { return db.db.Begin() }
func (db *sqlDB) Schema() string          { return db.schema }

func (db *sqlDB) Rebind(query string) string {
	if !db.postgres {
		return query
	}
	out := make([]byte, 0, len(query)+10)
	position := 1
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			out = append(out, query[i])
			continue
		}
		out = append(out, '$')
		out = appendInt(out, position)
		position++
	}
	return string(out)
}

func appendInt(buf []byte, v int) []byte {
	if v >= 10 {
		buf = appendInt(buf, v/10)
	}
	return append(buf, byte('0'+v%10))
}
