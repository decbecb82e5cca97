// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package arcadedb implements the master database over sqlx with
// hand-written SQL. Postgres serves production, sqlite the tests.
package arcadedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"tempora.dev/tempora/arcade"
	"tempora.dev/tempora/arcade/activity"
	"tempora.dev/tempora/arcade/auth"
	"tempora.dev/tempora/arcade/beatmaps"
	"tempora.dev/tempora/arcade/chat"
	"tempora.dev/tempora/arcade/medals"
	"tempora.dev/tempora/arcade/notifications"
	"tempora.dev/tempora/arcade/rooms"
	"tempora.dev/tempora/arcade/scores"
	"tempora.dev/tempora/arcade/users"
	"tempora.dev/tempora/internal/migrate"

	_ "github.com/lib/pq"           // registers the postgres driver
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
)

// Error is the default arcadedb error class.
var Error = errs.Class("arcadedb")

type implementation int

const (
	implPostgres implementation = iota
	implSQLite
)

// arcadeDB implements arcade.DB over a single sqlx handle.
type arcadeDB struct {
	*sqlx.DB

	log  *zap.Logger
	impl implementation
}

// Open connects to the database behind the url. Supported schemes are
// postgres:// and sqlite3://.
func Open(ctx context.Context, log *zap.Logger, databaseURL string) (arcade.DB, error) {
	driver, source, impl, err := splitConnStr(databaseURL)
	if err != nil {
		return nil, err
	}

	handle, err := sqlx.Open(driver, source)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if err := handle.PingContext(ctx); err != nil {
		return nil, Error.Wrap(errs.Combine(err, handle.Close()))
	}

	switch impl {
	case implPostgres:
		handle.SetMaxOpenConns(80)
		handle.SetMaxIdleConns(30)
		handle.SetConnMaxLifetime(time.Hour)
	case implSQLite:
		// go-sqlite3 serializes writes; a single connection avoids
		// SQLITE_BUSY under concurrent tests.
		handle.SetMaxOpenConns(1)
	}

	return &arcadeDB{DB: handle, log: log, impl: impl}, nil
}

func splitConnStr(url string) (driver, source string, impl implementation, err error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "postgres", url, implPostgres, nil
	case strings.HasPrefix(url, "sqlite3://"):
		return "sqlite3", strings.TrimPrefix(url, "sqlite3://"), implSQLite, nil
	}
	return "", "", 0, Error.New("unsupported database url %q", url)
}

// CreateTables initializes the schema, guarded against drift by the
// stored schema text.
func (db *arcadeDB) CreateTables(ctx context.Context) error {
	return migrate.Create("arcade", db)
}

// Schema returns the DDL for the active driver.
func (db *arcadeDB) Schema() string {
	serial := "BIGSERIAL PRIMARY KEY"
	blob := "BYTEA"
	if db.impl == implSQLite {
		serial = "INTEGER PRIMARY KEY AUTOINCREMENT"
		blob = "BLOB"
	}
	schema := strings.ReplaceAll(schemaTemplate, "{{serial64}}", serial)
	return strings.ReplaceAll(schema, "{{blob}}", blob)
}

// Close closes the handle.
func (db *arcadeDB) Close() error { return Error.Wrap(db.DB.Close()) }

// Users implements arcade.DB.
func (db *arcadeDB) Users() users.DB { return &usersDB{db} }

// Auth implements arcade.DB.
func (db *arcadeDB) Auth() auth.DB { return &authDB{db} }

// Beatmaps implements arcade.DB.
func (db *arcadeDB) Beatmaps() beatmaps.DB { return &beatmapsDB{db} }

// Scores implements arcade.DB.
func (db *arcadeDB) Scores() scores.DB { return &scoresDB{db} }

// Chat implements arcade.DB.
func (db *arcadeDB) Chat() chat.DB { return &chatDB{db} }

// Rooms implements arcade.DB.
func (db *arcadeDB) Rooms() rooms.DB { return &roomsDB{db} }

// Activity implements arcade.DB.
func (db *arcadeDB) Activity() activity.DB { return &activityDB{db} }

// Notifications implements arcade.DB.
func (db *arcadeDB) Notifications() notifications.DB { return &notificationsDB{db} }

// Achievements implements arcade.DB.
func (db *arcadeDB) Achievements() medals.UserAchievements { return &achievementsDB{db} }

// execInsertID runs an insert and returns the assigned serial id.
// Postgres needs RETURNING, sqlite LastInsertId.
func (db *arcadeDB) execInsertID(ctx context.Context, query string, args ...any) (int64, error) {
	if db.impl == implPostgres {
		var id int64
		err := db.QueryRowContext(ctx, db.Rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// inQuery expands a `IN (?)` clause for a slice argument.
func (db *arcadeDB) inQuery(query string, args ...any) (string, []any, error) {
	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return db.Rebind(expanded), expandedArgs, nil
}

func encodeJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", Error.Wrap(err)
	}
	return string(data), nil
}

func decodeJSON(data string, dest any) error {
	if data == "" {
		return nil
	}
	return Error.Wrap(json.Unmarshal([]byte(data), dest))
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	value := t.Time.UTC()
	return &value
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	value := s.String
	return &value
}

func nullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func int64Ptr(i sql.NullInt64) *int64 {
	if !i.Valid {
		return nil
	}
	value := i.Int64
	return &value
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	value := f.Float64
	return &value
}
