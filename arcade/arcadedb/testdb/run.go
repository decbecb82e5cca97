// Copyright (C) 2026 The Tempora Authors.
// See LICENSE for copying information.

// Package testdb opens throwaway databases for arcadedb tests. Tests
// run against sqlite in a temporary directory; setting
// TEMPORA_TEST_POSTGRES points them at a real postgres instead.
package testdb

import (
	"os"
	"testing"

	"go.uber.org/zap/zaptest"

	"tempora.dev/tempora/arcade"
	"tempora.dev/tempora/arcade/arcadedb"
	"tempora.dev/tempora/internal/testcontext"
)

// Run opens a fresh database with the schema applied and calls test
// with it.
func Run(t *testing.T, test func(ctx *testcontext.Context, t *testing.T, db arcade.DB)) {
	t.Helper()

	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	url := os.Getenv("TEMPORA_TEST_POSTGRES")
	if url == "" {
		url = "sqlite3://" + ctx.File("arcade.db")
	}

	db, err := arcadedb.Open(ctx, zaptest.NewLogger(t), url)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer ctx.Check(db.Close)

	if err := db.CreateTables(ctx); err != nil {
		t.Fatalf("create tables: %v", err)
	}

	test(ctx, t, db)
}
