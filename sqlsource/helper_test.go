package sqlsource_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite"
)

// newTestDB returns an in-memory SQLite database with one "photos"
// table, standing in for an arbitrary pre-existing business table.
// SQLite has no FOR UPDATE, so tests drive Source with
// dialect.CockroachDB{}, whose ReserveLockClause is also empty.
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", "file::memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	db := bun.NewDB(sqlDB, sqlitedialect.New())

	_, err = db.NewRaw(`CREATE TABLE photos (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		ectopq_resize_lock INTEGER,
		ectopq_resize_private BLOB
	)`).Exec(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return db
}
