package sqlsource

import (
	"database/sql"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Open returns a *bun.DB connected to PostgreSQL or CockroachDB at dsn,
// using bun's own pgdriver rather than lib/pq or pgx: the same
// dependency family the rest of this package builds on. CockroachDB
// speaks the PostgreSQL wire protocol, so the same driver and dialect
// serve both; dialect.CockroachDB only changes the SQL text Source
// generates, never the connection itself.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}
