// Package dialect isolates the handful of things sqlsource's generated
// SQL must say differently per backend.
//
// Two dialects are supported. PostgreSQL supports row-level locking, so
// Reserve's candidate-row subquery ends in
// SELECT ... FOR UPDATE SKIP LOCKED: concurrent Reserve calls simply skip
// rows another session already claimed. CockroachDB has no SKIP LOCKED
// equivalent; every statement runs under SERIALIZABLE isolation instead,
// and a transaction that loses a race gets a serialization error the
// caller must retry. Retryable tells sqlsource which errors warrant that
// retry.
//
// Everything else about the generated SQL (the lock-range arithmetic,
// the column and table names, the shape of each statement) is common to
// every dialect and lives in sqlsource, not here.
package dialect

import (
	"errors"
	"strings"
)

// Dialect is the capability object sqlsource asks for the pieces of SQL
// that genuinely differ between backends.
type Dialect interface {
	// Name identifies the dialect for logging and tests.
	Name() string

	// IntegerType names the column type sqlsource's schema helper uses
	// for the lock column.
	IntegerType() string

	// ReserveLockClause is appended to Reserve's candidate-row subquery.
	// It is "FOR UPDATE SKIP LOCKED" for engines with row-level locking,
	// or empty for engines (CockroachDB) that rely on serializable
	// isolation instead.
	ReserveLockClause() string

	// Retryable reports whether err is a transient serialization
	// conflict that the caller should retry with a fresh transaction,
	// rather than a genuine failure.
	Retryable(err error) bool
}

// Postgres targets a genuine PostgreSQL server, or any wire-compatible
// server that supports row-level locking.
type Postgres struct{}

func (Postgres) Name() string        { return "postgres" }
func (Postgres) IntegerType() string { return "bigint" }

// ReserveLockClause adds FOR UPDATE SKIP LOCKED: concurrent Reserve calls
// on other connections never block on, and never re-select, a row
// already claimed by another in-flight Reserve.
func (Postgres) ReserveLockClause() string {
	return "FOR UPDATE SKIP LOCKED"
}

// Retryable is always false for Postgres: row-level locking means
// Reserve never needs to retry due to a concurrent peer.
func (Postgres) Retryable(error) bool {
	return false
}

// CockroachDB targets CockroachDB, which speaks the PostgreSQL wire
// protocol but has no SKIP LOCKED: every transaction runs under
// SERIALIZABLE isolation and a losing transaction must be retried.
type CockroachDB struct{}

func (CockroachDB) Name() string        { return "cockroachdb" }
func (CockroachDB) IntegerType() string { return "bigint" }

// ReserveLockClause is empty: CockroachDB relies on SERIALIZABLE
// isolation rather than row-level locks to keep concurrent Reserve calls
// from double-claiming a row.
func (CockroachDB) ReserveLockClause() string {
	return ""
}

// Retryable reports whether err is CockroachDB's serialization-failure
// error (SQLSTATE 40001). pgdriver does not expose structured SQLSTATE
// codes, so this matches on the error text CockroachDB is documented to
// return.
func (CockroachDB) Retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "40001") || strings.Contains(msg, "restart transaction")
}

// ErrUnknownDialect is returned by Parse for an unrecognized name.
var ErrUnknownDialect = errors.New("dialect: unknown dialect")

// Parse resolves a dialect by name, for configuration-driven setup.
func Parse(name string) (Dialect, error) {
	switch name {
	case "postgres", "postgresql":
		return Postgres{}, nil
	case "cockroachdb", "cockroach":
		return CockroachDB{}, nil
	default:
		return nil, ErrUnknownDialect
	}
}
