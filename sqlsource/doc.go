// Package sqlsource is the Ecto Source: it attaches to an existing user
// table via two queue-owned columns and translates queue
// operations (Reserve/Ack/Nack/Cancel/Status/Filter) into the SQL the
// dialect package parameterizes per backend.
//
// Source implements ectopq.Source. A table is never owned outright by
// the queue; Source only ever touches its lock and private columns, and
// only through the statements in sql.go, so that application code can
// keep inserting, reading, and eventually deleting rows through its own
// data access layer undisturbed.
//
// Concurrency across nodes comes from every node's Source running the
// same reserve query against the same table: the database's row-locking
// (or, for CockroachDB, serializable retry) primitive is the only
// coordination mechanism, not anything in this package's own state.
package sqlsource
