package sqlsource

import (
	"fmt"
	"strings"

	"github.com/ectopq/ectopq/dialect"
)

// The query builders below translate a Schema and dialect.Dialect into
// the SQL statements Source needs: reserve, delay/ready, cancel, status,
// reset-stale, and filter. Every statement is handed to bun.NewRaw with
// positional ? placeholders, which bun rebinds per dialect.

func pkColumnList(schema Schema) string {
	return strings.Join(quoteIdents(schema.PrimaryKey), ", ")
}

func pkEquality(schema Schema) string {
	parts := make([]string, len(schema.PrimaryKey))
	for i, col := range quoteIdents(schema.PrimaryKey) {
		parts[i] = fmt.Sprintf("%s = ?", col)
	}
	return strings.Join(parts, " AND ")
}

// reserveSQL selects one ready row (honoring the dialect's row-claiming
// strategy), bumps its lock into the in-progress range, and returns its
// primary key and private blob. Positional parameters: (readyWatermark,
// inProgressLock).
func reserveSQL(schema Schema, d dialect.Dialect) string {
	lock := quoteIdent(schema.Lock)
	table := schema.qualifiedTable()
	pk := pkColumnList(schema)

	candidateMatch := make([]string, len(schema.PrimaryKey))
	for i, col := range quoteIdents(schema.PrimaryKey) {
		candidateMatch[i] = fmt.Sprintf("%s = (SELECT %s FROM candidate)", col, col)
	}

	lockClause := d.ReserveLockClause()
	if lockClause != "" {
		lockClause = "\n\t\t" + lockClause
	}

	return fmt.Sprintf(`WITH candidate AS (
	SELECT %[1]s
	FROM %[2]s
	WHERE %[3]s >= 0 AND %[3]s <= ?
	ORDER BY %[3]s ASC, %[1]s ASC
	LIMIT 1%[4]s
)
UPDATE %[2]s
SET %[3]s = ?
WHERE %[5]s
RETURNING %[1]s, %[6]s`,
		pk, table, lock, lockClause, strings.Join(candidateMatch, " AND "), quoteIdent(schema.Private))
}

// delayReadySQL reschedules one row for a future attempt, overwriting
// its private blob. Positional parameters:
// (delayedLock, privateBlob, *primaryKeyValues).
func delayReadySQL(schema Schema) string {
	return fmt.Sprintf(`UPDATE %s SET %s = ?, %s = ? WHERE %s`,
		schema.qualifiedTable(), quoteIdent(schema.Lock), quoteIdent(schema.Private), pkEquality(schema))
}

// ackSQL finalizes one row, either to NULL (finished) or -1 (abandoned).
// Positional parameters: (lockValue, *primaryKeyValues).
func ackSQL(schema Schema) string {
	return fmt.Sprintf(`UPDATE %s SET %s = ?, %s = NULL WHERE %s`,
		schema.qualifiedTable(), quoteIdent(schema.Lock), quoteIdent(schema.Private), pkEquality(schema))
}

// cancelUpdateSQL clears one row's lock, but only if it is currently in
// a cancellable range. Positional parameters:
// (readyWatermark, readyWatermark, staleBoundary, staleBoundary, nowMillis, *primaryKeyValues).
func cancelUpdateSQL(schema Schema) string {
	lock := quoteIdent(schema.Lock)
	cancellable := fmt.Sprintf(
		`(%[1]s >= 0 AND %[1]s <= ?) OR (%[1]s > ? AND %[1]s < ?) OR (%[1]s >= ? AND %[1]s < ?)`,
		lock)
	return fmt.Sprintf(`UPDATE %s SET %s = NULL WHERE (%s) AND %s`,
		schema.qualifiedTable(), lock, cancellable, pkEquality(schema))
}

// lockValueSQL reads the raw lock value of one row, used by Cancel to
// classify a miss as not-found vs. in-progress after a failed
// cancelUpdateSQL. Positional parameters: (*primaryKeyValues).
func lockValueSQL(schema Schema) string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE %s`,
		quoteIdent(schema.Lock), schema.qualifiedTable(), pkEquality(schema))
}

// statusSQL computes the one-row state distribution. Positional
// parameters: (readyWatermark, readyWatermark, staleBoundary,
// staleBoundary, nowMillis, nowMillis).
func statusSQL(schema Schema) string {
	lock := quoteIdent(schema.Lock)
	return fmt.Sprintf(`SELECT
	COUNT(*) AS total,
	COUNT(*) FILTER (WHERE %[1]s = -1) AS abandoned,
	COUNT(*) FILTER (WHERE %[1]s >= 0 AND %[1]s <= ?) AS ready,
	COUNT(*) FILTER (WHERE %[1]s > ? AND %[1]s < ?) AS delayed,
	COUNT(*) FILTER (WHERE %[1]s >= ? AND %[1]s < ?) AS stale,
	COUNT(*) FILTER (WHERE %[1]s >= ?) AS in_progress
FROM %[2]s
WHERE %[1]s IS NOT NULL`, lock, schema.qualifiedTable())
}

// resetStaleSQL restores every row in the stale range back to the
// default ready lock value, clearing its private blob. Positional
// parameters: (newDefaultLock, staleBoundary, nowMillis).
func resetStaleSQL(schema Schema) string {
	lock := quoteIdent(schema.Lock)
	return fmt.Sprintf(`UPDATE %s SET %s = ?, %s = NULL WHERE %s >= ? AND %s < ?`,
		schema.qualifiedTable(), lock, quoteIdent(schema.Private), lock, lock)
}

// filterAbandonedSQL returns the primary keys of every abandoned row.
func filterAbandonedSQL(schema Schema) string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE %s = -1`,
		pkColumnList(schema), schema.qualifiedTable(), quoteIdent(schema.Lock))
}
