package sqlsource

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/ectopq/ectopq/dialect"
	"github.com/ectopq/ectopq/internal/locksm"
)

// Migrate adds the two queue-owned columns and the mandatory lock index
// to an already-existing table. It is the only piece of migration
// tooling this package provides; everything else about bringing the
// business table into existence is the application's concern.
//
// Migrate is idempotent: it uses IF NOT EXISTS / dialect equivalents so
// re-running it against an already-migrated table is a no-op.
func Migrate(ctx context.Context, db *bun.DB, d dialect.Dialect, schema Schema) error {
	table := schema.qualifiedTable()
	lock := quoteIdent(schema.Lock)
	private := quoteIdent(schema.Private)
	indexName := quoteIdent(fmt.Sprintf("idx_%s_%s", schema.Table, schema.Lock))

	stmts := []string{
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s DEFAULT (%s)`,
			table, lock, d.IntegerType(), readyWatermarkExpr(d)),
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s`,
			table, private, blobType(d)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s)`,
			indexName, table, lock),
	}

	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.NewRaw(stmt).Exec(ctx); err != nil {
				return fmt.Errorf("sqlsource: migrate: %w", err)
			}
		}
		return nil
	})
}

func blobType(d dialect.Dialect) string {
	switch d.Name() {
	case "postgres", "cockroachdb":
		return "bytea"
	default:
		return "blob"
	}
}

// readyWatermarkExpr renders a DEFAULT expression that evaluates a ready
// watermark (now minus far-in-the-past, in milliseconds) at insert time,
// so a freshly inserted row is immediately Ready without a separate
// application-side write.
func readyWatermarkExpr(d dialect.Dialect) string {
	millis := locksm.FarInThePastMillis()
	switch d.Name() {
	case "postgres", "cockroachdb":
		return fmt.Sprintf("(EXTRACT(EPOCH FROM now()) * 1000)::bigint - %d", millis)
	default:
		return fmt.Sprintf("(CAST(strftime('%%s', 'now') AS INTEGER) * 1000) - %d", millis)
	}
}
