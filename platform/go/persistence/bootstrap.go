package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	sqlassets "github.com/zenGate-Global/palmyra-tenancy/database"
)

// BootstrapAdminSchema creates adminSchema when missing and applies the tenant registry DDL inside it.
// Concurrent callers (several api replicas starting at once) are serialized on a transaction-scoped
// advisory lock keyed by the schema name. Every statement is idempotent, so re-running is harmless.
func BootstrapAdminSchema(ctx context.Context, pool txBeginner, adminSchema string) error {
	if pool == nil {
		return fmt.Errorf("bootstrap admin schema: pool is required")
	}
	if adminSchema == "" {
		return fmt.Errorf("bootstrap admin schema: admin schema is required")
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, adminSchema); err != nil {
		return fmt.Errorf("lock admin schema %s: %w", adminSchema, err)
	}
	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{adminSchema}.Sanitize()); err != nil {
		return fmt.Errorf("create admin schema: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, adminSchema); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	for i, stmt := range SplitStatements(sqlassets.CompaniesSQL) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply registry statement %d: %w", i+1, err)
		}
	}

	return tx.Commit(ctx)
}
