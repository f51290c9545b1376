package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// ErrNoSession is returned by the session helpers when ctx carries no tenant session.
var ErrNoSession = errors.New("no tenant session on context")

type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TenantDB runs transactions inside exactly one tenant store.
// Each transaction assumes the store role and pins search_path to the store schema.
// Both settings are SET LOCAL and end with the transaction, so pooled connections come back clean.
// The admin schema never appears on the tenant search_path.
type TenantDB struct {
	pool txBeginner
}

type TenantDBConfig struct {
	Pool *pgxpool.Pool
}

func NewTenantDB(cfg TenantDBConfig) *TenantDB {
	if cfg.Pool == nil {
		panic("TenantDB requires pool")
	}
	return &TenantDB{pool: cfg.Pool}
}

// WithTenant executes fn in a read-write transaction bound to the store described by d.
func (db *TenantDB) WithTenant(ctx context.Context, d tenant.StoreDescriptor, fn func(tx pgx.Tx) error) error {
	return db.scoped(ctx, d, pgx.TxOptions{}, fn)
}

// ReadTenant is WithTenant with a read-only transaction.
func (db *TenantDB) ReadTenant(ctx context.Context, d tenant.StoreDescriptor, fn func(tx pgx.Tx) error) error {
	return db.scoped(ctx, d, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

// WithSession runs fn against the tenant bound to ctx by the session middleware.
func (db *TenantDB) WithSession(ctx context.Context, fn func(tx pgx.Tx) error) error {
	session, ok := tenant.FromContext(ctx)
	if !ok {
		return ErrNoSession
	}
	return db.WithTenant(ctx, session.Descriptor, fn)
}

// SessionSchema reports the schema the session's connection actually resolves to.
// It is a cheap round trip proving that the tenant role and store are usable.
func (db *TenantDB) SessionSchema(ctx context.Context) (string, error) {
	session, ok := tenant.FromContext(ctx)
	if !ok {
		return "", ErrNoSession
	}
	var schema string
	err := db.ReadTenant(ctx, session.Descriptor, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT current_schema()`).Scan(&schema)
	})
	return schema, err
}

func (db *TenantDB) scoped(ctx context.Context, d tenant.StoreDescriptor, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	if strings.TrimSpace(d.RoleName) == "" {
		return fmt.Errorf("tenant role is required in tenant.StoreDescriptor")
	}
	if !tenant.IsStoreName(d.StoreName) {
		return fmt.Errorf("invalid tenant store name %q", d.StoreName)
	}

	tx, err := db.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err = tx.Exec(ctx, "SET LOCAL ROLE "+pgx.Identifier{d.RoleName}.Sanitize()); err != nil {
		return fmt.Errorf("set role %s: %w", d.RoleName, err)
	}
	if _, err = tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, pgx.Identifier{d.StoreName}.Sanitize()); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
