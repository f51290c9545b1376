package provisioning

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

const (
	pgDuplicateSchema   = "42P06"
	pgDuplicateObject   = "42710"
	pgUniqueViolation   = "23505"
	pgInsufficientPriv  = "42501"
	storeExistsQuery    = `SELECT EXISTS (SELECT 1 FROM pg_namespace WHERE nspname = $1) OR EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $2)`
	tenantStoreCountSQL = `SELECT COUNT(*) FROM pg_namespace WHERE nspname ~ '^tenant_[0-9a-f]{32}$'`
)

// AllocatorConfig wires a PostgresAllocator.
type AllocatorConfig struct {
	Pool *pgxpool.Pool
	// MaxTenants caps the number of tenant stores in the database; 0 disables the cap.
	MaxTenants int
	Logger     *zap.Logger
}

// PostgresAllocator creates one schema plus one NOLOGIN role per tenant. The application user
// is granted the role so that data access can assume it with SET LOCAL ROLE.
type PostgresAllocator struct {
	pool       *pgxpool.Pool
	conn       persistence.ConnInfo
	maxTenants int
	logger     *zap.Logger
}

func NewPostgresAllocator(cfg AllocatorConfig) *PostgresAllocator {
	if cfg.Pool == nil {
		panic("store allocator requires pool")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &PostgresAllocator{
		pool:       cfg.Pool,
		conn:       persistence.PoolConnInfo(cfg.Pool),
		maxTenants: cfg.MaxTenants,
		logger:     cfg.Logger,
	}
}

// Allocate creates the store for tenantID. desiredName may be empty; otherwise it must equal
// the derived store name. The existence probe, quota check and DDL share one transaction.
func (a *PostgresAllocator) Allocate(ctx context.Context, tenantID uuid.UUID, desiredName string) (tenant.StoreDescriptor, error) {
	if tenantID == uuid.Nil {
		return tenant.StoreDescriptor{}, fmt.Errorf("%w: tenant id is required", service.ErrAllocation)
	}
	storeName := tenant.BuildStoreName(tenantID)
	if desiredName != "" && desiredName != storeName {
		return tenant.StoreDescriptor{}, fmt.Errorf("%w: store name %q does not belong to tenant %s", service.ErrAllocation, desiredName, tenantID)
	}
	roleName := tenant.BuildRoleName(storeName)

	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return tenant.StoreDescriptor{}, fmt.Errorf("%w: acquire conn: %w", service.ErrAllocation, err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return tenant.StoreDescriptor{}, fmt.Errorf("%w: begin tx: %w", service.ErrAllocation, err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var exists bool
	if err := tx.QueryRow(ctx, storeExistsQuery, storeName, roleName).Scan(&exists); err != nil {
		return tenant.StoreDescriptor{}, fmt.Errorf("%w: probe store: %w", service.ErrAllocation, err)
	}
	if exists {
		return tenant.StoreDescriptor{}, fmt.Errorf("%w: %s", service.ErrStoreExists, storeName)
	}

	if a.maxTenants > 0 {
		var count int
		if err := tx.QueryRow(ctx, tenantStoreCountSQL).Scan(&count); err != nil {
			return tenant.StoreDescriptor{}, fmt.Errorf("%w: count stores: %w", service.ErrAllocation, err)
		}
		if count >= a.maxTenants {
			return tenant.StoreDescriptor{}, fmt.Errorf("%w: %d of %d stores in use", service.ErrQuotaExceeded, count, a.maxTenants)
		}
	}

	role := pgx.Identifier{roleName}.Sanitize()
	schema := pgx.Identifier{storeName}.Sanitize()
	ddl := []string{
		fmt.Sprintf("CREATE ROLE %s NOLOGIN", role),
		// The application user must be able to assume the tenant role in TenantDB.WithTenant.
		fmt.Sprintf("GRANT %s TO CURRENT_USER", role),
		fmt.Sprintf("CREATE SCHEMA %s AUTHORIZATION %s", schema, role),
		fmt.Sprintf("REVOKE ALL ON SCHEMA %s FROM PUBLIC", schema),
	}
	for _, stmt := range ddl {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return tenant.StoreDescriptor{}, mapAllocationError(storeName, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return tenant.StoreDescriptor{}, mapAllocationError(storeName, err)
	}

	a.logger.Info("tenant store allocated", zap.String("tenant_id", tenantID.String()), zap.String("store_name", storeName))
	return a.Describe(tenantID, storeName), nil
}

// Exists reports whether the schema or the role of the store is present.
func (a *PostgresAllocator) Exists(ctx context.Context, storeName string) (bool, error) {
	var exists bool
	if err := a.pool.QueryRow(ctx, storeExistsQuery, storeName, tenant.BuildRoleName(storeName)).Scan(&exists); err != nil {
		return false, fmt.Errorf("probe store %s: %w", storeName, err)
	}
	return exists, nil
}

// Deallocate drops the schema with everything in it and the tenant role.
// Failures are logged and reported as false; it never returns an error.
func (a *PostgresAllocator) Deallocate(ctx context.Context, d tenant.StoreDescriptor) bool {
	logger := a.logger.With(zap.String("store_name", d.StoreName))

	if !tenant.IsStoreName(d.StoreName) {
		logger.Error("refusing to deallocate a store that is not a tenant store")
		return false
	}
	roleName := tenant.BuildRoleName(d.StoreName)
	if d.RoleName != "" && d.RoleName != roleName {
		logger.Error("refusing to deallocate, role does not match store", zap.String("role_name", d.RoleName))
		return false
	}

	err := func() error {
		tx, err := a.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx) // nolint:errcheck

		if _, err := tx.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pgx.Identifier{d.StoreName}.Sanitize())); err != nil {
			return fmt.Errorf("drop schema: %w", err)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf("DROP ROLE IF EXISTS %s", pgx.Identifier{roleName}.Sanitize())); err != nil {
			return fmt.Errorf("drop role: %w", err)
		}
		return tx.Commit(ctx)
	}()
	if err != nil {
		logger.Error("tenant store deallocation failed", zap.Error(err))
		return false
	}

	logger.Info("tenant store deallocated")
	return true
}

// Describe builds the descriptor of an allocated store from the pool target.
func (a *PostgresAllocator) Describe(tenantID uuid.UUID, storeName string) tenant.StoreDescriptor {
	return tenant.StoreDescriptor{
		TenantID:  tenantID,
		StoreName: storeName,
		RoleName:  tenant.BuildRoleName(storeName),
		Host:      a.conn.Host,
		Port:      a.conn.Port,
		Database:  a.conn.Database,
	}
}

// mapAllocationError turns duplicate-object errors raised by a concurrent allocation into ErrStoreExists.
func mapAllocationError(storeName string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgDuplicateSchema, pgDuplicateObject, pgUniqueViolation:
			return fmt.Errorf("%w: %s: %s", service.ErrStoreExists, storeName, pgErr.Message)
		case pgInsufficientPriv:
			return fmt.Errorf("%w: insufficient privilege: %s", service.ErrAllocation, pgErr.Message)
		}
	}
	return fmt.Errorf("%w: %w", service.ErrAllocation, err)
}

var _ service.StoreAllocator = (*PostgresAllocator)(nil)
