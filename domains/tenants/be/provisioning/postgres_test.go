package provisioning_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/provisioning"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/repo"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence/pgtest"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

func TestPostgresProvisioning(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	allocator := provisioning.NewPostgresAllocator(provisioning.AllocatorConfig{Pool: pool, Logger: logger})
	tenantDB := persistence.NewTenantDB(persistence.TenantDBConfig{Pool: pool})
	atomic := provisioning.NewPostgresExecutor(provisioning.ExecutorConfig{DB: tenantDB, Atomic: true, Logger: logger})
	stepwise := provisioning.NewPostgresExecutor(provisioning.ExecutorConfig{DB: tenantDB, Atomic: false, Logger: logger})

	tableExists := func(t *testing.T, store, table string) bool {
		t.Helper()
		var exists bool
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname = $1 AND tablename = $2)`, store, table).Scan(&exists))
		return exists
	}

	t.Run("allocate probe and deallocate", func(t *testing.T) {
		id := uuid.New()
		d, err := allocator.Allocate(ctx, id, tenant.BuildStoreName(id))
		require.NoError(t, err)
		require.Equal(t, tenant.BuildStoreName(id), d.StoreName)
		require.Equal(t, tenant.BuildRoleName(d.StoreName), d.RoleName)
		require.True(t, d.Valid())
		require.NotEmpty(t, d.Database)

		exists, err := allocator.Exists(ctx, d.StoreName)
		require.NoError(t, err)
		require.True(t, exists)

		_, err = allocator.Allocate(ctx, id, "")
		require.ErrorIs(t, err, service.ErrStoreExists)

		require.True(t, allocator.Deallocate(ctx, d))
		exists, err = allocator.Exists(ctx, d.StoreName)
		require.NoError(t, err)
		require.False(t, exists)
	})

	t.Run("desired name must match tenant", func(t *testing.T) {
		_, err := allocator.Allocate(ctx, uuid.New(), "tenant_custom")
		require.ErrorIs(t, err, service.ErrAllocation)
	})

	t.Run("deallocate is a no-op for a store never created", func(t *testing.T) {
		id := uuid.New()
		d := allocator.Describe(id, tenant.BuildStoreName(id))
		require.True(t, allocator.Deallocate(ctx, d))

		exists, err := allocator.Exists(ctx, d.StoreName)
		require.NoError(t, err)
		require.False(t, exists)
	})

	t.Run("deallocate twice", func(t *testing.T) {
		id := uuid.New()
		d, err := allocator.Allocate(ctx, id, "")
		require.NoError(t, err)

		require.True(t, allocator.Deallocate(ctx, d))
		require.True(t, allocator.Deallocate(ctx, d))

		exists, err := allocator.Exists(ctx, d.StoreName)
		require.NoError(t, err)
		require.False(t, exists)
	})

	t.Run("deallocate refuses foreign schemas", func(t *testing.T) {
		require.False(t, allocator.Deallocate(ctx, tenant.StoreDescriptor{TenantID: uuid.New(), StoreName: "public", RoleName: "postgres"}))
	})

	t.Run("quota", func(t *testing.T) {
		var count int
		require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM pg_namespace WHERE nspname ~ '^tenant_[0-9a-f]{32}$'`).Scan(&count))

		capped := provisioning.NewPostgresAllocator(provisioning.AllocatorConfig{Pool: pool, MaxTenants: count + 1, Logger: logger})
		first, err := capped.Allocate(ctx, uuid.New(), "")
		require.NoError(t, err)
		t.Cleanup(func() { allocator.Deallocate(context.Background(), first) })

		_, err = capped.Allocate(ctx, uuid.New(), "")
		require.ErrorIs(t, err, service.ErrQuotaExceeded)
	})

	t.Run("atomic script failure applies nothing", func(t *testing.T) {
		d, err := allocator.Allocate(ctx, uuid.New(), "")
		require.NoError(t, err)
		t.Cleanup(func() { allocator.Deallocate(context.Background(), d) })

		err = atomic.ExecuteScript(ctx, d, "CREATE TABLE first_step (id INT);\nSELECT * FROM no_such_table;")
		var scriptErr *service.ScriptError
		require.ErrorAs(t, err, &scriptErr)
		require.Equal(t, 1, scriptErr.Index)
		require.False(t, scriptErr.Partial)
		require.False(t, tableExists(t, d.StoreName, "first_step"))
	})

	t.Run("stepwise script failure reports partial application", func(t *testing.T) {
		d, err := allocator.Allocate(ctx, uuid.New(), "")
		require.NoError(t, err)
		t.Cleanup(func() { allocator.Deallocate(context.Background(), d) })

		err = stepwise.ExecuteScript(ctx, d, "CREATE TABLE first_step (id INT);\nSELECT * FROM no_such_table;")
		var scriptErr *service.ScriptError
		require.ErrorAs(t, err, &scriptErr)
		require.Equal(t, 1, scriptErr.Index)
		require.True(t, scriptErr.Partial)
		require.Contains(t, scriptErr.Error(), "partially applied")
		require.True(t, tableExists(t, d.StoreName, "first_step"))
	})

	t.Run("tenants cannot read each other", func(t *testing.T) {
		a, err := allocator.Allocate(ctx, uuid.New(), "")
		require.NoError(t, err)
		t.Cleanup(func() { allocator.Deallocate(context.Background(), a) })
		b, err := allocator.Allocate(ctx, uuid.New(), "")
		require.NoError(t, err)
		t.Cleanup(func() { allocator.Deallocate(context.Background(), b) })

		require.NoError(t, atomic.ExecuteScript(ctx, a, "CREATE TABLE secrets (v TEXT); INSERT INTO secrets VALUES ('a-only');"))
		require.True(t, tableExists(t, a.StoreName, "secrets"))

		err = tenantDB.WithTenant(ctx, b, func(tx pgx.Tx) error {
			var v string
			return tx.QueryRow(ctx, "SELECT v FROM "+pgx.Identifier{a.StoreName, "secrets"}.Sanitize()).Scan(&v)
		})
		require.Error(t, err)
	})

	t.Run("provision end to end", func(t *testing.T) {
		store, err := persistence.NewCompanyStore(ctx, pool, pgtest.AdminSchema)
		require.NoError(t, err)
		registry := repo.NewPostgresRepository(store)

		svc := service.New(service.Deps{
			Repo:      registry,
			Allocator: allocator,
			Executor:  atomic,
			Logger:    logger,
		}, service.Config{AllocateTimeout: 30 * time.Second, SchemaTimeout: time.Minute})
		resolver := service.NewResolver(registry, allocator, nil)

		name := "TestCo " + uuid.NewString()[:8]
		res := svc.Provision(ctx, service.ProvisioningRequest{
			CompanyName: name,
			AdminEmail:  "admin@testco.com",
			BillingPlan: service.PlanStandard,
			Modules:     []string{"Billing", "Inventory"},
			Submodules:  []string{"Inventory.Tracking"},
		})
		require.True(t, res.Success, "provision failed: %v", res.Error)
		require.Equal(t, tenant.BuildStoreName(*res.CompanyID), *res.TenantDBName)

		d, err := resolver.Resolve(ctx, *res.CompanyID)
		require.NoError(t, err)
		t.Cleanup(func() { allocator.Deallocate(context.Background(), d) })

		var modules, admins int
		require.NoError(t, tenantDB.WithTenant(ctx, d, func(tx pgx.Tx) error {
			if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM enabled_modules").Scan(&modules); err != nil {
				return err
			}
			return tx.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE is_admin AND email = 'admin@testco.com'").Scan(&admins)
		}))
		require.Equal(t, 3, modules)
		require.Equal(t, 1, admins)

		again := svc.Provision(ctx, service.ProvisioningRequest{
			CompanyName: name,
			AdminEmail:  "other@testco.com",
			BillingPlan: service.PlanFree,
		})
		require.False(t, again.Success)
		require.Equal(t, service.KindConflict, again.Kind)
	})

	t.Run("schema failure deallocates the store", func(t *testing.T) {
		store, err := persistence.NewCompanyStore(ctx, pool, pgtest.AdminSchema)
		require.NoError(t, err)
		registry := repo.NewPostgresRepository(store)

		svc := service.New(service.Deps{
			Repo:      registry,
			Allocator: allocator,
			Executor:  atomic,
			Logger:    logger,
		}, service.Config{BaselineScript: "CREATE TABLE ok_table (id INT); CREATE TABLE ok_table (id INT);"})

		res := svc.Provision(ctx, service.ProvisioningRequest{
			CompanyName: "Broken " + uuid.NewString()[:8],
			AdminEmail:  "admin@broken.com",
			BillingPlan: service.PlanFree,
		})
		require.False(t, res.Success)
		require.Equal(t, service.KindSchema, res.Kind)
		require.NotNil(t, res.RecordID)

		exists, err := allocator.Exists(ctx, tenant.BuildStoreName(*res.RecordID))
		require.NoError(t, err)
		require.False(t, exists)

		rec, err := registry.Get(ctx, *res.RecordID)
		require.NoError(t, err)
		require.Equal(t, service.StateFailed, rec.State)
		require.False(t, rec.CleanupRequired)
	})
}
