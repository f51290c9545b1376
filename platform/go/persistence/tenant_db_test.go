package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// fakeTx satisfies pgx.Tx and records Exec statements invoked.
type fakeTx struct{ stmts []string }

func (f *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTx) Commit(ctx context.Context) error   { return nil }
func (f *fakeTx) Rollback(ctx context.Context) error { return nil }
func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (f *fakeTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return &pgconn.StatementDescription{}, errors.New("not implemented")
}
func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	return pgconn.CommandTag{}, nil
}
func (f *fakeTx) Conn() *pgx.Conn { return nil }

// fakePool returns a preconstructed transaction.
type fakePool struct {
	tx    *fakeTx
	begun int
	opts  []pgx.TxOptions
}

func (p *fakePool) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	p.begun++
	p.opts = append(p.opts, txOptions)
	return p.tx, nil
}

func testDescriptor() tenant.StoreDescriptor {
	id := uuid.New()
	store := tenant.BuildStoreName(id)
	return tenant.StoreDescriptor{TenantID: id, StoreName: store, RoleName: tenant.BuildRoleName(store)}
}

func TestTenantDBReadTenantIsReadOnly(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{}}
	db := &TenantDB{pool: pool}

	require.NoError(t, db.ReadTenant(context.Background(), testDescriptor(), func(tx pgx.Tx) error { return nil }))
	require.NoError(t, db.WithTenant(context.Background(), testDescriptor(), func(tx pgx.Tx) error { return nil }))
	require.Equal(t, pgx.ReadOnly, pool.opts[0].AccessMode)
	require.Empty(t, pool.opts[1].AccessMode)
}

func TestTenantDBPropagatesCallbackError(t *testing.T) {
	db := &TenantDB{pool: &fakePool{tx: &fakeTx{}}}
	boom := errors.New("boom")
	err := db.WithTenant(context.Background(), testDescriptor(), func(tx pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestBootstrapAdminSchemaLocksFirst(t *testing.T) {
	ftx := &fakeTx{}
	require.NoError(t, BootstrapAdminSchema(context.Background(), &fakePool{tx: ftx}, "dev_tenancy_admin"))

	require.Contains(t, ftx.stmts[0], "pg_advisory_xact_lock")
	require.Equal(t, `CREATE SCHEMA IF NOT EXISTS "dev_tenancy_admin"`, ftx.stmts[1])
	require.Contains(t, ftx.stmts[2], "set_config('search_path'")
	require.Greater(t, len(ftx.stmts), 3)

	require.Error(t, BootstrapAdminSchema(context.Background(), &fakePool{tx: ftx}, ""))
}

func TestPingWithRetry(t *testing.T) {
	calls := 0
	err := pingWithRetry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, 5, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	calls = 0
	err = pingWithRetry(context.Background(), func(context.Context) error {
		calls++
		return errors.New("connection refused")
	}, 2, time.Millisecond)
	require.EqualError(t, err, "connection refused")
	require.Equal(t, 2, calls)
}

func TestTenantDBWithTenantSetsRoleAndSearchPath(t *testing.T) {
	ftx := &fakeTx{}
	db := &TenantDB{pool: &fakePool{tx: ftx}}
	d := testDescriptor()
	store := d.StoreName

	err := db.WithTenant(context.Background(), d, func(tx pgx.Tx) error { return nil })
	require.NoError(t, err)
	require.Len(t, ftx.stmts, 2)
	require.Equal(t, `SET LOCAL ROLE "`+store+`_role"`, ftx.stmts[0])
	require.Contains(t, ftx.stmts[1], "set_config('search_path'")
}

func TestTenantDBWithTenantMissingRole(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{}}
	db := &TenantDB{pool: pool}
	err := db.WithTenant(context.Background(), tenant.StoreDescriptor{StoreName: tenant.BuildStoreName(uuid.New())}, func(tx pgx.Tx) error { return nil })
	require.Error(t, err)
	require.Contains(t, err.Error(), "tenant role is required")
	require.Zero(t, pool.begun)
}

func TestTenantDBWithTenantRejectsForeignStore(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{}}
	db := &TenantDB{pool: pool}
	err := db.WithTenant(context.Background(), tenant.StoreDescriptor{StoreName: "admin", RoleName: "admin_role"}, func(tx pgx.Tx) error { return nil })
	require.Error(t, err)
	require.Zero(t, pool.begun)
}

func TestTenantDBWithSessionRequiresSession(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{}}
	db := &TenantDB{pool: pool}

	err := db.WithSession(context.Background(), func(tx pgx.Tx) error { return nil })
	require.ErrorIs(t, err, ErrNoSession)
	_, err = db.SessionSchema(context.Background())
	require.ErrorIs(t, err, ErrNoSession)

	id := uuid.New()
	store := tenant.BuildStoreName(id)
	ctx := tenant.WithSession(context.Background(), tenant.Session{
		TenantID:   id,
		Descriptor: tenant.StoreDescriptor{TenantID: id, StoreName: store, RoleName: tenant.BuildRoleName(store)},
	})
	called := false
	require.NoError(t, db.WithSession(ctx, func(tx pgx.Tx) error { called = true; return nil }))
	require.True(t, called)
}
