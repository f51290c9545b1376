// Package pgtest starts throwaway PostgreSQL instances for integration tests.
package pgtest

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// AdminSchema is the registry schema used by integration tests.
const AdminSchema = "tenancy_admin"

// Pool returns a pool against TEST_DATABASE_URL when set, otherwise against a fresh
// postgres:16-alpine container. The admin schema is bootstrapped before returning.
// Tests are skipped in -short mode.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	connString := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if connString == "" {
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("palmyra"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
		)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = pgContainer.Terminate(context.Background())
		})

		connString, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: connString})
	require.NoError(t, err)
	t.Cleanup(func() { persistence.ClosePool(pool) })

	require.NoError(t, persistence.BootstrapAdminSchema(ctx, pool, AdminSchema))
	return pool
}
