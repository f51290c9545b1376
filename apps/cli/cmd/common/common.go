// Package common holds flag sets and wiring shared by CLI commands.
package common

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// DBFlags locate the registry database.
type DBFlags struct {
	DatabaseURL string
	EnvKey      string
	AdminSchema string
	LogLevel    string
}

// Bind registers the flags on cmd. DATABASE_URL is used when --database-url is omitted.
func (f *DBFlags) Bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.DatabaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	cmd.Flags().StringVar(&f.EnvKey, "env-key", "dev", "Environment key (e.g. dev, stg, prod)")
	cmd.Flags().StringVar(&f.AdminSchema, "admin-schema", "", "Registry schema (defaults to <env-key>_tenancy_admin)")
	cmd.Flags().StringVar(&f.LogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

// Schema returns the registry schema selected by the flags.
func (f *DBFlags) Schema() string {
	if s := strings.TrimSpace(f.AdminSchema); s != "" {
		return s
	}
	return tenant.AdminSchemaName(f.EnvKey)
}

// Open connects to the database. Callers close the pool with persistence.ClosePool.
func (f *DBFlags) Open(ctx context.Context) (*pgxpool.Pool, error) {
	if strings.TrimSpace(f.DatabaseURL) == "" {
		return nil, fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: f.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("init pool: %w", err)
	}
	return pool, nil
}

// Logger builds the CLI logger.
func (f *DBFlags) Logger() (*zap.Logger, error) {
	return platformlogging.NewLogger(platformlogging.Config{Component: "cli", Level: f.LogLevel})
}

// PrintJSON writes v indented to w.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
