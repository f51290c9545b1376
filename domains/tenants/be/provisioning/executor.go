package provisioning

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// ExecutorConfig wires a PostgresExecutor.
type ExecutorConfig struct {
	DB *persistence.TenantDB
	// Atomic runs the whole script in one transaction. When false every statement commits
	// on its own and a failure reports how far the script got.
	Atomic bool
	Logger *zap.Logger
}

// PostgresExecutor applies SQL scripts inside a tenant store, as the tenant role.
type PostgresExecutor struct {
	db     *persistence.TenantDB
	atomic bool
	logger *zap.Logger
}

func NewPostgresExecutor(cfg ExecutorConfig) *PostgresExecutor {
	if cfg.DB == nil {
		panic("schema executor requires tenant db")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &PostgresExecutor{db: cfg.DB, atomic: cfg.Atomic, logger: cfg.Logger}
}

// ExecuteScript splits script into statements and runs them in order, stopping at the first failure.
// It does not retry.
func (e *PostgresExecutor) ExecuteScript(ctx context.Context, d tenant.StoreDescriptor, script string) error {
	if !d.Valid() || !tenant.IsStoreName(d.StoreName) {
		return fmt.Errorf("%w: invalid store descriptor for %q", service.ErrConnection, d.StoreName)
	}

	statements := persistence.SplitStatements(script)
	if len(statements) == 0 {
		return nil
	}

	logger := e.logger.With(zap.String("store_name", d.StoreName), zap.Int("statements", len(statements)), zap.Bool("atomic", e.atomic))
	var err error
	if e.atomic {
		err = e.runAtomic(ctx, d, statements)
	} else {
		err = e.runEach(ctx, d, statements)
	}
	if err != nil {
		logger.Warn("schema script failed", zap.Error(err))
		return err
	}
	logger.Debug("schema script applied")
	return nil
}

func (e *PostgresExecutor) runAtomic(ctx context.Context, d tenant.StoreDescriptor, statements []string) error {
	err := e.db.WithTenant(ctx, d, func(tx pgx.Tx) error {
		for i, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return &service.ScriptError{Index: i, Statement: stmt, Err: withTimeout(ctx, err)}
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}

	var scriptErr *service.ScriptError
	if errors.As(err, &scriptErr) {
		return scriptErr
	}
	return connectionError(ctx, err)
}

func (e *PostgresExecutor) runEach(ctx context.Context, d tenant.StoreDescriptor, statements []string) error {
	for i, stmt := range statements {
		err := e.db.WithTenant(ctx, d, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return &service.ScriptError{Index: i, Statement: stmt, Partial: i > 0, Err: withTimeout(ctx, err)}
			}
			return nil
		})
		if err == nil {
			continue
		}

		var scriptErr *service.ScriptError
		if errors.As(err, &scriptErr) {
			return scriptErr
		}
		if i == 0 {
			return connectionError(ctx, err)
		}
		// Earlier statements stay committed even though this one never ran.
		return &service.ScriptError{Index: i, Statement: stmt, Partial: true, Err: connectionError(ctx, err)}
	}
	return nil
}

func withTimeout(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", service.ErrTimeout, err)
	}
	return err
}

func connectionError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", service.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", service.ErrConnection, err)
}

var _ service.SchemaExecutor = (*PostgresExecutor)(nil)
