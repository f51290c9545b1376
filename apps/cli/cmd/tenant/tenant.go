package tenantcmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/apps/cli/cmd/common"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/provisioning"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/repo"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/notify"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/requesttrace"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// Command groups tenant onboarding and inspection.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant utilities (provision/get/resolve)",
	}

	cmd.AddCommand(provisionCommand(), getCommand(), resolveCommand())
	return cmd
}

type wiring struct {
	pool      *pgxpool.Pool
	logger    *zap.Logger
	repo      *repo.PostgresRepository
	allocator *provisioning.PostgresAllocator
}

func connect(ctx context.Context, db *common.DBFlags, maxTenants int) (*wiring, func(), error) {
	logger, err := db.Logger()
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	pool, err := db.Open(ctx)
	if err != nil {
		return nil, nil, err
	}
	store, err := persistence.NewCompanyStore(ctx, pool, db.Schema())
	if err != nil {
		persistence.ClosePool(pool)
		return nil, nil, fmt.Errorf("init company store: %w", err)
	}

	w := &wiring{
		pool:   pool,
		logger: logger,
		repo:   repo.NewPostgresRepository(store),
		allocator: provisioning.NewPostgresAllocator(provisioning.AllocatorConfig{
			Pool:       pool,
			MaxTenants: maxTenants,
			Logger:     logger.Named("allocator"),
		}),
	}
	return w, func() {
		persistence.ClosePool(pool)
		_ = logger.Sync()
	}, nil
}

func provisionCommand() *cobra.Command {
	var (
		db              common.DBFlags
		req             service.ProvisioningRequest
		plan            string
		stepwise        bool
		maxTenants      int
		allocateTimeout time.Duration
		schemaTimeout   time.Duration
	)

	c := &cobra.Command{
		Use:   "provision",
		Short: "Onboard a company: registry record, tenant store, baseline schema and seed data",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := requesttrace.IntoContext(cmd.Context(), requesttrace.System("cli-"+uuid.NewString()))

			w, closeFn, err := connect(ctx, &db, maxTenants)
			if err != nil {
				return err
			}
			defer closeFn()

			dispatcher := notify.NewDispatcher(notify.LogSink{Logger: w.logger.Named("notify")}, notify.DispatcherConfig{Buffer: 4}, w.logger)
			defer func() {
				drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = dispatcher.Close(drainCtx)
			}()

			tenantDB := persistence.NewTenantDB(persistence.TenantDBConfig{Pool: w.pool})
			svc := service.New(service.Deps{
				Repo:      w.repo,
				Allocator: w.allocator,
				Executor: provisioning.NewPostgresExecutor(provisioning.ExecutorConfig{
					DB:     tenantDB,
					Atomic: !stepwise,
					Logger: w.logger.Named("schema"),
				}),
				Notifier: dispatcher,
				Logger:   w.logger.Named("provisioning"),
			}, service.Config{AllocateTimeout: allocateTimeout, SchemaTimeout: schemaTimeout})

			req.BillingPlan = service.BillingPlan(plan)
			res := svc.Provision(ctx, req)
			if err := common.PrintJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Success {
				if res.Validation != nil {
					return res.Validation
				}
				return fmt.Errorf("provisioning failed (%s)", res.Kind)
			}
			return nil
		},
	}

	db.Bind(c)
	c.Flags().StringVar(&req.CompanyName, "company-name", "", "Company display name")
	c.Flags().StringVar(&req.AdminEmail, "admin-email", "", "Email of the initial tenant admin")
	c.Flags().StringVar(&plan, "plan", string(service.PlanFree), "Billing plan (Free, Standard, Professional, Enterprise)")
	c.Flags().StringSliceVar(&req.Modules, "module", nil, "Enabled module (repeatable)")
	c.Flags().StringSliceVar(&req.Submodules, "submodule", nil, "Enabled submodule as Module.Name (repeatable)")
	c.Flags().BoolVar(&stepwise, "stepwise", false, "Commit each schema statement separately")
	c.Flags().IntVar(&maxTenants, "max-tenants", 0, "Refuse allocation beyond this many tenant stores (0 = unlimited)")
	c.Flags().DurationVar(&allocateTimeout, "allocate-timeout", 30*time.Second, "Store allocation timeout")
	c.Flags().DurationVar(&schemaTimeout, "schema-timeout", 2*time.Minute, "Schema application timeout")

	_ = c.MarkFlagRequired("company-name")
	_ = c.MarkFlagRequired("admin-email")

	return c
}

func getCommand() *cobra.Command {
	var db common.DBFlags

	c := &cobra.Command{
		Use:   "get <tenant-id|company-name>",
		Short: "Print a tenant registry record",
		Long:  "Print a tenant registry record. A non-UUID argument is looked up by company name; the live tenant wins over failed attempts.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, closeFn, err := connect(cmd.Context(), &db, 0)
			if err != nil {
				return err
			}
			defer closeFn()

			var company service.Company
			if id, parseErr := uuid.Parse(args[0]); parseErr == nil {
				company, err = w.repo.Get(cmd.Context(), id)
			} else {
				company, err = w.repo.FindByName(cmd.Context(), tenant.NormalizeName(args[0]))
			}
			if errors.Is(err, service.ErrNotFound) {
				return fmt.Errorf("no tenant matches %q", args[0])
			}
			if err != nil {
				return err
			}
			return common.PrintJSON(cmd.OutOrStdout(), company)
		},
	}

	db.Bind(c)
	return c
}

func resolveCommand() *cobra.Command {
	var db common.DBFlags

	c := &cobra.Command{
		Use:   "resolve <tenant-id>",
		Short: "Resolve an active tenant to its store descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}

			w, closeFn, err := connect(cmd.Context(), &db, 0)
			if err != nil {
				return err
			}
			defer closeFn()

			d, err := service.NewResolver(w.repo, w.allocator, nil).Resolve(cmd.Context(), id)
			switch {
			case errors.Is(err, service.ErrNoSuchTenant):
				return fmt.Errorf("tenant %s does not exist", id)
			case errors.Is(err, service.ErrTenantNotActive):
				return fmt.Errorf("tenant %s is not active", id)
			case err != nil:
				return err
			}
			return common.PrintJSON(cmd.OutOrStdout(), d)
		},
	}

	db.Bind(c)
	return c
}
