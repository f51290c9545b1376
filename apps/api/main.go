package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/contracts"
	tenantshandler "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/handler"
	tenantsprov "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/provisioning"
	tenantsrepo "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/repo"
	tenantsservice "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/metrics"
	platformmiddleware "github.com/zenGate-Global/palmyra-tenancy/platform/go/middleware"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/notify"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/sysprobe"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
	tenantmiddleware "github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant/middleware"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// Provisioning runs inside the request, so this must exceed ALLOCATE_TIMEOUT + SCHEMA_TIMEOUT.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"3m"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL    string        `env:"DATABASE_URL,required"`
	DBMaxConns     int32         `env:"DB_MAX_CONNS" envDefault:"0"`
	EnvKey         string        `env:"ENV_KEY" envDefault:"dev"`
	AdminSchema    string        `env:"ADMIN_SCHEMA"` // defaults to <ENV_KEY>_tenancy_admin
	BootstrapOnRun bool          `env:"BOOTSTRAP_ON_START" envDefault:"true"`

	AuthProvider        string   `env:"AUTH_PROVIDER" envDefault:"firebase"` // firebase | dev
	FirebaseProjectID   string   `env:"FIREBASE_PROJECT_ID"`
	FirebaseCredentials string   `env:"FIREBASE_CREDENTIALS_FILE"`
	AllowTenantHeader   bool     `env:"ALLOW_TENANT_HEADER" envDefault:"false"`
	CORSOrigins         []string `env:"CORS_ORIGINS" envSeparator:","`

	AllocateTimeout time.Duration `env:"ALLOCATE_TIMEOUT" envDefault:"30s"`
	SchemaTimeout   time.Duration `env:"SCHEMA_TIMEOUT" envDefault:"2m"`
	CleanupTimeout  time.Duration `env:"CLEANUP_TIMEOUT" envDefault:"30s"`
	SchemaAtomic    bool          `env:"SCHEMA_ATOMIC" envDefault:"true"`
	MaxTenants      int           `env:"MAX_TENANTS" envDefault:"0"`

	NotifyBackend string        `env:"NOTIFY_BACKEND" envDefault:"log"` // log | redis
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	NotifyChannel string        `env:"NOTIFY_CHANNEL" envDefault:"palmyra:tenants:provisioned"`
	NotifyHistory int           `env:"NOTIFY_HISTORY" envDefault:"100"`
	NotifyBuffer  int           `env:"NOTIFY_BUFFER" envDefault:"256"`
	NotifyTimeout time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`
	MetricsPrefix string        `env:"METRICS_PREFIX" envDefault:"palmyra"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	adminSchema := cfg.AdminSchema
	if adminSchema == "" {
		adminSchema = tenant.AdminSchemaName(cfg.EnvKey)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
		EnvKey:    cfg.EnvKey,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if cfg.BootstrapOnRun {
		if err := persistence.BootstrapAdminSchema(ctx, pool, adminSchema); err != nil {
			logger.Fatal("bootstrap admin schema", zap.String("schema", adminSchema), zap.Error(err))
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	provMetrics := metrics.NewProvisioning(registry, cfg.MetricsPrefix)
	httpMetrics := metrics.NewHTTP(registry, cfg.MetricsPrefix)

	sink, closeSink := buildNotificationSink(cfg, logger)
	defer closeSink()
	dispatcher := notify.NewDispatcher(sink, notify.DispatcherConfig{
		Buffer:      cfg.NotifyBuffer,
		SendTimeout: cfg.NotifyTimeout,
		Metrics:     provMetrics,
	}, logger.Named("notify"))
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := dispatcher.Close(drainCtx); err != nil {
			logger.Warn("notification queue not drained", zap.Error(err))
		}
	}()

	companyStore, err := persistence.NewCompanyStore(ctx, pool, adminSchema)
	if err != nil {
		logger.Fatal("init company store", zap.Error(err))
	}
	tenantRepo := tenantsrepo.NewPostgresRepository(companyStore)

	allocator := tenantsprov.NewPostgresAllocator(tenantsprov.AllocatorConfig{
		Pool:       pool,
		MaxTenants: cfg.MaxTenants,
		Logger:     logger.Named("allocator"),
	})
	tenantDB := persistence.NewTenantDB(persistence.TenantDBConfig{Pool: pool})
	executor := tenantsprov.NewPostgresExecutor(tenantsprov.ExecutorConfig{
		DB:     tenantDB,
		Atomic: cfg.SchemaAtomic,
		Logger: logger.Named("schema"),
	})

	tenantService := tenantsservice.New(tenantsservice.Deps{
		Repo:      tenantRepo,
		Allocator: allocator,
		Executor:  executor,
		Notifier:  dispatcher,
		Metrics:   provMetrics,
		Logger:    logger.Named("provisioning"),
	}, tenantsservice.Config{
		AllocateTimeout: cfg.AllocateTimeout,
		SchemaTimeout:   cfg.SchemaTimeout,
		CleanupTimeout:  cfg.CleanupTimeout,
	})
	resolver := tenantsservice.NewResolver(tenantRepo, allocator, provMetrics)
	tenantHTTPHandler := tenantshandler.New(tenantService, logger, tenantshandler.WithStoreProbe(tenantDB))

	authMiddleware := buildAuthMiddleware(ctx, cfg, logger)

	tenantsDoc, err := contracts.Tenants()
	if err != nil {
		logger.Fatal("load tenants contract", zap.Error(err))
	}
	logSecuritySchemes(logger, "tenants", tenantsDoc)
	tenantsValidator := platformmiddleware.SpecValidator(tenantsDoc, tenantshandler.ProvisionRejection)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.CORS(platformmiddleware.CORSConfig{AllowedOrigins: cfg.CORSOrigins}),
		httpMetrics.Middleware,
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			platformlogging.FromRequest(r, logger).Warn("readiness check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Method(http.MethodGet, "/metrics", metrics.Handler(registry))

	// ---- Swagger UI + OpenAPI JSON (public) ----
	registerDocsRoutes(rootRouter, logger)

	apiRouter := chi.NewRouter()
	apiRouter.Use(authMiddleware)
	apiRouter.Use(platformmiddleware.RequestTrace)

	probe := sysprobe.New()
	apiRouter.Group(func(r chi.Router) {
		r.Use(platformauth.RequireRole(platformauth.RoleAdmin))
		r.Use(tenantsValidator)
		tenantHTTPHandler.AdminRoutes(r)
		r.Get("/admin/system/resources", sysprobe.Handler(probe, logger))
	})

	apiRouter.Group(func(r chi.Router) {
		r.Use(tenantsValidator)
		r.Use(tenantmiddleware.WithTenantSession(resolver, tenantmiddleware.Config{
			AllowHeader:  cfg.AllowTenantHeader,
			NoSuchTenant: tenantsservice.ErrNoSuchTenant,
			NotActive:    tenantsservice.ErrTenantNotActive,
		}))
		tenantHTTPHandler.TenantRoutes(r)
	})

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server",
			zap.String("port", cfg.Port),
			zap.String("admin_schema", adminSchema),
			zap.String("notify_backend", cfg.NotifyBackend),
			zap.Bool("schema_atomic", cfg.SchemaAtomic),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildNotificationSink returns the configured sink and a func releasing its resources.
func buildNotificationSink(cfg config, logger *zap.Logger) (notify.Sink, func()) {
	switch cfg.NotifyBackend {
	case "log":
		return notify.LogSink{Logger: logger.Named("notify")}, func() {}
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		sink, err := notify.NewRedisSink(client, cfg.NotifyChannel, cfg.NotifyHistory)
		if err != nil {
			logger.Fatal("init redis notification sink", zap.Error(err))
		}
		return sink, func() { _ = client.Close() }
	default:
		logger.Fatal("invalid NOTIFY_BACKEND (use log or redis)", zap.String("backend", cfg.NotifyBackend))
		return nil, nil
	}
}
