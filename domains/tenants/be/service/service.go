package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	sqlassets "github.com/zenGate-Global/palmyra-tenancy/database"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/metrics"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// Errors returned by the service layer.
var (
	ErrNotFound = errors.New("tenant not found")
	// ErrConflictName is returned by Repository.Create when a pending or active tenant already uses the name.
	ErrConflictName = errors.New("company name already provisioned")
	// ErrNotPending is returned when a state transition targets a tenant that already left pending.
	ErrNotPending = errors.New("tenant is not pending")
	// ErrNoSuchTenant is returned by the resolver for unknown tenant ids.
	ErrNoSuchTenant = errors.New("no such tenant")
	// ErrTenantNotActive is returned by the resolver for pending or failed tenants.
	ErrTenantNotActive = errors.New("tenant is not active")
)

// State is the lifecycle state of a tenant record.
type State string

const (
	StatePending State = "pending"
	StateActive  State = "active"
	StateFailed  State = "failed"
)

// ParseState converts stored text to a State.
func ParseState(s string) (State, bool) {
	switch State(s) {
	case StatePending, StateActive, StateFailed:
		return State(s), true
	default:
		return "", false
	}
}

// BillingPlan is one of the canonical subscription tiers.
type BillingPlan string

const (
	PlanFree         BillingPlan = "Free"
	PlanStandard     BillingPlan = "Standard"
	PlanProfessional BillingPlan = "Professional"
	PlanEnterprise   BillingPlan = "Enterprise"
)

// Company is the tenant registry entry.
type Company struct {
	ID              uuid.UUID
	Name            string
	NormalizedName  string
	AdminEmail      string
	BillingPlan     BillingPlan
	Modules         []string
	Submodules      []string
	State           State
	StoreName       *string
	CleanupRequired bool
	LastError       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Failure describes how a pending tenant ended up failed.
type Failure struct {
	Reason string
	// StoreName is kept when a store may still exist and needs manual cleanup.
	StoreName       *string
	CleanupRequired bool
}

// ListOptions captures filters and pagination.
type ListOptions struct {
	Page     int
	PageSize int
	State    *State
}

// ListResult wraps paginated tenants.
type ListResult struct {
	Companies  []Company
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Repository abstracts the tenant registry.
// Create must reject a name already used by a pending or active tenant with ErrConflictName,
// atomically with respect to concurrent callers. Mark* only transition pending records.
type Repository interface {
	Create(ctx context.Context, c Company) (Company, error)
	MarkActive(ctx context.Context, id uuid.UUID, storeName string, at time.Time) (Company, error)
	MarkFailed(ctx context.Context, id uuid.UUID, f Failure, at time.Time) (Company, error)
	Get(ctx context.Context, id uuid.UUID) (Company, error)
	FindByName(ctx context.Context, normalizedName string) (Company, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
}

// Config tunes the provisioning flow.
type Config struct {
	AllocateTimeout time.Duration
	SchemaTimeout   time.Duration
	// CleanupTimeout bounds the deallocation attempted after a schema failure.
	CleanupTimeout time.Duration
	// BaselineScript is applied to every new tenant store before seeding.
	BaselineScript string
}

// DefaultConfig returns the timeouts used by the API server.
func DefaultConfig() Config {
	return Config{
		AllocateTimeout: 30 * time.Second,
		SchemaTimeout:   2 * time.Minute,
		CleanupTimeout:  30 * time.Second,
		BaselineScript:  sqlassets.BaselineSQL,
	}
}

// Deps are the collaborators of Service.
type Deps struct {
	Repo      Repository
	Allocator StoreAllocator
	Executor  SchemaExecutor
	Notifier  Notifier
	Metrics   *metrics.Provisioning
	Logger    *zap.Logger
	Now       func() time.Time
}

// Service provisions tenants and exposes the registry to operators.
type Service struct {
	repo      Repository
	allocator StoreAllocator
	executor  SchemaExecutor
	notifier  Notifier
	metrics   *metrics.Provisioning
	logger    *zap.Logger
	now       func() time.Time
	cfg       Config
	validator *requestValidator
}

// New constructs a Service with required dependencies.
func New(deps Deps, cfg Config) *Service {
	if deps.Repo == nil {
		panic("tenants repo is required")
	}
	if deps.Allocator == nil {
		panic("store allocator is required")
	}
	if deps.Executor == nil {
		panic("schema executor is required")
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	if cfg.AllocateTimeout <= 0 {
		cfg.AllocateTimeout = defaults.AllocateTimeout
	}
	if cfg.SchemaTimeout <= 0 {
		cfg.SchemaTimeout = defaults.SchemaTimeout
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = defaults.CleanupTimeout
	}
	if cfg.BaselineScript == "" {
		cfg.BaselineScript = defaults.BaselineScript
	}

	return &Service{
		repo:      deps.Repo,
		allocator: deps.Allocator,
		executor:  deps.Executor,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Now,
		cfg:       cfg,
		validator: newRequestValidator(),
	}
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Company, error) {
	return s.repo.Get(ctx, id)
}

// FindByName returns the tenant currently owning a company name.
func (s *Service) FindByName(ctx context.Context, name string) (Company, error) {
	return s.repo.FindByName(ctx, tenant.NormalizeName(name))
}

// List tenants with optional state filter.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	return s.repo.List(ctx, opts)
}
