package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/metrics"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// Resolver maps a tenant id to the store of an active tenant. Every call reads the
// registry, so a tenant that leaves active is refused on its next request.
type Resolver struct {
	repo    Repository
	stores  StoreDescriber
	metrics *metrics.Provisioning
}

// NewResolver constructs a Resolver.
func NewResolver(repo Repository, stores StoreDescriber, m *metrics.Provisioning) *Resolver {
	if repo == nil {
		panic("tenants repo is required")
	}
	if stores == nil {
		panic("store describer is required")
	}
	return &Resolver{repo: repo, stores: stores, metrics: m}
}

// Resolve returns the store descriptor of an active tenant.
// Unknown ids fail with ErrNoSuchTenant, pending or failed tenants with ErrTenantNotActive.
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID) (tenant.StoreDescriptor, error) {
	c, err := r.repo.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.metrics.RecordResolution("unknown")
			return tenant.StoreDescriptor{}, ErrNoSuchTenant
		}
		r.metrics.RecordResolution("error")
		return tenant.StoreDescriptor{}, fmt.Errorf("resolve tenant %s: %w", tenantID, err)
	}

	if c.State != StateActive || c.StoreName == nil {
		r.metrics.RecordResolution("inactive")
		return tenant.StoreDescriptor{}, fmt.Errorf("%w: tenant %s is %s", ErrTenantNotActive, tenantID, c.State)
	}

	d := r.stores.Describe(c.ID, *c.StoreName)
	if !d.Valid() {
		r.metrics.RecordResolution("error")
		return tenant.StoreDescriptor{}, fmt.Errorf("resolve tenant %s: store %q has no valid descriptor", tenantID, *c.StoreName)
	}
	r.metrics.RecordResolution("ok")
	return d, nil
}

// Session resolves tenantID into a session suitable for tenant.WithSession.
func (r *Resolver) Session(ctx context.Context, tenantID uuid.UUID) (tenant.Session, error) {
	d, err := r.Resolve(ctx, tenantID)
	if err != nil {
		return tenant.Session{}, err
	}
	return tenant.Session{TenantID: tenantID, Descriptor: d}, nil
}
