package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// PostgresRepository implements the tenant repository on top of the shared CompanyStore.
type PostgresRepository struct {
	store *persistence.CompanyStore
}

// NewPostgresRepository constructs a repository backed by CompanyStore.
func NewPostgresRepository(store *persistence.CompanyStore) *PostgresRepository {
	if store == nil {
		panic("company store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	page, size := normalizePage(opts.Page, opts.PageSize)
	offset := (page - 1) * size

	var stateStr *string
	if opts.State != nil {
		s := string(*opts.State)
		stateStr = &s
	}

	rows, total, err := r.store.List(ctx, stateStr, size, offset)
	if err != nil {
		return service.ListResult{}, err
	}

	companies := make([]service.Company, 0, len(rows))
	for _, rec := range rows {
		c, err := toServiceCompany(rec)
		if err != nil {
			return service.ListResult{}, err
		}
		companies = append(companies, c)
	}

	totalPages := (total + size - 1) / size
	return service.ListResult{Companies: companies, Page: page, PageSize: size, TotalItems: total, TotalPages: totalPages}, nil
}

func (r *PostgresRepository) Create(ctx context.Context, c service.Company) (service.Company, error) {
	out, err := r.store.Insert(ctx, toRecord(c))
	if err != nil {
		return service.Company{}, mapStoreError(err)
	}
	return toServiceCompany(out)
}

func (r *PostgresRepository) MarkActive(ctx context.Context, id uuid.UUID, storeName string, at time.Time) (service.Company, error) {
	out, err := r.store.MarkActive(ctx, id, storeName, at)
	if err != nil {
		return service.Company{}, mapStoreError(err)
	}
	return toServiceCompany(out)
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id uuid.UUID, f service.Failure, at time.Time) (service.Company, error) {
	out, err := r.store.MarkFailed(ctx, id, f.Reason, f.StoreName, f.CleanupRequired, at)
	if err != nil {
		return service.Company{}, mapStoreError(err)
	}
	return toServiceCompany(out)
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Company, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return service.Company{}, mapStoreError(err)
	}
	return toServiceCompany(rec)
}

func (r *PostgresRepository) FindByName(ctx context.Context, normalizedName string) (service.Company, error) {
	rec, err := r.store.GetByName(ctx, normalizedName)
	if err != nil {
		return service.Company{}, mapStoreError(err)
	}
	return toServiceCompany(rec)
}

func toRecord(c service.Company) persistence.CompanyRecord {
	return persistence.CompanyRecord{
		CompanyID:       c.ID,
		Name:            c.Name,
		NormalizedName:  c.NormalizedName,
		AdminEmail:      c.AdminEmail,
		BillingPlan:     string(c.BillingPlan),
		Modules:         c.Modules,
		Submodules:      c.Submodules,
		State:           string(c.State),
		StoreName:       c.StoreName,
		CleanupRequired: c.CleanupRequired,
		LastError:       c.LastError,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func toServiceCompany(rec persistence.CompanyRecord) (service.Company, error) {
	state, ok := service.ParseState(rec.State)
	if !ok {
		return service.Company{}, fmt.Errorf("company %s has unknown state %q", rec.CompanyID, rec.State)
	}
	return service.Company{
		ID:              rec.CompanyID,
		Name:            rec.Name,
		NormalizedName:  rec.NormalizedName,
		AdminEmail:      rec.AdminEmail,
		BillingPlan:     service.BillingPlan(rec.BillingPlan),
		Modules:         rec.Modules,
		Submodules:      rec.Submodules,
		State:           state,
		StoreName:       rec.StoreName,
		CleanupRequired: rec.CleanupRequired,
		LastError:       rec.LastError,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}, nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return service.ErrNotFound
	case errors.Is(err, persistence.ErrNameTaken):
		return service.ErrConflictName
	case errors.Is(err, persistence.ErrNotPending):
		return service.ErrNotPending
	default:
		return err
	}
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
