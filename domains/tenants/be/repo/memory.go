package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and early development.
// It mirrors the registry constraints: one pending or active tenant per normalized name,
// and state transitions only out of pending.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]service.Company
	live map[string]uuid.UUID
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[uuid.UUID]service.Company), live: make(map[string]uuid.UUID)}
}

func (r *MemoryRepository) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]service.Company, 0, len(r.byID))
	for _, c := range r.byID {
		if opts.State != nil && c.State != *opts.State {
			continue
		}
		items = append(items, clone(c))
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID.String() < items[j].ID.String()
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	page, pageSize := normalizePage(opts.Page, opts.PageSize)

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}

	return service.ListResult{
		Companies:  items[start:end],
		Page:       page,
		PageSize:   pageSize,
		TotalItems: len(items),
		TotalPages: (len(items) + pageSize - 1) / pageSize,
	}, nil
}

func (r *MemoryRepository) Create(ctx context.Context, c service.Company) (service.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.live[c.NormalizedName]; exists {
		return service.Company{}, service.ErrConflictName
	}

	c.State = service.StatePending
	r.byID[c.ID] = clone(c)
	r.live[c.NormalizedName] = c.ID
	return clone(c), nil
}

func (r *MemoryRepository) MarkActive(ctx context.Context, id uuid.UUID, storeName string, at time.Time) (service.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.pending(id)
	if err != nil {
		return service.Company{}, err
	}
	c.State = service.StateActive
	c.StoreName = &storeName
	c.LastError = nil
	c.UpdatedAt = at
	r.byID[id] = c
	return clone(c), nil
}

func (r *MemoryRepository) MarkFailed(ctx context.Context, id uuid.UUID, f service.Failure, at time.Time) (service.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.pending(id)
	if err != nil {
		return service.Company{}, err
	}
	reason := f.Reason
	c.State = service.StateFailed
	c.LastError = &reason
	c.StoreName = f.StoreName
	c.CleanupRequired = f.CleanupRequired
	c.UpdatedAt = at
	r.byID[id] = c
	delete(r.live, c.NormalizedName)
	return clone(c), nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (service.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return service.Company{}, service.ErrNotFound
	}
	return clone(c), nil
}

// FindByName prefers the live tenant and falls back to the most recent failed attempt.
func (r *MemoryRepository) FindByName(ctx context.Context, normalizedName string) (service.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.live[normalizedName]; ok {
		return clone(r.byID[id]), nil
	}

	var (
		latest service.Company
		found  bool
	)
	for _, c := range r.byID {
		if c.NormalizedName != normalizedName {
			continue
		}
		if !found || c.CreatedAt.After(latest.CreatedAt) {
			latest, found = c, true
		}
	}
	if !found {
		return service.Company{}, service.ErrNotFound
	}
	return clone(latest), nil
}

// pending must be called with the write lock held.
func (r *MemoryRepository) pending(id uuid.UUID) (service.Company, error) {
	c, ok := r.byID[id]
	if !ok {
		return service.Company{}, service.ErrNotFound
	}
	if c.State != service.StatePending {
		return service.Company{}, service.ErrNotPending
	}
	return c, nil
}

func clone(c service.Company) service.Company {
	c.Modules = append([]string(nil), c.Modules...)
	c.Submodules = append([]string(nil), c.Submodules...)
	if c.StoreName != nil {
		s := *c.StoreName
		c.StoreName = &s
	}
	if c.LastError != nil {
		s := *c.LastError
		c.LastError = &s
	}
	return c
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}
	return page, pageSize
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
