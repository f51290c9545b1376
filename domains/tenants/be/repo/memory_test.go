package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
)

func newCompany(name string, createdAt time.Time) service.Company {
	return service.Company{
		ID:             uuid.New(),
		Name:           name,
		NormalizedName: name,
		AdminEmail:     "admin@" + name + ".test",
		BillingPlan:    service.PlanFree,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

func TestMemoryRepositoryNameIsFreedByFailure(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now().UTC()

	first, err := r.Create(ctx, newCompany("testco", now))
	require.NoError(t, err)
	require.Equal(t, service.StatePending, first.State)

	_, err = r.Create(ctx, newCompany("testco", now))
	require.ErrorIs(t, err, service.ErrConflictName)

	_, err = r.MarkFailed(ctx, first.ID, service.Failure{Reason: "schema failed"}, now)
	require.NoError(t, err)

	found, err := r.FindByName(ctx, "testco")
	require.NoError(t, err)
	require.Equal(t, first.ID, found.ID)
	require.Equal(t, service.StateFailed, found.State)

	second, err := r.Create(ctx, newCompany("testco", now.Add(time.Second)))
	require.NoError(t, err)

	found, err = r.FindByName(ctx, "testco")
	require.NoError(t, err)
	require.Equal(t, second.ID, found.ID)

	_, err = r.MarkActive(ctx, first.ID, "tenant_x", now)
	require.ErrorIs(t, err, service.ErrNotPending)

	_, err = r.FindByName(ctx, "othercorp")
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	c := newCompany("acme", time.Now().UTC())
	c.Modules = []string{"Billing"}
	created, err := r.Create(ctx, c)
	require.NoError(t, err)

	created.Modules[0] = "Mutated"
	got, err := r.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"Billing"}, got.Modules)
}

func TestMemoryRepositoryList(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	base := time.Now().UTC()

	var ids []uuid.UUID
	for i, name := range []string{"a", "b", "c"} {
		c, err := r.Create(ctx, newCompany(name, base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	_, err := r.MarkActive(ctx, ids[1], "tenant_b", base)
	require.NoError(t, err)

	page, err := r.List(ctx, service.ListOptions{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, 3, page.TotalItems)
	require.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Companies, 1)
	require.Equal(t, ids[2], page.Companies[0].ID)

	active := service.StateActive
	page, err = r.List(ctx, service.ListOptions{State: &active})
	require.NoError(t, err)
	require.Len(t, page.Companies, 1)
	require.Equal(t, ids[1], page.Companies[0].ID)
	require.Equal(t, 20, page.PageSize)
}
