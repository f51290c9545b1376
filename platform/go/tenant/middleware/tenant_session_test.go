package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

var (
	errUnknown  = errors.New("unknown")
	errInactive = errors.New("inactive")
)

type stubResolver struct {
	sessions map[uuid.UUID]tenant.Session
	errs     map[uuid.UUID]error
	calls    int
}

func (s *stubResolver) Session(_ context.Context, id uuid.UUID) (tenant.Session, error) {
	s.calls++
	if err, ok := s.errs[id]; ok {
		return tenant.Session{}, err
	}
	if session, ok := s.sessions[id]; ok {
		return session, nil
	}
	return tenant.Session{}, errUnknown
}

func serve(t *testing.T, resolver Resolver, cfg Config, req *http.Request) (*httptest.ResponseRecorder, *tenant.Session) {
	t.Helper()
	var got *tenant.Session
	h := WithTenantSession(resolver, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := tenant.FromContext(r.Context())
		require.True(t, ok)
		got = &s
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, got
}

func TestWithTenantSession(t *testing.T) {
	active := uuid.New()
	pending := uuid.New()
	broken := uuid.New()
	store := tenant.BuildStoreName(active)

	resolver := &stubResolver{
		sessions: map[uuid.UUID]tenant.Session{active: {
			TenantID:   active,
			Descriptor: tenant.StoreDescriptor{TenantID: active, StoreName: store, RoleName: tenant.BuildRoleName(store)},
		}},
		errs: map[uuid.UUID]error{pending: errInactive, broken: errors.New("db down")},
	}
	cfg := Config{NoSuchTenant: errUnknown, NotActive: errInactive}

	withCreds := func(id string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/tenant/session", nil)
		return req.WithContext(platformauth.WithUser(req.Context(), &platformauth.UserCredentials{Id: "u1", TenantID: &id}))
	}

	t.Run("active tenant from credentials", func(t *testing.T) {
		rec, got := serve(t, resolver, cfg, withCreds(active.String()))
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, got)
		require.Equal(t, store, got.Descriptor.StoreName)
	})

	t.Run("missing tenant", func(t *testing.T) {
		rec, got := serve(t, resolver, cfg, httptest.NewRequest(http.MethodGet, "/tenant/session", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Nil(t, got)
	})

	t.Run("header ignored unless allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/tenant/session", nil)
		req.Header.Set(HeaderTenantID, active.String())
		rec, _ := serve(t, resolver, cfg, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		allowed := cfg
		allowed.AllowHeader = true
		rec, got := serve(t, resolver, allowed, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, active, got.TenantID)
	})

	t.Run("malformed id", func(t *testing.T) {
		rec, _ := serve(t, resolver, cfg, withCreds("acme"))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		rec, _ := serve(t, resolver, cfg, withCreds(uuid.NewString()))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("inactive tenant", func(t *testing.T) {
		rec, got := serve(t, resolver, cfg, withCreds(pending.String()))
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		require.Nil(t, got)
	})

	t.Run("resolver failure", func(t *testing.T) {
		rec, _ := serve(t, resolver, cfg, withCreds(broken.String()))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
