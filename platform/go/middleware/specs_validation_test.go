package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-tenancy/contracts"
)

func newValidatedRouter(t *testing.T, renderers ...RejectionRenderer) http.Handler {
	t.Helper()
	doc, err := contracts.Tenants()
	require.NoError(t, err)

	api := chi.NewRouter()
	api.Use(SpecValidator(doc, renderers...))
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }
	api.Post("/admin/tenants", ok)
	api.Get("/tenant/session", ok)

	root := chi.NewRouter()
	root.Mount("/api/v1", api)
	return root
}

func TestSpecValidatorAcceptsValidRequest(t *testing.T) {
	body := `{"companyName":"TestCo","adminEmail":"admin@testco.com","billingPlan":"Standard","modules":["Billing"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/tenants", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer token")

	rec := httptest.NewRecorder()
	newValidatedRouter(t).ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSpecValidatorRejectsUnknownPlan(t *testing.T) {
	body := `{"companyName":"TestCo","adminEmail":"admin@testco.com","billingPlan":"Gold"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/tenants", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer token")

	rec := httptest.NewRecorder()
	newValidatedRouter(t).ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var p Problem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	require.Equal(t, ProblemTypeValidation, p.Type)
}

func TestSpecValidatorRequiresBearer(t *testing.T) {
	body := `{"companyName":"TestCo","adminEmail":"admin@testco.com","billingPlan":"Free"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/tenants", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	newValidatedRouter(t).ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSpecValidatorAllowsAnonymousSession(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenant/session", nil)
	req.Header.Set("X-Tenant-ID", "0b4a8b4e-5d3f-4c39-9e37-2d1f7cbd2f10")

	rec := httptest.NewRecorder()
	newValidatedRouter(t).ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSpecValidatorRejectionRenderer(t *testing.T) {
	var seenPath string
	renderer := func(w http.ResponseWriter, r *http.Request, message string, status int) bool {
		if r.Method != http.MethodPost {
			return false
		}
		seenPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
		return true
	}
	router := newValidatedRouter(t, renderer)

	body := `{"companyName":"TestCo","adminEmail":"admin@testco.com","billingPlan":"Gold"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/tenants", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "/api/v1/admin/tenants", seenPath)
	var got map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Equal(t, false, got["success"])
	require.NotEmpty(t, got["error"])

	// Declined rejections fall back to problem details.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/tenants?page=0", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	// Accepted requests reach the handler with the caller's writer.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/tenants",
		strings.NewReader(`{"companyName":"TestCo","adminEmail":"admin@testco.com","billingPlan":"Free"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
