package auth

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClaimsTenantID(t *testing.T) {
	testCases := []struct {
		name   string
		claims Claims
		want   string
	}{
		{name: "custom claim wins", claims: Claims{"tenantId": "t-custom", "firebase": map[string]any{"tenant": "t-fb"}}, want: "t-custom"},
		{name: "firebase tenant", claims: Claims{"firebase": map[string]any{"tenant": "t-fb"}}, want: "t-fb"},
		{name: "empty custom claim falls through", claims: Claims{"tenantId": "", "firebase": map[string]any{"tenant": "t-fb"}}, want: "t-fb"},
		{name: "none", claims: Claims{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.claims.tenantID()
			if tc.want == "" {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.Equal(t, tc.want, *got)
		})
	}
}

func TestDefaultCredentialExtractor(t *testing.T) {
	creds, err := DefaultCredentialExtractor(Claims{
		"user_id":        "op-1",
		"email":          "ops@palmyra.pro",
		"isAdmin":        true,
		"email_verified": true,
	})
	require.NoError(t, err)
	require.Equal(t, "op-1", creds.Id)
	require.True(t, creds.HasRole(RoleAdmin))
	require.False(t, creds.HasRole(RoleTenantMember))
	require.Nil(t, creds.Name)

	_, err = DefaultCredentialExtractor(Claims{"email": "ops@palmyra.pro"})
	require.Error(t, err)

	_, err = DefaultCredentialExtractor(nil)
	require.Error(t, err)
}

func TestCanonicalTenantExtractor(t *testing.T) {
	extract := CanonicalTenantExtractor(nil)

	creds, err := extract(Claims{"sub": "u1", "tenantId": "0B7F6A1E-0000-4000-8000-000000000001"})
	require.NoError(t, err)
	require.Equal(t, "0b7f6a1e-0000-4000-8000-000000000001", *creds.TenantID)
	require.True(t, creds.HasRole(RoleTenantMember))

	creds, err = extract(Claims{"sub": "u1", "tenantId": "acme"})
	require.NoError(t, err)
	require.Equal(t, "acme", *creds.TenantID)
}

func unsignedToken(t *testing.T, claims Claims) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return "e30." + base64.RawURLEncoding.EncodeToString(payload) + "."
}

func TestJWTMiddleware(t *testing.T) {
	var seen *UserCredentials
	handler := JWT(UnsignedTokenVerifier(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("anonymous requests pass through", func(t *testing.T) {
		seen = nil
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Nil(t, seen)
	})

	t.Run("lowercase scheme is accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "bearer "+unsignedToken(t, Claims{
			"sub":      "user-1",
			"tenantId": "0b7f6a1e-0000-4000-8000-000000000001",
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		require.Equal(t, "user-1", seen.Id)
		require.Equal(t, "0b7f6a1e-0000-4000-8000-000000000001", *seen.TenantID)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
	})

	t.Run("token without subject is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+unsignedToken(t, Claims{"email": "x@y.z"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid claims")
	})
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	admin := RequireRole(RoleAdmin)(ok)

	serve := func(creds *UserCredentials) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if creds != nil {
			req = req.WithContext(WithUser(req.Context(), creds))
		}
		rec := httptest.NewRecorder()
		admin.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusUnauthorized, serve(nil))
	require.Equal(t, http.StatusForbidden, serve(&UserCredentials{Id: "u"}))
	require.Equal(t, http.StatusOK, serve(&UserCredentials{Id: "u", IsAdmin: true}))

	unknown := RequireRole(Role("auditor"))(ok)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), &UserCredentials{Id: "u", IsAdmin: true}))
	rec := httptest.NewRecorder()
	unknown.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
