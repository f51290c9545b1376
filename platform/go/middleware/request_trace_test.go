package middleware

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/requesttrace"
)

func unsignedBearer(payload string) string {
	return "Bearer e30." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".sig"
}

func TestRequestTraceWithAuth(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(platformlogging.RequestLogger(zap.New(core)))
	r.Use(platformauth.JWT(platformauth.UnsignedTokenVerifier(), nil))
	r.Use(RequestTrace)

	r.Get("/admin/tenants", func(w http.ResponseWriter, req *http.Request) {
		audit, ok := requesttrace.FromContext(req.Context())
		require.True(t, ok)
		require.Equal(t, requesttrace.ActorKindUser, audit.ActorKind)
		require.Equal(t, "op-123", audit.Actor())
		require.True(t, audit.IsAdmin)

		logger, ok := platformlogging.FromContext(req.Context())
		require.True(t, ok)
		logger.Info("handled")
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/tenants", nil)
	req.Header.Set("Authorization", unsignedBearer(`{"sub":"op-123","isAdmin":true}`))

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.NotEmpty(t, resp.Header().Get(HeaderRequestID))

	handled := logs.FilterMessage("handled").All()
	require.Len(t, handled, 1)
	require.Equal(t, "op-123", handled[0].ContextMap()["actor_id"])
	require.Equal(t, "user", handled[0].ContextMap()["actor_kind"])
}

func TestRequestTraceAnonymous(t *testing.T) {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestTrace)

	r.Get("/tenant/session", func(w http.ResponseWriter, req *http.Request) {
		audit, ok := requesttrace.FromContext(req.Context())
		require.True(t, ok)
		require.Equal(t, requesttrace.ActorKindAnonymous, audit.ActorKind)
		require.Nil(t, audit.UserID)
		w.WriteHeader(http.StatusOK)
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/tenant/session", nil))

	require.Equal(t, http.StatusOK, resp.Code)
}

func TestRequestTraceRejectsCredentialsWithoutUser(t *testing.T) {
	h := RequestTrace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/tenants", nil)
	req = req.WithContext(platformauth.WithUser(req.Context(), &platformauth.UserCredentials{}))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	require.Equal(t, http.StatusUnauthorized, resp.Code)
	require.Equal(t, "application/problem+json", resp.Header().Get("Content-Type"))
}
