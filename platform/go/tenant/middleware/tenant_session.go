package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	platformmiddleware "github.com/zenGate-Global/palmyra-tenancy/platform/go/middleware"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// HeaderTenantID carries the tenant id when header selection is enabled.
const HeaderTenantID = "X-Tenant-ID"

// Resolver binds a tenant id to its store for the current request.
// Implemented by the tenants service resolver.
type Resolver interface {
	Session(ctx context.Context, tenantID uuid.UUID) (tenant.Session, error)
}

// Config controls middleware behavior.
type Config struct {
	// AllowHeader accepts X-Tenant-ID when the credentials carry no tenant. Development only.
	AllowHeader bool
	// NoSuchTenant and NotActive are the resolver errors mapped to 404 and 403.
	NoSuchTenant error
	NotActive    error
}

// WithTenantSession resolves the caller's tenant and attaches a tenant.Session to the context.
// A request that cannot be bound to exactly one active tenant is rejected; there is no shared fallback.
func WithTenantSession(resolver Resolver, cfg Config) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := tenantIDFrom(r, cfg.AllowHeader)
			if raw == "" {
				reject(w, http.StatusUnauthorized, platformmiddleware.ProblemTypeUnauthorize, "Unauthorized", "tenant required")
				return
			}

			tid, err := uuid.Parse(raw)
			if err != nil {
				reject(w, http.StatusBadRequest, platformmiddleware.ProblemTypeValidation, "Invalid tenant", "invalid tenant id")
				return
			}

			session, err := resolver.Session(r.Context(), tid)
			switch {
			case err == nil:
			case cfg.NoSuchTenant != nil && errors.Is(err, cfg.NoSuchTenant):
				reject(w, http.StatusNotFound, platformmiddleware.ProblemTypeNotFound, "Not found", "tenant not found")
				return
			case cfg.NotActive != nil && errors.Is(err, cfg.NotActive):
				reject(w, http.StatusForbidden, platformmiddleware.ProblemTypeForbidden, "Forbidden", "tenant is not active")
				return
			default:
				if logger := platformlogging.FromRequest(r, nil); logger != nil {
					logger.Error("resolve tenant session", zap.String("tenant_id", tid.String()), zap.Error(err))
				}
				reject(w, http.StatusInternalServerError, platformmiddleware.ProblemTypeInternal, "Internal error", "internal error")
				return
			}

			ctx := tenant.WithSession(r.Context(), session)
			if logger, ok := platformlogging.FromContext(ctx); ok {
				ctx = platformlogging.WithLogger(ctx, logger.With(zap.String("tenant_id", tid.String())))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tenantIDFrom(r *http.Request, allowHeader bool) string {
	if creds, ok := platformauth.UserFromContext(r.Context()); ok && creds != nil && creds.TenantID != nil {
		if id := strings.TrimSpace(*creds.TenantID); id != "" {
			return id
		}
	}
	if allowHeader {
		return strings.TrimSpace(r.Header.Get(HeaderTenantID))
	}
	return ""
}

func reject(w http.ResponseWriter, status int, problemType, title, detail string) {
	platformmiddleware.WriteProblem(w, platformmiddleware.Problem{Type: problemType, Title: title, Status: status, Detail: detail})
}
