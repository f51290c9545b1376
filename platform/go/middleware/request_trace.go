package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/requesttrace"
)

// HeaderRequestID echoes the chi request id so callers can quote it when reporting a failed onboarding.
const HeaderRequestID = "X-Request-ID"

// RequestTrace records the caller as requesttrace.AuditInfo and stamps the actor onto the request logger.
// It must run after the JWT middleware.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := chimw.GetReqID(r.Context())
		if requestID != "" {
			w.Header().Set(HeaderRequestID, requestID)
		}

		audit := requesttrace.Anonymous(requestID)
		if creds, ok := platformauth.UserFromContext(r.Context()); ok && creds != nil {
			var err error
			if audit, err = requesttrace.FromCredentials(creds, requestID); err != nil {
				if logger := platformlogging.FromRequest(r, nil); logger != nil {
					logger.Warn("reject credentials without subject", zap.Error(err))
				}
				WriteProblem(w, Problem{Type: ProblemTypeUnauthorize, Title: "Unauthorized", Status: http.StatusUnauthorized, Detail: "credentials carry no user"})
				return
			}
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		if logger, ok := platformlogging.FromContext(ctx); ok {
			ctx = platformlogging.WithLogger(ctx, logger.With(audit.Fields()...))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
