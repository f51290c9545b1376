package middleware

import (
	"net/http"
	"strings"
)

// CORSConfig lists what browsers may send. Empty AllowedOrigins allows any origin.
type CORSConfig struct {
	AllowedOrigins []string
}

var corsAllowHeaders = strings.Join([]string{"Authorization", "Content-Type", "Idempotency-Key", "X-Tenant-ID"}, ",")

// DefaultCORS allows any origin.
func DefaultCORS() func(http.Handler) http.Handler {
	return CORS(CORSConfig{})
}

// CORS answers preflight requests and sets the allow headers for the tenancy API.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case len(allowed) == 0:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "":
				if _, ok := allowed[origin]; ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
			w.Header().Set("Access-Control-Expose-Headers", "Location,"+HeaderRequestID)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
