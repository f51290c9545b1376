package logging

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

// WithLogger stores the provided logger on the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext retrieves the logger from context, if present.
func FromContext(ctx context.Context) (*zap.Logger, bool) {
	logger, ok := ctx.Value(ctxKey{}).(*zap.Logger)
	return logger, ok && logger != nil
}

// FromRequest pulls the request-scoped logger from the HTTP request when available, falling back to the provided default.
func FromRequest(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if logger, ok := FromContext(r.Context()); ok {
		return logger
	}
	return fallback
}

// Probe paths are logged at debug so health checks do not flood the sink.
var quietPaths = map[string]struct{}{
	"/healthz": {},
	"/readyz":  {},
	"/metrics": {},
}

// RequestLogger stores a request-scoped logger on the context and logs one completion entry per request.
// The entry level follows the response: 5xx error, 4xx warn, otherwise info.
func RequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			fields := []zap.Field{
				zap.String("http_method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if requestID := middleware.GetReqID(r.Context()); requestID != "" {
				fields = append(fields, zap.String("request_id", requestID))
			}
			logger := base.With(fields...)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(WithLogger(r.Context(), logger)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if ce := logger.Check(completionLevel(r.URL.Path, status), "request completed"); ce != nil {
				ce.Write(
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				)
			}
		})
	}
}

func completionLevel(path string, status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	}
	if _, ok := quietPaths[path]; ok {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}
