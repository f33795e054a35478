package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/sqlpilot/internal/observability"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request and stores a request-scoped
// logger in the context.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			reqLogger := logger.With(zap.String("request_id", GetRequestIDFromContext(r.Context())))
			ctx := observability.WithLogger(r.Context(), reqLogger)

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			}
			if status >= http.StatusInternalServerError {
				reqLogger.Warn("request completed", fields...)
				return
			}
			reqLogger.Info("request completed", fields...)
		})
	}
}
