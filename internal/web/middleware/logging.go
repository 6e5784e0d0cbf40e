package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	webcontext "github.com/conduit-lang/querykit/internal/web/context"
)

// RequestObserver records finished requests, e.g. as Prometheus metrics
type RequestObserver interface {
	ObserveRequest(route string, status int, elapsed time.Duration)
}

// LoggingConfig holds configuration for the logging middleware
type LoggingConfig struct {
	// Observer is optional
	Observer RequestObserver
	// SkipPaths are served without a log line; they are still observed
	SkipPaths []string
}

// Logging logs one line per request through the request-scoped logger
func Logging(config LoggingConfig) Middleware {
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			elapsed := time.Since(start)
			route := routePattern(r)
			if config.Observer != nil {
				config.Observer.ObserveRequest(route, rw.statusCode, elapsed)
			}
			if skip[r.URL.Path] {
				return
			}

			logger := webcontext.Logger(r.Context())
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", route),
				zap.Int("status", rw.statusCode),
				zap.Int("bytes", rw.bytesWritten),
				zap.Duration("elapsed", elapsed),
				zap.String("remote_addr", r.RemoteAddr),
			}
			switch {
			case rw.statusCode >= 500:
				logger.Error("request", fields...)
			case rw.statusCode >= 400:
				logger.Warn("request", fields...)
			default:
				logger.Info("request", fields...)
			}
		})
	}
}

// routePattern returns the matched chi route so metrics do not explode per resource id
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// responseWriter wraps http.ResponseWriter to capture status code and bytes written
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
	wroteHeader  bool
}

// WriteHeader captures the status code
func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
		rw.ResponseWriter.WriteHeader(statusCode)
	}
}

// Write captures bytes written
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}
