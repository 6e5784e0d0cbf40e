package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	webcontext "github.com/conduit-lang/querykit/internal/web/context"
)

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request an ID, taken from the incoming header when present,
// and stores a logger tagged with it in the request context.
func RequestID(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" || len(requestID) > 128 {
				requestID = uuid.New().String()
			}

			ctx := webcontext.SetRequestID(r.Context(), requestID)
			ctx = webcontext.SetLogger(ctx, logger.With(zap.String("request_id", requestID)))

			w.Header().Set(RequestIDHeader, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
