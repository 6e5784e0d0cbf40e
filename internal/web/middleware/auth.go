package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/querykit/internal/orm/schema"
	webcontext "github.com/conduit-lang/querykit/internal/web/context"
	"github.com/conduit-lang/querykit/internal/web/response"
)

// TokenVerifier converts a bearer token into a request context
type TokenVerifier interface {
	RequestContext(token string) (schema.RequestContext, error)
}

// AuthConfig holds configuration for authentication middleware
type AuthConfig struct {
	Verifier TokenVerifier
	// Required rejects requests without a bearer token; otherwise they run anonymously
	Required bool
	// SkipPaths is a list of paths to skip authentication
	SkipPaths []string
}

// Auth stores the caller identity from the Authorization header in the request context
func Auth(config AuthConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skipPath := range config.SkipPaths {
				if r.URL.Path == skipPath {
					next.ServeHTTP(w, r)
					return
				}
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if config.Required {
					response.RenderError(w, http.StatusUnauthorized, "unauthorized", "Authorization required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				response.RenderError(w, http.StatusUnauthorized, "unauthorized", "Invalid authorization format")
				return
			}

			rc, err := config.Verifier.RequestContext(parts[1])
			if err != nil {
				webcontext.Logger(r.Context()).Debug("token rejected", zap.Error(err))
				response.RenderError(w, http.StatusUnauthorized, "unauthorized", "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(webcontext.SetRequestContext(r.Context(), rc)))
		})
	}
}
