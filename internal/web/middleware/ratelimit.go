package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	webcontext "github.com/conduit-lang/querykit/internal/web/context"
	"github.com/conduit-lang/querykit/internal/web/ratelimit"
	"github.com/conduit-lang/querykit/internal/web/response"
)

// RateLimitConfig holds configuration for the rate limit middleware
type RateLimitConfig struct {
	Limiter ratelimit.Limiter
	// KeyFunc identifies the caller; defaults to ClientKey
	KeyFunc func(r *http.Request) string
}

// ClientKey identifies authenticated callers by principal and anonymous ones by remote address
func ClientKey(r *http.Request) string {
	if rc := webcontext.GetRequestContext(r.Context()); rc.Principal != "" {
		return "principal:" + rc.Principal
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// RateLimit rejects callers over their allowance with 429. A failing limiter lets requests through.
func RateLimit(config RateLimitConfig) Middleware {
	keyFunc := config.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			d, err := config.Limiter.Allow(r.Context(), key)
			if err != nil {
				webcontext.Logger(r.Context()).Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
				webcontext.Logger(r.Context()).Info("rate limited", zap.String("key", key))
				response.RenderError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
