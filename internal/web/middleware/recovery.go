package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	webcontext "github.com/conduit-lang/querykit/internal/web/context"
	"github.com/conduit-lang/querykit/internal/web/response"
)

// Recovery turns a panicking handler into a 500 response and logs the stack
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					webcontext.Logger(r.Context()).Error("panic recovered",
						zap.String("panic", fmt.Sprint(rec)),
						zap.ByteString("stack", debug.Stack()),
					)
					response.RenderError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
