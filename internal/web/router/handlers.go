package router

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/conduit-lang/querykit/internal/orm/query"
	"github.com/conduit-lang/querykit/internal/orm/schema"
	webcontext "github.com/conduit-lang/querykit/internal/web/context"
	"github.com/conduit-lang/querykit/internal/web/params"
	"github.com/conduit-lang/querykit/internal/web/response"
)

type handlers struct {
	compiler     *query.Compiler
	executor     *query.Executor
	maxBodyBytes int64
	health       func(ctx context.Context) error
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			webcontext.Logger(r.Context()).Warn("health check failed", zap.Error(err))
			response.RenderError(w, http.StatusServiceUnavailable, "", "database unavailable")
			return
		}
	}
	response.RenderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) listSchemas(w http.ResponseWriter, r *http.Request) {
	response.RenderCachedJSON(w, r, map[string][]string{
		"resources": h.compiler.Registry().List(),
	})
}

func (h *handlers) showSchema(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resource")
	s, ok := h.compiler.Registry().Get(resource)
	if !ok {
		response.RenderNotFound(w, "unknown resource "+resource)
		return
	}
	// conditional filterability depends on the caller
	w.Header().Set("Vary", "Authorization")
	response.RenderCachedJSON(w, r, query.Describe(s, webcontext.GetRequestContext(r.Context())))
}

// listResources handles GET with bracketed or ?q= parameters
func (h *handlers) listResources(w http.ResponseWriter, r *http.Request) {
	p, err := params.Parse(r.URL.RawQuery)
	if err != nil {
		response.RenderError(w, http.StatusBadRequest, "malformed_params", err.Error())
		return
	}
	h.run(w, r, chi.URLParam(r, "resource"), p)
}

// queryResources handles POST with a JSON parameter document
func (h *handlers) queryResources(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		response.RenderError(w, http.StatusUnsupportedMediaType, "", "expected application/json")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RenderError(w, http.StatusRequestEntityTooLarge, "", "request body too large")
			return
		}
		response.RenderBadRequest(w, "failed to read request body")
		return
	}

	p, err := query.DecodeParams(body)
	if err != nil {
		response.RenderError(w, http.StatusBadRequest, "malformed_params", err.Error())
		return
	}
	h.run(w, r, chi.URLParam(r, "resource"), p)
}

// run compiles and executes. Any issue rejects the request with every issue found.
func (h *handlers) run(w http.ResponseWriter, r *http.Request, resource string, p query.Params) {
	ctx := r.Context()
	logger := webcontext.Logger(ctx).With(zap.String("resource", resource))

	q, issues, err := h.compiler.Compile(resource, p, webcontext.GetRequestContext(ctx))
	if err != nil {
		if errors.Is(err, schema.ErrUnknownResource) {
			response.RenderNotFound(w, "unknown resource "+resource)
			return
		}
		logger.Error("compile failed", zap.Error(err))
		response.RenderInternalError(w)
		return
	}
	if len(issues) > 0 {
		logger.Debug("query rejected", zap.Strings("codes", codes(issues)))
		response.RenderIssues(w, issues)
		return
	}

	result, err := h.executor.Execute(ctx, q)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			response.RenderError(w, http.StatusServiceUnavailable, "query_timeout", "the query took too long")
			return
		}
		logger.Error("query failed", zap.Error(err))
		response.RenderInternalError(w)
		return
	}
	response.RenderJSON(w, http.StatusOK, result)
}

func codes(issues query.Issues) []string {
	out := make([]string, 0, len(issues))
	for _, c := range issues.Codes() {
		out = append(out, string(c))
	}
	return out
}
