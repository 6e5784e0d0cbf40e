// Package router mounts the query endpoints on a chi router.
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/conduit-lang/querykit/internal/orm/query"
	"github.com/conduit-lang/querykit/internal/web/middleware"
	"github.com/conduit-lang/querykit/internal/web/profiling"
	"github.com/conduit-lang/querykit/internal/web/ratelimit"
	"github.com/conduit-lang/querykit/internal/web/response"
)

// DefaultMaxBodyBytes bounds POSTed parameter documents
const DefaultMaxBodyBytes = 1 << 20

// Config wires the router to the compiler and executor
type Config struct {
	Compiler *query.Compiler
	Executor *query.Executor
	Logger   *zap.Logger

	// Observer receives one observation per request; usually *metrics.Metrics
	Observer middleware.RequestObserver
	// Gatherer serves GET /metrics when set
	Gatherer prometheus.Gatherer

	// Verifier enables bearer tokens; without it every request is anonymous
	Verifier     middleware.TokenVerifier
	AuthRequired bool

	// RateLimiter throttles the resource routes per caller when set
	RateLimiter ratelimit.Limiter
	// Profiling mounts net/http/pprof under /debug/pprof
	Profiling bool

	// APIPrefix is mounted before /resources and /schemas, e.g. /api
	APIPrefix      string
	RequestTimeout time.Duration
	MaxBodyBytes   int64

	// Health is checked by GET /healthz, typically a database ping
	Health func(ctx context.Context) error
}

// New returns the HTTP handler for cfg
func New(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	h := &handlers{
		compiler:     cfg.Compiler,
		executor:     cfg.Executor,
		maxBodyBytes: cfg.MaxBodyBytes,
		health:       cfg.Health,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID(cfg.Logger))
	r.Use(middleware.Logging(middleware.LoggingConfig{
		Observer:  cfg.Observer,
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(middleware.Recovery())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.RenderNotFound(w, "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.RenderError(w, http.StatusMethodNotAllowed, "", "Method not allowed")
	})

	r.Get("/healthz", h.healthz)
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if cfg.Profiling {
		r.Mount(profiling.DefaultPath, profiling.Handler())
	}

	api := func(r chi.Router) {
		if cfg.Verifier != nil {
			r.Use(middleware.Auth(middleware.AuthConfig{Verifier: cfg.Verifier, Required: cfg.AuthRequired}))
		}
		r.Use(middleware.Timeout(cfg.RequestTimeout))

		r.Get("/schemas", h.listSchemas)
		r.Get("/schemas/{resource}", h.showSchema)
		r.Group(func(r chi.Router) {
			if cfg.RateLimiter != nil {
				r.Use(middleware.RateLimit(middleware.RateLimitConfig{Limiter: cfg.RateLimiter}))
			}
			r.Get("/resources/{resource}", h.listResources)
			r.Post("/resources/{resource}/query", h.queryResources)
		})
	}

	if cfg.APIPrefix != "" {
		r.Route(cfg.APIPrefix, api)
	} else {
		r.Group(api)
	}
	return r
}
