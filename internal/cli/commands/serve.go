package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/querykit/internal/cache"
	"github.com/conduit-lang/querykit/internal/cli/config"
	"github.com/conduit-lang/querykit/internal/logging"
	"github.com/conduit-lang/querykit/internal/metrics"
	"github.com/conduit-lang/querykit/internal/orm/database"
	"github.com/conduit-lang/querykit/internal/orm/query"
	"github.com/conduit-lang/querykit/internal/orm/relationships"
	"github.com/conduit-lang/querykit/internal/web/auth"
	"github.com/conduit-lang/querykit/internal/web/ratelimit"
	"github.com/conduit-lang/querykit/internal/web/router"
	"github.com/conduit-lang/querykit/internal/web/server"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	var (
		port           int
		host           string
		requestTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API over HTTP",
		Long: `Start the HTTP API for the resources in the schema file.

Routes:
  GET  /healthz
  GET  /metrics
  GET  {prefix}/schemas
  GET  {prefix}/schemas/{resource}
  GET  {prefix}/resources/{resource}          parameters in the URL
  POST {prefix}/resources/{resource}/query    parameters as a JSON body
  GET  /debug/pprof/                          when server.profiling is set

The server shuts down gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, requestTimeout)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 3000, "port to listen on")
	cmd.Flags().StringVar(&host, "host", "localhost", "host to bind to")
	cmd.Flags().DurationVar(&requestTimeout, "request-timeout", 10*time.Second, "deadline for one query request")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, requestTimeout time.Duration) error {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	registry, err := loadRegistry(cfg)
	if err != nil {
		return err
	}
	for _, cycle := range registry.Cycles() {
		logger.Debug("association cycle", zap.Strings("cycle", cycle))
	}

	db, err := database.Open(ctx, database.Config{
		Driver:          cfg.Database.Driver,
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	compiler := query.NewCompiler(registry, cfg.CompilerOptions(), logger.Named("compiler"))
	compiler.SetObserver(m)

	opts := []query.ExecutorOption{
		query.WithLoader(relationships.NewLoader(db, db.Dialect)),
		query.WithLogger(logger.Named("executor")),
		query.WithObserver(m),
	}

	store, err := openCache(ctx, cfg.Cache)
	if err != nil {
		db.Close()
		return err
	}
	if store != nil {
		opts = append(opts, query.WithCountCache(cache.NewCounts(store, cfg.Cache.TTL, logger.Named("cache"))))
	}
	executor := query.NewExecutor(db, db.Dialect, opts...)

	limiter, err := openLimiter(ctx, cfg.Limit, cfg.Cache)
	if err != nil {
		db.Close()
		if store != nil {
			store.Close()
		}
		return err
	}

	routerCfg := router.Config{
		Compiler:       compiler,
		Executor:       executor,
		Logger:         logger,
		Observer:       m,
		Gatherer:       reg,
		AuthRequired:   cfg.Auth.Required,
		APIPrefix:      cfg.Server.APIPrefix,
		RequestTimeout: requestTimeout,
		Health:         db.PingContext,
		RateLimiter:    limiter,
		Profiling:      cfg.Server.Profiling,
	}
	if cfg.Auth.JWTSecret != "" {
		routerCfg.Verifier = auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	}

	srv, err := server.New(server.Config{
		Address:           cfg.Server.Address(),
		Handler:           router.New(routerCfg),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   30 * time.Second,
		Logger:            logger,
	})
	if err != nil {
		db.Close()
		return err
	}

	srv.RegisterHook(func(context.Context) error {
		return db.Close()
	})
	if store != nil {
		srv.RegisterHook(func(context.Context) error {
			return store.Close()
		})
	}
	if limiter != nil {
		srv.RegisterHook(func(context.Context) error {
			return limiter.Close()
		})
	}

	logger.Info("starting querykit",
		zap.String("version", Version),
		zap.String("dialect", db.Dialect.String()),
		zap.Int("resources", registry.Count()),
		zap.String("cache", cfg.Cache.Backend),
		zap.Bool("auth", routerCfg.Verifier != nil),
		zap.String("ratelimit", cfg.Limit.Backend),
	)
	return srv.Run(ctx)
}

// openCache returns the configured count cache store, or nil when caching is off
func openCache(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	cc := cache.DefaultConfig()
	if cfg.TTL > 0 {
		cc.TTL = cfg.TTL
	}

	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return cache.NewMemory(cc), nil
	case "redis":
		store, err := cache.DialRedis(ctx, cache.RedisConfig{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			Config:   cc,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// openLimiter returns the configured rate limiter, or nil when rate limiting is off.
// The redis limiter shares the cache section's connection settings.
func openLimiter(ctx context.Context, cfg config.LimitConfig, cc config.CacheConfig) (ratelimit.Limiter, error) {
	rl := ratelimit.Config{Limit: cfg.Limit, Window: cfg.Window}

	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		tb, err := ratelimit.NewTokenBucket(rl)
		if err != nil {
			return nil, err
		}
		return tb, nil
	case "redis":
		r, err := ratelimit.DialRedis(ctx, ratelimit.RedisConfig{
			Addr:     cc.Addr,
			Password: cc.Password,
			DB:       cc.DB,
			Config:   rl,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}
}
