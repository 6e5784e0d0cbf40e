package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conduit-lang/querykit/internal/orm/query"
	"github.com/conduit-lang/querykit/internal/orm/schema"
)

// Config represents the querykit configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Schema   SchemaConfig   `mapstructure:"schema"`
	Paging   PagingConfig   `mapstructure:"pagination"`
	Compiler CompilerConfig `mapstructure:"compiler"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Limit    LimitConfig    `mapstructure:"ratelimit"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	Host      string `mapstructure:"host"`
	APIPrefix string `mapstructure:"api_prefix"`
	// Profiling mounts /debug/pprof; keep it off on public servers
	Profiling bool `mapstructure:"profiling"`
}

// SchemaConfig locates the resource definitions
type SchemaConfig struct {
	Path string `mapstructure:"path"`
}

// PagingConfig holds the page sizes for resources that do not declare their own
type PagingConfig struct {
	DefaultSize int `mapstructure:"default_size"`
	MaxSize     int `mapstructure:"max_size"`
}

// CompilerConfig maps onto query.Options
type CompilerConfig struct {
	StrictNull      bool              `mapstructure:"strict_null"`
	MaxDepth        int               `mapstructure:"max_depth"`
	OperatorAliases map[string]string `mapstructure:"operator_aliases"`
}

// CacheConfig configures the count cache
type CacheConfig struct {
	// Backend is one of none, memory or redis
	Backend  string        `mapstructure:"backend"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// AuthConfig enables bearer tokens for conditional filterability
type AuthConfig struct {
	// JWTSecret signs HS256 tokens; empty disables token checks
	JWTSecret string        `mapstructure:"jwt_secret"`
	Required  bool          `mapstructure:"required"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// LimitConfig throttles the resource routes per caller.
// The redis backend connects with the cache section's address and credentials.
type LimitConfig struct {
	// Backend is one of none, memory or redis
	Backend string        `mapstructure:"backend"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

// EnvPrefix prefixes every environment override, e.g. QUERYKIT_DATABASE_URL
const EnvPrefix = "QUERYKIT"

var configNames = []string{"querykit.yml", "querykit.yaml"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.url", "querykit.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.api_prefix", "")
	v.SetDefault("server.profiling", false)

	v.SetDefault("schema.path", "schema.yml")

	v.SetDefault("pagination.default_size", schema.DefaultPageSize)
	v.SetDefault("pagination.max_size", schema.DefaultMaxPageSize)

	v.SetDefault("compiler.strict_null", false)
	v.SetDefault("compiler.max_depth", query.DefaultMaxDepth)
	v.SetDefault("compiler.operator_aliases", query.DefaultOperatorAliases)

	v.SetDefault("cache.backend", "none")
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 30*time.Second)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.required", false)
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("ratelimit.backend", "none")
	v.SetDefault("ratelimit.limit", 100)
	v.SetDefault("ratelimit.window", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads the configuration. An empty path looks for querykit.yml or querykit.yaml
// in the working directory; a missing file means defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("querykit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// DATABASE_URL wins over the file, as in most deployment platforms
	if url := os.Getenv("DATABASE_URL"); url != "" && os.Getenv(EnvPrefix+"_DATABASE_URL") == "" {
		config.Database.URL = url
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// CompilerOptions converts the compiler section into query options
func (c *Config) CompilerOptions() query.Options {
	opts := query.DefaultOptions()
	opts.StrictNull = c.Compiler.StrictNull
	if c.Compiler.MaxDepth > 0 {
		opts.MaxDepth = c.Compiler.MaxDepth
	}
	if c.Compiler.OperatorAliases != nil {
		opts.OperatorAliases = make(map[string]string, len(c.Compiler.OperatorAliases))
		for alias, op := range c.Compiler.OperatorAliases {
			opts.OperatorAliases[alias] = op
		}
	}
	return opts
}

// Pagination returns the offset pagination defaults for schema loading
func (c *Config) Pagination() schema.Pagination {
	return schema.Pagination{
		Strategy:    schema.PaginateOffset,
		DefaultSize: c.Paging.DefaultSize,
		MaxSize:     c.Paging.MaxSize,
	}
}

// Address returns host:port of the HTTP server
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// FindConfigFile walks up from dir looking for querykit.yml
func FindConfigFile(dir string) (string, error) {
	for {
		for _, name := range configNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no querykit.yml found")
		}
		dir = parent
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if _, err := query.DialectForDriver(cfg.Database.Driver); err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}

	if cfg.Server.APIPrefix != "" {
		if !strings.HasPrefix(cfg.Server.APIPrefix, "/") {
			return fmt.Errorf("server.api_prefix must start with '/', got: %s", cfg.Server.APIPrefix)
		}
		if strings.HasSuffix(cfg.Server.APIPrefix, "/") {
			return fmt.Errorf("server.api_prefix must not end with '/', got: %s", cfg.Server.APIPrefix)
		}
	}

	if cfg.Paging.DefaultSize < 1 || cfg.Paging.MaxSize < cfg.Paging.DefaultSize {
		return fmt.Errorf("pagination sizes must satisfy 1 <= default_size <= max_size, got %d and %d",
			cfg.Paging.DefaultSize, cfg.Paging.MaxSize)
	}

	switch cfg.Cache.Backend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be none, memory or redis, got: %s", cfg.Cache.Backend)
	}

	switch cfg.Limit.Backend {
	case "none":
	case "memory", "redis":
		if cfg.Limit.Limit < 1 || cfg.Limit.Window <= 0 {
			return fmt.Errorf("ratelimit needs a positive limit and window, got %d per %s", cfg.Limit.Limit, cfg.Limit.Window)
		}
	default:
		return fmt.Errorf("ratelimit.backend must be none, memory or redis, got: %s", cfg.Limit.Backend)
	}

	if cfg.Auth.Required && cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.required needs auth.jwt_secret")
	}

	if cfg.Compiler.MaxDepth < 0 {
		return fmt.Errorf("compiler.max_depth must not be negative, got: %d", cfg.Compiler.MaxDepth)
	}
	for alias, op := range cfg.Compiler.OperatorAliases {
		if op == "" {
			return fmt.Errorf("compiler.operator_aliases.%s has no target operator", alias)
		}
	}
	return nil
}
