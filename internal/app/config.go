package app

import (
	"net/url"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (BOOKSTORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"BFF listen address"`
	DatabaseURL string `usage:"PostgreSQL URL of the quote journal, empty disables it (BOOKSTORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Upstream    UpstreamConfig
	Snapshot    SnapshotConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// UpstreamConfig points at the bookstore API.
type UpstreamConfig struct {
	URL          string        `usage:"Base URL of the bookstore API" flag:"upstream-url"`
	Timeout      time.Duration `default:"10s" usage:"Timeout of a single upstream attempt"`
	ReadAttempts int           `default:"3" usage:"Attempts for idempotent upstream reads"`
	RetryBackoff time.Duration `default:"100ms" usage:"Delay before the first read retry, doubled after each attempt"`
}

// SnapshotConfig controls cached upstream snapshots.
type SnapshotConfig struct {
	MaxAge    time.Duration `default:"5m" usage:"Age after which a cart or borrow snapshot is refetched"`
	Retention time.Duration `default:"24h" usage:"How long snapshots and tombstones are kept"`
}

// RedisConfig selects the shared snapshot store. Without an address
// snapshots stay in process memory.
type RedisConfig struct {
	Addr     string `usage:"Redis address host:port (or REDIS_URL env)"`
	Password string `usage:"Redis password"`
	DB       int    `default:"0" usage:"Redis database number"`
}

// RateLimitConfig controls the per-client fixed window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"120" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"true" usage:"Allow credentials (the session cookie)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BOOKSTORE",
		Files:     []string{"config.yaml", "/etc/bookstore/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if err := cfg.applyPlatformDefaults(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.Upstream.URL == "" {
		return errors.New("upstream URL is required: set BOOKSTORE_UPSTREAM_URL")
	}
	u, err := url.Parse(c.Upstream.URL)
	if err != nil {
		return errors.Wrap(err, "parse upstream URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("upstream URL %q: scheme must be http or https", c.Upstream.URL)
	}
	if c.Snapshot.MaxAge <= 0 {
		return errors.Errorf("snapshot max age must be positive, got %s", c.Snapshot.MaxAge)
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL, REDIS_URL and PORT
// to the application's BOOKSTORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults(getenv func(string) string) error {
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv("DATABASE_URL")
	}
	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	if c.Redis.Addr == "" {
		if v := getenv("REDIS_URL"); v != "" {
			if err := c.Redis.fromURL(v); err != nil {
				return errors.Wrap(err, "parse REDIS_URL")
			}
		}
	}
	return nil
}

func (r *RedisConfig) fromURL(raw string) error {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return err
	}
	r.Addr = opts.Addr
	r.Password = opts.Password
	r.DB = opts.DB
	return nil
}
