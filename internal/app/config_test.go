package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:      defaultAddr,
		Upstream:  UpstreamConfig{URL: "https://api.bookstore.test"},
		Snapshot:  SnapshotConfig{MaxAge: 30 * time.Second, Retention: 24 * time.Hour},
		RateLimit: RateLimitConfig{Max: 10, Window: time.Minute},
	}
}

func TestConfig_Validate(t *testing.T) {
	for _, tt := range []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "no upstream", mutate: func(c *Config) { c.Upstream.URL = "" }, wantErr: true},
		{name: "relative upstream", mutate: func(c *Config) { c.Upstream.URL = "api.bookstore.test" }, wantErr: true},
		{name: "ftp upstream", mutate: func(c *Config) { c.Upstream.URL = "ftp://api.bookstore.test" }, wantErr: true},
		{name: "zero max age", mutate: func(c *Config) { c.Snapshot.MaxAge = 0 }, wantErr: true},
		{name: "zero rate", mutate: func(c *Config) { c.RateLimit.Max = 0 }, wantErr: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfig_PlatformDefaults(t *testing.T) {
	env := map[string]string{
		"PORT":         "9090",
		"DATABASE_URL": "postgres://u:p@db:5432/bookstore",
		"REDIS_URL":    "redis://:secret@cache:6380/2",
	}
	cfg := validConfig()
	require.NoError(t, cfg.applyPlatformDefaults(func(k string) string { return env[k] }))

	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
	assert.Equal(t, env["DATABASE_URL"], cfg.DatabaseURL)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 2, cfg.Redis.DB)
}

func TestConfig_PlatformDefaultsKeepExplicit(t *testing.T) {
	env := map[string]string{
		"PORT":         "9090",
		"DATABASE_URL": "postgres://platform",
		"REDIS_URL":    "redis://platform:6379/0",
	}
	cfg := validConfig()
	cfg.Addr = "127.0.0.1:8000"
	cfg.DatabaseURL = "postgres://explicit"
	cfg.Redis.Addr = "explicit:6379"
	require.NoError(t, cfg.applyPlatformDefaults(func(k string) string { return env[k] }))

	assert.Equal(t, "127.0.0.1:8000", cfg.Addr)
	assert.Equal(t, "postgres://explicit", cfg.DatabaseURL)
	assert.Equal(t, "explicit:6379", cfg.Redis.Addr)
}

func TestConfig_BadRedisURL(t *testing.T) {
	cfg := validConfig()
	err := cfg.applyPlatformDefaults(func(k string) string {
		if k == "REDIS_URL" {
			return "http://not-redis"
		}
		return ""
	})
	require.Error(t, err)
}
