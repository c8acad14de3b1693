package config

import (
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "secret")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, 10*time.Second, cfg.Auth.Grace)
	assert.Equal(t, "rt", cfg.Cookies.RefreshName)
	assert.Equal(t, "AT", cfg.Cookies.AccessName)
	assert.False(t, cfg.Cookies.Secure)
	assert.Equal(t, StoreSQLite, cfg.Storage.SessionStore)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoad_EnvAndFlags(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("REFRESH_TTL_DAYS", "30")
	t.Setenv("REFRESH_GRACE", "2s")
	t.Setenv("REFRESH_COOKIE_NAME", "refreshToken")
	t.Setenv("COOKIE_SECRET", "cookie")
	t.Setenv("APP_ENV", "production")
	t.Setenv("SESSION_STORE", "BOLT")
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load([]string{"-addr", ":7000", "-db", "/tmp/test.db"})
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr, "flag wins over env")
	assert.Equal(t, "/tmp/test.db", cfg.Storage.DBPath)
	assert.Equal(t, 5*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, 2*time.Second, cfg.Auth.Grace)
	assert.Equal(t, "refreshToken", cfg.Cookies.RefreshName)
	assert.True(t, cfg.Cookies.Secure)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, StoreBolt, cfg.Storage.SessionStore)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoad_RateLimitAuthZero(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("RATE_LIMIT_AUTH", "0")

	_, err := Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT_AUTH")
}

func TestLoad_TrustedProxies(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []netip.Prefix
		wantErr bool
	}{
		{name: "unset", input: ""},
		{
			name:  "cidr and single addresses",
			input: "10.0.0.0/8, 192.168.1.7 ,::1",
			want: []netip.Prefix{
				netip.MustParsePrefix("10.0.0.0/8"),
				netip.MustParsePrefix("192.168.1.7/32"),
				netip.MustParsePrefix("::1/128"),
			},
		},
		{name: "host bits are masked", input: "172.16.5.4/12", want: []netip.Prefix{netip.MustParsePrefix("172.16.0.0/12")}},
		{name: "hostname", input: "10.0.0.0/8,proxy.local", wantErr: true},
		{name: "bad mask", input: "10.0.0.0/99", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_ACCESS_SECRET", "secret")
			t.Setenv("TRUSTED_PROXIES", tt.input)

			cfg, err := Load(nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "TRUSTED_PROXIES")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Server.TrustedProxies)
		})
	}
}

func TestLoad_Version(t *testing.T) {
	cfg, err := Load([]string{"-version"})
	require.NoError(t, err)
	assert.True(t, cfg.ShowVersion)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:    ServerConfig{Addr: ":5000"},
			Auth:      AuthConfig{AccessSecret: "s", AccessTTL: time.Minute, RefreshTTL: time.Hour},
			Storage:   StorageConfig{DBPath: "db", SessionStore: StoreSQLite},
			RateLimit: RateLimitConfig{Auth: 10, Window: time.Minute},
		}
	}

	tests := []struct {
		mutate  func(c *Config)
		name    string
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing secret", mutate: func(c *Config) { c.Auth.AccessSecret = "" }, wantErr: "JWT_ACCESS_SECRET"},
		{name: "negative grace", mutate: func(c *Config) { c.Auth.Grace = -time.Second }, wantErr: "REFRESH_GRACE"},
		{name: "unknown store", mutate: func(c *Config) { c.Storage.SessionStore = "mongo" }, wantErr: "invalid session store"},
		{name: "bolt without path", mutate: func(c *Config) { c.Storage.SessionStore = StoreBolt }, wantErr: "BOLT_PATH"},
		{name: "zero auth limit", mutate: func(c *Config) { c.RateLimit.Auth = 0 }, wantErr: "RATE_LIMIT_AUTH"},
		{name: "negative auth limit", mutate: func(c *Config) { c.RateLimit.Auth = -1 }, wantErr: "RATE_LIMIT_AUTH"},
		{name: "negative global limit", mutate: func(c *Config) { c.RateLimit.Global = -1 }, wantErr: "RATE_LIMIT_GLOBAL"},
		{name: "global limit disabled", mutate: func(c *Config) { c.RateLimit.Global = 0 }},
		{name: "half seed", mutate: func(c *Config) { c.Seed.Email = "root@example.com" }, wantErr: "SA_EMAIL"},
		{name: "production without cookie secret", mutate: func(c *Config) { c.Env = "production" }, wantErr: "COOKIE_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
