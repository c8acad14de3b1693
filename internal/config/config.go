// Package config загружает конфигурацию сервера из флагов и переменных окружения
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Session store backends
const (
	StoreSQLite = "sqlite"
	StoreBolt   = "bolt"
)

// Config holds all server configuration
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Cookies   CookieConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
	Seed      SeedConfig

	ClientURL   string
	Env         string
	LogLevel    slog.Level
	ShowVersion bool
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// TrustedProxies may set the client address through forwarding headers
	TrustedProxies []netip.Prefix
}

// AuthConfig holds token and session lifetimes
type AuthConfig struct {
	AccessSecret    string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	Grace           time.Duration
	StoreTimeout    time.Duration
	CleanupInterval time.Duration
	Retention       time.Duration // 0 keeps the session default
}

// CookieConfig holds cookie names and the signing secret
type CookieConfig struct {
	RefreshName string
	AccessName  string
	Secret      string // empty disables signing
	Secure      bool
}

// StorageConfig selects databases
type StorageConfig struct {
	DBPath       string
	SessionStore string
	BoltPath     string
}

// RateLimitConfig holds limits for credential endpoints.
// RedisAddr switches from per-process to shared counters.
type RateLimitConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Auth          int
	Global        int
	Window        time.Duration
}

// SeedConfig describes the superadmin created at startup
type SeedConfig struct {
	Email    string
	Password string
	Name     string
}

// Load читает переменные окружения, затем флаги из args (флаги имеют приоритет)
func Load(args []string) (*Config, error) {
	cfg := fromEnv()

	proxies, err := parseTrustedProxies(os.Getenv("TRUSTED_PROXIES"))
	if err != nil {
		return nil, err
	}
	cfg.Server.TrustedProxies = proxies

	fs := flag.NewFlagSet("taskhub-server", flag.ContinueOnError)
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.StringVar(&cfg.Server.Addr, "addr", cfg.Server.Addr, "HTTP listen address")
	fs.StringVar(&cfg.Storage.DBPath, "db", cfg.Storage.DBPath, "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.ShowVersion {
		return cfg, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func fromEnv() *Config {
	env := getEnv("APP_ENV", "development")

	return &Config{
		Server: ServerConfig{
			Addr:            getEnv("HTTP_ADDR", ":5000"),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			AccessSecret:    os.Getenv("JWT_ACCESS_SECRET"),
			AccessTTL:       getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTTL:      time.Duration(getEnvInt("REFRESH_TTL_DAYS", 7)) * 24 * time.Hour,
			Grace:           getEnvDuration("REFRESH_GRACE", 10*time.Second),
			StoreTimeout:    getEnvDuration("STORE_TIMEOUT", 3*time.Second),
			CleanupInterval: getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour),
			Retention:       getEnvDuration("SESSION_RETENTION", 0),
		},
		Cookies: CookieConfig{
			RefreshName: getEnv("REFRESH_COOKIE_NAME", "rt"),
			AccessName:  getEnv("ACCESS_COOKIE_NAME", "AT"),
			Secret:      os.Getenv("COOKIE_SECRET"),
			Secure:      env == "production",
		},
		Storage: StorageConfig{
			DBPath:       getEnv("DB_PATH", "taskhub.db"),
			SessionStore: strings.ToLower(getEnv("SESSION_STORE", StoreSQLite)),
			BoltPath:     getEnv("BOLT_PATH", "sessions.bolt"),
		},
		RateLimit: RateLimitConfig{
			RedisAddr:     os.Getenv("REDIS_ADDR"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			Auth:          getEnvInt("RATE_LIMIT_AUTH", 10),
			Global:        getEnvInt("RATE_LIMIT_GLOBAL", 300),
			Window:        getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Seed: SeedConfig{
			Email:    os.Getenv("SA_EMAIL"),
			Password: os.Getenv("SA_PASSWORD"),
			Name:     getEnv("SA_NAME", "Super Admin"),
		},
		ClientURL: getEnv("CLIENT_URL", "http://localhost:3000"),
		Env:       env,
		LogLevel:  parseLogLevel(getEnv("LOG_LEVEL", "info")),
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Auth.AccessSecret == "" {
		return errors.New("JWT_ACCESS_SECRET is required")
	}
	if c.Auth.AccessTTL <= 0 {
		return errors.New("JWT_ACCESS_TTL must be positive")
	}
	if c.Auth.RefreshTTL <= 0 {
		return errors.New("REFRESH_TTL_DAYS must be positive")
	}
	if c.Auth.Grace < 0 {
		return errors.New("REFRESH_GRACE must not be negative")
	}
	if c.Server.Addr == "" {
		return errors.New("listen address is required")
	}
	if c.Storage.DBPath == "" {
		return errors.New("database path is required")
	}

	switch c.Storage.SessionStore {
	case StoreSQLite:
	case StoreBolt:
		if c.Storage.BoltPath == "" {
			return errors.New("BOLT_PATH is required for bolt session store")
		}
	default:
		return fmt.Errorf("invalid session store: %s (must be sqlite or bolt)", c.Storage.SessionStore)
	}

	if c.RateLimit.Window <= 0 {
		return errors.New("RATE_LIMIT_WINDOW must be positive")
	}
	if c.RateLimit.Auth <= 0 {
		return errors.New("RATE_LIMIT_AUTH must be positive")
	}
	if c.RateLimit.Global < 0 {
		return errors.New("RATE_LIMIT_GLOBAL must not be negative")
	}
	if (c.Seed.Email == "") != (c.Seed.Password == "") {
		return errors.New("SA_EMAIL and SA_PASSWORD must be set together")
	}
	if c.IsProduction() && c.Cookies.Secret == "" {
		return errors.New("COOKIE_SECRET is required in production")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// parseTrustedProxies parses a comma-separated list of CIDRs or single addresses
func parseTrustedProxies(list string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			prefix, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", item, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", item, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
