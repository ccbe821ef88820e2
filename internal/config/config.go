// Package config loads server settings from the environment (and .env).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	StorageLocal  = "local"
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

const devSessionSecret = "dev-secret-change-in-production-32bytes"

type Config struct {
	// Server
	Port         string
	FrontendURL  string
	BackendURL   string
	Env          string
	LogLevel     string
	RateLimitRPM int

	// Auth
	SessionSecret      string
	AuthRequired       bool
	AdminEmail         string
	AdminPasswordHash  string
	GoogleClientID     string
	GoogleClientSecret string
	GitHubClientID     string
	GitHubClientSecret string
	EnableEmailLogin   bool

	// Storage
	StorageDriver string
	StorageDir    string
	RedisURL      string
	RedisPrefix   string
	DatabaseURL   string

	// Payment simulators
	PaymentSuccessRate  float64
	PaymentSeed         uint64
	PaymentLatencyScale float64
	SweepInterval       time.Duration
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary lookup function.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}
	var errs []error

	cfg := &Config{
		Port:        get("PORT", "8080"),
		FrontendURL: get("FRONTEND_URL", "http://localhost:4321"),
		BackendURL:  get("BACKEND_URL", "http://localhost:8080"),
		Env:         get("ENV", "development"),
		LogLevel:    get("LOG_LEVEL", "INFO"),

		SessionSecret:      get("SESSION_SECRET", ""),
		AuthRequired:       get("AUTH_REQUIRED", "false") == "true",
		AdminEmail:         strings.ToLower(get("ADMIN_EMAIL", "")),
		AdminPasswordHash:  get("ADMIN_PASSWORD_HASH", ""),
		GoogleClientID:     get("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: get("GOOGLE_CLIENT_SECRET", ""),
		GitHubClientID:     get("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: get("GITHUB_CLIENT_SECRET", ""),
		EnableEmailLogin:   get("ENABLE_EMAIL_LOGIN", "true") == "true",

		StorageDriver: strings.ToLower(get("STORAGE_DRIVER", StorageLocal)),
		StorageDir:    get("STORAGE_DIR", "./data"),
		RedisURL:      get("REDIS_URL", ""),
		RedisPrefix:   get("REDIS_PREFIX", ""),
		DatabaseURL:   get("DATABASE_URL", ""),
	}

	var err error
	if cfg.RateLimitRPM, err = strconv.Atoi(get("RATE_LIMIT_PER_MINUTE", "120")); err != nil {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_PER_MINUTE: %w", err))
	}
	if cfg.PaymentSuccessRate, err = strconv.ParseFloat(get("PAYMENT_SUCCESS_RATE", "0.9"), 64); err != nil {
		errs = append(errs, fmt.Errorf("PAYMENT_SUCCESS_RATE: %w", err))
	} else if cfg.PaymentSuccessRate < 0 || cfg.PaymentSuccessRate > 1 {
		errs = append(errs, fmt.Errorf("PAYMENT_SUCCESS_RATE must be within [0, 1], got %v", cfg.PaymentSuccessRate))
	}
	if v := get("PAYMENT_SEED", ""); v != "" {
		if cfg.PaymentSeed, err = strconv.ParseUint(v, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("PAYMENT_SEED: %w", err))
		}
	} else {
		cfg.PaymentSeed = uint64(time.Now().UnixNano())
	}
	if cfg.PaymentLatencyScale, err = strconv.ParseFloat(get("PAYMENT_LATENCY_SCALE", "1"), 64); err != nil {
		errs = append(errs, fmt.Errorf("PAYMENT_LATENCY_SCALE: %w", err))
	}
	if cfg.SweepInterval, err = time.ParseDuration(get("SWEEP_INTERVAL", "1m")); err != nil {
		errs = append(errs, fmt.Errorf("SWEEP_INTERVAL: %w", err))
	} else if cfg.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}

	switch cfg.StorageDriver {
	case StorageLocal, StorageMemory:
	case StorageRedis:
		if cfg.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when STORAGE_DRIVER=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver))
	}

	if cfg.SessionSecret == "" {
		if cfg.AuthRequired {
			errs = append(errs, errors.New("SESSION_SECRET is required when AUTH_REQUIRED=true"))
		}
		cfg.SessionSecret = devSessionSecret
	}
	if (cfg.AdminEmail == "") != (cfg.AdminPasswordHash == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD_HASH must be set together"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// SecureCookies reports whether cookies must carry the Secure flag.
func (c *Config) SecureCookies() bool {
	return c.Env == "production"
}

// GoogleEnabled reports whether Google OAuth is configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// GitHubEnabled reports whether GitHub OAuth is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}
