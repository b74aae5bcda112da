package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Cache backends for the list cache.
const (
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"30s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`
	PublicBaseURL     string        `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`
	MaxBodyBytes      int64         `envconfig:"MAX_BODY_BYTES" default:"6291456"`
	RateLimit         int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// PGDSN enables the audit log when set.
	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	APIBaseURL string        `envconfig:"API_BASE_URL" required:"true"`
	APITimeout time.Duration `envconfig:"API_TIMEOUT" default:"10s"`

	IdentityBaseURL  string `envconfig:"IDENTITY_BASE_URL" default:"https://identitytoolkit.googleapis.com/v1"`
	IdentityTokenURL string `envconfig:"IDENTITY_TOKEN_URL" default:"https://securetoken.googleapis.com/v1/token"`
	IdentityAPIKey   string `envconfig:"IDENTITY_API_KEY"`

	ImageHostURL string `envconfig:"IMAGE_HOST_URL" default:"https://api.imgbb.com/1/upload"`
	ImageHostKey string `envconfig:"IMAGE_HOST_KEY"`

	LocationDatasetURL string        `envconfig:"LOCATION_DATASET_URL"`
	LocationCacheTTL   time.Duration `envconfig:"LOCATION_CACHE_TTL" default:"24h"`

	ListCacheTTL     time.Duration `envconfig:"LIST_CACHE_TTL" default:"30s"`
	ListCacheBackend string        `envconfig:"LIST_CACHE_BACKEND" default:"redis"`
	RoleCacheTTL     time.Duration `envconfig:"ROLE_CACHE_TTL" default:"5m"`
	ViewIdleTTL      time.Duration `envconfig:"VIEW_IDLE_TTL" default:"30m"`
	ViewAwaitBudget  time.Duration `envconfig:"VIEW_AWAIT_BUDGET" default:"1500ms"`

	WorkerConcurrency int           `envconfig:"WORKER_CONCURRENCY" default:"4"`
	WarmupEvery       time.Duration `envconfig:"WARMUP_EVERY" default:"5m"`
	// WorkerMetricsAddr serves the worker's /metrics; empty disables it.
	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR" default:":9091"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SessionSecret == "" {
		return errors.New("session secret must be provided")
	}
	if c.CSRFSecret == "" {
		return errors.New("csrf secret must be provided")
	}
	if c.APIBaseURL == "" {
		return errors.New("api base url must be provided")
	}
	switch c.ListCacheBackend {
	case CacheRedis, CacheMemory:
	default:
		return fmt.Errorf("unknown LIST_CACHE_BACKEND %q", c.ListCacheBackend)
	}
	if c.ViewAwaitBudget <= 0 {
		return errors.New("view await budget must be positive")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// ImageUploadsEnabled reports whether registration can upload avatars.
func (c *Config) ImageUploadsEnabled() bool {
	return c != nil && c.ImageHostURL != "" && c.ImageHostKey != ""
}

// AuditEnabled reports whether confirmed mutations are written to Postgres.
func (c *Config) AuditEnabled() bool {
	return c != nil && c.PGDSN != ""
}
