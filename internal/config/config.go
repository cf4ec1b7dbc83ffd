package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the proximity service
// Environment variables are automatically parsed from PROXIMITY_ prefix
type Config struct {
	// Build target selects high-level environment: local, cloud-dev, cloud
	BuildTarget string `envconfig:"BUILD_TARGET" default:"cloud-dev"`

	// Derived or override drivers
	DBDriver    string `envconfig:"DB_DRIVER" default:"auto"`
	CacheDriver string `envconfig:"CACHE_DRIVER" default:"auto"`

	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Store Configuration
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:""`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"true"`

	// Cache store (geo index and snapshots share it)
	RedisURL string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`

	// Search limits
	MaxSearchRadius     float64 `envconfig:"MAX_SEARCH_RADIUS" default:"5000"`
	DefaultSearchRadius float64 `envconfig:"DEFAULT_SEARCH_RADIUS" default:"5000"`
	DefaultLimit        int     `envconfig:"DEFAULT_LIMIT" default:"20"`
	MaxLimit            int     `envconfig:"MAX_LIMIT" default:"50"`
	CandidateOverfetch  int     `envconfig:"CANDIDATE_OVERFETCH" default:"2"`
	FallbackScanLimit   int     `envconfig:"FALLBACK_SCAN_LIMIT" default:"1000"`
	HydrateConcurrency  int     `envconfig:"HYDRATE_CONCURRENCY" default:"8"`

	// Cache lifetimes
	UserCacheTTL      Duration `envconfig:"USER_CACHE_TTL" default:"1h"`
	GroupCacheTTL     Duration `envconfig:"GROUP_CACHE_TTL" default:"10m"`
	ActivityCacheTTL  Duration `envconfig:"ACTIVITY_CACHE_TTL" default:"2m"`
	NearbyCacheTTL    Duration `envconfig:"NEARBY_CACHE_TTL" default:"2m"`
	NearbyResultCache bool     `envconfig:"NEARBY_RESULT_CACHE" default:"true"`

	// Activities older than this stop being discoverable; 0 keeps them forever
	ActivityLifetime Duration `envconfig:"ACTIVITY_LIFETIME" default:"0"`

	// Index reconciliation; interval 0 disables the background worker
	ReindexInterval  Duration `envconfig:"REINDEX_INTERVAL" default:"5m"`
	ReindexBatchSize int      `envconfig:"REINDEX_BATCH_SIZE" default:"500"`

	// Health
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
	BootstrapTimeoutSeconds   int `envconfig:"BOOTSTRAP_TIMEOUT_SECONDS" default:"5"`
}

// ResolveDefaults validates BuildTarget, derives DBDriver and CacheDriver when
// set to "auto" or empty, and sanity checks the search limits.
func (c *Config) ResolveDefaults() error {
	var defaultDB, defaultCache string

	switch c.BuildTarget {
	case "cloud-dev", "cloud":
		defaultDB, defaultCache = "postgres", "redis"
	case "local":
		defaultDB, defaultCache = "sqlite", "memory"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}
	if c.CacheDriver == "" || c.CacheDriver == "auto" {
		c.CacheDriver = defaultCache
	}

	allowedDB := map[string]bool{"postgres": true, "sqlite": true}
	if !allowedDB[c.DBDriver] {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	allowedCache := map[string]bool{"redis": true, "memory": true}
	if !allowedCache[c.CacheDriver] {
		return fmt.Errorf("unsupported CACHE_DRIVER: %s", c.CacheDriver)
	}
	if c.DBDriver == "sqlite" && c.SQLitePath == "" {
		c.SQLitePath = "proximity.db"
	}

	if c.MaxSearchRadius <= 0 {
		return fmt.Errorf("MAX_SEARCH_RADIUS must be positive, got %v", c.MaxSearchRadius)
	}
	if c.DefaultSearchRadius <= 0 || c.DefaultSearchRadius > c.MaxSearchRadius {
		c.DefaultSearchRadius = c.MaxSearchRadius
	}
	if c.MaxLimit <= 0 {
		return fmt.Errorf("MAX_LIMIT must be positive, got %d", c.MaxLimit)
	}
	if c.DefaultLimit <= 0 || c.DefaultLimit > c.MaxLimit {
		c.DefaultLimit = c.MaxLimit
	}
	if c.CandidateOverfetch < 1 {
		c.CandidateOverfetch = 1
	}
	if c.HydrateConcurrency < 1 {
		c.HydrateConcurrency = 1
	}
	return nil
}

// New creates a new Config by parsing environment variables
// Environment variables should be prefixed with PROXIMITY_
// Example: PROXIMITY_REDIS_URL, PROXIMITY_MAX_SEARCH_RADIUS
// A .env file (or the file named by PROXIMITY_ENV_FILE) is loaded first;
// variables already set in the environment win.
func New() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("PROXIMITY", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("cache_driver", cfg.CacheDriver).
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("postgres_dsn_present", func() string {
			if cfg.PostgresDSN != "" {
				return "true"
			}
			return "false"
		}()).
		Float64("max_search_radius", cfg.MaxSearchRadius).
		Int("default_limit", cfg.DefaultLimit).
		Int("max_limit", cfg.MaxLimit).
		Msg("Configuration loaded")

	return &cfg, nil
}

func loadDotEnv() error {
	path := os.Getenv("PROXIMITY_ENV_FILE")
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("failed to load env file %s: %w", path, err)
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	cfg := &Config{
		Environment: EnvTesting,
		BuildTarget: "local",
		DBDriver:    "sqlite",
		CacheDriver: "memory",
		LogLevel:    "debug",
		HTTPPort:    8080,
		AutoMigrate: true,
	}

	cfg.MaxSearchRadius = 5000
	cfg.DefaultSearchRadius = 5000
	cfg.DefaultLimit = 20
	cfg.MaxLimit = 50
	cfg.CandidateOverfetch = 2
	cfg.FallbackScanLimit = 1000
	cfg.HydrateConcurrency = 4

	cfg.UserCacheTTL = Duration(time.Hour)
	cfg.GroupCacheTTL = Duration(10 * time.Minute)
	cfg.ActivityCacheTTL = Duration(2 * time.Minute)
	cfg.NearbyCacheTTL = Duration(2 * time.Minute)
	cfg.NearbyResultCache = true

	cfg.ReindexBatchSize = 100
	cfg.HealthIntervalSeconds = 1
	cfg.HealthProbeTimeoutSeconds = 1
	cfg.BootstrapTimeoutSeconds = 1
	return cfg
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
