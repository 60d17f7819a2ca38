package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Reactive     ReactiveConfig     `yaml:"reactive"`
	Availability AvailabilityConfig `yaml:"availability"`
	Validation   ValidationConfig   `yaml:"validation"`
	Dashboard    DashboardConfig    `yaml:"dashboard"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Push         PushConfig         `yaml:"push"`
	WorkerPool   WorkerPoolConfig   `yaml:"worker_pool"`
	Log          LogConfig          `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// ReactiveConfig sizes the pool that re-runs subscribed queries.
type ReactiveConfig struct {
	Workers int `yaml:"workers"`
}

// AvailabilityConfig tunes the MA/PA derivation.
type AvailabilityConfig struct {
	DefaultWindowDays int     `yaml:"default_window_days"`
	AllowedWindowDays []int   `yaml:"allowed_window_days"`
	Scope             string  `yaml:"scope"`
	TargetMA          float64 `yaml:"target_ma"`
	ExcludeSpare      bool    `yaml:"exclude_spare"`
	ClipDowntime      bool    `yaml:"clip_downtime"`
	Timezone          string  `yaml:"timezone"`
}

// ValidationConfig holds write-side policy switches.
type ValidationConfig struct {
	DuplicateShiftPolicy    string `yaml:"duplicate_shift_policy"`
	AllowDuplicateUnitCodes bool   `yaml:"allow_duplicate_unit_codes"`
}

// DashboardConfig holds the refresh schedule for time-dependent figures.
type DashboardConfig struct {
	RefreshSchedule string `yaml:"refresh_schedule"`
	BacklogSchedule string `yaml:"backlog_schedule"`
}

// CatalogConfig points at an optional fleet register and component
// catalog imported into empty collections at startup.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// LogConfig selects the zap level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads the configuration from the given path. A missing file is not an
// error: defaults plus environment overrides are enough to run locally.
func Load(path string) (*Config, error) {
	// Missing .env files are fine; the environment may already be populated.
	_ = godotenv.Load()

	var cfg Config
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverSQLite
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == DriverSQLite {
		cfg.Database.DSN = "./fms.db"
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Reactive.Workers <= 0 {
		cfg.Reactive.Workers = 1
	}

	if len(cfg.Availability.AllowedWindowDays) == 0 {
		cfg.Availability.AllowedWindowDays = []int{7, 30}
	}
	if cfg.Availability.DefaultWindowDays <= 0 {
		cfg.Availability.DefaultWindowDays = 30
	}
	if cfg.Availability.Scope == "" {
		cfg.Availability.Scope = "window"
	}
	if cfg.Availability.TargetMA <= 0 {
		cfg.Availability.TargetMA = 85
	}
	if cfg.Availability.Timezone == "" {
		cfg.Availability.Timezone = "UTC"
	}

	if cfg.Validation.DuplicateShiftPolicy == "" {
		cfg.Validation.DuplicateShiftPolicy = "reject"
	}

	if cfg.Dashboard.RefreshSchedule == "" {
		cfg.Dashboard.RefreshSchedule = "@every 1m"
	}
	if cfg.Dashboard.BacklogSchedule == "" {
		cfg.Dashboard.BacklogSchedule = "@hourly"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// applyEnv lets FMS_* variables override the file.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("FMS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FMS_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("FMS_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("FMS_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("FMS_VAPID_PUBLIC_KEY"); v != "" {
		cfg.Push.PublicKey = v
	}
	if v := os.Getenv("FMS_VAPID_PRIVATE_KEY"); v != "" {
		cfg.Push.PrivateKey = v
	}
	if v := os.Getenv("FMS_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("FMS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Validate ensures the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn must be provided")
	}

	switch c.Availability.Scope {
	case "window", "history":
	default:
		return fmt.Errorf("availability.scope must be window or history, got %q", c.Availability.Scope)
	}
	for _, d := range c.Availability.AllowedWindowDays {
		if d <= 0 {
			return fmt.Errorf("availability.allowed_window_days contains non-positive value %d", d)
		}
	}
	if _, err := time.LoadLocation(c.Availability.Timezone); err != nil {
		return fmt.Errorf("availability.timezone: %w", err)
	}

	switch c.Validation.DuplicateShiftPolicy {
	case "reject", "warn", "allow":
	default:
		return fmt.Errorf("validation.duplicate_shift_policy must be reject, warn or allow, got %q", c.Validation.DuplicateShiftPolicy)
	}
	return nil
}

// CacheTTL returns the response cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Server.CacheTTLSeconds) * time.Second
}

// Location returns the configured timezone, falling back to UTC.
func (c AvailabilityConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
