package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port           string        `yaml:"port" validate:"required,numeric"`
	Mode           string        `yaml:"mode" validate:"oneof=debug release test"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	DataDir      string        `yaml:"data_dir" validate:"required"`
	MaxOpenConns int           `yaml:"max_open_conns" validate:"min=1"`
	MaxIdleConns int           `yaml:"max_idle_conns" validate:"min=0,ltefield=MaxOpenConns"`
	ConnLifetime time.Duration `yaml:"conn_lifetime" validate:"gt=0"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret" validate:"required,min=16"`
	AdminPassword string        `yaml:"admin_password"`
	TokenTTL      time.Duration `yaml:"token_ttl" validate:"gt=0"`
}

type CacheConfig struct {
	ResponseTTL time.Duration `yaml:"response_ttl" validate:"gt=0"`
	BestOfTTL   time.Duration `yaml:"best_of_ttl" validate:"gt=0"`
}

type RateLimitConfig struct {
	RedisAddr        string `yaml:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword    string `yaml:"redis_password"`
	RedisDB          int    `yaml:"redis_db" validate:"min=0"`
	IPLimitPerMin    int    `yaml:"ip_limit_per_min" validate:"min=1"`
	WriteLimitPerMin int    `yaml:"write_limit_per_min" validate:"min=1"`
	BurstMultiplier  int    `yaml:"burst_multiplier" validate:"min=1"`
}

type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Spec     string `yaml:"spec" validate:"required_if=Enabled true"`
	Timezone string `yaml:"timezone" validate:"required,timezone"`
}

type CatalogConfig struct {
	BaseURL       string        `yaml:"base_url" validate:"omitempty,url"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	RetryAttempts int           `yaml:"retry_attempts" validate:"min=1,max=10"`
	ImageBase     string        `yaml:"image_base" validate:"omitempty,url"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// Defaults returns a Config with every default applied
func Defaults() Config {
	var cfg Config
	cfg.Scheduler.Enabled = true
	applyDefaults(&cfg)
	return cfg
}

// applyDefaults fills zero values; file and env values win
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	if cfg.Database.DataDir == "" {
		cfg.Database.DataDir = "./data"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnLifetime == 0 {
		cfg.Database.ConnLifetime = 5 * time.Minute
	}

	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}

	if cfg.Cache.ResponseTTL == 0 {
		cfg.Cache.ResponseTTL = 5 * time.Minute
	}
	if cfg.Cache.BestOfTTL == 0 {
		cfg.Cache.BestOfTTL = 15 * time.Minute
	}

	if cfg.RateLimit.IPLimitPerMin == 0 {
		cfg.RateLimit.IPLimitPerMin = 120
	}
	if cfg.RateLimit.WriteLimitPerMin == 0 {
		cfg.RateLimit.WriteLimitPerMin = 20
	}
	if cfg.RateLimit.BurstMultiplier == 0 {
		cfg.RateLimit.BurstMultiplier = 2
	}

	if cfg.Scheduler.Spec == "" {
		cfg.Scheduler.Spec = "@every 1h"
	}
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "UTC"
	}

	if cfg.Catalog.Timeout == 0 {
		cfg.Catalog.Timeout = 10 * time.Second
	}
	if cfg.Catalog.RetryAttempts == 0 {
		cfg.Catalog.RetryAttempts = 3
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Load reads an optional YAML file, applies env overrides and validates.
// CINECRITIC_CONFIG overrides the path; an empty path skips the file.
func Load(path string) (Config, error) {
	if envPath := os.Getenv("CINECRITIC_CONFIG"); envPath != "" {
		path = envPath
	}

	var cfg Config
	cfg.Scheduler.Enabled = true

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Database.DataDir, "DATA_DIR")
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.Mode, "GIN_MODE")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.AdminPassword, "ADMIN_PASSWORD")
	setString(&cfg.RateLimit.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RateLimit.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Scheduler.Spec, "RECOMPUTE_SCHEDULE")
	setString(&cfg.Catalog.BaseURL, "CATALOG_BASE_URL")
	setString(&cfg.Catalog.APIKey, "CATALOG_API_KEY")
	setString(&cfg.Catalog.ImageBase, "CATALOG_IMAGE_BASE")

	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Scheduler.Enabled = enabled
		} else {
			slog.Warn("Ignoring invalid SCHEDULER_ENABLED", "value", v)
		}
	}

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks struct tags and returns a readable error listing every bad field
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Location resolves the scheduler timezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Scheduler.Timezone, err)
	}
	return loc, nil
}

// SlogLevel maps the configured level onto slog
func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())
