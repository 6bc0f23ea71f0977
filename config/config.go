// Package config loads keyfence settings from the environment, an optional
// .env file and an optional YAML overlay.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/KanavDutta/keyfence/core"
	"github.com/KanavDutta/keyfence/database"
	"github.com/KanavDutta/keyfence/store"
)

// ErrInvalidConfig is wrapped by every load and validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// FileEnv names the variable pointing at the YAML overlay.
const FileEnv = "KEYFENCE_CONFIG"

// EnvDevelopment is the only environment allowed to run the redis backend
// without an admin token.
const EnvDevelopment = "development"

// Storage backends.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the full keyfence service configuration.
type Config struct {
	Port            int           `env:"PORT" envDefault:"8080" yaml:"port"`
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"keyfence" yaml:"service_name"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development" yaml:"environment"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"console" yaml:"log_format"`
	StorageBackend  string        `env:"STORAGE_BACKEND" envDefault:"redis" yaml:"storage_backend"`
	AdminToken      string        `env:"ADMIN_TOKEN" yaml:"admin_token"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s" yaml:"shutdown_timeout"`

	RateLimit RateLimitConfig      `yaml:"rate_limit"`
	Usage     UsageConfig          `yaml:"usage"`
	Keys      KeysConfig           `yaml:"keys"`
	Redis     database.RedisConfig `yaml:"redis"`
	Mongo     database.MongoConfig `yaml:"mongo"`
}

// RateLimitConfig holds the default limit and the bucket store failure handling.
type RateLimitConfig struct {
	DefaultLimit         int64         `env:"DEFAULT_RATE_LIMIT" envDefault:"100" yaml:"default_limit"`
	DefaultWindowSeconds int64         `env:"DEFAULT_RATE_WINDOW_SECONDS" envDefault:"60" yaml:"default_window_seconds"`
	FailurePolicy        string        `env:"RATE_LIMIT_FAILURE_POLICY" envDefault:"open" yaml:"failure_policy"`
	StoreTimeout         time.Duration `env:"RATE_LIMIT_STORE_TIMEOUT" envDefault:"250ms" yaml:"store_timeout"`
	KeyPrefix            string        `env:"RATE_LIMIT_KEY_PREFIX" envDefault:"rate:" yaml:"key_prefix"`
}

// UsageConfig sizes the usage event emitter and aggregator.
type UsageConfig struct {
	QueueKey          string        `env:"USAGE_QUEUE_KEY" envDefault:"usage:events" yaml:"queue_key"`
	EmitterBuffer     int           `env:"USAGE_EMITTER_BUFFER" envDefault:"1024" yaml:"emitter_buffer"`
	EmitterWorkers    int           `env:"USAGE_EMITTER_WORKERS" envDefault:"2" yaml:"emitter_workers"`
	AggregatorWorkers int           `env:"AGGREGATOR_WORKERS" envDefault:"1" yaml:"aggregator_workers"`
	PopTimeout        time.Duration `env:"AGGREGATOR_POP_TIMEOUT" envDefault:"1s" yaml:"pop_timeout"`
	Backoff           time.Duration `env:"AGGREGATOR_BACKOFF" envDefault:"500ms" yaml:"backoff"`
}

// KeysConfig tunes API key issuance.
type KeysConfig struct {
	HashCost int `env:"API_KEY_SECRET_SALT_ROUNDS" envDefault:"10" yaml:"hash_cost"`
}

// Load reads .env (if present), parses the process environment and applies
// the YAML file named by KEYFENCE_CONFIG on top.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: .env: %v", ErrInvalidConfig, err)
	}
	return load(env.Options{})
}

// LoadEnv is Load without .env or os.Environ, for tests and tools.
func LoadEnv(environment map[string]string) (*Config, error) {
	return load(env.Options{Environment: environment})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	path := os.Getenv(FileEnv)
	if opts.Environment != nil {
		path = opts.Environment[FileEnv]
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: failed to read config file: %v", ErrInvalidConfig, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: failed to parse config file: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidConfig, c.Port)
	}
	if err := c.DefaultLimit().Validate(); err != nil {
		return fmt.Errorf("%w: default rate limit: %v", ErrInvalidConfig, err)
	}
	if _, err := c.FailurePolicy(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.RateLimit.StoreTimeout <= 0 {
		return fmt.Errorf("%w: store timeout must be positive", ErrInvalidConfig)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil || c.LogLevel == "" {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("%w: log format must be console or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	if c.StorageBackend != BackendRedis && c.StorageBackend != BackendMemory {
		return fmt.Errorf("%w: storage backend must be redis or memory, got %q", ErrInvalidConfig, c.StorageBackend)
	}
	if c.Usage.EmitterBuffer <= 0 || c.Usage.EmitterWorkers <= 0 || c.Usage.AggregatorWorkers <= 0 {
		return fmt.Errorf("%w: usage buffer and worker counts must be positive", ErrInvalidConfig)
	}
	if c.Usage.QueueKey == "" {
		return fmt.Errorf("%w: usage queue key is required", ErrInvalidConfig)
	}
	if c.AdminToken == "" && c.Environment != EnvDevelopment && c.StorageBackend != BackendMemory {
		return fmt.Errorf("%w: ADMIN_TOKEN is required outside development", ErrInvalidConfig)
	}
	return nil
}

// DefaultLimit is the limit applied to keys without their own.
func (c *Config) DefaultLimit() core.RateLimit {
	return core.RateLimit{
		Limit:         c.RateLimit.DefaultLimit,
		WindowSeconds: c.RateLimit.DefaultWindowSeconds,
	}
}

// FailurePolicy parses the bucket store failure policy.
func (c *Config) FailurePolicy() (store.FailurePolicy, error) {
	return store.ParseFailurePolicy(c.RateLimit.FailurePolicy)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
