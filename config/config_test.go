package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KanavDutta/keyfence/core"
	"github.com/KanavDutta/keyfence/store"
)

func TestLoadEnv_Defaults(t *testing.T) {
	cfg, err := LoadEnv(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "keyfence", cfg.ServiceName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, BackendRedis, cfg.StorageBackend)
	assert.Equal(t, core.RateLimit{Limit: 100, WindowSeconds: 60}, cfg.DefaultLimit())
	assert.Equal(t, 250*time.Millisecond, cfg.RateLimit.StoreTimeout)
	assert.Equal(t, "rate:", cfg.RateLimit.KeyPrefix)
	assert.Equal(t, "usage:events", cfg.Usage.QueueKey)
	assert.Equal(t, 1024, cfg.Usage.EmitterBuffer)
	assert.Equal(t, time.Second, cfg.Usage.PopTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Usage.Backoff)
	assert.Equal(t, 10, cfg.Keys.HashCost)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, "keyfence", cfg.Mongo.Database)

	policy, err := cfg.FailurePolicy()
	require.NoError(t, err)
	assert.Equal(t, store.FailOpen, policy)
}

func TestLoadEnv_Overrides(t *testing.T) {
	cfg, err := LoadEnv(map[string]string{
		"PORT":                        "9090",
		"LOG_LEVEL":                   "DEBUG",
		"LOG_FORMAT":                  "json",
		"STORAGE_BACKEND":             "memory",
		"DEFAULT_RATE_LIMIT":          "10",
		"DEFAULT_RATE_WINDOW_SECONDS": "1",
		"RATE_LIMIT_FAILURE_POLICY":   "closed",
		"AGGREGATOR_BACKOFF":          "2s",
		"MONGO_URI":                   "mongodb://db:27017",
	})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, BackendMemory, cfg.StorageBackend)
	assert.Equal(t, core.RateLimit{Limit: 10, WindowSeconds: 1}, cfg.DefaultLimit())
	assert.Equal(t, 2*time.Second, cfg.Usage.Backoff)
	assert.Equal(t, "mongodb://db:27017", cfg.Mongo.URI)

	policy, err := cfg.FailurePolicy()
	require.NoError(t, err)
	assert.Equal(t, store.FailClosed, policy)
}

func TestLoadEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero limit", map[string]string{"DEFAULT_RATE_LIMIT": "0"}},
		{"negative window", map[string]string{"DEFAULT_RATE_WINDOW_SECONDS": "-5"}},
		{"unknown policy", map[string]string{"RATE_LIMIT_FAILURE_POLICY": "sometimes"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"bad backend", map[string]string{"STORAGE_BACKEND": "postgres"}},
		{"bad port", map[string]string{"PORT": "70000"}},
		{"unparseable int", map[string]string{"PORT": "eighty"}},
		{"zero workers", map[string]string{"AGGREGATOR_WORKERS": "0"}},
		{"missing config file", map[string]string{FileEnv: "/nonexistent/keyfence.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadEnv(tt.env)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadEnv_AdminTokenOutsideDevelopment(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{"production without token", map[string]string{"ENVIRONMENT": "production"}, true},
		{"staging without token", map[string]string{"ENVIRONMENT": "Staging"}, true},
		{"production with token", map[string]string{"ENVIRONMENT": "production", "ADMIN_TOKEN": "s3cret"}, false},
		{"production on memory backend", map[string]string{"ENVIRONMENT": "production", "STORAGE_BACKEND": "memory"}, false},
		{"development without token", map[string]string{"ENVIRONMENT": "development"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadEnv(tt.env)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoadEnv_FileOverridesEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyfence.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 7000
rate_limit:
  default_limit: 500
  failure_policy: closed
  store_timeout: 1s
usage:
  backoff: 100ms
redis:
  url: redis://cache:6379/2
`), 0o600))

	cfg, err := LoadEnv(map[string]string{
		FileEnv:              path,
		"PORT":               "9090",
		"DEFAULT_RATE_LIMIT": "10",
		"SERVICE_NAME":       "edge",
	})
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, int64(500), cfg.RateLimit.DefaultLimit)
	assert.Equal(t, int64(60), cfg.RateLimit.DefaultWindowSeconds)
	assert.Equal(t, time.Second, cfg.RateLimit.StoreTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Usage.Backoff)
	assert.Equal(t, "redis://cache:6379/2", cfg.Redis.URL)
	assert.Equal(t, "edge", cfg.ServiceName, "keys absent from the file keep env values")
}

func TestLoadFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unterminated"), 0o600))

	cfg := &Config{}
	assert.ErrorIs(t, cfg.LoadFile(path), ErrInvalidConfig)
}
