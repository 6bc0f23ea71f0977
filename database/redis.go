package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig configures the shared Redis client (bucket store and usage queue).
type RedisConfig struct {
	URL             string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0" yaml:"url"`
	ConnectAttempts int           `env:"REDIS_CONNECT_ATTEMPTS" envDefault:"5" yaml:"connect_attempts"`
	ConnectInterval time.Duration `env:"REDIS_CONNECT_INTERVAL" envDefault:"2s" yaml:"connect_interval"`
}

// ConnectRedis parses cfg.URL and pings until Redis answers or the attempts run out.
func ConnectRedis(ctx context.Context, cfg RedisConfig, log zerolog.Logger) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, ErrEmptyConnectionURL
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToParseRedisURL, err)
	}
	client := redis.NewClient(opts)

	if err := retry(ctx, cfg.ConnectAttempts, cfg.ConnectInterval, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, log.With().Str("component", "redis").Logger()); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisNotReady, err)
	}
	return client, nil
}

// RedisHealthcheck returns a probe that pings client.
func RedisHealthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("%w: redis: %v", ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// retry runs fn up to attempts times, waiting interval between failures.
func retry(ctx context.Context, attempts int, interval time.Duration, fn func(context.Context) error, log zerolog.Logger) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		log.Warn().Err(err).Int("attempt", i).Int("max_attempts", attempts).Msg("connection attempt failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return err
}
