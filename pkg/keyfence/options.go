package keyfence

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/KanavDutta/keyfence/analytics"
	"github.com/KanavDutta/keyfence/config"
	"github.com/KanavDutta/keyfence/core"
	"github.com/KanavDutta/keyfence/keys"
	"github.com/KanavDutta/keyfence/middleware"
	"github.com/KanavDutta/keyfence/store"
)

// Option is a functional option for configuring a Fence.
type Option func(*settings) error

type settings struct {
	limit           core.RateLimit
	policy          store.FailurePolicy
	storeTimeout    time.Duration
	buckets         store.BucketStore
	repo            keys.Repository
	analytics       analytics.Store
	extractor       middleware.CredentialExtractor
	hashCost        int
	emitterBuffer   int
	cleanupInterval time.Duration
	log             zerolog.Logger
	clock           func() time.Time
}

func defaultSettings() *settings {
	return &settings{
		limit:           core.RateLimit{Limit: 100, WindowSeconds: 60},
		policy:          store.FailOpen,
		storeTimeout:    store.DefaultStoreTimeout,
		emitterBuffer:   1024,
		cleanupInterval: 10 * time.Minute,
		log:             zerolog.Nop(),
		clock:           time.Now,
	}
}

// WithDefaultLimit sets the limit of keys created without their own.
func WithDefaultLimit(limit, windowSeconds int64) Option {
	return func(s *settings) error {
		rl := core.RateLimit{Limit: limit, WindowSeconds: windowSeconds}
		if err := rl.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOption, err)
		}
		s.limit = rl
		return nil
	}
}

// WithConfigFile applies the rate limit, usage and key settings of a YAML config file.
func WithConfigFile(path string) Option {
	return func(s *settings) error {
		cfg, err := config.LoadEnv(map[string]string{config.FileEnv: path})
		if err != nil {
			return err
		}
		policy, err := cfg.FailurePolicy()
		if err != nil {
			return err
		}
		s.limit = cfg.DefaultLimit()
		s.policy = policy
		s.storeTimeout = cfg.RateLimit.StoreTimeout
		s.emitterBuffer = cfg.Usage.EmitterBuffer
		s.hashCost = cfg.Keys.HashCost
		return nil
	}
}

// WithFailurePolicy decides admission while the bucket store is failing.
func WithFailurePolicy(policy store.FailurePolicy) Option {
	return func(s *settings) error {
		s.policy = policy
		return nil
	}
}

// WithBucketStore replaces the in-memory bucket store, e.g. with store.RedisBucketStore.
func WithBucketStore(buckets store.BucketStore) Option {
	return func(s *settings) error {
		if buckets == nil {
			return fmt.Errorf("%w: bucket store cannot be nil", ErrInvalidOption)
		}
		s.buckets = buckets
		return nil
	}
}

// WithRepository replaces the in-memory key repository.
func WithRepository(repo keys.Repository) Option {
	return func(s *settings) error {
		if repo == nil {
			return fmt.Errorf("%w: repository cannot be nil", ErrInvalidOption)
		}
		s.repo = repo
		return nil
	}
}

// WithAnalytics replaces the in-memory usage counters.
func WithAnalytics(store analytics.Store) Option {
	return func(s *settings) error {
		if store == nil {
			return fmt.Errorf("%w: analytics store cannot be nil", ErrInvalidOption)
		}
		s.analytics = store
		return nil
	}
}

// WithCredentialExtractor changes where the middleware reads credentials from.
func WithCredentialExtractor(extractor middleware.CredentialExtractor) Option {
	return func(s *settings) error {
		if extractor == nil {
			return fmt.Errorf("%w: credential extractor cannot be nil", ErrInvalidOption)
		}
		s.extractor = extractor
		return nil
	}
}

// WithHashCost sets the bcrypt cost of new secrets.
func WithHashCost(cost int) Option {
	return func(s *settings) error {
		s.hashCost = cost
		return nil
	}
}

// WithCleanupInterval sets how often idle in-memory buckets are dropped. Zero disables it.
func WithCleanupInterval(interval time.Duration) Option {
	return func(s *settings) error {
		if interval < 0 {
			return fmt.Errorf("%w: cleanup interval cannot be negative", ErrInvalidOption)
		}
		s.cleanupInterval = interval
		return nil
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *settings) error {
		s.log = log
		return nil
	}
}

// WithClock sets the time source of buckets, keys and usage events.
func WithClock(now func() time.Time) Option {
	return func(s *settings) error {
		if now == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidOption)
		}
		s.clock = now
		return nil
	}
}
