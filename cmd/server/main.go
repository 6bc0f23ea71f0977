package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/KanavDutta/keyfence/analytics"
	"github.com/KanavDutta/keyfence/api"
	"github.com/KanavDutta/keyfence/config"
	"github.com/KanavDutta/keyfence/database"
	"github.com/KanavDutta/keyfence/gate"
	"github.com/KanavDutta/keyfence/keys"
	"github.com/KanavDutta/keyfence/logger"
	"github.com/KanavDutta/keyfence/metrics"
	"github.com/KanavDutta/keyfence/middleware"
	"github.com/KanavDutta/keyfence/store"
	"github.com/KanavDutta/keyfence/usage"
)

const memoryCleanupInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := bootLogger(os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}
	log := logger.New(cfg)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

// bootLogger logs before the configured logger exists.
func bootLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Str("service", "keyfence").Logger()
}

// backend is the storage wiring chosen by STORAGE_BACKEND.
type backend struct {
	buckets   store.BucketStore
	keys      keys.Repository
	analytics analytics.Store
	queue     usage.Queue
	checks    map[string]api.Check
	close     func()
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.close()

	if cfg.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN is empty, admin endpoints are unauthenticated")
	}

	m := metrics.NewMetrics()
	policy, _ := cfg.FailurePolicy()
	limiter := store.NewLimiter(be.buckets,
		store.WithFailurePolicy(policy),
		store.WithTimeout(cfg.RateLimit.StoreTimeout),
		store.WithLogger(log),
		store.WithObserver(m),
	)

	emitter := usage.NewEmitter(be.queue, usage.EmitterConfig{
		Buffer:  cfg.Usage.EmitterBuffer,
		Workers: cfg.Usage.EmitterWorkers,
	}, log, m)

	aggregator := usage.NewAggregator(be.queue, be.analytics, usage.AggregatorConfig{
		Workers:    cfg.Usage.AggregatorWorkers,
		PopTimeout: cfg.Usage.PopTimeout,
		Backoff:    cfg.Usage.Backoff,
	}, log, m)
	if err := aggregator.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	g, err := gate.New(keys.NewAuthenticator(be.keys, nil), limiter,
		gate.WithDefaultLimit(cfg.DefaultLimit()),
		gate.WithEmitter(emitter),
		gate.WithRecorder(m),
		gate.WithLogger(log),
	)
	if err != nil {
		return err
	}

	issuer := keys.NewIssuer(be.keys, keys.IssuerConfig{
		DefaultLimit: cfg.DefaultLimit(),
		HashCost:     cfg.Keys.HashCost,
	}, log)

	admission := middleware.NewAdmission(middleware.Config{Gate: g, Logger: &log})
	router := api.NewRouter(api.RouterConfig{
		Handler:    api.NewHandler(api.HandlerConfig{Keys: issuer, Analytics: be.analytics, Logger: &log}),
		Admission:  admission.Middleware,
		Stats:      api.NewMetricsHandler(m),
		Prometheus: m.Handler(),
		Health:     api.NewHealthHandler(be.checks, 2*time.Second),
		AdminToken: cfg.AdminToken,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Addr()).
			Str("backend", cfg.StorageBackend).
			Str("failure_policy", policy.String()).
			Msg("keyfence listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := emitter.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("usage emitter did not drain")
	}
	if err := aggregator.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("aggregator did not stop cleanly")
	}

	log.Info().Msg("keyfence stopped")
	return nil
}

func connect(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*backend, error) {
	if cfg.StorageBackend == config.BackendMemory {
		log.Warn().Msg("using in-memory storage; limits and keys are not shared or persisted")
		buckets := store.NewMemoryBucketStore(nil)
		stopCleanup := buckets.StartBackgroundCleanup(memoryCleanupInterval)
		return &backend{
			buckets:   buckets,
			keys:      keys.NewMemoryRepository(),
			analytics: analytics.NewMemoryStore(),
			queue:     usage.NewMemoryQueue(cfg.Usage.EmitterBuffer * 4),
			checks:    map[string]api.Check{},
			close:     stopCleanup,
		}, nil
	}

	rdb, err := database.ConnectRedis(ctx, cfg.Redis, log)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("connected to redis")

	client, err := database.ConnectMongo(ctx, cfg.Mongo, log)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongodb")

	db := client.Database(cfg.Mongo.Database)
	keyRepo := keys.NewMongoRepository(db)
	counters := analytics.NewMongoStore(db)
	if err := ensureIndexes(ctx, keyRepo, counters); err != nil {
		closeClients(rdb, client, log)
		return nil, err
	}

	return &backend{
		buckets:   store.NewRedisBucketStore(rdb, store.RedisConfig{Prefix: cfg.RateLimit.KeyPrefix}),
		keys:      keyRepo,
		analytics: counters,
		queue:     usage.NewRedisQueue(rdb, cfg.Usage.QueueKey),
		checks: map[string]api.Check{
			"redis": database.RedisHealthcheck(rdb),
			"mongo": database.MongoHealthcheck(client),
		},
		close: func() { closeClients(rdb, client, log) },
	}, nil
}

func ensureIndexes(ctx context.Context, repo *keys.MongoRepository, counters *analytics.MongoStore) error {
	if err := repo.EnsureIndexes(ctx); err != nil {
		return err
	}
	return counters.EnsureIndexes(ctx)
}

func closeClients(rdb *redis.Client, client *mongo.Client, log zerolog.Logger) {
	if err := rdb.Close(); err != nil {
		log.Warn().Err(err).Msg("closing redis client")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		log.Warn().Err(err).Msg("closing mongodb client")
	}
}
