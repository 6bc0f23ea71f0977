package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// MongoConfig configures the MongoDB client holding keys and analytics.
type MongoConfig struct {
	URI             string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017" yaml:"uri"`
	Database        string        `env:"MONGO_DATABASE" envDefault:"keyfence" yaml:"database"`
	ConnectTimeout  time.Duration `env:"MONGO_CONNECT_TIMEOUT" envDefault:"10s" yaml:"connect_timeout"`
	ConnectAttempts int           `env:"MONGO_CONNECT_ATTEMPTS" envDefault:"3" yaml:"connect_attempts"`
	ConnectInterval time.Duration `env:"MONGO_CONNECT_INTERVAL" envDefault:"5s" yaml:"connect_interval"`
}

// ConnectMongo connects and pings MongoDB, retrying cold starts.
func ConnectMongo(ctx context.Context, cfg MongoConfig, log zerolog.Logger) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, ErrEmptyConnectionURL
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToConnectToMongo, err)
	}

	if err := retry(ctx, cfg.ConnectAttempts, cfg.ConnectInterval, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		return client.Ping(pingCtx, readpref.Primary())
	}, log.With().Str("component", "mongo").Logger()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: %v", ErrFailedToConnectToMongo, err)
	}
	return client, nil
}

// MongoHealthcheck returns a probe that pings the primary.
func MongoHealthcheck(client *mongo.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			return fmt.Errorf("%w: mongo: %v", ErrHealthcheckFailed, err)
		}
		return nil
	}
}
