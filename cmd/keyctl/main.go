// Command keyctl manages API keys and reads usage directly from MongoDB.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/KanavDutta/keyfence/analytics"
	"github.com/KanavDutta/keyfence/api"
	"github.com/KanavDutta/keyfence/core"
	"github.com/KanavDutta/keyfence/database"
	"github.com/KanavDutta/keyfence/keys"
)

type CLI struct {
	MongoURI      string        `name:"mongo-uri" env:"MONGO_URI" default:"mongodb://localhost:27017" help:"MongoDB connection string."`
	MongoDatabase string        `name:"mongo-database" env:"MONGO_DATABASE" default:"keyfence" help:"MongoDB database name."`
	Timeout       time.Duration `default:"30s" help:"Overall command timeout."`
	HashCost      int           `name:"hash-cost" env:"API_KEY_SECRET_SALT_ROUNDS" default:"10" help:"bcrypt cost for new secrets."`
	DefaultLimit  int64         `name:"default-limit" env:"DEFAULT_RATE_LIMIT" default:"100" help:"Limit for keys created without --limit."`
	DefaultWindow int64         `name:"default-window" env:"DEFAULT_RATE_WINDOW_SECONDS" default:"60" help:"Window for keys created without --window."`
	Verbose       bool          `short:"v" help:"Log connection progress to stderr."`

	Create CreateCmd `cmd:"" help:"Issue a new API key."`
	Rotate RotateCmd `cmd:"" help:"Replace the secret of a key."`
	Revoke RevokeCmd `cmd:"" help:"Revoke a key."`
	List   ListCmd   `cmd:"" help:"List the keys of an owner."`
	Usage  UsageCmd  `cmd:"" help:"Summarize the usage of a key."`
}

// services is what every subcommand operates on.
type services struct {
	keys      api.KeyService
	analytics analytics.Store
	now       func() time.Time
	out       io.Writer
}

type CreateCmd struct {
	Owner  string   `required:"" help:"Owner id of the key."`
	Limit  int64    `help:"Requests per window (0 uses the default)."`
	Window int64    `help:"Window length in seconds (0 uses the default)."`
	Scope  []string `help:"Scope granted to the key (repeatable)."`
}

func (c *CreateCmd) Run(cli *CLI) error {
	return cli.with(func(ctx context.Context, s *services) error {
		return c.exec(ctx, s)
	})
}

func (c *CreateCmd) exec(ctx context.Context, s *services) error {
	issued, err := s.keys.Create(ctx, keys.CreateParams{
		OwnerID:       c.Owner,
		Limit:         c.Limit,
		WindowSeconds: c.Window,
		Scopes:        c.Scope,
	})
	if err != nil {
		return err
	}
	return s.print(issuedOutput(issued))
}

type RotateCmd struct {
	KeyID string `arg:"" name:"key-id" help:"Key to rotate."`
}

func (c *RotateCmd) Run(cli *CLI) error {
	return cli.with(func(ctx context.Context, s *services) error {
		return c.exec(ctx, s)
	})
}

func (c *RotateCmd) exec(ctx context.Context, s *services) error {
	issued, err := s.keys.Rotate(ctx, c.KeyID)
	if err != nil {
		return err
	}
	return s.print(issuedOutput(issued))
}

type RevokeCmd struct {
	KeyID string `arg:"" name:"key-id" help:"Key to revoke."`
}

func (c *RevokeCmd) Run(cli *CLI) error {
	return cli.with(func(ctx context.Context, s *services) error {
		return c.exec(ctx, s)
	})
}

func (c *RevokeCmd) exec(ctx context.Context, s *services) error {
	rec, err := s.keys.Revoke(ctx, c.KeyID)
	if err != nil {
		return err
	}
	return s.print(rec)
}

type ListCmd struct {
	Owner string `required:"" help:"Owner id whose keys to list."`
}

func (c *ListCmd) Run(cli *CLI) error {
	return cli.with(func(ctx context.Context, s *services) error {
		return c.exec(ctx, s)
	})
}

func (c *ListCmd) exec(ctx context.Context, s *services) error {
	records, err := s.keys.List(ctx, c.Owner)
	if err != nil {
		return err
	}
	if records == nil {
		records = []keys.Record{}
	}
	return s.print(records)
}

type UsageCmd struct {
	KeyID string `arg:"" name:"key-id" help:"Key to summarize."`
	Days  int    `default:"7" help:"Number of days, ending today."`
}

func (c *UsageCmd) Run(cli *CLI) error {
	return cli.with(func(ctx context.Context, s *services) error {
		return c.exec(ctx, s)
	})
}

func (c *UsageCmd) exec(ctx context.Context, s *services) error {
	if c.Days < 1 || c.Days > api.MaxAnalyticsDays {
		return fmt.Errorf("--days must be between 1 and %d", api.MaxAnalyticsDays)
	}
	now := s.now()
	rows, err := s.analytics.Range(ctx, []string{c.KeyID}, analytics.Since(c.Days, now))
	if err != nil {
		return err
	}
	return s.print(api.AnalyticsResponse{KeyID: c.KeyID, Summary: analytics.Summarize(rows, c.Days, now)})
}

// with connects to MongoDB, runs fn and disconnects.
func (cli *CLI) with(fn func(context.Context, *services) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), cli.Timeout)
	defer cancel()

	log := zerolog.Nop()
	if cli.Verbose {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	client, err := database.ConnectMongo(ctx, database.MongoConfig{
		URI:             cli.MongoURI,
		Database:        cli.MongoDatabase,
		ConnectTimeout:  10 * time.Second,
		ConnectAttempts: 1,
	}, log)
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	db := client.Database(cli.MongoDatabase)
	repo := keys.NewMongoRepository(db)
	if err := repo.EnsureIndexes(ctx); err != nil {
		return err
	}

	return fn(ctx, &services{
		keys: keys.NewIssuer(repo, keys.IssuerConfig{
			DefaultLimit: core.RateLimit{Limit: cli.DefaultLimit, WindowSeconds: cli.DefaultWindow},
			HashCost:     cli.HashCost,
		}, log),
		analytics: analytics.NewMongoStore(db),
		now:       time.Now,
		out:       os.Stdout,
	})
}

func (s *services) print(v interface{}) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func issuedOutput(issued *keys.Issued) api.KeyResponse {
	out := api.KeyResponse{KeyID: issued.KeyID, Secret: issued.Secret}
	if rec := issued.Record; rec != nil {
		out.OwnerID = rec.OwnerID
		out.Status = rec.Status
		out.Scopes = rec.Scopes
		out.RateLimit = rec.RateLimit
		out.CreatedAt = rec.CreatedAt
		out.RotatedAt = rec.RotatedAt
	}
	return out
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("keyctl"),
		kong.Description("Manage keyfence API keys"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}
