package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/KanavDutta/keyfence/cmd/demo/handlers"
	"github.com/KanavDutta/keyfence/keys"
	"github.com/KanavDutta/keyfence/middleware"
	"github.com/KanavDutta/keyfence/pkg/keyfence"
)

func main() {
	port := flag.String("port", "8080", "Port to run the server on")
	configFile := flag.String("config", "", "Path to a YAML configuration file")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	opts := []keyfence.Option{keyfence.WithDefaultLimit(20, 60), keyfence.WithLogger(log)}
	if *configFile != "" {
		log.Info().Str("path", *configFile).Msg("loading configuration")
		opts = append(opts, keyfence.WithConfigFile(*configFile))
	}

	fence, err := keyfence.New(opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create fence")
	}
	defer fence.Close(context.Background())

	ctx := context.Background()
	reader, err := fence.CreateKey(ctx, keys.CreateParams{OwnerID: "demo", Scopes: []string{"read"}})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create demo key")
	}
	writer, err := fence.CreateKey(ctx, keys.CreateParams{OwnerID: "demo", Limit: 5, Scopes: []string{"read", "write"}})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create demo key")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.Health)
	mux.Handle("GET /api/search", fence.Middleware(middleware.RequireScope("read")(http.HandlerFunc(handlers.Search))))
	mux.Handle("POST /api/create", fence.Middleware(middleware.RequireScope("write")(http.HandlerFunc(handlers.Create))))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, `keyfence demo server

Available endpoints:
  GET  /health       - Health check (no key needed)
  GET  /api/search   - needs scope "read"  (20 req/min)
  POST /api/create   - needs scope "write" (5 req/min)

Demo keys:
  reader: %s
  writer: %s

Try it:
  curl -H 'X-API-Key: %s' http://localhost:%s/api/search?q=test
  curl -X POST -H 'X-API-Key: %s' http://localhost:%s/api/create
`, reader.Secret, writer.Secret, reader.Secret, *port, writer.Secret, *port)
	})

	addr := ":" + *port
	log.Info().
		Str("addr", "http://localhost"+addr).
		Str("reader_key", reader.Secret).
		Str("writer_key", writer.Secret).
		Msg("demo server starting")

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
