package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/KanavDutta/keyfence/analytics"
	"github.com/KanavDutta/keyfence/api"
	"github.com/KanavDutta/keyfence/core"
	"github.com/KanavDutta/keyfence/keys"
)

func newTestServices(t *testing.T) (*services, *bytes.Buffer, *analytics.MemoryStore) {
	t.Helper()
	repo := keys.NewMemoryRepository()
	store := analytics.NewMemoryStore()
	out := &bytes.Buffer{}
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return &services{
		keys: keys.NewIssuer(repo, keys.IssuerConfig{
			DefaultLimit: core.RateLimit{Limit: 100, WindowSeconds: 60},
			HashCost:     bcrypt.MinCost,
		}, zerolog.Nop()),
		analytics: store,
		now:       func() time.Time { return now },
		out:       out,
	}, out, store
}

func TestCreateListRevoke(t *testing.T) {
	s, out, _ := newTestServices(t)
	ctx := context.Background()

	require.NoError(t, (&CreateCmd{Owner: "user-1", Limit: 5, Scope: []string{"read"}}).exec(ctx, s))
	var created api.KeyResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &created))
	assert.NotEmpty(t, created.Secret)
	assert.Equal(t, core.RateLimit{Limit: 5, WindowSeconds: 60}, created.RateLimit)
	assert.Equal(t, []string{"read"}, created.Scopes)

	out.Reset()
	require.NoError(t, (&ListCmd{Owner: "user-1"}).exec(ctx, s))
	var listed []keys.Record
	require.NoError(t, json.Unmarshal(out.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, created.KeyID, listed[0].KeyID)

	out.Reset()
	require.NoError(t, (&RevokeCmd{KeyID: created.KeyID}).exec(ctx, s))
	var revoked keys.Record
	require.NoError(t, json.Unmarshal(out.Bytes(), &revoked))
	assert.Equal(t, keys.StatusRevoked, revoked.Status)

	assert.ErrorIs(t, (&RotateCmd{KeyID: "k_missing"}).exec(ctx, s), keys.ErrKeyNotFound)
}

func TestUsage(t *testing.T) {
	s, out, store := newTestServices(t)
	ctx := context.Background()
	day := analytics.Day(s.now())

	require.NoError(t, store.Increment(ctx, "k_usage", "user-1", day, analytics.FieldSuccessful))
	require.NoError(t, store.Increment(ctx, "k_usage", "user-1", day, analytics.FieldRateLimited))

	require.NoError(t, (&UsageCmd{KeyID: "k_usage", Days: 3}).exec(ctx, s))
	var summary api.AnalyticsResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, int64(2), summary.TotalCalls)
	assert.Equal(t, int64(1), summary.RateLimitedCalls)
	assert.Len(t, summary.Daily, 3)

	assert.Error(t, (&UsageCmd{KeyID: "k_usage", Days: 0}).exec(ctx, s))
}

func TestCLIParsing(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("keyctl"))
	require.NoError(t, err)

	kctx, err := parser.Parse([]string{"create", "--owner", "user-1", "--scope", "read,write", "--limit", "10"})
	require.NoError(t, err)
	assert.Equal(t, "create", kctx.Command())
	assert.Equal(t, "user-1", cli.Create.Owner)
	assert.Equal(t, []string{"read", "write"}, cli.Create.Scope)
	assert.Equal(t, int64(10), cli.Create.Limit)
	assert.Equal(t, 30*time.Second, cli.Timeout)

	kctx, err = parser.Parse([]string{"usage", "k_abc", "--days", "14"})
	require.NoError(t, err)
	assert.Equal(t, "usage <key-id>", kctx.Command())
	assert.Equal(t, 14, cli.Usage.Days)

	_, err = parser.Parse([]string{"list"})
	assert.Error(t, err, "--owner is required")
}
