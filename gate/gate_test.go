package gate

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/KanavDutta/keyfence/core"
	"github.com/KanavDutta/keyfence/keys"
	"github.com/KanavDutta/keyfence/store"
	"github.com/KanavDutta/keyfence/usage"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []usage.Event
	err    error
}

func (c *captureEmitter) Emit(ev usage.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return c.err
}

func (c *captureEmitter) outcomes() []usage.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]usage.Outcome, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Outcome)
	}
	return out
}

// spyStore counts calls that reach the bucket store.
type spyStore struct {
	store.BucketStore
	calls int
}

func (s *spyStore) Consume(ctx context.Context, keyID string, limit core.RateLimit) (core.Decision, error) {
	s.calls++
	return s.BucketStore.Consume(ctx, keyID, limit)
}

type downStore struct{}

func (downStore) Consume(context.Context, string, core.RateLimit) (core.Decision, error) {
	return core.Decision{}, store.ErrStoreUnavailable
}

type brokenKeys struct{}

func (brokenKeys) Lookup(context.Context, string) (*keys.Record, error) {
	return nil, keys.ErrKeyStoreUnavailable
}

type recorder struct {
	outcomes []string
}

func (r *recorder) RecordAdmission(_ string, outcome string, _ bool) {
	r.outcomes = append(r.outcomes, outcome)
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func seed(t *testing.T, repo *keys.MemoryRepository, keyID, secret string, status keys.Status, limit core.RateLimit) string {
	t.Helper()
	hash, err := keys.HashSecret(secret, bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(context.Background(), &keys.Record{
		KeyID:      keyID,
		SecretHash: hash,
		OwnerID:    "owner-1",
		Status:     status,
		Scopes:     []string{"read"},
		RateLimit:  limit,
	}))
	return keys.FormatCredential(keyID, secret)
}

func TestGate_WindowScenario(t *testing.T) {
	repo := keys.NewMemoryRepository()
	cred := seed(t, repo, "k_abc123", "secret-with-dots.more", keys.StatusActive, core.RateLimit{Limit: 10, WindowSeconds: 60})
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	emitter := &captureEmitter{}

	g, err := New(
		keys.NewAuthenticator(repo, nil),
		store.NewLimiter(store.NewMemoryBucketStore(clk.Now)),
		WithEmitter(emitter),
		WithClock(clk.Now),
	)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		res, err := g.Admit(ctx, "ApiKey "+cred, RequestMeta{Method: "GET", Path: "/v1/whoami", IP: "203.0.113.7"})
		require.NoError(t, err)
		require.True(t, res.Allowed, "request %d", i+1)
		clk.Advance(50 * time.Millisecond)
	}

	res, err := g.Admit(ctx, cred, RequestMeta{})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(60), res.RetryAfterSeconds)

	clk.Advance(6*time.Second + time.Millisecond)
	res, err = g.Admit(ctx, cred, RequestMeta{})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, "owner-1", res.OwnerID)

	res, err = g.Admit(ctx, cred, RequestMeta{})
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	outcomes := emitter.outcomes()
	require.Len(t, outcomes, 13)
	assert.Equal(t, usage.OutcomeSuccess, outcomes[0])
	assert.Equal(t, usage.OutcomeRateLimited, outcomes[10])
	assert.Equal(t, usage.OutcomeSuccess, outcomes[11])
	assert.Equal(t, usage.OutcomeRateLimited, outcomes[12])
	assert.Equal(t, "/v1/whoami", emitter.events[0].Path)
	assert.Equal(t, "203.0.113.7", emitter.events[0].IP)
}

func TestGate_RevokedKeyNeverReachesBucketStore(t *testing.T) {
	repo := keys.NewMemoryRepository()
	cred := seed(t, repo, "k_revoked", "s3cret", keys.StatusRevoked, core.RateLimit{Limit: 10, WindowSeconds: 60})
	spy := &spyStore{BucketStore: store.NewMemoryBucketStore(nil)}
	emitter := &captureEmitter{}
	rec := &recorder{}

	g, err := New(keys.NewAuthenticator(repo, nil), store.NewLimiter(spy), WithEmitter(emitter), WithRecorder(rec))
	require.NoError(t, err)

	res, err := g.Admit(context.Background(), cred, RequestMeta{})

	assert.Nil(t, res)
	assert.ErrorIs(t, err, keys.ErrUnauthorized)
	assert.Zero(t, spy.calls)
	assert.Equal(t, []usage.Outcome{usage.OutcomeFailed}, emitter.outcomes())
	assert.Equal(t, "k_revoked", emitter.events[0].KeyID)
	assert.Equal(t, []string{OutcomeUnauthorized}, rec.outcomes)
}

func TestGate_UnknownKeyEmitsNothing(t *testing.T) {
	emitter := &captureEmitter{}
	g, err := New(keys.NewAuthenticator(keys.NewMemoryRepository(), nil),
		store.NewLimiter(store.NewMemoryBucketStore(nil)), WithEmitter(emitter))
	require.NoError(t, err)

	for _, cred := range []string{"", "k_ghost.s3cret"} {
		_, err := g.Admit(context.Background(), cred, RequestMeta{})
		assert.ErrorIs(t, err, keys.ErrUnauthorized)
	}
	assert.Empty(t, emitter.outcomes())
}

func TestGate_FailOpen(t *testing.T) {
	repo := keys.NewMemoryRepository()
	cred := seed(t, repo, "k_open", "s3cret", keys.StatusActive, core.RateLimit{Limit: 1, WindowSeconds: 60})

	g, err := New(keys.NewAuthenticator(repo, nil), store.NewLimiter(downStore{}))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := g.Admit(context.Background(), cred, RequestMeta{})
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.True(t, res.Degraded)
		assert.True(t, math.IsInf(res.Remaining, 1))
	}
}

func TestGate_FailClosed(t *testing.T) {
	repo := keys.NewMemoryRepository()
	cred := seed(t, repo, "k_closed", "s3cret", keys.StatusActive, core.RateLimit{Limit: 5, WindowSeconds: 30})

	g, err := New(keys.NewAuthenticator(repo, nil), store.NewLimiter(downStore{}, store.WithFailurePolicy(store.FailClosed)))
	require.NoError(t, err)

	res, err := g.Admit(context.Background(), cred, RequestMeta{})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(30), res.RetryAfterSeconds)
}

func TestGate_InvalidKeyLimitFallsBackToDefault(t *testing.T) {
	repo := keys.NewMemoryRepository()
	cred := seed(t, repo, "k_nolimit", "s3cret", keys.StatusActive, core.RateLimit{})

	g, err := New(keys.NewAuthenticator(repo, nil), store.NewLimiter(store.NewMemoryBucketStore(nil)),
		WithDefaultLimit(core.RateLimit{Limit: 2, WindowSeconds: 60}))
	require.NoError(t, err)

	var allowed int
	for i := 0; i < 5; i++ {
		res, err := g.Admit(context.Background(), cred, RequestMeta{})
		require.NoError(t, err)
		if res.Allowed {
			allowed++
		}
		assert.Equal(t, core.RateLimit{Limit: 2, WindowSeconds: 60}, res.Limit)
	}
	assert.Equal(t, 2, allowed)
}

func TestGate_EmitFailureIsSwallowed(t *testing.T) {
	repo := keys.NewMemoryRepository()
	cred := seed(t, repo, "k_emit", "s3cret", keys.StatusActive, core.RateLimit{Limit: 5, WindowSeconds: 60})

	g, err := New(keys.NewAuthenticator(repo, nil), store.NewLimiter(store.NewMemoryBucketStore(nil)),
		WithEmitter(&captureEmitter{err: usage.ErrQueueFull}))
	require.NoError(t, err)

	res, err := g.Admit(context.Background(), cred, RequestMeta{})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestGate_KeyStoreOutage(t *testing.T) {
	rec := &recorder{}
	g, err := New(keys.NewAuthenticator(brokenKeys{}, nil), store.NewLimiter(store.NewMemoryBucketStore(nil)), WithRecorder(rec))
	require.NoError(t, err)

	_, err = g.Admit(context.Background(), "k_any.s3cret", RequestMeta{})

	assert.ErrorIs(t, err, keys.ErrKeyStoreUnavailable)
	assert.False(t, errors.Is(err, keys.ErrUnauthorized))
	assert.Equal(t, []string{OutcomeError}, rec.outcomes)
}

func TestNew_ValidatesOptions(t *testing.T) {
	auth := keys.NewAuthenticator(keys.NewMemoryRepository(), nil)
	limiter := store.NewLimiter(store.NewMemoryBucketStore(nil))

	_, err := New(nil, limiter)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(auth, limiter, WithDefaultLimit(core.RateLimit{Limit: 0, WindowSeconds: 60}))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(auth, limiter, WithEmitter(nil))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	info := InfoFromResult(&Result{KeyID: "k_1", OwnerID: "o", Scopes: []string{"read"}, Remaining: 3})
	got, ok := FromContext(NewContext(context.Background(), info))
	require.True(t, ok)
	assert.Equal(t, "k_1", got.KeyID)
	assert.True(t, got.HasScope("read"))
	assert.False(t, got.HasScope("admin"))
}
