package keyfence

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/KanavDutta/keyfence/analytics"
	"github.com/KanavDutta/keyfence/gate"
	"github.com/KanavDutta/keyfence/keys"
	"github.com/KanavDutta/keyfence/metrics"
	"github.com/KanavDutta/keyfence/middleware"
	"github.com/KanavDutta/keyfence/store"
	"github.com/KanavDutta/keyfence/usage"
)

// Fence wires key issuance, admission and usage counting together.
type Fence struct {
	issuer     *keys.Issuer
	gate       *gate.Gate
	admission  *middleware.Admission
	emitter    *usage.Emitter
	aggregator *usage.Aggregator
	analytics  analytics.Store
	metrics    *metrics.Metrics
	settings   *settings

	stopCleanup func()
	closeOnce   sync.Once
	closeErr    error
}

// New builds and starts a Fence.
func New(opts ...Option) (*Fence, error) {
	s := defaultSettings()
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	stopCleanup := func() {}
	if s.buckets == nil {
		mem := store.NewMemoryBucketStore(s.clock)
		stopCleanup = mem.StartBackgroundCleanup(s.cleanupInterval)
		s.buckets = mem
	}
	if s.repo == nil {
		s.repo = keys.NewMemoryRepository()
	}
	if s.analytics == nil {
		s.analytics = analytics.NewMemoryStore()
	}

	m := metrics.NewMetrics()
	limiter := store.NewLimiter(s.buckets,
		store.WithFailurePolicy(s.policy),
		store.WithTimeout(s.storeTimeout),
		store.WithLogger(s.log),
		store.WithObserver(m),
	)

	queue := usage.NewMemoryQueue(s.emitterBuffer * 4)
	emitter := usage.NewEmitter(queue, usage.EmitterConfig{Buffer: s.emitterBuffer}, s.log, m)
	aggregator := usage.NewAggregator(queue, s.analytics, usage.AggregatorConfig{}, s.log, m)

	g, err := gate.New(keys.NewAuthenticator(s.repo, nil), limiter,
		gate.WithDefaultLimit(s.limit),
		gate.WithEmitter(emitter),
		gate.WithRecorder(m),
		gate.WithLogger(s.log),
		gate.WithClock(s.clock),
	)
	if err != nil {
		stopCleanup()
		return nil, err
	}
	if err := aggregator.Start(context.Background()); err != nil {
		stopCleanup()
		return nil, err
	}

	return &Fence{
		issuer: keys.NewIssuer(s.repo, keys.IssuerConfig{
			DefaultLimit: s.limit,
			HashCost:     s.hashCost,
			Clock:        s.clock,
		}, s.log),
		gate:        g,
		admission:   middleware.NewAdmission(middleware.Config{Gate: g, Extractor: s.extractor, Logger: &s.log}),
		emitter:     emitter,
		aggregator:  aggregator,
		analytics:   s.analytics,
		metrics:     m,
		settings:    s,
		stopCleanup: stopCleanup,
	}, nil
}

// CreateKey issues a key. The returned Secret is the full credential.
func (f *Fence) CreateKey(ctx context.Context, params keys.CreateParams) (*keys.Issued, error) {
	return f.issuer.Create(ctx, params)
}

// RotateKey replaces the secret of keyID.
func (f *Fence) RotateKey(ctx context.Context, keyID string) (*keys.Issued, error) {
	return f.issuer.Rotate(ctx, keyID)
}

// RevokeKey stops keyID from authenticating.
func (f *Fence) RevokeKey(ctx context.Context, keyID string) error {
	_, err := f.issuer.Revoke(ctx, keyID)
	return err
}

// Admit authenticates credential and consumes one token of its key.
func (f *Fence) Admit(ctx context.Context, credential string, meta gate.RequestMeta) (*gate.Result, error) {
	return f.gate.Admit(ctx, credential, meta)
}

// Middleware wraps next with admission control.
func (f *Fence) Middleware(next http.Handler) http.Handler {
	return f.admission.Middleware(next)
}

// Usage summarizes the last days of keyID's traffic. Counts lag admissions slightly.
func (f *Fence) Usage(ctx context.Context, keyID string, days int) (analytics.Summary, error) {
	now := f.settings.clock()
	rows, err := f.analytics.Range(ctx, []string{keyID}, analytics.Since(days, now))
	if err != nil {
		return analytics.Summary{}, err
	}
	return analytics.Summarize(rows, days, now), nil
}

// Stats returns admission counters since New.
func (f *Fence) Stats() *metrics.Snapshot {
	return f.metrics.GetSnapshot()
}

// Close drains pending usage events and stops the background workers.
func (f *Fence) Close(ctx context.Context) error {
	f.closeOnce.Do(func() {
		f.stopCleanup()
		if err := f.emitter.Close(ctx); err != nil {
			f.closeErr = err
		}
		if err := f.aggregator.Stop(ctx); err != nil && f.closeErr == nil {
			f.closeErr = err
		}
	})
	return f.closeErr
}
