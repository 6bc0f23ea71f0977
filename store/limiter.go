package store

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/KanavDutta/keyfence/core"
)

// FailurePolicy decides what happens to a request when the bucket store fails.
type FailurePolicy int

const (
	// FailOpen admits the request with an unknown remaining count.
	FailOpen FailurePolicy = iota
	// FailClosed rejects the request and asks the client to retry after one window.
	FailClosed
)

// DefaultStoreTimeout bounds a single bucket store call.
const DefaultStoreTimeout = 250 * time.Millisecond

// String returns the configuration name of the policy.
func (p FailurePolicy) String() string {
	switch p {
	case FailClosed:
		return "closed"
	default:
		return "open"
	}
}

// ParseFailurePolicy accepts "open" or "closed" (case insensitive). Empty means open.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "open":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	default:
		return FailOpen, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Observer receives store call timings and degraded-mode decisions.
type Observer interface {
	ObserveStoreCall(elapsed time.Duration, err error)
	RecordDegraded(policy string)
}

// Limiter puts a timeout and a failure policy around a BucketStore.
// Consume never returns an error: a failing store yields a degraded decision.
type Limiter struct {
	store    BucketStore
	policy   FailurePolicy
	timeout  time.Duration
	logger   zerolog.Logger
	observer Observer
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithFailurePolicy sets the policy applied when the store fails (default FailOpen).
func WithFailurePolicy(policy FailurePolicy) LimiterOption {
	return func(l *Limiter) {
		l.policy = policy
	}
}

// WithTimeout bounds each store call. Zero or negative keeps the default.
func WithTimeout(timeout time.Duration) LimiterOption {
	return func(l *Limiter) {
		if timeout > 0 {
			l.timeout = timeout
		}
	}
}

// WithLogger sets the logger used for degraded-mode warnings.
func WithLogger(logger zerolog.Logger) LimiterOption {
	return func(l *Limiter) {
		l.logger = logger.With().Str("component", "limiter").Logger()
	}
}

// WithObserver reports store timings and degraded decisions.
func WithObserver(observer Observer) LimiterOption {
	return func(l *Limiter) {
		l.observer = observer
	}
}

// NewLimiter wraps store with the given options.
func NewLimiter(store BucketStore, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		store:   store,
		policy:  FailOpen,
		timeout: DefaultStoreTimeout,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Policy returns the configured failure policy.
func (l *Limiter) Policy() FailurePolicy {
	return l.policy
}

// Consume decides one request for keyID. Store errors and timeouts are
// turned into a decision by the failure policy and flagged Degraded.
func (l *Limiter) Consume(ctx context.Context, keyID string, limit core.RateLimit) core.Decision {
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	decision, err := l.store.Consume(callCtx, keyID, limit)
	if l.observer != nil {
		l.observer.ObserveStoreCall(time.Since(start), err)
	}
	if err == nil {
		return decision
	}

	degraded := l.degrade(limit)
	if l.observer != nil {
		l.observer.RecordDegraded(l.policy.String())
	}
	l.logger.Warn().
		Err(err).
		Str("key_id", keyID).
		Str("policy", l.policy.String()).
		Bool("degraded", true).
		Bool("allowed", degraded.Allowed).
		Msg("bucket store failed, applying failure policy")
	return degraded
}

func (l *Limiter) degrade(limit core.RateLimit) core.Decision {
	if l.policy == FailClosed {
		return core.Decision{
			Allowed:    false,
			Remaining:  0,
			Limit:      limit.Limit,
			RetryAfter: limit.Window(),
			Degraded:   true,
		}
	}
	return core.Decision{
		Allowed:   true,
		Remaining: math.Inf(1),
		Limit:     limit.Limit,
		Degraded:  true,
	}
}
