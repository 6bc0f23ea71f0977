package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/KanavDutta/keyfence/core"
	"github.com/KanavDutta/keyfence/keys"
	"github.com/KanavDutta/keyfence/usage"
)

// DefaultLimit is used when neither the key nor WithDefaultLimit provides one.
var DefaultLimit = core.RateLimit{Limit: 100, WindowSeconds: 60}

// Outcomes reported to the Recorder.
const (
	OutcomeAllowed      = "allowed"
	OutcomeRateLimited  = "rate_limited"
	OutcomeUnauthorized = "unauthorized"
	OutcomeError        = "error"
)

// Authenticator resolves a credential to an active key.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*keys.Record, error)
}

// Limiter decides admission for a key. It must not fail; store faults are
// folded into the decision.
type Limiter interface {
	Consume(ctx context.Context, keyID string, limit core.RateLimit) core.Decision
}

// Emitter accepts usage events without blocking.
type Emitter interface {
	Emit(ev usage.Event) error
}

// Recorder observes admission outcomes.
type Recorder interface {
	RecordAdmission(keyID, outcome string, degraded bool)
}

// RequestMeta describes the request being admitted; it is copied into usage events.
type RequestMeta struct {
	Method string
	Path   string
	IP     string
}

// Result is the outcome of an admitted-or-rejected request for a valid key.
type Result struct {
	Allowed           bool
	KeyID             string
	OwnerID           string
	Scopes            []string
	Limit             core.RateLimit
	Remaining         float64 // +Inf when the bucket store was unavailable and the gate failed open
	RetryAfterSeconds int64   // set when rejected: one full window
	Degraded          bool
}

// Gate authenticates a credential, consumes a token from the key's bucket
// and emits a usage event for the attempt.
type Gate struct {
	auth         Authenticator
	limiter      Limiter
	emitter      Emitter
	recorder     Recorder
	defaultLimit core.RateLimit
	log          zerolog.Logger
	now          func() time.Time
}

// New creates a gate.
func New(auth Authenticator, limiter Limiter, opts ...Option) (*Gate, error) {
	if auth == nil || limiter == nil {
		return nil, fmt.Errorf("%w: authenticator and limiter are required", ErrInvalidConfig)
	}

	g := &Gate{
		auth:         auth,
		limiter:      limiter,
		defaultLimit: DefaultLimit,
		log:          zerolog.Nop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Admit runs the admission sequence for one request.
//
// Authentication failures are returned as errors matching keys.ErrUnauthorized
// and never touch the bucket store. A key store outage is returned wrapped in
// keys.ErrKeyStoreUnavailable. Otherwise Admit returns a Result whether the
// request was admitted or rate limited.
func (g *Gate) Admit(ctx context.Context, credential string, meta RequestMeta) (*Result, error) {
	rec, err := g.auth.Authenticate(ctx, credential)
	if err != nil {
		var authErr *keys.AuthError
		if errors.As(err, &authErr) {
			if authErr.KeyID != "" {
				g.emit(authErr.KeyID, authErr.OwnerID, usage.OutcomeFailed, meta)
			}
			g.record(authErr.KeyID, OutcomeUnauthorized, false)
			return nil, err
		}
		g.log.Error().Err(err).Msg("key lookup failed")
		g.record("", OutcomeError, false)
		return nil, err
	}

	limit := g.EffectiveLimit(rec)
	decision := g.limiter.Consume(ctx, rec.KeyID, limit)

	result := &Result{
		Allowed:   decision.Allowed,
		KeyID:     rec.KeyID,
		OwnerID:   rec.OwnerID,
		Scopes:    rec.Scopes,
		Limit:     limit,
		Remaining: decision.Remaining,
		Degraded:  decision.Degraded,
	}

	if !decision.Allowed {
		result.RetryAfterSeconds = limit.WindowSeconds
		g.emit(rec.KeyID, rec.OwnerID, usage.OutcomeRateLimited, meta)
		g.record(rec.KeyID, OutcomeRateLimited, decision.Degraded)
		return result, nil
	}

	g.emit(rec.KeyID, rec.OwnerID, usage.OutcomeSuccess, meta)
	g.record(rec.KeyID, OutcomeAllowed, decision.Degraded)
	return result, nil
}

// EffectiveLimit is the key's own limit when valid, otherwise the default.
func (g *Gate) EffectiveLimit(rec *keys.Record) core.RateLimit {
	if rec != nil && rec.RateLimit.Validate() == nil {
		return rec.RateLimit
	}
	return g.defaultLimit
}

func (g *Gate) emit(keyID, ownerID string, outcome usage.Outcome, meta RequestMeta) {
	if g.emitter == nil {
		return
	}
	err := g.emitter.Emit(usage.Event{
		KeyID:     keyID,
		OwnerID:   ownerID,
		Timestamp: g.now().UTC(),
		Outcome:   outcome,
		Method:    meta.Method,
		Path:      meta.Path,
		IP:        meta.IP,
	})
	if err != nil {
		g.log.Warn().Err(err).Str("key_id", keyID).Str("outcome", string(outcome)).Msg("usage event not recorded")
	}
}

func (g *Gate) record(keyID, outcome string, degraded bool) {
	if g.recorder != nil {
		g.recorder.RecordAdmission(keyID, outcome, degraded)
	}
}
