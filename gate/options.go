package gate

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/KanavDutta/keyfence/core"
)

// Option is a functional option for configuring a Gate.
type Option func(*Gate) error

// WithDefaultLimit sets the limit applied to keys without a usable one of their own.
func WithDefaultLimit(limit core.RateLimit) Option {
	return func(g *Gate) error {
		if err := limit.Validate(); err != nil {
			return fmt.Errorf("%w: default limit: %v", ErrInvalidConfig, err)
		}
		g.defaultLimit = limit
		return nil
	}
}

// WithEmitter sets where usage events go. Without one, no events are emitted.
func WithEmitter(emitter Emitter) Option {
	return func(g *Gate) error {
		if emitter == nil {
			return fmt.Errorf("%w: emitter cannot be nil", ErrInvalidConfig)
		}
		g.emitter = emitter
		return nil
	}
}

// WithRecorder reports every admission outcome, e.g. to metrics.
func WithRecorder(recorder Recorder) Option {
	return func(g *Gate) error {
		if recorder == nil {
			return fmt.Errorf("%w: recorder cannot be nil", ErrInvalidConfig)
		}
		g.recorder = recorder
		return nil
	}
}

// WithLogger sets the gate logger.
func WithLogger(log zerolog.Logger) Option {
	return func(g *Gate) error {
		g.log = log.With().Str("component", "admission-gate").Logger()
		return nil
	}
}

// WithClock sets the time source used to stamp usage events.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) error {
		if now == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfig)
		}
		g.now = now
		return nil
	}
}
