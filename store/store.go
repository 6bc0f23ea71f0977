package store

import (
	"context"

	"github.com/KanavDutta/keyfence/core"
)

// BucketStore defines the interface for shared token bucket state.
//
// Consume must run the whole read-refill-decide-write sequence for keyID as a
// single atomic operation: two concurrent calls for the same key never both
// act on the same pre-refill state.
type BucketStore interface {
	Consume(ctx context.Context, keyID string, limit core.RateLimit) (core.Decision, error)
}
