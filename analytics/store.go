package analytics

import (
	"context"
	"time"
)

// Store persists per-key daily counters.
type Store interface {
	// Increment atomically adds one to field and to totalCalls of the
	// (apiKeyID, day) row, creating the row if needed.
	Increment(ctx context.Context, apiKeyID, ownerID string, day time.Time, field Field) error

	// Range returns the rows of keyIDs dated on or after since, oldest first.
	Range(ctx context.Context, keyIDs []string, since time.Time) ([]Counter, error)
}
