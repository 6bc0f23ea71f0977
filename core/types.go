package core

import (
	"fmt"
	"math"
	"time"
)

// RateLimit is the admission policy of a single API key: up to Limit requests
// per WindowSeconds, refilled continuously at Limit/WindowSeconds tokens per second.
type RateLimit struct {
	Limit         int64 `json:"limit" bson:"limit" yaml:"limit"`
	WindowSeconds int64 `json:"windowSeconds" bson:"windowSeconds" yaml:"window_seconds"`
}

// Validate reports whether the policy can drive a bucket.
func (rl RateLimit) Validate() error {
	if rl.Limit <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidLimit, rl.Limit)
	}
	if rl.WindowSeconds <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidWindow, rl.WindowSeconds)
	}
	return nil
}

// Capacity is the maximum number of tokens (burst size).
func (rl RateLimit) Capacity() float64 {
	return float64(rl.Limit)
}

// RefillPerSecond is the constant refill rate; the bucket refills to full
// exactly once per window.
func (rl RateLimit) RefillPerSecond() float64 {
	return float64(rl.Limit) / float64(rl.WindowSeconds)
}

// Window returns the window as a duration.
func (rl RateLimit) Window() time.Duration {
	return time.Duration(rl.WindowSeconds) * time.Second
}

// TTL is how long an idle bucket is worth keeping: two windows.
// After that the bucket would be full anyway, so dropping it loses nothing.
func (rl RateLimit) TTL() time.Duration {
	return 2 * rl.Window()
}

// BucketState represents the current state of a token bucket
type BucketState struct {
	Tokens       float64   // Current tokens available
	LastRefillAt time.Time // Last time tokens were refilled
}

// Decision contains the result of a single admission check
type Decision struct {
	Allowed    bool          // Whether the request is admitted
	Remaining  float64       // Tokens left after this decision, +Inf when unknown
	Limit      int64         // Bucket capacity
	RetryAfter time.Duration // Time until one token is available (zero when allowed)
	Degraded   bool          // Set when the decision came from the failure policy, not the bucket
}

// Unlimited reports whether Remaining carries no information (fail-open decisions).
func (d Decision) Unlimited() bool {
	return math.IsInf(d.Remaining, 1)
}
