package core

import (
	"math"
	"time"
)

// TokenBucket applies the token bucket algorithm for one RateLimit.
// It holds no state of its own; callers own BucketState and must serialize
// Check calls for the same key.
type TokenBucket struct {
	limit RateLimit
}

// NewTokenBucket creates a token bucket for the given policy
func NewTokenBucket(limit RateLimit) (*TokenBucket, error) {
	if err := limit.Validate(); err != nil {
		return nil, err
	}
	return &TokenBucket{limit: limit}, nil
}

// Limit returns the policy the bucket enforces.
func (tb *TokenBucket) Limit() RateLimit {
	return tb.limit
}

// Check decides one request against state at time now.
// A nil state is a bucket seen for the first time.
func (tb *TokenBucket) Check(state *BucketState, now time.Time) (*BucketState, Decision) {
	decision, next := Decide(state, tb.limit.Capacity(), tb.limit.RefillPerSecond(), now)
	return &next, decision
}

// Decide refills the bucket for the time elapsed since its last refill and
// then admits the request if at least one whole token is available.
//
// A nil state is treated as a full bucket, so the first request for a key is
// admitted and leaves capacity-1 tokens. LastRefillAt always moves to now,
// whatever the outcome, so rejected bursts do not starve the refill.
func Decide(state *BucketState, capacity, refillPerSec float64, now time.Time) (Decision, BucketState) {
	tokens, last := capacity, now
	if state != nil {
		tokens, last = state.Tokens, state.LastRefillAt
	}

	elapsed := now.Sub(last).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	refilled := math.Min(capacity, tokens+elapsed*refillPerSec)
	if refilled < 0 {
		refilled = 0
	}

	next := BucketState{Tokens: refilled, LastRefillAt: now}
	decision := Decision{Limit: int64(capacity)}

	if refilled >= 1 {
		next.Tokens = refilled - 1
		decision.Allowed = true
		decision.Remaining = next.Tokens
		return decision, next
	}

	decision.Remaining = refilled
	decision.RetryAfter = RetryAfter(refilled, refillPerSec)
	return decision, next
}

// RetryAfter is the time needed to refill from tokens up to one whole token.
func RetryAfter(tokens, refillPerSec float64) time.Duration {
	if refillPerSec <= 0 {
		return 0
	}
	seconds := (1.0 - tokens) / refillPerSec
	return time.Duration(math.Ceil(seconds * float64(time.Second)))
}
