package store

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/KanavDutta/keyfence/core"
)

// DefaultKeyPrefix namespaces bucket hashes in Redis.
const DefaultKeyPrefix = "rate:"

// tokenBucketLua refills, decides and writes one bucket inside Redis, so the
// sequence is atomic with respect to every other client of the same key.
//
// KEYS[1] bucket hash
// ARGV[1] capacity, ARGV[2] refill rate (tokens/sec), ARGV[3] now (float seconds), ARGV[4] ttl seconds
//
// An empty ARGV[3] makes the script read the Redis server clock, so every
// instance sharing the bucket agrees on elapsed time. A missing hash is a full bucket. Returns {allowed, tokens}; tokens travel as
// a string because Redis truncates Lua numbers to integers.
const tokenBucketLua = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
if now == nil then
	local t = redis.call("TIME")
	now = tonumber(t[1]) + tonumber(t[2]) / 1000000
end
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last")
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
	tokens = capacity
	last = now
end

local elapsed = math.max(0, now - last)
tokens = math.min(capacity, tokens + elapsed * rate)
if tokens < 0 then
	tokens = 0
end

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call("HSET", key, "tokens", tostring(tokens), "last", tostring(now))
redis.call("EXPIRE", key, ttl)

return {allowed, tostring(tokens)}
`

// RedisBucketStore keeps bucket state in Redis hashes and mutates it only
// through a server-side script, which makes it safe to share between many
// service instances.
type RedisBucketStore struct {
	client redis.Scripter
	script *redis.Script
	prefix string
	now    func() time.Time
}

// Ensure RedisBucketStore implements BucketStore interface
var _ BucketStore = (*RedisBucketStore)(nil)

// RedisConfig for creating a Redis bucket store
type RedisConfig struct {
	Prefix string           // Key prefix (default: "rate:")
	Clock  func() time.Time // Time source (default: Redis server TIME)
}

// NewRedisBucketStore creates a Redis-backed bucket store on top of an existing client.
func NewRedisBucketStore(client redis.Scripter, config RedisConfig) *RedisBucketStore {
	if config.Prefix == "" {
		config.Prefix = DefaultKeyPrefix
	}
	return &RedisBucketStore{
		client: client,
		script: redis.NewScript(tokenBucketLua),
		prefix: config.Prefix,
		now:    config.Clock,
	}
}

// Consume runs the token bucket script for keyID.
// The script is sent by SHA and re-sent in full only when Redis does not know it yet.
func (s *RedisBucketStore) Consume(ctx context.Context, keyID string, limit core.RateLimit) (core.Decision, error) {
	if keyID == "" {
		return core.Decision{}, ErrInvalidKey
	}
	if err := limit.Validate(); err != nil {
		return core.Decision{}, err
	}

	now := ""
	if s.now != nil {
		now = strconv.FormatFloat(float64(s.now().UnixNano())/1e9, 'f', -1, 64)
	}
	ttl := int64(math.Ceil(limit.TTL().Seconds()))

	res, err := s.script.Run(ctx, s.client, []string{s.prefix + keyID},
		limit.Limit, limit.RefillPerSecond(), now, ttl).Result()
	if err != nil {
		return core.Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	allowed, tokens, err := parseScriptReply(res)
	if err != nil {
		return core.Decision{}, err
	}

	decision := core.Decision{
		Allowed:   allowed,
		Remaining: tokens,
		Limit:     limit.Limit,
	}
	if !allowed {
		decision.RetryAfter = core.RetryAfter(tokens, limit.RefillPerSecond())
	}
	return decision, nil
}

func parseScriptReply(res interface{}) (bool, float64, error) {
	arr, ok := res.([]interface{})
	if !ok || len(arr) != 2 {
		return false, 0, fmt.Errorf("%w: %v", ErrUnexpectedReply, res)
	}

	flag, ok := arr[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("%w: allowed flag %v", ErrUnexpectedReply, arr[0])
	}

	raw, ok := arr[1].(string)
	if !ok {
		return false, 0, fmt.Errorf("%w: tokens %v", ErrUnexpectedReply, arr[1])
	}
	tokens, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return false, 0, fmt.Errorf("%w: tokens %q", ErrUnexpectedReply, raw)
	}

	return flag == 1, tokens, nil
}
