package store

import (
	"context"
	"sync"
	"time"

	"github.com/KanavDutta/keyfence/core"
)

// MemoryBucketStore keeps bucket state in process memory.
// It is safe for concurrent use but only limits a single instance; use
// RedisBucketStore when several instances share keys.
type MemoryBucketStore struct {
	buckets map[string]*bucketEntry
	mu      sync.RWMutex
	now     func() time.Time
}

// bucketEntry wraps one bucket with its own lock and expiry.
type bucketEntry struct {
	mu      sync.Mutex
	state   *core.BucketState
	expires time.Time
	removed bool
}

// Ensure MemoryBucketStore implements BucketStore interface
var _ BucketStore = (*MemoryBucketStore)(nil)

// NewMemoryBucketStore creates an empty in-memory store. A nil clock means time.Now.
func NewMemoryBucketStore(clock func() time.Time) *MemoryBucketStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryBucketStore{
		buckets: make(map[string]*bucketEntry),
		now:     clock,
	}
}

// Consume decides one request for keyID under the bucket's lock.
func (s *MemoryBucketStore) Consume(_ context.Context, keyID string, limit core.RateLimit) (core.Decision, error) {
	if keyID == "" {
		return core.Decision{}, ErrInvalidKey
	}
	bucket, err := core.NewTokenBucket(limit)
	if err != nil {
		return core.Decision{}, err
	}

	for {
		entry := s.entry(keyID)

		entry.mu.Lock()
		if entry.removed {
			// lost a race with Cleanup; the map now holds a fresh entry
			entry.mu.Unlock()
			continue
		}
		decision := s.consumeLocked(entry, bucket)
		entry.mu.Unlock()
		return decision, nil
	}
}

func (s *MemoryBucketStore) consumeLocked(entry *bucketEntry, bucket *core.TokenBucket) core.Decision {
	now := s.now()
	state := entry.state
	if state != nil && !entry.expires.IsZero() && now.After(entry.expires) {
		state = nil
	}

	next, decision := bucket.Check(state, now)
	entry.state = next
	entry.expires = now.Add(bucket.Limit().TTL())
	return decision
}

// entry returns the entry for keyID, creating it if needed.
func (s *MemoryBucketStore) entry(keyID string) *bucketEntry {
	// Fast path: bucket exists
	s.mu.RLock()
	entry, ok := s.buckets[keyID]
	s.mu.RUnlock()
	if ok {
		return entry
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check: another goroutine might have created it
	if entry, ok = s.buckets[keyID]; ok {
		return entry
	}
	entry = &bucketEntry{}
	s.buckets[keyID] = entry
	return entry
}

// Cleanup drops buckets whose TTL has passed and returns how many were removed.
// A dropped bucket is recreated full, which is what its refill would have reached anyway.
func (s *MemoryBucketStore) Cleanup() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.buckets {
		entry.mu.Lock()
		if !entry.expires.IsZero() && now.After(entry.expires) {
			entry.removed = true
			delete(s.buckets, key)
			removed++
		}
		entry.mu.Unlock()
	}
	return removed
}

// Count returns the number of tracked buckets.
func (s *MemoryBucketStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets)
}

// StartBackgroundCleanup runs Cleanup every interval until the returned
// function is called.
func (s *MemoryBucketStore) StartBackgroundCleanup(interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				s.Cleanup()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}
