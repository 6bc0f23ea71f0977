package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the Redis list holding pending events.
const DefaultQueueKey = "usage:events"

// Queue is a FIFO of encoded events with at-least-once hand-off to consumers.
type Queue interface {
	// Push appends a payload at the producing end.
	Push(ctx context.Context, payload []byte) error
	// Pop removes the oldest payload, waiting up to timeout. It returns nil, nil on timeout.
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
	// Requeue puts a popped payload back at the consuming end so it is popped next.
	Requeue(ctx context.Context, payload []byte) error
	// Len returns the number of pending payloads.
	Len(ctx context.Context) (int64, error)
}

// RedisQueue is a Redis list used with LPUSH / BRPOP.
type RedisQueue struct {
	client redis.Cmdable
	key    string
}

// Ensure RedisQueue implements Queue interface
var _ Queue = (*RedisQueue)(nil)

// NewRedisQueue creates a queue on key (default: usage:events).
func NewRedisQueue(client redis.Cmdable, key string) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{client: client, key: key}
}

// Push implements Queue.
func (q *RedisQueue) Push(ctx context.Context, payload []byte) error {
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

// Pop implements Queue.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("%w: unexpected BRPOP reply %v", ErrQueueUnavailable, res)
	}
	return []byte(res[1]), nil
}

// Requeue implements Queue.
func (q *RedisQueue) Requeue(ctx context.Context, payload []byte) error {
	if err := q.client.RPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

// Len implements Queue.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return n, nil
}

// MemoryQueue is a bounded in-process queue for a single instance.
type MemoryQueue struct {
	mu       sync.Mutex
	items    [][]byte
	capacity int
	notify   chan struct{}
}

// Ensure MemoryQueue implements Queue interface
var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates a queue holding at most capacity payloads (0 means unbounded).
func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Push implements Queue. It returns ErrQueueFull when the queue is at capacity.
func (q *MemoryQueue) Push(_ context.Context, payload []byte) error {
	q.mu.Lock()
	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.items = append(q.items, payload)
	q.mu.Unlock()

	q.signal()
	return nil
}

// Requeue implements Queue. Requeued payloads may exceed capacity.
func (q *MemoryQueue) Requeue(_ context.Context, payload []byte) error {
	q.mu.Lock()
	q.items = append([][]byte{payload}, q.items...)
	q.mu.Unlock()

	q.signal()
	return nil
}

// Pop implements Queue.
func (q *MemoryQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if payload, ok := q.take(); ok {
			return payload, nil
		}

		select {
		case <-q.notify:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len implements Queue.
func (q *MemoryQueue) Len(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

func (q *MemoryQueue) take() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	payload := q.items[0]
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// wake another waiting consumer
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return payload, true
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
