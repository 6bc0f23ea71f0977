package usage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueue(client, ""), mr
}

func TestRedisQueue_FIFOAndRequeue(t *testing.T) {
	q, mr := newRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, []byte("a")))
	require.NoError(t, q.Push(ctx, []byte("b")))
	assert.True(t, mr.Exists(DefaultQueueKey))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a", string(got))

	require.NoError(t, q.Requeue(ctx, got))

	got, err = q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a", string(got), "requeued payload is popped next")

	got, err = q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))
}

func TestRedisQueue_PopTimeout(t *testing.T) {
	q, _ := newRedisQueue(t)

	got, err := q.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisQueue_Unavailable(t *testing.T) {
	q, mr := newRedisQueue(t)
	mr.Close()

	err := q.Push(context.Background(), []byte("a"))
	assert.ErrorIs(t, err, ErrQueueUnavailable)
}

func TestMemoryQueue(t *testing.T) {
	q := NewMemoryQueue(2)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, []byte("a")))
	require.NoError(t, q.Push(ctx, []byte("b")))
	assert.ErrorIs(t, q.Push(ctx, []byte("c")), ErrQueueFull)

	got, err := q.Pop(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "a", string(got))

	require.NoError(t, q.Requeue(ctx, got))
	got, err = q.Pop(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "a", string(got))

	got, err = q.Pop(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))

	got, err = q.Pop(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryQueue_PopWakesOnPush(t *testing.T) {
	q := NewMemoryQueue(0)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = q.Push(context.Background(), []byte("late"))
	}()

	got, err := q.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", string(got))
}

func TestMemoryQueue_PopHonoursContext(t *testing.T) {
	q := NewMemoryQueue(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Pop(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
