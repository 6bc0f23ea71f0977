package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ConnectRedis(context.Background(), RedisConfig{
		URL:             "redis://" + mr.Addr() + "/0",
		ConnectAttempts: 1,
	}, zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, RedisHealthcheck(client)(context.Background()))

	mr.Close()
	assert.ErrorIs(t, RedisHealthcheck(client)(context.Background()), ErrHealthcheckFailed)
}

func TestConnectRedis_BadConfig(t *testing.T) {
	_, err := ConnectRedis(context.Background(), RedisConfig{}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrEmptyConnectionURL)

	_, err = ConnectRedis(context.Background(), RedisConfig{URL: "http://nope"}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrFailedToParseRedisURL)
}

func TestConnectRedis_NotReady(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := ConnectRedis(context.Background(), RedisConfig{
		URL:             "redis://" + addr,
		ConnectAttempts: 2,
		ConnectInterval: time.Millisecond,
	}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrRedisNotReady)
}

func TestRetry(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, zerolog.Nop())

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = retry(ctx, 5, time.Second, func(context.Context) error { return errors.New("down") }, zerolog.Nop())
	assert.ErrorIs(t, err, context.Canceled)
}
