package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fabzclean/fabzclean-backend/pkg/config"
)

func newMiniredisClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return NewFromRaw(raw), mr
}

func TestSetNXHonoursExistingKeys(t *testing.T) {
	ctx := context.Background()
	client, mr := newMiniredisClient(t)

	ok, err := client.SetNX(ctx, "fz:test", "first", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.SetNX(ctx, "fz:test", "second", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	value, err := client.Get(ctx, "fz:test")
	require.NoError(t, err)
	require.Equal(t, "first", value)

	mr.FastForward(2 * time.Minute)
	_, err = client.Get(ctx, "fz:test")
	require.True(t, errors.Is(err, Nil), "expected key to expire, got %v", err)
}

func TestSetAndDel(t *testing.T) {
	ctx := context.Background()
	client, _ := newMiniredisClient(t)

	require.NoError(t, client.Set(ctx, "fz:k", "v", 0))
	require.NoError(t, client.Del(ctx, "fz:k"))
	_, err := client.Get(ctx, "fz:k")
	require.ErrorIs(t, err, Nil)
	require.NoError(t, client.Ping(ctx))
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	require.Equal(t, "fz:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	require.Equal(t, "fz:lock:cron-worker:prod", client.LockKey("cron-worker", "prod"))
	require.Equal(t, "fz:lock:cron-worker", client.LockKey("cron-worker", " "))
}

func TestUninitializedClientFails(t *testing.T) {
	client := &Client{}
	_, err := client.Get(context.Background(), "k")
	require.Error(t, err)
	require.NoError(t, client.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7, DialTimeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, 7, opts.PoolSize)
	require.Equal(t, time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 3})
	require.NoError(t, err)
	require.Equal(t, "cache:6379", opts.Addr)
	require.Equal(t, 3, opts.DB)
}
