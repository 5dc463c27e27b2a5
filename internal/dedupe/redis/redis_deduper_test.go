package redis

import (
	"context"
	"fmt"
	"oraclehub/internal/config"
	rdb "oraclehub/internal/stores/redis"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	loggerCfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

func newTestLogger() logger.Logger {
	return logger.New(loggerCfg.LoggerCfg{
		Level:  "error",
		Format: "json",
	})
}

func setupTestRedisForDeduper(t *testing.T) (*miniredis.Miniredis, *rdb.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := &rdb.Client{
		Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
	}
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func newDeduper(t *testing.T, prefix string, ttl time.Duration) (*miniredis.Miniredis, *RedisDedupe) {
	t.Helper()

	mr, client := setupTestRedisForDeduper(t)
	d, err := NewRedisDeduper(newTestLogger(), &config.DedupeConfig{Prefix: prefix, TTL: ttl}, client)
	require.NoError(t, err)
	return mr, d
}

func TestNewRedisDeduper(t *testing.T) {
	_, client := setupTestRedisForDeduper(t)
	log := newTestLogger()

	_, err := NewRedisDeduper(log, nil, client)
	assert.ErrorContains(t, err, "config is required")

	_, err = NewRedisDeduper(log, &config.DedupeConfig{}, nil)
	assert.ErrorContains(t, err, "redis client is required")

	d, err := NewRedisDeduper(log, &config.DedupeConfig{}, client)
	require.NoError(t, err)
	assert.Equal(t, "dedupe:", d.prefix)
	assert.Equal(t, 24*time.Hour, d.ttl)
}

func TestRedisDedupe_Seen(t *testing.T) {
	mr, d := newDeduper(t, "test:idem:", time.Hour)
	ctx := context.Background()

	seen, err := d.Seen(ctx, "GADMIN:k1")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.True(t, mr.Exists("test:idem:GADMIN:k1"))
	assert.Equal(t, time.Hour, mr.TTL("test:idem:GADMIN:k1"))

	seen, err = d.Seen(ctx, "GADMIN:k1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = d.Seen(ctx, "GADMIN:k2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisDedupe_Expires(t *testing.T) {
	mr, d := newDeduper(t, "test:idem:", time.Minute)
	ctx := context.Background()

	_, err := d.Seen(ctx, "k")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	seen, err := d.Seen(ctx, "k")
	require.NoError(t, err)
	assert.False(t, seen, "expired key can be claimed again")
}

func TestRedisDedupe_Forget(t *testing.T) {
	mr, d := newDeduper(t, "test:idem:", time.Hour)
	ctx := context.Background()

	_, err := d.Seen(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, d.Forget(ctx, "k"))
	assert.False(t, mr.Exists("test:idem:k"))

	seen, err := d.Seen(ctx, "k")
	require.NoError(t, err)
	assert.False(t, seen)

	// forgetting an unknown key is fine
	require.NoError(t, d.Forget(ctx, "ghost"))
}

func TestRedisDedupe_PrefixIsolation(t *testing.T) {
	mr, client := setupTestRedisForDeduper(t)
	ctx := context.Background()

	a, err := NewRedisDeduper(newTestLogger(), &config.DedupeConfig{Prefix: "a:", TTL: time.Hour}, client)
	require.NoError(t, err)
	b, err := NewRedisDeduper(newTestLogger(), &config.DedupeConfig{Prefix: "b:", TTL: time.Hour}, client)
	require.NoError(t, err)

	seen, err := a.Seen(ctx, "k")
	require.NoError(t, err)
	assert.False(t, seen)
	seen, err = b.Seen(ctx, "k")
	require.NoError(t, err)
	assert.False(t, seen)

	assert.True(t, mr.Exists("a:k"))
	assert.True(t, mr.Exists("b:k"))
}

func TestRedisDedupe_ConcurrentSameID(t *testing.T) {
	_, d := newDeduper(t, "test:idem:", time.Hour)
	ctx := context.Background()

	const workers = 32
	var first atomic.Int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			seen, err := d.Seen(ctx, "same")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if !seen {
				first.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), first.Load())
}

func TestRedisDedupe_RedisFailure(t *testing.T) {
	mr, d := newDeduper(t, "test:idem:", time.Hour)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	seen, err := d.Seen(ctx, "k")
	require.Error(t, err)
	assert.False(t, seen)
	assert.Error(t, d.Health(ctx))
}

func TestRedisDedupe_ManyKeys(t *testing.T) {
	mr, d := newDeduper(t, "test:idem:", time.Hour)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		seen, err := d.Seen(ctx, fmt.Sprintf("k-%d", i))
		require.NoError(t, err)
		require.False(t, seen)
	}
	assert.Len(t, mr.Keys(), 100)
}
