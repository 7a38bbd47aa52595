package lockout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func stores(t *testing.T) map[string]AttemptStore {
	redisStore, _ := newRedisStore(t)
	return map[string]AttemptStore{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}
}

func TestBlocksOnThirdFailureExactlyOnce(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewController(store, "flow-1")

			out, err := c.RecordFailure(ctx)
			require.NoError(t, err)
			assert.Equal(t, Outcome{Attempts: 1, Remaining: 2}, out)

			out, err = c.RecordFailure(ctx)
			require.NoError(t, err)
			assert.Equal(t, Outcome{Attempts: 2, Remaining: 1}, out)

			exhausted, err := c.Exhausted(ctx)
			require.NoError(t, err)
			assert.False(t, exhausted)

			out, err = c.RecordFailure(ctx)
			require.NoError(t, err)
			assert.Equal(t, Outcome{Attempts: 3, Remaining: 0, Blocked: true}, out)

			out, err = c.RecordFailure(ctx)
			require.NoError(t, err)
			assert.False(t, out.Blocked)
			assert.Equal(t, 0, out.Remaining)

			exhausted, err = c.Exhausted(ctx)
			require.NoError(t, err)
			assert.True(t, exhausted)
		})
	}
}

func TestResetStartsNewSession(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewController(store, "flow-2")

			_, err := c.RecordFailure(ctx)
			require.NoError(t, err)
			_, err = c.RecordFailure(ctx)
			require.NoError(t, err)
			require.NoError(t, c.Reset(ctx))

			out, err := c.RecordFailure(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, out.Attempts)
			assert.False(t, out.Blocked)
		})
	}
}

func TestKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := NewController(store, "a")
	b := NewController(store, "b", WithThreshold(5))

	for i := 0; i < 2; i++ {
		_, err := a.RecordFailure(ctx)
		require.NoError(t, err)
	}
	out, err := b.RecordFailure(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, out.Remaining)
	assert.Equal(t, 5, b.Threshold())
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	c := NewController(store, "flow", WithWindow(time.Minute))
	_, err := c.RecordFailure(ctx)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	count, err := store.Count(ctx, "flow")
	require.NoError(t, err)
	assert.Zero(t, count)

	out, err := c.RecordFailure(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Attempts)
}

func TestRedisStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	c := NewController(store, "flow", WithWindow(time.Minute))

	_, err := c.RecordFailure(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL(redisKeyPrefix+"flow"))

	mr.FastForward(2 * time.Minute)
	count, err := store.Count(ctx, "flow")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestConcurrentFailuresBlockOnce(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	blocked := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// separate controllers model separate instances sharing redis
			out, err := NewController(store, "shared").RecordFailure(ctx)
			if err == nil && out.Blocked {
				mu.Lock()
				blocked++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, blocked)
}

func TestSpacedFailuresStillBlock(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	c := NewController(store, "flow:spaced", WithWindow(15*time.Minute))

	out, err := c.RecordFailure(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Attempts)

	now = now.Add(14 * time.Minute)
	out, err = c.RecordFailure(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempts)

	// more than a window after the first failure, less than one after the last
	now = now.Add(14 * time.Minute)
	out, err = c.RecordFailure(ctx)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Attempts: 3, Remaining: 0, Blocked: true}, out)
}

func TestRedisStoreRenewsTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	c := NewController(store, "flow:spaced", WithWindow(15*time.Minute))

	_, err := c.RecordFailure(ctx)
	require.NoError(t, err)
	mr.FastForward(14 * time.Minute)
	_, err = c.RecordFailure(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, mr.TTL(redisKeyPrefix+"flow:spaced"))

	mr.FastForward(14 * time.Minute)
	out, err := c.RecordFailure(ctx)
	require.NoError(t, err)
	assert.True(t, out.Blocked)
}

func TestZeroTTLKeepsCounterUntilReset(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_, err := store.Increment(ctx, "k", 0)
	require.NoError(t, err)
	now = now.Add(365 * 24 * time.Hour)
	count, err := store.Count(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.Reset(ctx, "k"))
	count, err = store.Count(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, count)
}
