package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisRegistry(t *testing.T, ttl time.Duration) (*RedisRegistry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	reg := NewRedisRegistry(client, RedisConfig{Prefix: "test:", TTL: ttl})
	t.Cleanup(reg.Close)

	return reg, mr
}

func (r *RedisRegistry) leaseCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.leases)
}

// registryContract runs the behaviour every Registry implementation must share.
func registryContract(t *testing.T, reg Registry) {
	ctx := context.Background()

	t.Run("reserve and lookup", func(t *testing.T) {
		require.NoError(t, reg.Reserve(ctx, "user-1", "session-a"))

		sessionID, ok, err := reg.Lookup(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "session-a", sessionID)
	})

	t.Run("second reserve conflicts", func(t *testing.T) {
		err := reg.Reserve(ctx, "user-1", "session-b")
		require.ErrorIs(t, err, ErrSlotTaken)
	})

	t.Run("release by other session is ignored", func(t *testing.T) {
		require.NoError(t, reg.Release(ctx, "user-1", "session-b"))

		sessionID, ok, err := reg.Lookup(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "session-a", sessionID)
	})

	t.Run("release is idempotent", func(t *testing.T) {
		require.NoError(t, reg.Release(ctx, "user-1", "session-a"))
		require.NoError(t, reg.Release(ctx, "user-1", "session-a"))

		_, ok, err := reg.Lookup(ctx, "user-1")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("reserve after release", func(t *testing.T) {
		require.NoError(t, reg.Reserve(ctx, "user-1", "session-c"))
		require.NoError(t, reg.Release(ctx, "user-1", "session-c"))
	})

	t.Run("empty keys rejected", func(t *testing.T) {
		require.ErrorIs(t, reg.Reserve(ctx, "", "session"), ErrInvalidKey)
		require.ErrorIs(t, reg.Release(ctx, "user", ""), ErrInvalidKey)
	})

	t.Run("concurrent reserves admit exactly one", func(t *testing.T) {
		var (
			wg      sync.WaitGroup
			success atomic.Int32
		)

		for i := range 50 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if err := reg.Reserve(ctx, "user-race", fmt.Sprintf("session-%d", i)); err == nil {
					success.Add(1)
				}
			}(i)
		}
		wg.Wait()

		require.Equal(t, int32(1), success.Load())
	})
}

func TestMemoryRegistry(t *testing.T) {
	registryContract(t, NewMemoryRegistry())
}

func TestRedisRegistry(t *testing.T) {
	reg, _ := newTestRedisRegistry(t, 0)
	registryContract(t, reg)
}

func TestMemoryRegistryUsersIndependent(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	for i := range 10 {
		require.NoError(t, reg.Reserve(ctx, fmt.Sprintf("user-%d", i), "session"))
	}
	require.Equal(t, 10, reg.Len())

	for i := range 10 {
		require.NoError(t, reg.Release(ctx, fmt.Sprintf("user-%d", i), "session"))
	}
	require.Equal(t, 0, reg.Len())

	// Empty slots are removed from the index
	reg.mu.Lock()
	require.Empty(t, reg.slots)
	reg.mu.Unlock()
}

func TestRedisRegistryAbandonedSlotExpires(t *testing.T) {
	ctx := context.Background()
	reg, mr := newTestRedisRegistry(t, time.Minute)

	require.NoError(t, reg.Reserve(ctx, "user-1", "session-a"))
	require.True(t, mr.Exists("test:user-1"))

	// The owning instance goes away without releasing
	reg.Close()
	mr.FastForward(2 * time.Minute)

	_, ok, err := reg.Lookup(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, ok, "abandoned slot should expire")

	require.NoError(t, reg.Reserve(ctx, "user-1", "session-b"))
}

func TestRedisRegistryRenewsHeldSlot(t *testing.T) {
	ctx := context.Background()
	ttl := 300 * time.Millisecond
	reg, mr := newTestRedisRegistry(t, ttl)

	require.NoError(t, reg.Reserve(ctx, "user-1", "session-a"))

	// Well past the TTL in total, but each step stays inside one lease
	for range 4 {
		mr.FastForward(250 * time.Millisecond)
		require.True(t, mr.Exists("test:user-1"))
		require.Eventually(t, func() bool {
			return mr.TTL("test:user-1") == ttl
		}, time.Second, 5*time.Millisecond, "slot should be renewed")
	}

	require.ErrorIs(t, reg.Reserve(ctx, "user-1", "session-b"), ErrSlotTaken)

	sessionID, ok, err := reg.Lookup(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "session-a", sessionID)

	require.NoError(t, reg.Release(ctx, "user-1", "session-a"))
	require.False(t, mr.Exists("test:user-1"))
	require.Zero(t, reg.leaseCount())
}

func TestRedisRegistryRenewStopsWhenSlotLost(t *testing.T) {
	ctx := context.Background()
	reg, mr := newTestRedisRegistry(t, 300*time.Millisecond)

	require.NoError(t, reg.Reserve(ctx, "user-1", "session-a"))
	require.Equal(t, 1, reg.leaseCount())

	require.NoError(t, mr.Set("test:user-1", "session-b"))

	held, err := reg.Renew(ctx, "user-1", "session-a")
	require.NoError(t, err)
	require.False(t, held)

	held, err = reg.Renew(ctx, "user-1", "session-b")
	require.NoError(t, err)
	require.True(t, held)

	require.Eventually(t, func() bool { return reg.leaseCount() == 0 }, time.Second, 5*time.Millisecond)
}
