package lock

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgraph/agentgraph/internal/app/usecases"
)

var (
	_ usecases.ThreadLocker = (*MemoryLocker)(nil)
	_ usecases.ThreadLocker = (*RedisLocker)(nil)
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewRedisLocker(client, "test:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "thread-1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:thread-1"), "Lock key should be set in Redis")
	assert.Greater(t, mr.TTL("test:lock:thread-1"), time.Duration(0))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:thread-1"), "Lock key should be removed after unlock")
}

func TestRedisLocker_Contention(t *testing.T) {
	mr, client := newRedis(t)
	locker1 := NewRedisLocker(client, "test:")
	locker2 := NewRedisLocker(client, "test:")
	ctx := context.Background()

	unlock1, err := locker1.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)

	ctxTimeout, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = locker2.Lock(ctxTimeout, "shared", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock1(ctx))

	unlock2, err := locker2.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)
	defer func() { _ = unlock2(ctx) }()
	assert.True(t, mr.Exists("test:lock:shared"))
}

func TestRedisLocker_StaleUnlockKeepsNewHolder(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewRedisLocker(client, "test:")
	ctx := context.Background()

	unlockOld, err := locker.Lock(ctx, "thread", time.Second)
	require.NoError(t, err)

	// The first holder's lease runs out and someone else takes the lock.
	mr.FastForward(2 * time.Second)
	unlockNew, err := locker.Lock(ctx, "thread", 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, unlockOld(ctx))
	assert.True(t, mr.Exists("test:lock:thread"), "stale unlock must not release another holder")

	require.NoError(t, unlockNew(ctx))
	assert.False(t, mr.Exists("test:lock:thread"))
}

func TestMemoryLocker_MutualExclusion(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "thread", time.Second)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, unlock(ctx))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestMemoryLocker_ContextAndIndependentKeys(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "a", time.Second)
	require.NoError(t, err)

	other, err := locker.Lock(ctx, "b", time.Second)
	require.NoError(t, err, "different keys do not contend")
	require.NoError(t, other(ctx))

	ctxTimeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctxTimeout, "a", time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(ctx))
	require.NoError(t, unlock(ctx), "unlock is idempotent")

	again, err := locker.Lock(ctx, "a", time.Second)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestMemoryLocker_ReleasesIdleKeys(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		unlock, err := locker.Lock(ctx, "thread-"+strconv.Itoa(i), time.Second)
		require.NoError(t, err)
		require.NoError(t, unlock(ctx))
	}
	assert.Equal(t, 0, locker.size())

	held, err := locker.Lock(ctx, "busy", time.Second)
	require.NoError(t, err)

	acquired := make(chan usecases.UnlockFunc)
	go func() {
		unlock, err := locker.Lock(ctx, "busy", time.Second)
		if assert.NoError(t, err) {
			acquired <- unlock
		}
	}()

	ctxTimeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctxTimeout, "busy", time.Second)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, locker.size(), "the key stays while it is held or awaited")

	require.NoError(t, held(ctx))
	waiter := <-acquired
	assert.Equal(t, 1, locker.size())
	require.NoError(t, waiter(ctx))
	assert.Equal(t, 0, locker.size())
}
