package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/daybook/lock"
)

func setupLocker(t *testing.T, opts ...Option) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, opts...), mr
}

func TestWithLockRunsAndReleases(t *testing.T) {
	l, mr := setupLocker(t)
	ctx := context.Background()

	ran := false
	err := l.WithLock(ctx, "daybook:day:o1:2025-03-14", func(context.Context) error {
		ran = true
		assert.True(t, mr.Exists("daybook:day:o1:2025-03-14"), "key held while running")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("daybook:day:o1:2025-03-14"), "key released afterwards")
}

func TestWithLockSerializes(t *testing.T) {
	l, _ := setupLocker(t, WithRetry(5*time.Millisecond, 500))
	ctx := context.Background()

	var inside, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(ctx, "k", func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				if n > atomic.LoadInt32(&peak) {
					atomic.StoreInt32(&peak, n)
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestWithLockNotObtained(t *testing.T) {
	l, mr := setupLocker(t, WithRetry(time.Millisecond, 2))
	require.NoError(t, mr.Set("busy", "someone-else"))

	err := l.WithLock(context.Background(), "busy", func(context.Context) error {
		t.Fatal("must not run")
		return nil
	})
	assert.ErrorIs(t, err, lock.ErrNotObtained)

	val, getErr := mr.Get("busy")
	require.NoError(t, getErr)
	assert.Equal(t, "someone-else", val, "a foreign lock is left alone")
}

func TestWithLockEmptyKey(t *testing.T) {
	l, _ := setupLocker(t)
	assert.ErrorIs(t, l.WithLock(context.Background(), "", nil), lock.ErrEmptyKey)
}
