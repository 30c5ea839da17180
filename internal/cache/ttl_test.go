//go:build !integration

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTTLCache(clock Clock, capacity int) *TTLCache[string] {
	return NewTTLCache[string](TTLConfig{
		Name:       "test",
		DefaultTTL: 10 * time.Second,
		Capacity:   capacity,
		Clock:      clock,
	})
}

func countingCompute(calls *atomic.Int32, value string) ComputeFunc[string] {
	return func(ctx context.Context) (string, error) {
		calls.Add(1)
		return value, nil
	}
}

func TestTTLCache_ExpiresAfterTTL(t *testing.T) {
	clock := newFakeClock()
	c := newTestTTLCache(clock, 0)
	defer c.Stop()
	ctx := context.Background()

	var calls atomic.Int32
	fn := countingCompute(&calls, "R")

	v, err := c.GetOrCompute(ctx, "Q", fn, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "R", v)
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(9 * time.Second)
	v, err = c.GetOrCompute(ctx, "Q", fn, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "R", v)
	assert.Equal(t, int32(1), calls.Load(), "entry still valid at t=9")

	clock.Advance(2 * time.Second)
	v, err = c.GetOrCompute(ctx, "Q", fn, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "R", v)
	assert.Equal(t, int32(2), calls.Load(), "entry expired at t=11")
}

func TestTTLCache_ExpiryBoundary(t *testing.T) {
	clock := newFakeClock()
	c := newTestTTLCache(clock, 0)
	c.Set("k", "v", 5*time.Second)

	clock.Advance(5*time.Second - time.Nanosecond)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock.Advance(time.Nanosecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "valid only while now < created_at + ttl")
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_InvalidateForcesRecompute(t *testing.T) {
	c := newTestTTLCache(newFakeClock(), 0)
	ctx := context.Background()

	var calls atomic.Int32
	fn := countingCompute(&calls, "R")

	_, err := c.GetOrCompute(ctx, "Q", fn, 0)
	require.NoError(t, err)

	assert.True(t, c.Invalidate("Q"))
	assert.False(t, c.Invalidate("Q"))

	_, err = c.GetOrCompute(ctx, "Q", fn, 0)
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, "Q", fn, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "exactly one recompute after invalidation")
}

func TestTTLCache_ConcurrentMissComputesOnce(t *testing.T) {
	c := newTestTTLCache(newFakeClock(), 0)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "R", nil
	}

	const callers = 20
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	var started sync.WaitGroup
	started.Add(callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			results[i], errs[i] = c.GetOrCompute(ctx, "Q", fn, 0)
		}(i)
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "R", results[i])
	}
}

func TestTTLCache_ComputeErrorNotCached(t *testing.T) {
	c := newTestTTLCache(newFakeClock(), 0)
	ctx := context.Background()
	boom := errors.New("backend down")

	var calls atomic.Int32
	fn := func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", boom
	}

	_, err := c.GetOrCompute(ctx, "Q", fn, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompute)
	assert.ErrorIs(t, err, boom)

	var ce *ComputeError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "Q", ce.Key)
	assert.Equal(t, "test", ce.Cache)

	assert.Equal(t, 0, c.Len())
	_, err = c.GetOrCompute(ctx, "Q", fn, 0)
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int64(2), c.Metrics().Failures)
}

func TestTTLCache_PanicBecomesComputeError(t *testing.T) {
	c := newTestTTLCache(newFakeClock(), 0)

	_, err := c.GetOrCompute(context.Background(), "Q", func(ctx context.Context) (string, error) {
		panic("bad query")
	}, 0)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompute)
	assert.Contains(t, err.Error(), "bad query")
}

func TestTTLCache_WaiterContextCancelled(t *testing.T) {
	c := newTestTTLCache(newFakeClock(), 0)
	entered := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	go func() {
		_, _ = c.GetOrCompute(context.Background(), "Q", func(ctx context.Context) (string, error) {
			close(entered)
			<-release
			return "R", nil
		}, 0)
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.GetOrCompute(ctx, "Q", func(ctx context.Context) (string, error) {
		return "other", nil
	}, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTTLCache_StarterCancelledWaiterGetsValue(t *testing.T) {
	c := newTestTTLCache(newFakeClock(), 0)
	entered := make(chan struct{})
	release := make(chan struct{})
	var fnErr atomic.Value

	starterCtx, cancel := context.WithCancel(context.Background())
	starterDone := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(starterCtx, "Q", func(ctx context.Context) (string, error) {
			close(entered)
			<-release
			fnErr.Store(fmt.Sprint(ctx.Err()))
			return "R", nil
		}, 0)
		starterDone <- err
	}()
	<-entered

	var waiterCalls atomic.Int32
	type result struct {
		v   string
		err error
	}
	waiterDone := make(chan result, 1)
	go func() {
		v, err := c.GetOrCompute(context.Background(), "Q", countingCompute(&waiterCalls, "other"), 0)
		waiterDone <- result{v, err}
	}()

	cancel()
	assert.ErrorIs(t, <-starterDone, context.Canceled)

	time.Sleep(20 * time.Millisecond)
	close(release)

	got := <-waiterDone
	require.NoError(t, got.err)
	assert.Equal(t, "R", got.v)
	assert.Zero(t, waiterCalls.Load())
	assert.Equal(t, "<nil>", fnErr.Load())

	v, ok := c.Get("Q")
	assert.True(t, ok)
	assert.Equal(t, "R", v)
}

func TestTTLCache_InvalidateDuringComputeSkipsStore(t *testing.T) {
	c := newTestTTLCache(newFakeClock(), 0)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan string)
	go func() {
		v, _ := c.GetOrCompute(ctx, "Q", func(ctx context.Context) (string, error) {
			close(entered)
			<-release
			return "old", nil
		}, 0)
		done <- v
	}()

	<-entered
	c.Invalidate("Q")
	close(release)
	assert.Equal(t, "old", <-done, "the original caller still gets its result")

	_, ok := c.Get("Q")
	assert.False(t, ok, "a result computed before invalidation is not stored")

	v, err := c.GetOrCompute(ctx, "Q", func(ctx context.Context) (string, error) {
		return "new", nil
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "new", v)
}

func TestTTLCache_CapacityPurgesExpiredBeforeEvicting(t *testing.T) {
	clock := newFakeClock()
	c := newTestTTLCache(clock, 2)

	c.Set("short", "1", time.Second)
	c.Set("long", "2", time.Minute)
	clock.Advance(2 * time.Second)
	c.Set("new", "3", time.Minute)

	_, ok := c.Get("long")
	assert.True(t, ok, "valid entry kept while an expired one can go")
	_, ok = c.Get("new")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(0), c.Metrics().Evictions)
}

func TestTTLCache_CapacityEvictsLeastRecentlyUsed(t *testing.T) {
	c := newTestTTLCache(newFakeClock(), 2)

	c.Set("a", "1", 0)
	c.Set("b", "2", 0)
	_, ok := c.Get("a")
	require.True(t, ok)
	c.Set("c", "3", 0)

	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Metrics().Evictions)
}

func TestTTLCache_InvalidatePrefix(t *testing.T) {
	c := newTestTTLCache(newFakeClock(), 0)
	c.Set(Fingerprint("users", 1), "u1", 0)
	c.Set(Fingerprint("users", 2), "u2", 0)
	c.Set(Fingerprint("orders", 1), "o1", 0)

	assert.Equal(t, 2, c.InvalidatePrefix(Namespace("users")))
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get(Fingerprint("orders", 1))
	assert.True(t, ok)
}

func TestTTLCache_PurgeAndTrimIdle(t *testing.T) {
	clock := newFakeClock()
	c := newTestTTLCache(clock, 0)

	c.Set("expiring", "1", time.Second)
	c.Set("idle", "2", time.Hour)
	c.Set("hot", "3", time.Hour)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, c.Purge())

	clock.Advance(time.Minute)
	_, ok := c.Get("hot")
	require.True(t, ok)

	assert.Equal(t, 1, c.TrimIdle(30*time.Second))
	_, ok = c.Get("hot")
	assert.True(t, ok)
	_, ok = c.Get("idle")
	assert.False(t, ok)
}

func TestTTLCache_ClearAndMetrics(t *testing.T) {
	c := newTestTTLCache(newFakeClock(), 10)
	ctx := context.Background()

	_, _ = c.GetOrCompute(ctx, "a", func(ctx context.Context) (string, error) { return "1", nil }, 0)
	_, _ = c.GetOrCompute(ctx, "a", func(ctx context.Context) (string, error) { return "1", nil }, 0)

	m := c.Metrics()
	assert.Equal(t, int64(1), m.Hits)
	assert.Equal(t, int64(1), m.Misses)
	assert.Equal(t, int64(1), m.Computes)
	assert.Equal(t, 1, m.Size)
	assert.Equal(t, 10, m.Capacity)
	assert.InDelta(t, 0.5, m.HitRatio(), 0.0001)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(1), c.Metrics().Hits, "counters survive Clear")
}

func TestTTLCache_BackgroundCleanup(t *testing.T) {
	c := NewTTLCache[int](TTLConfig{
		Name:            "janitor",
		DefaultTTL:      10 * time.Millisecond,
		CleanupInterval: 5 * time.Millisecond,
	})
	defer c.Stop()

	c.Set("k", 1, 0)
	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)

	c.Stop()
	c.Stop()
}

func TestTTLCache_Defaults(t *testing.T) {
	c := NewTTLCache[int](TTLConfig{Capacity: -1})
	assert.Equal(t, "ttl", c.Name())
	assert.Equal(t, 0, c.Metrics().Capacity)

	d := DefaultTTLConfig("queries")
	assert.Equal(t, "queries", d.Name)
	assert.Equal(t, 5*time.Minute, d.DefaultTTL)
}

func TestTTLCache_SetDefaultTTL(t *testing.T) {
	clock := newFakeClock()
	c := newTestTTLCache(clock, 0)
	c.Set("old", "v", 0)

	c.SetDefaultTTL(time.Minute)
	c.SetDefaultTTL(-time.Second)
	c.Set("new", "v", 0)

	clock.Advance(30 * time.Second)
	_, ok := c.Get("old")
	assert.False(t, ok, "existing entry keeps its 10s expiry")
	_, ok = c.Get("new")
	assert.True(t, ok)
}
