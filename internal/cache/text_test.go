//go:build !integration

package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upper(ctx context.Context, text string) (string, error) {
	return strings.ToUpper(text), nil
}

func TestTextCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()

	t.Run("insertion order", func(t *testing.T) {
		c := NewTextCache[string](TextConfig{Capacity: 2})
		for _, k := range []string{"a", "b", "c"} {
			_, err := c.GetOrCompute(ctx, k, upper)
			require.NoError(t, err)
		}
		_, ok := c.Get("a")
		assert.False(t, ok)
		_, ok = c.Get("b")
		assert.True(t, ok)
		_, ok = c.Get("c")
		assert.True(t, ok)
	})

	t.Run("access refreshes recency", func(t *testing.T) {
		c := NewTextCache[string](TextConfig{Capacity: 2})
		_, _ = c.GetOrCompute(ctx, "a", upper)
		_, _ = c.GetOrCompute(ctx, "b", upper)
		_, _ = c.GetOrCompute(ctx, "a", upper)
		_, _ = c.GetOrCompute(ctx, "c", upper)

		_, ok := c.Get("b")
		assert.False(t, ok)
		_, ok = c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 2, c.Len())
	})
}

func TestTextCache_NormalizedKeysShareEntry(t *testing.T) {
	c := NewTextCache[string](TextConfig{})
	ctx := context.Background()

	var calls atomic.Int32
	fn := func(ctx context.Context, text string) (string, error) {
		calls.Add(1)
		return text, nil
	}

	first, err := c.GetOrCompute(ctx, "Café  au lait!", fn)
	require.NoError(t, err)
	second, err := c.GetOrCompute(ctx, "cafe AU lait", fn)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "Café  au lait!", first, "compute sees the original text")
	assert.Equal(t, first, second)
	assert.Equal(t, "cafe au lait", c.Key("CAFÉ au   LAIT"))
}

func TestTextCache_ComputeError(t *testing.T) {
	c := NewTextCache[string](TextConfig{Name: "entities"})
	boom := errors.New("model not loaded")

	_, err := c.GetOrCompute(context.Background(), "text", func(ctx context.Context, text string) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, ErrCompute)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(1), c.Metrics().Failures)
}

func TestTextCache_Shrink(t *testing.T) {
	tests := []struct {
		name     string
		fraction float64
		removed  int
	}{
		{name: "none", fraction: 0, removed: 0},
		{name: "half", fraction: 0.5, removed: 5},
		{name: "rounds down", fraction: 0.25, removed: 2},
		{name: "clamped", fraction: 3, removed: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewTextCache[string](TextConfig{Capacity: 20})
			for _, k := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
				_, _ = c.GetOrCompute(context.Background(), k, upper)
			}
			assert.Equal(t, tt.removed, c.Shrink(tt.fraction))
			assert.Equal(t, 10-tt.removed, c.Len())
			if tt.removed > 0 && tt.removed < 10 {
				_, ok := c.Get("j")
				assert.True(t, ok, "most recent entry survives")
				_, ok = c.Get("a")
				assert.False(t, ok, "oldest entry goes first")
			}
		})
	}
}

func TestTextCache_RemoveAndClear(t *testing.T) {
	c := NewTextCache[string](TextConfig{})
	ctx := context.Background()
	_, _ = c.GetOrCompute(ctx, "Hello", upper)
	_, _ = c.GetOrCompute(ctx, "World", upper)

	assert.True(t, c.Remove("hello"))
	assert.False(t, c.Remove("hello"))
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, DefaultTextCapacity, c.Metrics().Capacity)
}

func TestTextCache_ConcurrentMissesComputeOnce(t *testing.T) {
	c := NewTextCache[string](TextConfig{})
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(ctx context.Context, text string) (string, error) {
		calls.Add(1)
		<-release
		return "R", nil
	}

	// Every variant normalizes to "cafe con leche".
	variants := []string{"Café con leche", "cafe  con leche", "CAFÉ, con leche!", "café con LECHE"}
	const callers = 20
	results := make([]string, callers)
	errs := make([]error, callers)
	var wg, started sync.WaitGroup
	started.Add(callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			results[i], errs[i] = c.GetOrCompute(ctx, variants[i%len(variants)], fn)
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
	assert.Equal(t, 1, c.Len())
}

func TestTextCache_StarterCancelledWaiterGetsValue(t *testing.T) {
	c := NewTextCache[string](TextConfig{})
	entered := make(chan struct{})
	release := make(chan struct{})

	starterCtx, cancel := context.WithCancel(context.Background())
	starterDone := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(starterCtx, "Hola Ana", func(ctx context.Context, text string) (string, error) {
			close(entered)
			<-release
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "Ana", nil
		})
		starterDone <- err
	}()
	<-entered

	type result struct {
		v   string
		err error
	}
	waiterDone := make(chan result, 1)
	go func() {
		v, err := c.GetOrCompute(context.Background(), "hola ana", upper)
		waiterDone <- result{v, err}
	}()

	cancel()
	assert.ErrorIs(t, <-starterDone, context.Canceled)

	time.Sleep(20 * time.Millisecond)
	close(release)

	got := <-waiterDone
	require.NoError(t, got.err)
	assert.Equal(t, "Ana", got.v)
	assert.Equal(t, 1, c.Len())
}
