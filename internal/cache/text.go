package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/guttosm/rental-manager/internal/logger"
	"github.com/guttosm/rental-manager/internal/metrics"
)

// DefaultTextCapacity is the text cache size used when none is configured.
const DefaultTextCapacity = 500

// TextConfig holds text cache configuration.
type TextConfig struct {
	Name     string
	Capacity int
	// Normalizer maps input text to its cache key. Defaults to Normalize.
	Normalizer func(string) string
}

// TextCache memoizes text-processing results keyed by normalized input.
// Entries never expire; the least recently used entry is evicted when the
// cache is full.
type TextCache[V any] struct {
	name      string
	mu        sync.Mutex
	items     map[string]*node[V]
	lru       lruList[V]
	inflight  map[string]*flight
	capacity  int
	normalize func(string) string
	group     singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	computes  atomic.Int64
	failures  atomic.Int64
}

// NewTextCache creates a bounded text cache.
func NewTextCache[V any](cfg TextConfig) *TextCache[V] {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultTextCapacity
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = Normalize
	}
	if cfg.Name == "" {
		cfg.Name = "text"
	}
	return &TextCache[V]{
		name:      cfg.Name,
		items:     make(map[string]*node[V], cfg.Capacity),
		inflight:  make(map[string]*flight),
		capacity:  cfg.Capacity,
		normalize: cfg.Normalizer,
	}
}

// Name returns the cache name.
func (c *TextCache[V]) Name() string {
	return c.name
}

// Key returns the cache key for text.
func (c *TextCache[V]) Key(text string) string {
	return c.normalize(text)
}

// Get returns the cached result for text, refreshing its recency on a hit.
func (c *TextCache[V]) Get(text string) (V, bool) {
	return c.get(c.normalize(text))
}

func (c *TextCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		metrics.RecordCacheOperation(c.name, "get", "miss")
		var zero V
		return zero, false
	}
	n.lastAccess = time.Now()
	c.lru.moveToFront(n)
	c.hits.Add(1)
	metrics.RecordCacheOperation(c.name, "get", "hit")
	return n.value, true
}

// GetOrCompute returns the cached result for text or runs fn on the original
// text and stores its result under the normalized key. Texts that normalize
// to the same key share one entry and one in-flight computation. The
// computation outlives the cancellation of the caller that started it.
func (c *TextCache[V]) GetOrCompute(ctx context.Context, text string, fn func(ctx context.Context, text string) (V, error)) (V, error) {
	key := c.normalize(text)
	if v, ok := c.get(key); ok {
		return v, nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.compute(flightCtx, key, func(ctx context.Context) (V, error) {
			return fn(ctx, text)
		})
	})

	var zero V
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *TextCache[V]) compute(ctx context.Context, key string, fn ComputeFunc[V]) (interface{}, error) {
	c.mu.Lock()
	if n, ok := c.items[key]; ok {
		v := n.value
		c.mu.Unlock()
		return v, nil
	}
	f := &flight{}
	c.inflight[key] = f
	c.mu.Unlock()

	start := time.Now()
	v, err := computeSafely(ctx, fn)
	metrics.RecordCacheCompute(c.name, time.Since(start))
	c.computes.Add(1)

	c.mu.Lock()
	if c.inflight[key] == f {
		delete(c.inflight, key)
	}
	if err != nil {
		c.mu.Unlock()
		c.failures.Add(1)
		metrics.RecordCacheOperation(c.name, "compute", "error")
		log := logger.Component("cache")
		log.Warn().Str("cache", c.name).Err(err).Msg("Text compute failed")
		return nil, &ComputeError{Cache: c.name, Key: key, Err: err}
	}
	if !f.stale {
		c.storeLocked(key, v)
	}
	size := len(c.items)
	c.mu.Unlock()

	metrics.RecordCacheOperation(c.name, "compute", "success")
	metrics.UpdateCacheSize(c.name, size)
	return v, nil
}

func (c *TextCache[V]) storeLocked(key string, value V) {
	now := time.Now()
	if old, ok := c.items[key]; ok {
		c.removeLocked(old)
	}
	n := &node[V]{key: key, value: value, createdAt: now, lastAccess: now}
	c.items[key] = n
	c.lru.pushFront(n)

	for len(c.items) > c.capacity {
		c.removeLocked(c.lru.back())
		c.evictions.Add(1)
		metrics.RecordCacheOperation(c.name, "evict", "capacity")
	}
}

// Remove drops the entry for text and reports whether one existed.
func (c *TextCache[V]) Remove(text string) bool {
	key := c.normalize(text)

	c.mu.Lock()
	n, found := c.items[key]
	if found {
		c.removeLocked(n)
	}
	if f, ok := c.inflight[key]; ok {
		f.stale = true
		delete(c.inflight, key)
	}
	size := len(c.items)
	c.mu.Unlock()

	c.group.Forget(key)
	metrics.UpdateCacheSize(c.name, size)
	return found
}

// Clear removes all entries.
func (c *TextCache[V]) Clear() {
	c.mu.Lock()
	c.items = make(map[string]*node[V], c.capacity)
	c.lru.reset()
	forget := make([]string, 0, len(c.inflight))
	for key, f := range c.inflight {
		f.stale = true
		forget = append(forget, key)
	}
	c.inflight = make(map[string]*flight)
	c.mu.Unlock()

	for _, key := range forget {
		c.group.Forget(key)
	}
	metrics.RecordCacheOperation(c.name, "clear", "success")
	metrics.UpdateCacheSize(c.name, 0)
}

// Shrink evicts the least recently used fraction of entries, rounding down,
// and returns how many were removed. fraction is clamped to [0, 1].
func (c *TextCache[V]) Shrink(fraction float64) int {
	if fraction <= 0 {
		return 0
	}
	if fraction > 1 {
		fraction = 1
	}

	c.mu.Lock()
	target := int(float64(len(c.items)) * fraction)
	for i := 0; i < target; i++ {
		c.removeLocked(c.lru.back())
	}
	c.evictions.Add(int64(target))
	size := len(c.items)
	c.mu.Unlock()

	if target > 0 {
		metrics.RecordCacheOperation(c.name, "trim", "success")
	}
	metrics.UpdateCacheSize(c.name, size)
	return target
}

// Len returns the number of entries.
func (c *TextCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Metrics returns current cache performance metrics.
func (c *TextCache[V]) Metrics() Metrics {
	c.mu.Lock()
	size := len(c.items)
	c.mu.Unlock()

	return Metrics{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Computes:  c.computes.Load(),
		Failures:  c.failures.Load(),
		Size:      size,
		Capacity:  c.capacity,
	}
}

func (c *TextCache[V]) removeLocked(n *node[V]) {
	delete(c.items, n.key)
	c.lru.remove(n)
}
