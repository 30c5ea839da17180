package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/guttosm/rental-manager/internal/logger"
	"github.com/guttosm/rental-manager/internal/metrics"
)

// TTLConfig holds TTL cache configuration.
type TTLConfig struct {
	// Name labels metrics and log lines.
	Name string
	// DefaultTTL applies when GetOrCompute or Set is called with ttl <= 0.
	DefaultTTL time.Duration
	// Capacity bounds the entry count. Zero means unbounded.
	Capacity int
	// CleanupInterval is how often expired entries are purged in the
	// background. Zero disables the janitor.
	CleanupInterval time.Duration
	// Clock defaults to the system clock.
	Clock Clock
}

// DefaultTTLConfig returns the configuration used for query caches.
func DefaultTTLConfig(name string) TTLConfig {
	return TTLConfig{
		Name:            name,
		DefaultTTL:      5 * time.Minute,
		Capacity:        1000,
		CleanupInterval: time.Minute,
	}
}

// flight tracks one in-progress computation. A stale flight finishes for
// its waiters but does not store its result.
type flight struct {
	stale bool
}

// TTLCache maps fingerprints to computed results that expire after a TTL.
//
// When bounded, inserting into a full cache first drops expired entries and
// then evicts the least recently used valid entry.
type TTLCache[V any] struct {
	name       string
	mu         sync.Mutex
	items      map[string]*node[V]
	lru        lruList[V]
	inflight   map[string]*flight
	capacity   int
	defaultTTL time.Duration
	clock      Clock
	group      singleflight.Group

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
	computes    atomic.Int64
	failures    atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewTTLCache creates a TTL cache. A background goroutine purges expired
// entries when cfg.CleanupInterval is positive; call Stop to end it.
func NewTTLCache[V any](cfg TTLConfig) *TTLCache[V] {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.Capacity < 0 {
		cfg.Capacity = 0
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}
	if cfg.Name == "" {
		cfg.Name = "ttl"
	}

	c := &TTLCache[V]{
		name:       cfg.Name,
		items:      make(map[string]*node[V]),
		inflight:   make(map[string]*flight),
		capacity:   cfg.Capacity,
		defaultTTL: cfg.DefaultTTL,
		clock:      cfg.Clock,
		stopCh:     make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go c.startCleanup(cfg.CleanupInterval)
	}
	return c
}

// Name returns the cache name.
func (c *TTLCache[V]) Name() string {
	return c.name
}

// SetDefaultTTL changes the TTL of entries stored with ttl <= 0 from now on.
// Existing entries keep their expiry. Non-positive values are ignored.
func (c *TTLCache[V]) SetDefaultTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.defaultTTL = ttl
	c.mu.Unlock()
}

// Get returns the value for key if present and not expired.
// A hit refreshes the entry's recency.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	n, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		metrics.RecordCacheOperation(c.name, "get", "miss")
		return zero, false
	}

	now := c.clock.Now()
	if n.expired(now) {
		c.removeLocked(n)
		c.expirations.Add(1)
		c.misses.Add(1)
		metrics.RecordCacheOperation(c.name, "get", "expired")
		return zero, false
	}

	n.lastAccess = now
	c.lru.moveToFront(n)
	c.hits.Add(1)
	metrics.RecordCacheOperation(c.name, "get", "hit")
	return n.value, true
}

// GetOrCompute returns the cached value for key or computes, stores and
// returns it. Concurrent callers missing on the same key share a single
// invocation of fn; it runs with the values of the caller that started it
// but not its cancellation. If fn fails nothing is stored and every waiter receives a *ComputeError.
// A caller whose ctx ends while waiting returns ctx.Err() without
// cancelling the computation for the others.
func (c *TTLCache[V]) GetOrCompute(ctx context.Context, key string, fn ComputeFunc[V], ttl time.Duration) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.compute(flightCtx, key, fn, ttl)
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

func (c *TTLCache[V]) compute(ctx context.Context, key string, fn ComputeFunc[V], ttl time.Duration) (interface{}, error) {
	c.mu.Lock()
	// A flight that finished between our miss and this call already stored it.
	if n, ok := c.items[key]; ok && !n.expired(c.clock.Now()) {
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
		log.Warn().
			Str("cache", c.name).
			Str("key", key).
			Err(err).
			Msg("Cache compute failed")
		return nil, &ComputeError{Cache: c.name, Key: key, Err: err}
	}
	if !f.stale {
		c.storeLocked(key, v, ttl)
	}
	size := len(c.items)
	c.mu.Unlock()

	metrics.RecordCacheOperation(c.name, "compute", "success")
	metrics.UpdateCacheSize(c.name, size)
	return v, nil
}

// Set stores value under key, replacing any previous entry.
func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	if f, ok := c.inflight[key]; ok {
		f.stale = true
		delete(c.inflight, key)
	}
	c.storeLocked(key, value, ttl)
	size := len(c.items)
	c.mu.Unlock()

	metrics.RecordCacheOperation(c.name, "set", "success")
	metrics.UpdateCacheSize(c.name, size)
}

// storeLocked replaces the entry for key with a fresh one.
func (c *TTLCache[V]) storeLocked(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.clock.Now()

	if old, ok := c.items[key]; ok {
		c.removeLocked(old)
	}
	n := &node[V]{
		key:        key,
		value:      value,
		createdAt:  now,
		expiresAt:  now.Add(ttl),
		lastAccess: now,
	}
	c.items[key] = n
	c.lru.pushFront(n)

	if c.capacity > 0 && len(c.items) > c.capacity {
		c.expirations.Add(int64(c.purgeLocked(now)))
		for len(c.items) > c.capacity {
			c.removeLocked(c.lru.back())
			c.evictions.Add(1)
			metrics.RecordCacheOperation(c.name, "evict", "capacity")
		}
	}
}

// Invalidate removes key immediately regardless of its TTL. A computation
// for key already in progress will not store its result.
func (c *TTLCache[V]) Invalidate(key string) bool {
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
	metrics.RecordCacheOperation(c.name, "invalidate", "success")
	metrics.UpdateCacheSize(c.name, size)
	return found
}

// InvalidatePrefix removes every key starting with prefix and returns how
// many entries were dropped.
func (c *TTLCache[V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	removed := 0
	for key, n := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(n)
			removed++
		}
	}
	var forget []string
	for key, f := range c.inflight {
		if strings.HasPrefix(key, prefix) {
			f.stale = true
			delete(c.inflight, key)
			forget = append(forget, key)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	for _, key := range forget {
		c.group.Forget(key)
	}
	metrics.RecordCacheOperation(c.name, "invalidate_prefix", "success")
	metrics.UpdateCacheSize(c.name, size)
	return removed
}

// Clear removes all entries. Counters are kept.
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	c.items = make(map[string]*node[V])
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

// Purge drops expired entries and returns how many were removed.
func (c *TTLCache[V]) Purge() int {
	c.mu.Lock()
	removed := c.purgeLocked(c.clock.Now())
	size := len(c.items)
	c.mu.Unlock()

	c.expirations.Add(int64(removed))
	metrics.UpdateCacheSize(c.name, size)
	return removed
}

// TrimIdle drops expired entries and entries not accessed within idle.
// The memory monitor calls it to relieve pressure without clearing hot keys.
func (c *TTLCache[V]) TrimIdle(idle time.Duration) int {
	c.mu.Lock()
	now := c.clock.Now()
	cutoff := now.Add(-idle)
	removed := 0
	// Walk from the cold end; stop at the first entry accessed after cutoff.
	for n := c.lru.back(); n != nil; {
		prev := n.prev
		if n.expired(now) || n.lastAccess.Before(cutoff) {
			c.removeLocked(n)
			removed++
		} else {
			break
		}
		n = prev
	}
	removed += c.purgeLocked(now)
	size := len(c.items)
	c.mu.Unlock()

	if removed > 0 {
		metrics.RecordCacheOperation(c.name, "trim", "success")
	}
	metrics.UpdateCacheSize(c.name, size)
	return removed
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Metrics returns current cache performance metrics.
func (c *TTLCache[V]) Metrics() Metrics {
	c.mu.Lock()
	size := len(c.items)
	c.mu.Unlock()

	return Metrics{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		Computes:    c.computes.Load(),
		Failures:    c.failures.Load(),
		Size:        size,
		Capacity:    c.capacity,
	}
}

// Stop ends the background janitor. Safe to call more than once.
func (c *TTLCache[V]) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

// startCleanup periodically purges expired entries.
func (c *TTLCache[V]) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Purge()
		case <-c.stopCh:
			return
		}
	}
}

func (c *TTLCache[V]) purgeLocked(now time.Time) int {
	removed := 0
	for _, n := range c.items {
		if n.expired(now) {
			c.removeLocked(n)
			removed++
		}
	}
	return removed
}

// removeLocked removes an entry from both the map and the recency list.
func (c *TTLCache[V]) removeLocked(n *node[V]) {
	delete(c.items, n.key)
	c.lru.remove(n)
}
