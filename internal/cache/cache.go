// Package cache provides the TTL query cache and the LRU text cache.
//
// Both caches share one doubly-linked recency list and the same single-flight
// discipline: concurrent misses on a key run the compute function once and
// every waiter receives its result or its error.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCompute matches any *ComputeError via errors.Is.
var ErrCompute = errors.New("cache: compute failed")

// ComputeFunc produces the value for a missing key.
type ComputeFunc[V any] func(ctx context.Context) (V, error)

// ComputeError is returned to every waiter when the compute function fails.
// Nothing is stored for the key.
type ComputeError struct {
	Cache string
	Key   string
	Err   error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("cache %s: compute %q: %v", e.Cache, e.Key, e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }

// Is reports whether target is ErrCompute.
func (e *ComputeError) Is(target error) bool { return target == ErrCompute }

// Metrics provides cache performance metrics.
type Metrics struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
	Computes    int64 `json:"computes"`
	Failures    int64 `json:"failures"`
	Size        int   `json:"size"`
	Capacity    int   `json:"capacity"`
}

// HitRatio returns hits / (hits + misses), or 0 with no lookups.
func (m Metrics) HitRatio() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

// Clock abstracts time for expiry checks.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}

// computeSafely runs fn and converts a panic into an error so that a faulty
// compute function fails its waiters instead of the process.
func computeSafely[V any](ctx context.Context, fn ComputeFunc[V]) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
