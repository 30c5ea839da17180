// Package pipeline composes backend calls from explicit stages.
//
// A call is a plain Func. Stages wrap it; Chain applies them so that the
// first stage is the outermost. The usual assembly for a read is
//
//	pipeline.Chain(pipeline.Pooled(p, timeout, query),
//		pipeline.Cached(c, key, ttl),
//		pipeline.Breaker(cb),
//		pipeline.Retry(pipeline.DefaultRetryPolicy()),
//	)
//
// so a cache hit never touches the breaker and every retry acquires a fresh
// pooled connection.
package pipeline

import (
	"context"
	"time"

	"github.com/guttosm/rental-manager/internal/cache"
	"github.com/guttosm/rental-manager/internal/circuitbreaker"
	"github.com/guttosm/rental-manager/internal/pool"
)

// Func is one backend call.
type Func[T any] func(ctx context.Context) (T, error)

// Stage wraps a Func with extra behavior.
type Stage[T any] func(next Func[T]) Func[T]

// Chain wraps fn with stages, first stage outermost.
func Chain[T any](fn Func[T], stages ...Stage[T]) Func[T] {
	for i := len(stages) - 1; i >= 0; i-- {
		fn = stages[i](fn)
	}
	return fn
}

// Pooled runs fn on a connection acquired from p for each invocation.
func Pooled[C, T any](p *pool.Pool[C], timeout time.Duration, fn func(ctx context.Context, conn C) (T, error)) Func[T] {
	return func(ctx context.Context) (T, error) {
		return pool.Do(ctx, p, timeout, fn)
	}
}

// Cached serves the call from c under key, computing on a miss.
func Cached[T any](c *cache.TTLCache[T], key string, ttl time.Duration) Stage[T] {
	return func(next Func[T]) Func[T] {
		return func(ctx context.Context) (T, error) {
			return c.GetOrCompute(ctx, key, cache.ComputeFunc[T](next), ttl)
		}
	}
}

// Breaker fails fast with circuitbreaker.ErrCircuitOpen while cb is open.
func Breaker[T any](cb *circuitbreaker.CircuitBreaker) Stage[T] {
	return func(next Func[T]) Func[T] {
		return func(ctx context.Context) (T, error) {
			var result T
			err := cb.Execute(ctx, func() error {
				var err error
				result, err = next(ctx)
				return err
			})
			return result, err
		}
	}
}
