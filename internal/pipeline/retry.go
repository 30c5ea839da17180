package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/guttosm/rental-manager/internal/logger"
	"github.com/guttosm/rental-manager/internal/pool"
)

// RetryPolicy controls Retry.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries uint64
	// Delay is the wait before each retry.
	Delay time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Defaults to pool.IsBackendError.
	Retryable func(error) bool
}

// DefaultRetryPolicy retries a backend failure once.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 1,
		Delay:      50 * time.Millisecond,
		Retryable:  pool.IsBackendError,
	}
}

// Retry re-runs the call when it fails with a retryable error. Other errors
// and context cancellation end the attempts immediately.
func Retry[T any](policy RetryPolicy) Stage[T] {
	if policy.Retryable == nil {
		policy.Retryable = pool.IsBackendError
	}
	return func(next Func[T]) Func[T] {
		return func(ctx context.Context) (T, error) {
			return Do(ctx, policy, next)
		}
	}
}

// Do runs fn under policy.
func Do[T any](ctx context.Context, policy RetryPolicy, fn Func[T]) (T, error) {
	if policy.Retryable == nil {
		policy.Retryable = pool.IsBackendError
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(policy.Delay)
	b = backoff.WithMaxRetries(b, policy.MaxRetries)
	b = backoff.WithContext(b, ctx)

	attempt := 0
	return backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		v, err := fn(ctx)
		if err != nil && !policy.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, b, func(err error, wait time.Duration) {
		log := logger.Component("pipeline")
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("Backend call failed, retrying on a fresh connection")
	})
}
