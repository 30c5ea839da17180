package pool

import (
	"context"
	"fmt"
	"time"
)

// Do acquires a connection, runs fn on it and releases it on every exit
// path, including a panic in fn. Backend failures returned by fn mark the
// connection broken so it is not reused.
func Do[C, T any](ctx context.Context, p *Pool[C], timeout time.Duration, fn func(ctx context.Context, conn C) (T, error)) (result T, err error) {
	lease, err := p.Acquire(ctx, timeout)
	if err != nil {
		return result, err
	}
	defer func() {
		if r := recover(); r != nil {
			lease.MarkBroken(fmt.Errorf("panic: %v", r))
			lease.Release()
			panic(r)
		}
	}()

	result, err = fn(ctx, lease.Conn())
	if IsBackendError(err) {
		lease.MarkBroken(err)
	}
	lease.Release()
	return result, err
}

// With is Do for functions without a result.
func With[C any](ctx context.Context, p *Pool[C], timeout time.Duration, fn func(ctx context.Context, conn C) error) error {
	_, err := Do(ctx, p, timeout, func(ctx context.Context, conn C) (struct{}, error) {
		return struct{}{}, fn(ctx, conn)
	})
	return err
}
