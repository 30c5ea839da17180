// Package fetch runs many I/O-bound requests against a connection pool with
// bounded concurrency.
package fetch

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/guttosm/rental-manager/internal/logger"
	"github.com/guttosm/rental-manager/internal/metrics"
	"github.com/guttosm/rental-manager/internal/pipeline"
	"github.com/guttosm/rental-manager/internal/pool"
)

const tracerName = "github.com/guttosm/rental-manager/internal/fetch"

// ErrSkipped is reported for requests never started because a fail-fast
// batch was aborted first.
var ErrSkipped = errors.New("fetch: skipped after earlier failure")

// Request is one fetch performed on a pooled connection.
type Request[C, T any] func(ctx context.Context, conn C) (T, error)

// Result is the outcome of the request at the same index.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// OK reports whether the request succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Options controls a batch.
type Options struct {
	// Limit bounds concurrent requests. Zero means the pool size.
	Limit int
	// AcquireTimeout bounds each wait for a connection. Zero tries once.
	AcquireTimeout time.Duration
	// FailFast cancels outstanding requests after the first failure.
	FailFast bool
	// Retry applies to each request. Defaults to one retry on backend failure.
	Retry *pipeline.RetryPolicy
}

// Coordinator binds a pool to default batch options.
type Coordinator[C any] struct {
	pool    *pool.Pool[C]
	options Options
}

// NewCoordinator creates a coordinator over p.
func NewCoordinator[C any](p *pool.Pool[C], defaults Options) *Coordinator[C] {
	if defaults.Limit <= 0 {
		defaults.Limit = p.Stats().MaxSize
	}
	if defaults.AcquireTimeout == 0 {
		defaults.AcquireTimeout = 30 * time.Second
	}
	return &Coordinator[C]{pool: p, options: defaults}
}

// Pool returns the underlying connection pool.
func (co *Coordinator[C]) Pool() *pool.Pool[C] {
	return co.pool
}

// Options returns the coordinator's default options.
func (co *Coordinator[C]) Options() Options {
	return co.options
}

// FetchMany runs requests with at most opts.Limit in flight and returns one
// result per request in input order. A failing request only affects its own
// slot unless opts.FailFast is set. Cancelling ctx stops outstanding
// requests; every connection they hold is still released to the pool.
func FetchMany[C, T any](ctx context.Context, co *Coordinator[C], requests []Request[C, T], opts Options) []Result[T] {
	if opts.Limit <= 0 {
		opts.Limit = co.options.Limit
	}
	if opts.AcquireTimeout == 0 {
		opts.AcquireTimeout = co.options.AcquireTimeout
	}
	policy := pipeline.DefaultRetryPolicy()
	if opts.Retry != nil {
		policy = *opts.Retry
	} else if co.options.Retry != nil {
		policy = *co.options.Retry
	}

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "fetch.FetchMany", trace.WithAttributes(
		attribute.Int("fetch.requests", len(requests)),
		attribute.Int("fetch.limit", opts.Limit),
		attribute.Bool("fetch.fail_fast", opts.FailFast),
	))
	defer span.End()

	results := make([]Result[T], len(requests))
	for i := range results {
		results[i] = Result[T]{Index: i, Err: ErrSkipped}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.FailFast {
		runCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	g := new(errgroup.Group)
	g.SetLimit(opts.Limit)

	for i, req := range requests {
		if runCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := runCtx.Err(); err != nil {
				if !opts.FailFast || ctx.Err() != nil {
					results[i].Err = err
				}
				return nil
			}

			v, err := fetchOne(runCtx, tracer, co.pool, opts.AcquireTimeout, policy, i, req)
			results[i] = Result[T]{Index: i, Value: v, Err: err}
			if err != nil {
				metrics.RecordFetchResult("error")
				if cancel != nil {
					cancel()
				}
				return nil
			}
			metrics.RecordFetchResult("success")
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		for i := range results {
			if errors.Is(results[i].Err, ErrSkipped) {
				results[i].Err = err
			}
		}
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("fetch.failed", failed))
	if failed > 0 {
		span.SetStatus(codes.Error, "some requests failed")
		log := logger.Component("fetch")
		log.Warn().
			Int("requests", len(requests)).
			Int("failed", failed).
			Bool("fail_fast", opts.FailFast).
			Msg("Fetch batch finished with failures")
	}
	return results
}

func fetchOne[C, T any](ctx context.Context, tracer trace.Tracer, p *pool.Pool[C], timeout time.Duration, policy pipeline.RetryPolicy, index int, req Request[C, T]) (T, error) {
	ctx, span := tracer.Start(ctx, "fetch.request", trace.WithAttributes(attribute.Int("fetch.index", index)))
	defer span.End()

	v, err := pipeline.Do(ctx, policy, pipeline.Pooled[C, T](p, timeout, req))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return v, err
}
