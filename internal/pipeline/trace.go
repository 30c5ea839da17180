package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/guttosm/rental-manager/internal/pipeline"

// Traced wraps the call in a span named name.
func Traced[T any](name string, attrs ...attribute.KeyValue) Stage[T] {
	tracer := otel.Tracer(tracerName)
	return func(next Func[T]) Func[T] {
		return func(ctx context.Context) (T, error) {
			ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
			defer span.End()

			v, err := next(ctx)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return v, err
		}
	}
}
