package obs

import (
	"context"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "oversight.dev/gateway"

var (
	tracingOnce sync.Once
	tracingErr  error
	provider    *sdktrace.TracerProvider
)

// InitTracing installs a stdout span exporter as the global provider. Without
// it spans fall through to the otel no-op tracer. Only the first call counts.
func InitTracing(service, version string, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	tracingOnce.Do(func() {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			tracingErr = err
			return
		}
		res, err := resource.New(context.Background(),
			resource.WithAttributes(
				attribute.String("service.name", service),
				attribute.String("service.version", version),
			),
		)
		if err != nil {
			tracingErr = err
			return
		}
		provider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(provider)
	})
	return tracingErr
}

// ShutdownTracing flushes pending spans.
func ShutdownTracing(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

// StartSpan opens an internal span carrying the given string attributes.
func StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, trace.Span) {
	kv := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kv = append(kv, attribute.String(k, v))
	}
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(kv...))
}

// EndSpan records err (if any) as the span status and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
