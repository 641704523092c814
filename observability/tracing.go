package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/next-trace/scg-signal-bus"

// Tracer returns the module tracer from the global provider.
// It is a no-op until the host installs a provider.
func Tracer() trace.Tracer { return otel.Tracer(instrumentation) }

// StartSpan starts a new span.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// EndSpan records err on span, sets its status and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "OK")
	}

	span.End()
}

// InstallPropagator sets the global W3C trace-context + baggage propagator.
func InstallPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// Propagator injects the active trace context into message headers.
// It satisfies signal.HeaderPropagator.
type Propagator struct{}

func (Propagator) Inject(ctx context.Context, headers map[string]string) {
	if ctx == nil || headers == nil {
		return
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
}
