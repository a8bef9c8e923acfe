package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the submixtap tracer.
const tracerName = "github.com/MrWong99/submixtap"

// Span attribute keys for control operations.
const (
	AttrControlOp     = attribute.Key("submixtap.control.op")
	AttrSessionHandle = attribute.Key("submixtap.session.handle")
	AttrRecordingName = attribute.Key("submixtap.recording.name")
)

// Tracer returns the [trace.Tracer] for submixtap from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartControlSpan starts an internal span named op (e.g. "tap.start") for a
// control-plane action and returns a logger bound to it.
func StartControlSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, *slog.Logger) {
	attrs = append([]attribute.KeyValue{AttrControlOp.String(op)}, attrs...)
	ctx, span := StartSpan(ctx, op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return ctx, span, Logger(ctx).With("op", op)
}

// CorrelationID returns the trace ID of the span in ctx, or "" when there is
// none.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id and span_id attached when
// ctx carries a valid span.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
