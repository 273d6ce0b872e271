package lsprop

import (
	"context"

	"github.com/arloliu/lsprop/internal/tracker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InitTracing installs the tracer and namer that Start uses.
func InitTracing(tracer trace.Tracer, namer SpanNamer) {
	tracker.SetTracer(tracer, namer)
}

// Start begins a new span with the configured namer applied.
//
// When a tracer is configured, the TraceContext on the returned context is advanced
// to the new span: its SpanID becomes the span's id, so anything injected from that
// context names a live parent. The trace identifier of an existing TraceContext is
// kept; without one, the span's own trace id is used.
func Start(ctx context.Context, operation string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	ctx, span, started := tracker.Start(ctx, operation, opts...)
	if !started {
		return ctx, span
	}

	return advance(ctx, span.SpanContext()), span
}

// Follow points the TraceContext on ctx at the active OpenTelemetry span.
// Use it after spans started outside Start, such as by otelhttp or otelgrpc.
// Invalid or remote span contexts leave ctx unchanged.
func Follow(ctx context.Context) context.Context {
	sc, ok := localSpan(ctx)
	if !ok {
		return ctx
	}

	return advance(ctx, sc)
}

// Outbound returns the TraceContext to send on an outgoing call made with ctx.
// OpenTelemetry baggage is used when the TraceContext carries none.
// The boolean is false when ctx has neither a TraceContext nor a valid span.
func Outbound(ctx context.Context) (TraceContext, bool) {
	tc, _ := FromContext(Follow(ctx))
	if tc.IsZero() {
		return TraceContext{}, false
	}
	if len(tc.Baggage) == 0 {
		tc.Baggage = otelBaggage(ctx)
	}

	return tc, true
}

func advance(ctx context.Context, sc trace.SpanContext) context.Context {
	if !sc.IsValid() {
		return ctx
	}

	tc, _ := FromContext(ctx)
	if tc.SpanID == sc.SpanID().String() {
		return ctx
	}
	if tc.TraceID == "" {
		tc.TraceID = sc.TraceID().String()
	}

	return ContextWith(ctx, tc.Child(sc.SpanID().String()))
}

func withKind(kind trace.SpanKind, opts []trace.SpanStartOption) []trace.SpanStartOption {
	return append([]trace.SpanStartOption{trace.WithSpanKind(kind)}, opts...)
}

// StartServer starts the run that handles an inbound request.
func StartServer(ctx context.Context, operation string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Start(ctx, operation, withKind(trace.SpanKindServer, opts)...)
}

// StartClient starts the run that wraps a call into another service.
func StartClient(ctx context.Context, operation string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Start(ctx, operation, withKind(trace.SpanKindClient, opts)...)
}

// StartInternal starts an in-process run such as a chain step or tool call.
func StartInternal(ctx context.Context, operation string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Start(ctx, operation, withKind(trace.SpanKindInternal, opts)...)
}

// StartProducer starts a run that hands work to a queue or stream.
func StartProducer(ctx context.Context, operation string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Start(ctx, operation, withKind(trace.SpanKindProducer, opts)...)
}

// StartConsumer starts a run that processes a message taken from a queue or stream.
func StartConsumer(ctx context.Context, operation string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Start(ctx, operation, withKind(trace.SpanKindConsumer, opts)...)
}

// currentIDs prefers the TraceContext on ctx and fills gaps from the active span.
func currentIDs(ctx context.Context) (traceID, spanID string) {
	tc, _ := FromContext(ctx)
	traceID, spanID = tc.TraceID, tc.SpanID

	sc := trace.SpanContextFromContext(ctx)
	if traceID == "" && sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	if spanID == "" && sc.HasSpanID() {
		spanID = sc.SpanID().String()
	}

	return traceID, spanID
}

// TraceID returns the run trace id on ctx, or "" when there is none.
func TraceID(ctx context.Context) string {
	id, _ := currentIDs(ctx)
	return id
}

// SpanID returns the id of the run that outgoing calls would name as parent.
func SpanID(ctx context.Context) string {
	_, id := currentIDs(ctx)
	return id
}

// SpanFromContext returns the active span on ctx, or a no-op span.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// RecordError marks the active run as failed with err. A nil err is ignored.
func RecordError(ctx context.Context, err error, opts ...trace.EventOption) {
	if err == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	span.RecordError(err, opts...)
	span.SetStatus(codes.Error, err.Error())
}

// SetSuccess marks the active run as completed.
func SetSuccess(ctx context.Context) {
	trace.SpanFromContext(ctx).SetStatus(codes.Ok, "")
}

// AddEvent records a named event with attrs on the active run.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetAttributes sets attrs on the active run.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
