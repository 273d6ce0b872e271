package nats

import (
	"context"

	"github.com/arloliu/lsprop"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracedMsg wraps a jetstream.Msg with the context resolved from its headers.
type TracedMsg struct {
	jetstream.Msg
	ctx context.Context
}

// Context returns the context carrying the message's TraceContext.
// Use it for downstream calls so they join the same run trace.
func (m *TracedMsg) Context() context.Context {
	if m.ctx == nil {
		return context.Background()
	}

	return m.ctx
}

// TraceContext returns the TraceContext resolved for this message.
func (m *TracedMsg) TraceContext() lsprop.TraceContext {
	tc, _ := lsprop.FromContext(m.Context())
	return tc
}

// StartProcessSpan starts the process run for this message and returns its
// context plus the function that ends it. Use it when the consumer loop is
// not built on MessageHandlerWithTracing or RunHandler.
//
//	consumer.Consume(func(msg jetstream.Msg) {
//	    ctx, end := lsnats.NewTracedMsg(msg).StartProcessSpan()
//	    err := summarize(ctx, msg.Data())
//	    end(err)
//	    if err != nil {
//	        msg.Nak()
//	        return
//	    }
//	    msg.Ack()
//	})
func (m *TracedMsg) StartProcessSpan(opts ...Option) (context.Context, func(error)) {
	o := applyOptions(opts)
	ctx, span := startProcessSpan(m.Context(), o.tracer(), m.Msg, o)

	return ctx, func(err error) {
		if err != nil {
			_ = failSpan(span, err)
		}
		span.End()
	}
}

// NewTracedMsg resolves msg's headers into a TracedMsg. A missing or
// malformed run-trace header yields a new root.
func NewTracedMsg(msg jetstream.Msg, opts ...Option) *TracedMsg {
	o := applyOptions(opts)

	return &TracedMsg{
		Msg: msg,
		ctx: extractContext(context.Background(), msg, o.propagator(), o),
	}
}

// extractContext resolves the parent context of a received message.
func extractContext(ctx context.Context, msg jetstream.Msg, prop propagation.TextMapPropagator, o options) context.Context {
	if msg == nil {
		ctx, _ = lsprop.EnsureContext(ctx)
		return ctx
	}

	headers := msg.Headers()
	if headers != nil {
		ctx = prop.Extract(ctx, headerCarrier(headers))
	}

	ctx, tc, outcome, err := AcceptRunTrace(ctx, headers, o.getCodec())
	if outcome == lsprop.OutcomeMalformed {
		o.logger.Warn("malformed run-trace header, starting new root",
			zap.String("subject", msg.Subject()),
			zap.String("trace_id", tc.TraceID),
			zap.Error(err))
	}

	return ctx
}

// startProcessSpan starts a consumer span named after the stream and advances the
// TraceContext to it.
func startProcessSpan(ctx context.Context, tracer trace.Tracer, msg jetstream.Msg, o options) (context.Context, trace.Span) {
	m := message{operation: opProcess}
	m.run, _ = lsprop.FromContext(ctx)
	if msg != nil {
		if md, err := msg.Metadata(); err == nil && md != nil {
			m.stream, m.consumer, m.sequence = md.Stream, md.Consumer, md.Sequence.Stream
		}
		m.subject = msg.Subject()
		m.bodySize = len(msg.Data())
	}
	if o.stream != "" {
		m.stream = o.stream
	}

	ctx, span := tracer.Start(ctx, m.spanName(),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(m.attributes()...),
	)

	return lsprop.Follow(ctx), span
}
