package nats

import (
	"context"
	"strconv"

	"github.com/arloliu/lsprop"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// publishAPI is the part of jetstream.JetStream used by Publisher.
type publishAPI interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
	PublishMsgAsync(msg *nats.Msg, opts ...jetstream.PublishOpt) (jetstream.PubAckFuture, error)
}

// Publisher publishes JetStream messages as producer runs. Every message
// carries the run-trace header naming the producer span as its parent.
type Publisher struct {
	js     jetstream.JetStream
	api    publishAPI
	tracer trace.Tracer
	prop   propagation.TextMapPropagator
	opts   options
}

// NewPublisher returns a Publisher for js.
//
// Panics if js is nil.
func NewPublisher(js jetstream.JetStream, opts ...Option) *Publisher {
	if js == nil {
		panic("lsprop/nats: JetStream must not be nil")
	}

	p := newPublisher(js, opts)
	p.js = js

	return p
}

func newPublisher(api publishAPI, opts []Option) *Publisher {
	o := applyOptions(opts)

	return &Publisher{api: api, tracer: o.tracer(), prop: o.propagator(), opts: o}
}

// JetStream returns the wrapped client for calls that should not be traced.
func (p *Publisher) JetStream() jetstream.JetStream {
	return p.js
}

// Publish sends data to subject and waits for the stream's ack.
func (p *Publisher) Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	return p.PublishMsg(ctx, &nats.Msg{Subject: subject, Data: data}, opts...)
}

// PublishMsg sends msg and waits for the stream's ack. A TraceContext on ctx
// that cannot be encoded fails the publish before anything is sent.
func (p *Publisher) PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	return publish(ctx, p, msg, func(ctx context.Context) (*jetstream.PubAck, error) {
		return p.api.PublishMsg(ctx, msg, opts...)
	})
}

// PublishAsync is the asynchronous form of Publish.
func (p *Publisher) PublishAsync(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (jetstream.PubAckFuture, error) {
	return p.PublishAsyncMsg(ctx, &nats.Msg{Subject: subject, Data: data}, opts...)
}

// PublishAsyncMsg hands msg to the async publisher. ctx only parents the span
// and the headers; the span ends once the publish is queued, not on the ack.
// With WithAsyncSpans(false) msg goes out untouched.
func (p *Publisher) PublishAsyncMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (jetstream.PubAckFuture, error) {
	send := func(context.Context) (jetstream.PubAckFuture, error) {
		return p.api.PublishMsgAsync(msg, opts...)
	}
	if !p.opts.asyncSpans {
		return send(ctx)
	}

	return publish(ctx, p, msg, send)
}

// publish runs send inside a producer span once msg carries the span's headers.
func publish[T any](ctx context.Context, p *Publisher, msg *nats.Msg, send func(context.Context) (T, error)) (T, error) {
	run, _ := lsprop.FromContext(ctx)
	m := message{operation: opPublish, subject: msg.Subject, bodySize: len(msg.Data), run: run}

	ctx, span := p.tracer.Start(ctx, m.spanName(),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(m.attributes()...),
	)
	defer span.End()

	p.prop.Inject(ctx, headerCarrier(ensureHeader(msg)))

	var zero T
	if err := InjectRunTrace(ctx, msg, p.opts.getCodec()); err != nil {
		return zero, failSpan(span, err)
	}

	result, err := send(ctx)
	if err != nil {
		return zero, failSpan(span, err)
	}

	if ack, ok := any(result).(*jetstream.PubAck); ok && ack != nil {
		span.SetAttributes(
			semconv.MessagingMessageID(strconv.FormatUint(ack.Sequence, 10)),
			attrStream.String(ack.Stream),
		)
	}

	return result, nil
}

// failSpan records err on span and returns it.
func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return err
}
