package nats

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MessageHandlerWithTracing returns a jetstream.MessageHandler that resolves
// each message's TraceContext from its headers, starts a process span under
// it and hands the message to handler. A panic in handler is recorded on the
// span and re-raised.
//
// The stream name comes from the message metadata unless WithStream is set.
//
//	consumer.Consume(lsnats.MessageHandlerWithTracing(func(msg *lsnats.TracedMsg) {
//	    summarize(msg.Context(), msg.Data())
//	    msg.Ack()
//	}))
//
// Panics if handler is nil.
func MessageHandlerWithTracing(handler func(*TracedMsg), opts ...Option) jetstream.MessageHandler {
	if handler == nil {
		panic("lsprop/nats: handler must not be nil")
	}

	return newProcessor(opts).handle(func(msg *TracedMsg) error {
		handler(msg)
		return nil
	})
}

// RunHandler returns a jetstream.MessageHandler for work that settles the
// message itself: fn's nil result acks the message, an error is recorded on
// the process span and naks it for redelivery.
//
// Panics if fn is nil.
func RunHandler(fn func(ctx context.Context, msg jetstream.Msg) error, opts ...Option) jetstream.MessageHandler {
	if fn == nil {
		panic("lsprop/nats: handler must not be nil")
	}

	p := newProcessor(opts)

	return p.handle(func(msg *TracedMsg) error {
		if err := fn(msg.Context(), msg.Msg); err != nil {
			if nakErr := msg.Nak(); nakErr != nil {
				p.opts.logger.Warn("nak failed", zap.String("subject", msg.Subject()), zap.Error(nakErr))
			}

			return err
		}

		return msg.Ack()
	})
}

// processor holds the tracer and propagator resolved once per handler.
type processor struct {
	tracer trace.Tracer
	prop   propagation.TextMapPropagator
	opts   options
}

func newProcessor(opts []Option) *processor {
	o := applyOptions(opts)

	return &processor{tracer: o.tracer(), prop: o.propagator(), opts: o}
}

func (p *processor) handle(fn func(*TracedMsg) error) jetstream.MessageHandler {
	return func(msg jetstream.Msg) {
		parent := extractContext(context.Background(), msg, p.prop, p.opts)
		ctx, span := startProcessSpan(parent, p.tracer, msg, p.opts)

		defer func() {
			if r := recover(); r != nil {
				_ = failSpan(span, fmt.Errorf("panic in handler: %v", r))
				span.End()
				panic(r)
			}
			span.End()
		}()

		if err := fn(&TracedMsg{Msg: msg, ctx: ctx}); err != nil {
			_ = failSpan(span, err)
		}
	}
}
