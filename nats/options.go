package nats

import (
	"github.com/arloliu/lsprop"
	"github.com/arloliu/lsprop/internal/tracker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/arloliu/lsprop/nats"

type options struct {
	tp         trace.TracerProvider
	tracerName string
	prop       propagation.TextMapPropagator
	codec      *lsprop.Codec
	logger     *zap.Logger
	asyncSpans bool   // spans and header injection for async publishes
	stream     string // overrides the stream name in spans
}

func defaultOptions() options {
	return options{
		tracerName: instrumentationName,
		logger:     zap.NewNop(),
		asyncSpans: true,
	}
}

// Option configures publishers and consumers.
type Option func(*options)

// WithTracerProvider sets the provider spans are started from.
// nil keeps the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tp = tp
	}
}

// WithTracerName names the tracer spans come from instead of the package
// path. It also bypasses the tracer installed with lsprop.InitTracing.
func WithTracerName(name string) Option {
	return func(o *options) {
		o.tracerName = name
	}
}

// WithPropagator sets the propagator for the OpenTelemetry headers written
// next to the run-trace header. Defaults to the global one.
func WithPropagator(prop propagation.TextMapPropagator) Option {
	return func(o *options) {
		o.prop = prop
	}
}

// WithCodec sets the codec used for the run-trace header.
// Defaults to lsprop.DefaultCodec, resolved on every message.
func WithCodec(codec lsprop.Codec) Option {
	return func(o *options) {
		o.codec = &codec
	}
}

// WithLogger sets the logger for header fallbacks. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAsyncSpans(false) sends async publishes without a producer span or
// any trace headers.
func WithAsyncSpans(enabled bool) Option {
	return func(o *options) {
		o.asyncSpans = enabled
	}
}

// WithStream fixes the stream name process spans are named after, for
// messages whose metadata does not carry it.
func WithStream(stream string) Option {
	return func(o *options) {
		o.stream = stream
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

func (o options) getCodec() lsprop.Codec {
	if o.codec != nil {
		return *o.codec
	}

	return lsprop.DefaultCodec()
}

// tracer returns the tracer for spans. The tracer installed with
// lsprop.InitTracing wins unless a provider or tracer name was chosen.
func (o options) tracer() trace.Tracer {
	if o.tp == nil && o.tracerName == instrumentationName {
		if t := tracker.Load().Tracer; t != nil {
			return t
		}
	}
	tp := o.tp
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return tp.Tracer(o.tracerName)
}

func (o options) propagator() propagation.TextMapPropagator {
	if o.prop != nil {
		return o.prop
	}

	return otel.GetTextMapPropagator()
}
