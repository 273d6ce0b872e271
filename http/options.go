package http

import (
	"github.com/arloliu/lsprop"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const scopeName = "github.com/arloliu/lsprop/http"

type options struct {
	codec          *lsprop.Codec
	logger         *zap.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	propagator     propagation.TextMapPropagator
	otelOpts       []otelhttp.Option
}

// Option configures run-trace propagation for the middleware and transport.
type Option func(*options)

// WithCodec sets the codec used to read and write the trace header.
// Defaults to lsprop.DefaultCodec, resolved on every request.
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

// WithTracerProvider sets the provider of the otelhttp server and client spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithMeterProvider sets the provider of the inbound outcome counter and the
// otelhttp metrics. Defaults to the global MeterProvider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithPropagator sets the propagator otelhttp reads and writes its span
// context with. The run-trace header is handled by the codec either way.
func WithPropagator(prop propagation.TextMapPropagator) Option {
	return func(o *options) {
		o.propagator = prop
	}
}

// WithOTelOptions passes options through to otelhttp for Handler,
// TracingMiddleware and Transport. They apply after the provider options.
func WithOTelOptions(opts ...otelhttp.Option) Option {
	return func(o *options) {
		o.otelOpts = append(o.otelOpts, opts...)
	}
}

func applyOptions(opts []Option) *options {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

func (o *options) getCodec() lsprop.Codec {
	if o.codec != nil {
		return *o.codec
	}

	return lsprop.DefaultCodec()
}

func (o *options) getMeterProvider() metric.MeterProvider {
	if o.meterProvider != nil {
		return o.meterProvider
	}

	return otel.GetMeterProvider()
}

// otelOptions returns the otelhttp options for the providers set on o.
// Unset providers are left to otelhttp, which uses the globals.
func (o *options) otelOptions() []otelhttp.Option {
	out := make([]otelhttp.Option, 0, 3+len(o.otelOpts))
	if o.tracerProvider != nil {
		out = append(out, otelhttp.WithTracerProvider(o.tracerProvider))
	}
	if o.meterProvider != nil {
		out = append(out, otelhttp.WithMeterProvider(o.meterProvider))
	}
	if o.propagator != nil {
		out = append(out, otelhttp.WithPropagators(o.propagator))
	}

	return append(out, o.otelOpts...)
}
