package grpc

import (
	"github.com/arloliu/lsprop"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// telemetry holds the otelgrpc wiring shared by ServerOptions and DialOptions.
type telemetry struct {
	tp        trace.TracerProvider
	mp        metric.MeterProvider
	prop      propagation.TextMapPropagator
	statsOpts []otelgrpc.Option
}

// WithTracerProvider sets the provider for the otelgrpc spans.
// nil keeps the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tel.tp = tp
	}
}

// WithMeterProvider sets the provider for the otelgrpc RPC metrics.
// nil keeps the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.tel.mp = mp
	}
}

// WithPropagator replaces the propagator the stats handlers use.
func WithPropagator(prop propagation.TextMapPropagator) Option {
	return func(o *options) {
		o.tel.prop = prop
	}
}

// WithStatsOptions appends raw otelgrpc options, applied after the providers.
func WithStatsOptions(opts ...otelgrpc.Option) Option {
	return func(o *options) {
		o.tel.statsOpts = append(o.tel.statsOpts, opts...)
	}
}

// propagator returns the configured propagator, or the global one followed by
// the run-trace propagator for the interceptors' codec, so the run header wins on extract.
func (o *options) propagator() propagation.TextMapPropagator {
	if o.tel.prop != nil {
		return o.tel.prop
	}

	return propagation.NewCompositeTextMapPropagator(
		otel.GetTextMapPropagator(),
		lsprop.NewPropagator(o.getCodec()),
	)
}

func (o *options) statsOptions() []otelgrpc.Option {
	opts := make([]otelgrpc.Option, 0, 3+len(o.tel.statsOpts))
	if o.tel.tp != nil {
		opts = append(opts, otelgrpc.WithTracerProvider(o.tel.tp))
	}
	if o.tel.mp != nil {
		opts = append(opts, otelgrpc.WithMeterProvider(o.tel.mp))
	}
	opts = append(opts, otelgrpc.WithPropagators(o.propagator()))

	return append(opts, o.tel.statsOpts...)
}

// ServerOptions returns the server options that join incoming calls to the
// caller's run trace: an otelgrpc stats handler whose server span continues
// the run, plus the unary and stream interceptors that expose the resolved
// TraceContext to handlers.
//
//	srv := grpc.NewServer(lsgrpc.ServerOptions(lsgrpc.WithLogger(logger))...)
func ServerOptions(opts ...Option) []grpc.ServerOption {
	o := applyOptions(opts)

	return []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler(o.statsOptions()...)),
		grpc.ChainUnaryInterceptor(o.unaryServer()),
		grpc.ChainStreamInterceptor(o.streamServer()),
	}
}

// DialOptions returns the client options that send the run-trace header on
// every call and record a client span for it.
func DialOptions(opts ...Option) []grpc.DialOption {
	o := applyOptions(opts)

	return []grpc.DialOption{
		grpc.WithStatsHandler(otelgrpc.NewClientHandler(o.statsOptions()...)),
		grpc.WithChainUnaryInterceptor(o.unaryClient()),
		grpc.WithChainStreamInterceptor(o.streamClient()),
	}
}
