package lsprop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// attrProject is the resource attribute naming the LangSmith project.
const attrProject = "langsmith.project"

const defaultMetricInterval = 60 * time.Second

var (
	// ErrDisabled is returned when run export is disabled.
	ErrDisabled = errors.New("lsprop: tracing is disabled")
	// ErrLogsDisabled is returned when log export is not switched on.
	ErrLogsDisabled = errors.New("lsprop: logs export is disabled")
	// ErrMetricsDisabled is returned when metrics export is not switched on.
	ErrMetricsDisabled = errors.New("lsprop: metrics export is disabled")
	// ErrServiceNameRequired is returned when an enabled config has no ServiceName.
	ErrServiceNameRequired = errors.New("lsprop: service name is required")
)

// signalResource checks that sig is switched on in cfg and builds the
// resource shared by every provider.
func signalResource(ctx context.Context, cfg *Config, sig signal) (*resource.Resource, error) {
	if !cfg.IsEnabled() {
		return nil, ErrDisabled
	}

	switch sig {
	case signalTraces:
		if cfg.Traces != nil && !cfg.Traces.IsEnabled() {
			return nil, ErrDisabled
		}
	case signalLogs:
		if cfg.Logs == nil || !cfg.Logs.IsEnabled() {
			return nil, ErrLogsDisabled
		}
	case signalMetrics:
		if cfg.Metrics == nil || !cfg.Metrics.IsEnabled() {
			return nil, ErrMetricsDisabled
		}
	}

	return buildResource(ctx, cfg)
}

// NewTracerProvider builds the TracerProvider that exports runs and installs it globally.
//
// It also installs cfg's header names as the default codec and a composite
// propagator led by the run-trace propagator, so every transport package in
// this module agrees on the wire format. Returns ErrDisabled when cfg or its
// traces section is switched off.
func NewTracerProvider(ctx context.Context, cfg *Config) (*sdktrace.TracerProvider, error) {
	res, err := signalResource(ctx, cfg, signalTraces)
	if err != nil {
		return nil, err
	}

	exporter, err := buildTraceExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(buildSampler(cfg.GetSamplingConfig())),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)

	codec := cfg.Codec()
	SetDefaultCodec(codec)
	otel.SetTextMapPropagator(buildPropagator(cfg.Propagation, codec))

	return tp, nil
}

// NewLoggerProvider builds the LoggerProvider for run logs and installs it as
// the global one. Logs are opt-in: ErrLogsDisabled unless cfg.Logs is enabled.
func NewLoggerProvider(ctx context.Context, cfg *Config) (*sdklog.LoggerProvider, error) {
	res, err := signalResource(ctx, cfg, signalLogs)
	if err != nil {
		return nil, err
	}

	exporter, err := buildLogExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build log exporter: %w", err)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(lp)

	return lp, nil
}

// NewMeterProvider builds a periodically exported MeterProvider and installs
// it globally. Metrics are opt-in: ErrMetricsDisabled unless cfg.Metrics is enabled.
func NewMeterProvider(ctx context.Context, cfg *Config) (*sdkmetric.MeterProvider, error) {
	res, err := signalResource(ctx, cfg, signalMetrics)
	if err != nil {
		return nil, err
	}

	exporter, err := buildMetricExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build metric exporter: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(envDuration(cfg.Metrics.Interval, defaultMetricInterval)))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	return mp, nil
}

// buildResource describes the service exporting runs. Service identity and
// the LangSmith project win over same-named ResourceAttributes.
func buildResource(ctx context.Context, cfg *Config) (*resource.Resource, error) {
	if cfg.ServiceName == "" {
		return nil, ErrServiceNameRequired
	}

	extra := make([]attribute.KeyValue, 0, len(cfg.ResourceAttributes)+1)
	for key, value := range cfg.ResourceAttributes {
		if key != "" {
			extra = append(extra, attribute.String(key, value))
		}
	}
	if cfg.Project != "" {
		extra = append(extra, attribute.String(attrProject, cfg.Project))
	}

	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(extra...),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource for %s: %w", cfg.ServiceName, err)
	}

	return res, nil
}

// samplers maps OTEL_TRACES_SAMPLER names onto SDK samplers; arg is the ratio
// for the traceidratio variants.
var samplers = map[string]func(arg float64) sdktrace.Sampler{
	"always_on":                func(float64) sdktrace.Sampler { return sdktrace.AlwaysSample() },
	"always_off":               func(float64) sdktrace.Sampler { return sdktrace.NeverSample() },
	"traceidratio":             sdktrace.TraceIDRatioBased,
	"parentbased_always_on":    func(float64) sdktrace.Sampler { return sdktrace.ParentBased(sdktrace.AlwaysSample()) },
	"parentbased_always_off":   func(float64) sdktrace.Sampler { return sdktrace.ParentBased(sdktrace.NeverSample()) },
	"parentbased_traceidratio": func(arg float64) sdktrace.Sampler { return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(arg)) },
}

// buildSampler returns the configured sampler. Unknown names and a nil
// config keep every root run and follow the parent's decision otherwise.
func buildSampler(cfg *SamplingConfig) sdktrace.Sampler {
	name, arg := "parentbased_always_on", 1.0
	if cfg != nil {
		name, arg = cfg.Sampler, cfg.SamplerArg
	}
	if build, ok := samplers[name]; ok {
		return build(arg)
	}

	return samplers["parentbased_always_on"](arg)
}
