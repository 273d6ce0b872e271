package lsprop

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporter kinds accepted by TracesConfig, LogsConfig and MetricsConfig.
const (
	exporterOTLP    = "otlp"
	exporterConsole = "console"
	exporterNone    = "none"
)

// signal selects the per-signal section of Config an export target is resolved from.
type signal int

const (
	signalTraces signal = iota
	signalLogs
	signalMetrics
)

// exportTarget is the resolved destination of one signal.
type exportTarget struct {
	Kind     string
	HTTP     bool
	Endpoint string // host:port, or a full URL for OTLP/HTTP
	Headers  map[string]string
	Timeout  time.Duration
	Gzip     bool
	Insecure bool
}

// resolveTarget layers the shared OTLP section (or the LangSmith signal URL
// when there is none), the LangSmith auth headers and the signal's own
// exporter and endpoint overrides.
func resolveTarget(cfg *Config, sig signal) exportTarget {
	t := exportTarget{
		Kind:     exporterOTLP,
		Endpoint: "localhost:4317",
		Timeout:  10 * time.Second,
		Insecure: true,
	}
	if cfg == nil {
		return t
	}

	otlp := cfg.GetOTLPConfig()
	t.HTTP = isHTTPProtocol(otlp.Protocol)
	if otlp.Endpoint != "" {
		t.Endpoint = otlp.Endpoint
	}
	t.Timeout = envDuration(otlp.Timeout, t.Timeout)
	t.Headers = mergeHeaders(cfg.langsmithHeaders(), otlp.Headers)
	t.Gzip = otlp.Compression == "gzip"
	t.Insecure = otlp.IsInsecure()

	var kind, endpoint, path string
	switch sig {
	case signalTraces:
		kind, path = cfg.GetTracesExporter(), otelTracesPath
		if cfg.Traces != nil {
			endpoint = cfg.Traces.Endpoint
		}
	case signalLogs:
		path = otelLogsPath
		if cfg.Logs != nil {
			kind, endpoint = cfg.Logs.Exporter, cfg.Logs.Endpoint
		}
	case signalMetrics:
		path = otelMetricsPath
		if cfg.Metrics != nil {
			kind, endpoint = cfg.Metrics.Exporter, cfg.Metrics.Endpoint
		}
	}
	// LangSmith serves each signal on its own OTLP/HTTP path.
	if cfg.OTLP == nil && cfg.APIKey != "" {
		t.Endpoint = cfg.langsmithURL(path)
	}
	t.Kind = exporterKind(kind)
	if endpoint != "" {
		t.Endpoint = endpoint
	}

	return t
}

// exporterKind folds the accepted aliases onto otlp, console and none.
func exporterKind(value string) string {
	switch v := strings.ToLower(strings.TrimSpace(value)); v {
	case "":
		return exporterOTLP
	case "stdout":
		return exporterConsole
	case "nop", "noop":
		return exporterNone
	default:
		return v
	}
}

func isHTTPProtocol(protocol string) bool {
	return protocol == "http/protobuf" || protocol == "http"
}

// mergeHeaders combines header maps; later maps win on conflicts.
// Returns nil when every input is empty.
func mergeHeaders(sets ...map[string]string) map[string]string {
	var merged map[string]string
	for _, set := range sets {
		for k, v := range set {
			if merged == nil {
				merged = make(map[string]string, len(set))
			}
			merged[k] = v
		}
	}

	return merged
}

// envDuration returns fallback for unset values and reads sub-millisecond
// values as milliseconds, the unit of the numeric OTEL_* duration variables.
func envDuration(value, fallback time.Duration) time.Duration {
	switch {
	case value <= 0:
		return fallback
	case value < time.Millisecond:
		//nolint:durationcheck // bare env numbers are milliseconds
		return value * time.Millisecond
	default:
		return value
	}
}

// isEndpointURL reports whether endpoint carries an http(s) scheme.
func isEndpointURL(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)

	return scheme == "http" || scheme == "https"
}

// otlpOptions maps an exportTarget onto one exporter package's option constructors.
// endpointURL is nil for the gRPC packages.
type otlpOptions[T any] struct {
	endpoint    func(string) T
	endpointURL func(string) T
	headers     func(map[string]string) T
	timeout     func(time.Duration) T
	insecure    func() T
	gzip        T
}

func (o otlpOptions[T]) build(t exportTarget) []T {
	opts := make([]T, 0, 5)
	if o.endpointURL != nil && isEndpointURL(t.Endpoint) {
		opts = append(opts, o.endpointURL(t.Endpoint))
	} else {
		opts = append(opts, o.endpoint(t.Endpoint))
	}
	if len(t.Headers) > 0 {
		opts = append(opts, o.headers(t.Headers))
	}
	if t.Timeout > 0 {
		opts = append(opts, o.timeout(t.Timeout))
	}
	if t.Insecure {
		opts = append(opts, o.insecure())
	}
	if t.Gzip {
		opts = append(opts, o.gzip)
	}

	return opts
}

var (
	traceHTTPOptions = otlpOptions[otlptracehttp.Option]{
		endpoint:    otlptracehttp.WithEndpoint,
		endpointURL: otlptracehttp.WithEndpointURL,
		headers:     otlptracehttp.WithHeaders,
		timeout:     otlptracehttp.WithTimeout,
		insecure:    otlptracehttp.WithInsecure,
		gzip:        otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	traceGRPCOptions = otlpOptions[otlptracegrpc.Option]{
		endpoint: otlptracegrpc.WithEndpoint,
		headers:  otlptracegrpc.WithHeaders,
		timeout:  otlptracegrpc.WithTimeout,
		insecure: otlptracegrpc.WithInsecure,
		gzip:     otlptracegrpc.WithCompressor("gzip"),
	}
	logHTTPOptions = otlpOptions[otlploghttp.Option]{
		endpoint:    otlploghttp.WithEndpoint,
		endpointURL: otlploghttp.WithEndpointURL,
		headers:     otlploghttp.WithHeaders,
		timeout:     otlploghttp.WithTimeout,
		insecure:    otlploghttp.WithInsecure,
		gzip:        otlploghttp.WithCompression(otlploghttp.GzipCompression),
	}
	logGRPCOptions = otlpOptions[otlploggrpc.Option]{
		endpoint: otlploggrpc.WithEndpoint,
		headers:  otlploggrpc.WithHeaders,
		timeout:  otlploggrpc.WithTimeout,
		insecure: otlploggrpc.WithInsecure,
		gzip:     otlploggrpc.WithCompressor("gzip"),
	}
	metricHTTPOptions = otlpOptions[otlpmetrichttp.Option]{
		endpoint:    otlpmetrichttp.WithEndpoint,
		endpointURL: otlpmetrichttp.WithEndpointURL,
		headers:     otlpmetrichttp.WithHeaders,
		timeout:     otlpmetrichttp.WithTimeout,
		insecure:    otlpmetrichttp.WithInsecure,
		gzip:        otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression),
	}
	metricGRPCOptions = otlpOptions[otlpmetricgrpc.Option]{
		endpoint: otlpmetricgrpc.WithEndpoint,
		headers:  otlpmetricgrpc.WithHeaders,
		timeout:  otlpmetricgrpc.WithTimeout,
		insecure: otlpmetricgrpc.WithInsecure,
		gzip:     otlpmetricgrpc.WithCompressor("gzip"),
	}
)

func unsupportedExporter(kind string) error {
	return fmt.Errorf("lsprop: unsupported exporter %q", kind)
}

// buildTraceExporter creates the span exporter for cfg. Runs exported to
// LangSmith go over OTLP/HTTP to the project's traces endpoint.
func buildTraceExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	t := resolveTarget(cfg, signalTraces)
	switch t.Kind {
	case exporterConsole:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case exporterNone:
		return nopSpanExporter{}, nil
	case exporterOTLP:
		if t.HTTP {
			return otlptrace.New(ctx, otlptracehttp.NewClient(traceHTTPOptions.build(t)...))
		}

		return otlptrace.New(ctx, otlptracegrpc.NewClient(traceGRPCOptions.build(t)...))
	default:
		return nil, unsupportedExporter(t.Kind)
	}
}

func buildLogExporter(ctx context.Context, cfg *Config) (sdklog.Exporter, error) {
	t := resolveTarget(cfg, signalLogs)
	switch t.Kind {
	case exporterConsole:
		return stdoutlog.New(stdoutlog.WithPrettyPrint())
	case exporterNone:
		return nopLogExporter{}, nil
	case exporterOTLP:
		if t.HTTP {
			return otlploghttp.New(ctx, logHTTPOptions.build(t)...)
		}

		return otlploggrpc.New(ctx, logGRPCOptions.build(t)...)
	default:
		return nil, unsupportedExporter(t.Kind)
	}
}

func buildMetricExporter(ctx context.Context, cfg *Config) (sdkmetric.Exporter, error) {
	t := resolveTarget(cfg, signalMetrics)
	switch t.Kind {
	case exporterConsole:
		return stdoutmetric.New(stdoutmetric.WithPrettyPrint())
	case exporterNone:
		return nopMetricExporter{}, nil
	case exporterOTLP:
		if t.HTTP {
			return otlpmetrichttp.New(ctx, metricHTTPOptions.build(t)...)
		}

		return otlpmetricgrpc.New(ctx, metricGRPCOptions.build(t)...)
	default:
		return nil, unsupportedExporter(t.Kind)
	}
}

type nopSpanExporter struct{}

func (nopSpanExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (nopSpanExporter) Shutdown(context.Context) error                             { return nil }

type nopLogExporter struct{}

func (nopLogExporter) Export(context.Context, []sdklog.Record) error { return nil }
func (nopLogExporter) Shutdown(context.Context) error                { return nil }
func (nopLogExporter) ForceFlush(context.Context) error              { return nil }

type nopMetricExporter struct{}

func (nopMetricExporter) Export(context.Context, *metricdata.ResourceMetrics) error { return nil }
func (nopMetricExporter) ForceFlush(context.Context) error                          { return nil }
func (nopMetricExporter) Shutdown(context.Context) error                            { return nil }

func (nopMetricExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (nopMetricExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}
