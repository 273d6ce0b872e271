//revive:disable:line-length-limit
package lsprop

import (
	"slices"
	"strings"
	"time"
)

// defaultPropagators is the OTEL_PROPAGATORS value used when none is configured.
const defaultPropagators = PropagatorName + ",tracecontext,baggage"

// DefaultEndpoint is the LangSmith API base URL.
const DefaultEndpoint = "https://api.smith.langchain.com"

// OTLP/HTTP paths appended to Endpoint, one per signal.
const (
	otelTracesPath  = "/otel/v1/traces"
	otelLogsPath    = "/otel/v1/logs"
	otelMetricsPath = "/otel/v1/metrics"
)

// Header names understood by the LangSmith OTLP endpoint.
const (
	headerAPIKey  = "x-api-key"
	headerProject = "Langsmith-Project"
)

// Config configures run-trace propagation and the OpenTelemetry pipeline that
// exports runs. Tags name the LANGSMITH_* and OTEL_* variables fuda reads.
type Config struct {
	Enabled     *bool  `yaml:"enabled" default:"false" env:"LANGSMITH_TRACING"`
	ServiceName string `yaml:"serviceName" env:"OTEL_SERVICE_NAME" validate:"required_if=Enabled true"`
	Version     string `yaml:"version" env:"OTEL_SERVICE_VERSION"`
	Environment string `yaml:"environment" env:"OTEL_DEPLOYMENT_ENVIRONMENT" default:"development"`

	// ResourceAttributes are extra key=value resource attributes.
	ResourceAttributes map[string]string `yaml:"resourceAttributes,omitempty" env:"OTEL_RESOURCE_ATTRIBUTES"`

	// Project is the LangSmith project runs are recorded under. It is sent as
	// the Langsmith-Project export header and the langsmith.project resource attribute.
	Project string `yaml:"project" env:"LANGSMITH_PROJECT" default:"default"`

	// APIKey switches export to LangSmith's OTLP endpoint when OTLP is nil.
	// Never log it.
	APIKey string `yaml:"apiKey,omitempty" env:"LANGSMITH_API_KEY"`

	// Endpoint is the LangSmith API base URL.
	Endpoint string `yaml:"endpoint" env:"LANGSMITH_ENDPOINT" default:"https://api.smith.langchain.com"`

	Headers HeaderConfig `yaml:"headers"`

	OTLP        *OTLPConfig    `yaml:"otlp,omitempty"`
	Traces      *TracesConfig  `yaml:"traces,omitempty"`
	Logs        *LogsConfig    `yaml:"logs,omitempty"`
	Metrics     *MetricsConfig `yaml:"metrics,omitempty"`
	Propagation *PropConfig    `yaml:"propagation,omitempty"`
}

// HeaderConfig names the carrier keys of the two run-trace headers.
type HeaderConfig struct {
	// Trace carries "<trace-id>.<span-id>".
	Trace string `yaml:"trace" env:"LANGSMITH_TRACE_HEADER" default:"langsmith-trace"`
	// Baggage carries W3C-encoded run metadata such as the project.
	Baggage string `yaml:"baggage" env:"LANGSMITH_BAGGAGE_HEADER" default:"baggage"`
}

// OTLPConfig is the collector connection shared by every signal.
//
// Endpoint is "host:port" for gRPC and a full URL for OTLP/HTTP.
type OTLPConfig struct {
	Endpoint    string            `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	Insecure    *bool             `yaml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
	Headers     map[string]string `yaml:"headers,omitempty" env:"OTEL_EXPORTER_OTLP_HEADERS"`
	Protocol    string            `yaml:"protocol" env:"OTEL_EXPORTER_OTLP_PROTOCOL" default:"grpc" validate:"oneof=grpc http/protobuf http"`
	Timeout     time.Duration     `yaml:"timeout" env:"OTEL_EXPORTER_OTLP_TIMEOUT" default:"10s" validate:"gte=0"`
	Compression string            `yaml:"compression,omitempty" env:"OTEL_EXPORTER_OTLP_COMPRESSION" validate:"omitempty,oneof=gzip none"`
}

// IsInsecure reports whether TLS is off. Unset means insecure.
func (c *OTLPConfig) IsInsecure() bool {
	return c == nil || c.Insecure == nil || *c.Insecure
}

// TracesConfig configures run export. Traces are on unless switched off.
type TracesConfig struct {
	Enabled  *bool           `yaml:"enabled" default:"true"`
	Exporter string          `yaml:"exporter" env:"OTEL_TRACES_EXPORTER" default:"otlp" validate:"oneof=otlp console stdout none"`
	Endpoint string          `yaml:"endpoint,omitempty" env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
	Sampling *SamplingConfig `yaml:"sampling,omitempty"`
}

// IsEnabled reports whether traces are on.
func (c *TracesConfig) IsEnabled() bool {
	return c == nil || c.Enabled == nil || *c.Enabled
}

// LogsConfig configures run log export, which is opt-in.
type LogsConfig struct {
	Enabled  *bool  `yaml:"enabled" default:"false"`
	Exporter string `yaml:"exporter" env:"OTEL_LOGS_EXPORTER" default:"otlp" validate:"oneof=otlp console stdout none"`
	Endpoint string `yaml:"endpoint,omitempty" env:"OTEL_EXPORTER_OTLP_LOGS_ENDPOINT"`
}

// IsEnabled reports whether logs are switched on.
func (c *LogsConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// MetricsConfig configures metric export, which is opt-in. A numeric
// OTEL_METRIC_EXPORT_INTERVAL is read as milliseconds.
type MetricsConfig struct {
	Enabled  *bool         `yaml:"enabled" default:"false"`
	Exporter string        `yaml:"exporter" env:"OTEL_METRICS_EXPORTER" default:"otlp" validate:"oneof=otlp console stdout none"`
	Endpoint string        `yaml:"endpoint,omitempty" env:"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"`
	Interval time.Duration `yaml:"interval,omitempty" env:"OTEL_METRIC_EXPORT_INTERVAL" default:"60s" validate:"omitempty,gt=0"`
}

// IsEnabled reports whether metrics are switched on.
func (c *MetricsConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// SamplingConfig selects one of the OTEL_TRACES_SAMPLER samplers.
// SamplerArg is the ratio for the traceidratio variants.
type SamplingConfig struct {
	Sampler    string  `yaml:"sampler" env:"OTEL_TRACES_SAMPLER" default:"parentbased_always_on" validate:"oneof=always_on always_off traceidratio parentbased_always_on parentbased_always_off parentbased_traceidratio"`
	SamplerArg float64 `yaml:"samplerArg" env:"OTEL_TRACES_SAMPLER_ARG" default:"1.0" validate:"gte=0,lte=1"`
}

// PropConfig lists the propagators to install, in order, as a comma-separated
// OTEL_PROPAGATORS value. Supported names are "langsmith", "tracecontext",
// "baggage" and "none".
type PropConfig struct {
	Propagators string `yaml:"propagators" env:"OTEL_PROPAGATORS" default:"langsmith,tracecontext,baggage"`
}

// Names returns the configured propagator names in order, or the default list
// when c is nil or empty.
func (c *PropConfig) Names() []string {
	list := defaultPropagators
	if c != nil && strings.TrimSpace(c.Propagators) != "" {
		list = c.Propagators
	}

	var names []string
	for name := range strings.SplitSeq(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}

	return names
}

// Has reports whether name is among Names.
func (c *PropConfig) Has(name string) bool {
	return slices.Contains(c.Names(), name)
}

// IsEnabled returns true if tracing export is enabled.
// Defaults to false if nil.
func (c *Config) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// Codec returns a Codec using the configured header names.
func (c *Config) Codec() Codec {
	if c == nil {
		return NewCodec()
	}

	return NewCodec(WithTraceHeader(c.Headers.Trace), WithBaggageHeader(c.Headers.Baggage))
}

// GetSamplingConfig returns the effective sampling config.
func (c *Config) GetSamplingConfig() *SamplingConfig {
	if c == nil || c.Traces == nil {
		return nil
	}

	return c.Traces.Sampling
}

// GetTracesExporter returns the effective traces exporter type.
func (c *Config) GetTracesExporter() string {
	if c != nil && c.Traces != nil && c.Traces.Exporter != "" {
		return c.Traces.Exporter
	}

	return "otlp"
}

// GetOTLPEndpoint returns the effective OTLP endpoint for traces.
// Priority: Traces.Endpoint > OTLP.Endpoint > LangSmith endpoint (when APIKey is set).
func (c *Config) GetOTLPEndpoint() string {
	if c == nil {
		return "localhost:4317"
	}
	if c.Traces != nil && c.Traces.Endpoint != "" {
		return c.Traces.Endpoint
	}

	return c.GetOTLPConfig().Endpoint
}

// GetOTLPConfig returns the effective OTLP config.
// Without an explicit OTLP section and with an API key, it targets the LangSmith
// OTLP/HTTP traces endpoint.
func (c *Config) GetOTLPConfig() *OTLPConfig {
	if c == nil {
		return &OTLPConfig{}
	}
	if c.OTLP != nil {
		return c.OTLP
	}
	if c.APIKey != "" {
		return &OTLPConfig{
			Endpoint: c.langsmithURL(otelTracesPath),
			Protocol: "http/protobuf",
			Insecure: boolPtr(false),
			Timeout:  10 * time.Second,
		}
	}

	return &OTLPConfig{}
}

// langsmithHeaders returns the authentication headers for LangSmith export,
// or nil when no API key is configured.
func (c *Config) langsmithHeaders() map[string]string {
	if c == nil || c.APIKey == "" {
		return nil
	}

	headers := map[string]string{headerAPIKey: c.APIKey}
	if c.Project != "" {
		headers[headerProject] = c.Project
	}

	return headers
}

// langsmithURL joins Endpoint, or DefaultEndpoint when unset, with an OTLP path.
func (c *Config) langsmithURL(path string) string {
	base := c.Endpoint
	if base == "" {
		base = DefaultEndpoint
	}

	return strings.TrimRight(base, "/") + path
}

// boolPtr returns a pointer to the given boolean value.
// It is useful for initializing config fields.
func boolPtr(v bool) *bool { return &v }
