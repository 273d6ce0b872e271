package main

import (
	"flag"
	"fmt"

	"github.com/arloliu/fuda"
	"github.com/arloliu/lsprop"
)

// Config holds all CLI configuration.
// Uses fuda struct tags for defaults and env var binding.
type Config struct {
	// Export settings
	Exporter    string `yaml:"exporter" default:"console" env:"OTEL_TRACES_EXPORTER" validate:"oneof=otlp console stdout none"`
	Endpoint    string `yaml:"endpoint" default:"localhost:4317" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	UseHTTP     bool   `yaml:"http" default:"false"`
	Insecure    *bool  `yaml:"insecure" default:"true" env:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName string `yaml:"serviceName" default:"lstrace" env:"OTEL_SERVICE_NAME"`

	// LangSmith settings; an API key routes OTLP export to LangSmith
	Project           string `yaml:"project" default:"default" env:"LANGSMITH_PROJECT"`
	APIKey            string `yaml:"apiKey" env:"LANGSMITH_API_KEY"`
	LangSmithEndpoint string `yaml:"langsmithEndpoint" default:"https://api.smith.langchain.com" env:"LANGSMITH_ENDPOINT"`

	// Propagation headers
	TraceHeader   string `yaml:"traceHeader" default:"langsmith-trace" env:"LANGSMITH_TRACE_HEADER"`
	BaggageHeader string `yaml:"baggageHeader" default:"baggage" env:"LANGSMITH_BAGGAGE_HEADER"`

	// Scenario settings
	Scenario     string `yaml:"scenario" default:"rag"`
	ScenarioFile string `yaml:"scenarioFile"`

	// Signals
	EnableLogs bool `yaml:"logs" default:"false"`
	Verbose    bool `yaml:"verbose" default:"false"`

	// simulate and demo
	Count  int     `yaml:"count" default:"3"`
	Rate   float64 `yaml:"rate" default:"0"`
	Jitter int     `yaml:"jitter" default:"20" validate:"gte=0,lte=100"`
	Seed   uint64  `yaml:"seed"`
	Client string  `yaml:"client" default:"http" validate:"oneof=http resty"`
}

// IsInsecure returns the insecure value, defaulting to true if nil.
func (c *Config) IsInsecure() bool {
	if c.Insecure == nil {
		return true
	}

	return *c.Insecure
}

func newConfig() *Config {
	cfg := &Config{}
	// Apply defaults from struct tags (fuda handles *bool parsing)
	_ = fuda.SetDefaults(cfg)

	return cfg
}

func (c *Config) bindCommonFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Exporter, "exporter", c.Exporter, "Trace exporter: console, otlp or none")
	fs.StringVar(&c.Endpoint, "endpoint", c.Endpoint, "OTLP endpoint")
	fs.BoolVar(&c.UseHTTP, "http", c.UseHTTP, "Use OTLP/HTTP instead of gRPC")
	fs.Func("insecure", "Skip TLS verification (default: true)", func(s string) error {
		val := s == "true" || s == "1"
		c.Insecure = &val

		return nil
	})
	fs.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	fs.StringVar(&c.Project, "project", c.Project, "LangSmith project")
	fs.StringVar(&c.TraceHeader, "trace-header", c.TraceHeader, "Run-trace header name")
	fs.BoolVar(&c.EnableLogs, "logs", c.EnableLogs, "Enable OTel log generation")
	fs.BoolVar(&c.Verbose, "v", c.Verbose, "Verbose diagnostics")
	fs.IntVar(&c.Count, "count", c.Count, "Number of traces or calls")
}

func (c *Config) applyEnvOverrides() {
	// fuda.LoadEnv reads env vars based on struct tags
	_ = fuda.LoadEnv(c)
}

// validate checks the validate tags once env and flags are applied.
func (c *Config) validate() error {
	if err := fuda.Validate(c); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	return nil
}

// codec returns the codec for the configured header names.
func (c *Config) codec() lsprop.Codec {
	return lsprop.NewCodec(lsprop.WithTraceHeader(c.TraceHeader), lsprop.WithBaggageHeader(c.BaggageHeader))
}

// telemetry converts the CLI settings into an lsprop.Config.
func (c *Config) telemetry() *lsprop.Config {
	enabled := true
	cfg := &lsprop.Config{
		Enabled:     &enabled,
		ServiceName: c.ServiceName,
		Environment: "development",
		Project:     c.Project,
		APIKey:      c.APIKey,
		Endpoint:    c.LangSmithEndpoint,
		Headers: lsprop.HeaderConfig{
			Trace:   c.TraceHeader,
			Baggage: c.BaggageHeader,
		},
		Traces: &lsprop.TracesConfig{Exporter: c.Exporter},
		Logs:   &lsprop.LogsConfig{Exporter: c.Exporter},
	}

	// Without an API key export goes to the configured collector.
	if c.APIKey == "" {
		protocol := "grpc"
		if c.UseHTTP {
			protocol = "http"
		}
		insecure := c.IsInsecure()
		cfg.OTLP = &lsprop.OTLPConfig{
			Endpoint: c.Endpoint,
			Protocol: protocol,
			Insecure: &insecure,
		}
	}

	return cfg
}
