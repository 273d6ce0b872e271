// Package main provides the lstrace CLI for encoding, decoding and exercising
// LangSmith run-trace propagation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a mode and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch mode := args[0]; mode {
	case "encode":
		err = runEncode(args[1:], stdout)
	case "decode":
		err = runDecode(args[1:], stdout)
	case "demo":
		err = demoMode(ctx, args[1:], stdout)
	case "simulate":
		err = simulateMode(ctx, args[1:], stdout)
	case "list":
		listScenarios(stdout)
	case "-h", "--help", "help":
		printUsage(stdout)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown mode: %s\n", mode)
		printUsage(stderr)
		return 2
	}

	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			return 2
		}

		return 1
	}

	return 0
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, `lstrace - LangSmith run-trace propagation tool

Usage:
  lstrace <mode> [flags]

Modes:
  encode    Print the trace and baggage headers for a trace/span id pair
  decode    Print the identifiers in a trace header value
  demo      Call an in-process upstream through the instrumented clients
  simulate  Generate multi-service run trees from a scenario
  list      List available scenarios

Encode Flags:
  --trace          Trace id (a new root is generated when both ids are omitted)
  --span           Parent span id
  --baggage        Baggage entries as k=v,k2=v2
  --trace-header   Header name (default: langsmith-trace)
  --baggage-header Header name (default: baggage)

Decode Flags:
  --baggage        Baggage header value to decode alongside

Common Flags (demo, simulate):
  --exporter     console, otlp or none (default: console)
  --endpoint     OTLP endpoint (default: localhost:4317)
  --http         Use OTLP/HTTP instead of gRPC
  --project      LangSmith project (default: default)
  --count        Number of calls or traces (default: 3)
  --logs         Enable OTel log generation
  --v            Verbose diagnostics

Demo Flags:
  --client       http or resty (default: http)

Simulate Flags:
  --scenario       Scenario name (default: rag)
  --scenario-file  Custom YAML scenario file
  --rate           Traces per second, 0 sends back to back
  --jitter         Timing variation percentage (default: 20)
  --seed           Repeat jitter and simulated failures (default: random)

Environment Variables:
  LANGSMITH_API_KEY             Export to LangSmith instead of a collector
  LANGSMITH_PROJECT             Project runs are recorded under
  LANGSMITH_ENDPOINT            LangSmith API base URL
  LANGSMITH_TRACE_HEADER        Run-trace header name
  OTEL_EXPORTER_OTLP_ENDPOINT   OTLP endpoint
  OTEL_SERVICE_NAME             Service name

Examples:
  lstrace encode --trace 4bf92f3577b34da6a3ce929d0e0e4736 --span 00f067aa0ba902b7
  lstrace decode 4bf92f3577b34da6a3ce929d0e0e4736.00f067aa0ba902b7
  lstrace demo --client resty --count 5 --exporter none
  lstrace simulate --scenario agent --count 10 --rate 2`)
}

func demoMode(ctx context.Context, args []string, out io.Writer) error {
	cfg := newConfig()
	cfg.applyEnvOverrides()
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	cfg.bindCommonFlags(fs)
	fs.StringVar(&cfg.Client, "client", cfg.Client, "Instrumented client: http or resty")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.Verbose)
	defer func() { _ = logger.Sync() }()
	installErrorHandler(logger)

	calls, err := runDemo(ctx, cfg, logger, out)
	if err != nil {
		return err
	}

	for _, c := range calls {
		if !c.Matched() {
			return errors.New("upstream did not join the caller's trace")
		}
	}

	return nil
}

func simulateMode(ctx context.Context, args []string, out io.Writer) error {
	cfg := newConfig()
	cfg.applyEnvOverrides()
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	cfg.bindCommonFlags(fs)
	fs.StringVar(&cfg.Scenario, "scenario", cfg.Scenario, "Scenario name")
	fs.StringVar(&cfg.ScenarioFile, "scenario-file", cfg.ScenarioFile, "Custom YAML scenario file")
	fs.Float64Var(&cfg.Rate, "rate", cfg.Rate, "Traces per second")
	fs.IntVar(&cfg.Jitter, "jitter", cfg.Jitter, "Timing variation percentage")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed for jitter and simulated failures")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.Verbose)
	defer func() { _ = logger.Sync() }()
	installErrorHandler(logger)

	return runSimulate(ctx, cfg, logger, out)
}
