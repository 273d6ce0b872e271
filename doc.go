// Package lsprop propagates LangSmith-style run-trace context across service
// boundaries and ties it into OpenTelemetry.
//
// # Overview
//
// A run trace is identified by a trace id that is fixed for a top-level request and
// a span id naming the parent of whatever runs next. Both travel in a single header:
//
//	langsmith-trace: 4bf92f3577b34da6a3ce929d0e0e4736.00f067aa0ba902b7
//	baggage: langsmith-project=support-bot,tenant=acme
//
// The package provides:
//   - [TraceContext] and [Encode]/[Decode] for the header value
//   - [Codec] for writing and reading a TraceContext on any propagation.TextMapCarrier
//   - [Propagator], selectable as "langsmith" in OTEL_PROPAGATORS
//   - Config-driven tracer, meter, and logger providers that export to LangSmith over OTLP
//   - Span helpers that keep the TraceContext pointed at the active span
//
// # Quick Start
//
//	cfg, err := lsprop.LoadConfig("telemetry.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tp, err := lsprop.NewTracerProvider(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tp.Shutdown(ctx)
//	lsprop.InitTracing(tp.Tracer("my-service"), lsprop.PrefixNamer{RunType: lsprop.RunTypeChain})
//
// Calling a downstream service by hand:
//
//	ctx, span := lsprop.StartClient(ctx, "summarize")
//	defer span.End()
//	lsprop.InjectHTTP(ctx, req.Header)
//
// Receiving a call:
//
//	tc, err := lsprop.Extract(propagation.HeaderCarrier(r.Header))
//	if err != nil || tc.IsZero() {
//	    tc = lsprop.NewRoot()
//	}
//	ctx := lsprop.ContextWith(r.Context(), tc)
//
// # Configuration
//
//	enabled: true                # LANGSMITH_TRACING
//	serviceName: "summarizer"    # OTEL_SERVICE_NAME
//	project: "support-bot"       # LANGSMITH_PROJECT
//	apiKey: ""                   # LANGSMITH_API_KEY
//	headers:
//	  trace: "langsmith-trace"   # LANGSMITH_TRACE_HEADER
//	propagation:
//	  propagators: "langsmith,tracecontext,baggage" # OTEL_PROPAGATORS
//
// # Baggage
//
//	ctx, _ = lsprop.SetProject(ctx, "support-bot")
//	ctx, _ = lsprop.SetTags(ctx, "beta")
//	// ... later in the downstream service
//	project := lsprop.GetBaggage(ctx, lsprop.BaggageProject)
//
// # Transports
//
// The http, gin, resty, grpc, and nats sub-packages wire the codec into each
// transport. Servers never fail a request over a missing or malformed header;
// they start a new root instead.
package lsprop
