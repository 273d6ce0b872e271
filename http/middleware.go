package http

import (
	"net/http"

	"github.com/arloliu/lsprop"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// OutcomeKey is the attribute recording how the inbound trace header was resolved.
const OutcomeKey = attribute.Key("lsprop.outcome")

// InboundCounterName is the metric counting inbound requests by outcome.
const InboundCounterName = "lsprop.http.server.requests"

// Middleware returns middleware that reads the run-trace header from each request
// and stores the resulting TraceContext on the request context.
//
// A missing or malformed header never fails the request. A new root is started
// instead and the fallback is logged. Every request is counted under
// [InboundCounterName] with its [OutcomeKey].
//
// Usage:
//
//	mux.Handle("/runs", lshttp.Middleware(lshttp.WithLogger(logger))(runsHandler))
func Middleware(opts ...Option) func(http.Handler) http.Handler {
	o := applyOptions(opts)

	counter, err := o.getMeterProvider().Meter(scopeName).Int64Counter(
		InboundCounterName,
		metric.WithDescription("Inbound requests by run-trace header outcome"),
	)
	if err != nil {
		otel.Handle(err)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, tc, outcome, err := lsprop.Accept(r.Context(), o.getCodec(), propagation.HeaderCarrier(r.Header))

			switch outcome {
			case lsprop.OutcomeMalformed:
				o.logger.Warn("malformed run-trace header, starting new root",
					zap.String("path", r.URL.Path),
					zap.String("trace_id", tc.TraceID),
					zap.Error(err))
			case lsprop.OutcomeMissing:
				o.logger.Debug("no run-trace header, starting new root",
					zap.String("path", r.URL.Path),
					zap.String("trace_id", tc.TraceID))
			}

			if counter != nil {
				counter.Add(ctx, 1, metric.WithAttributes(OutcomeKey.String(string(outcome))))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Handler serves handler behind an otelhttp server span named operation.
//
// The server span is the outer layer, so handler sees the caller's
// TraceContext while [lsprop.Outbound] parents downstream calls on the
// server span.
//
//	mux.Handle("/runs", lshttp.Handler(runsHandler, "runs.create", lshttp.WithLogger(logger)))
func Handler(handler http.Handler, operation string, opts ...Option) http.Handler {
	return otelhttp.NewHandler(Middleware(opts...)(handler), operation, applyOptions(opts).otelOptions()...)
}

// TracingMiddleware is Handler in middleware form for routers that take
// func(http.Handler) http.Handler. Every span is named operation.
func TracingMiddleware(operation string, opts ...Option) func(http.Handler) http.Handler {
	runTrace := Middleware(opts...)
	traced := otelhttp.NewMiddleware(operation, applyOptions(opts).otelOptions()...)

	return func(next http.Handler) http.Handler {
		return traced(runTrace(next))
	}
}
