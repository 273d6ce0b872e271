package lsprop

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// PropagatorName is the OTEL_PROPAGATORS entry that selects the run-trace propagator.
const PropagatorName = "langsmith"

// Propagator carries the run-trace header through OpenTelemetry's propagation API.
//
// On Inject it sends the TraceContext from Outbound, so a local OpenTelemetry span
// becomes the parent. On Extract it stores the TraceContext on the context and,
// when the identifiers are valid OpenTelemetry ids, attaches a remote span context so
// that spans started afterwards join the same trace.
type Propagator struct {
	codec Codec
}

var _ propagation.TextMapPropagator = Propagator{}

// NewPropagator creates a Propagator for the given codec.
func NewPropagator(codec Codec) Propagator {
	return Propagator{codec: codec}
}

// Inject implements propagation.TextMapPropagator.
// Encoding failures are reported through otel.Handle.
func (p Propagator) Inject(ctx context.Context, carrier propagation.TextMapCarrier) {
	tc, ok := Outbound(ctx)
	if !ok {
		return
	}

	if err := p.codec.Inject(tc, carrier); err != nil {
		otel.Handle(err)
	}
}

// Extract implements propagation.TextMapPropagator.
// A missing header leaves ctx untouched; a malformed one is reported through otel.Handle.
func (p Propagator) Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	tc, err := p.codec.Extract(carrier)
	if err != nil {
		otel.Handle(err)
		return ctx
	}
	if tc.IsZero() {
		return ctx
	}

	return attach(ctx, tc)
}

// attach stores tc on ctx together with its OpenTelemetry equivalents.
func attach(ctx context.Context, tc TraceContext) context.Context {
	ctx = ContextWith(ctx, tc)
	if sc, ok := remoteSpanContext(tc); ok {
		ctx = trace.ContextWithRemoteSpanContext(ctx, sc)
	}
	if len(tc.Baggage) > 0 {
		ctx = mergeOTelBaggage(ctx, tc.Baggage)
	}

	return ctx
}

// Fields implements propagation.TextMapPropagator.
func (p Propagator) Fields() []string {
	return []string{p.codec.traceHeader, p.codec.baggageHeader}
}

// remoteSpanContext converts tc into an OpenTelemetry span context when both
// identifiers are hex ids of the right width.
func remoteSpanContext(tc TraceContext) (trace.SpanContext, bool) {
	traceID, err := trace.TraceIDFromHex(tc.TraceID)
	if err != nil {
		return trace.SpanContext{}, false
	}
	spanID, err := trace.SpanIDFromHex(tc.SpanID)
	if err != nil {
		return trace.SpanContext{}, false
	}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})

	return sc, sc.IsValid()
}

func otelBaggage(ctx context.Context) map[string]string {
	members := baggage.FromContext(ctx).Members()
	if len(members) == 0 {
		return nil
	}

	entries := make(map[string]string, len(members))
	for _, m := range members {
		entries[m.Key()] = m.Value()
	}

	return entries
}

// mergeOTelBaggage copies entries into the OpenTelemetry baggage on ctx.
// Entries OpenTelemetry rejects are skipped.
func mergeOTelBaggage(ctx context.Context, entries map[string]string) context.Context {
	bag := baggage.FromContext(ctx)
	for k, v := range entries {
		m, err := baggage.NewMemberRaw(k, v)
		if err != nil {
			continue
		}
		next, err := bag.SetMember(m)
		if err != nil {
			continue
		}
		bag = next
	}

	return baggage.ContextWithBaggage(ctx, bag)
}

// buildPropagator composes the propagators cfg names, in the order given.
// Unsupported names are reported through otel.Handle and skipped; "none"
// contributes nothing.
func buildPropagator(cfg *PropConfig, codec Codec) propagation.TextMapPropagator {
	var props []propagation.TextMapPropagator
	for _, name := range cfg.Names() {
		switch name {
		case PropagatorName:
			props = append(props, NewPropagator(codec))
		case "tracecontext":
			props = append(props, propagation.TraceContext{})
		case "baggage":
			props = append(props, propagation.Baggage{})
		case "none":
		default:
			otel.Handle(fmt.Errorf("lsprop: unsupported propagator %q in OTEL_PROPAGATORS, ignoring", name))
		}
	}

	return propagation.NewCompositeTextMapPropagator(props...)
}

// InjectHTTP injects run-trace context and baggage into HTTP headers using
// the global propagator.
func InjectHTTP(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// ExtractHTTP extracts run-trace context and baggage from HTTP headers using
// the global propagator.
func ExtractHTTP(ctx context.Context, headers http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(headers))
}
