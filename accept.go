package lsprop

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Outcome classifies how an inbound carrier was resolved by Accept.
type Outcome string

const (
	// OutcomeExtracted means the carrier held a valid trace header.
	OutcomeExtracted Outcome = "extracted"
	// OutcomeMissing means the carrier had no trace header and a new root was started.
	OutcomeMissing Outcome = "missing"
	// OutcomeMalformed means the trace header could not be decoded and a new root was started.
	OutcomeMalformed Outcome = "malformed"
)

// Accept resolves the TraceContext for an inbound call and stores it on ctx.
//
// A valid trace header becomes the parent, and when its identifiers are OpenTelemetry
// ids the remote span context is attached too. A missing or malformed header never
// fails the call: a new root is started instead, reusing the ids of an OpenTelemetry
// span context already on ctx when there is one. The decode error is returned for logging.
func Accept(ctx context.Context, codec Codec, carrier propagation.TextMapCarrier) (context.Context, TraceContext, Outcome, error) {
	_, hasLocal := localSpan(ctx)

	tc, err := codec.Extract(carrier)
	if err == nil && !tc.IsZero() {
		if hasLocal {
			// keep the server span already on ctx
			return mergeOTelBaggage(ContextWith(ctx, tc), tc.Baggage), tc, OutcomeExtracted, nil
		}

		return attach(ctx, tc), tc, OutcomeExtracted, nil
	}

	outcome := OutcomeMissing
	if err != nil {
		outcome = OutcomeMalformed
	}

	root := NewRoot()
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		root = TraceContext{TraceID: sc.TraceID().String(), SpanID: sc.SpanID().String()}
	}

	return ContextWith(ctx, root), root, outcome, err
}

func localSpan(ctx context.Context) (trace.SpanContext, bool) {
	sc := trace.SpanContextFromContext(ctx)
	return sc, sc.IsValid() && !sc.IsRemote()
}
