package lsprop

import (
	"context"
	"encoding/hex"
	"maps"

	"github.com/google/uuid"
)

// TraceContext is the run-trace state carried across a service boundary.
//
// TraceID is fixed for a top-level request. SpanID names the span that is the
// parent of whatever runs next; it changes as execution descends into child runs.
type TraceContext struct {
	TraceID string
	SpanID  string
	Baggage map[string]string
}

// IsZero reports whether tc carries no identifiers.
func (tc TraceContext) IsZero() bool {
	return tc.TraceID == "" && tc.SpanID == ""
}

// Validate checks both identifiers the same way Encode does.
func (tc TraceContext) Validate() error {
	if err := validateID("trace id", tc.TraceID); err != nil {
		return err
	}

	return validateID("span id", tc.SpanID)
}

// Child returns a copy of tc whose parent span is spanID.
// The trace identifier and baggage are carried over; baggage is copied.
func (tc TraceContext) Child(spanID string) TraceContext {
	return TraceContext{
		TraceID: tc.TraceID,
		SpanID:  spanID,
		Baggage: maps.Clone(tc.Baggage),
	}
}

// WithBaggage returns a copy of tc with key set to value.
func (tc TraceContext) WithBaggage(key, value string) TraceContext {
	bag := make(map[string]string, len(tc.Baggage)+1)
	maps.Copy(bag, tc.Baggage)
	bag[key] = value

	return TraceContext{TraceID: tc.TraceID, SpanID: tc.SpanID, Baggage: bag}
}

// WithoutBaggage returns a copy of tc with key removed.
func (tc TraceContext) WithoutBaggage(key string) TraceContext {
	out := TraceContext{TraceID: tc.TraceID, SpanID: tc.SpanID}
	if len(tc.Baggage) == 0 {
		return out
	}

	bag := maps.Clone(tc.Baggage)
	delete(bag, key)
	if len(bag) > 0 {
		out.Baggage = bag
	}

	return out
}

// NewRoot creates a TraceContext for a new top-level request.
// Identifiers are random and hex-encoded so they are also valid OpenTelemetry
// trace (16 byte) and span (8 byte) ids.
func NewRoot() TraceContext {
	return TraceContext{
		TraceID: newTraceID(),
		SpanID:  newSpanID(),
	}
}

// NewChild derives a child of parent with a fresh span identifier.
// A zero parent yields a new root.
func NewChild(parent TraceContext) TraceContext {
	if parent.IsZero() {
		return NewRoot()
	}

	return parent.Child(newSpanID())
}

func newTraceID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

func newSpanID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}

type traceContextKey struct{}

// ContextWith returns a copy of ctx carrying tc.
func ContextWith(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

// FromContext returns the TraceContext carried by ctx.
// The boolean is false when ctx carries none.
func FromContext(ctx context.Context) (TraceContext, bool) {
	if ctx == nil {
		return TraceContext{}, false
	}
	tc, ok := ctx.Value(traceContextKey{}).(TraceContext)

	return tc, ok
}

// EnsureContext returns ctx unchanged when it already carries identifiers,
// otherwise it attaches a new root. The returned TraceContext is the one on the
// returned context.
func EnsureContext(ctx context.Context) (context.Context, TraceContext) {
	tc, _ := FromContext(ctx)
	if !tc.IsZero() {
		return ctx, tc
	}

	root := NewRoot()
	root.Baggage = tc.Baggage

	return ContextWith(ctx, root), root
}
