// Package tracker holds the process-wide run tracing state: the tracer and
// namer installed by InitTracing and the header names of the default codec.
package tracker

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"
)

// Default header names for run-trace propagation.
const (
	DefaultTraceHeader   = "langsmith-trace"
	DefaultBaggageHeader = "baggage"
)

// Namer turns an operation into a span name.
type Namer interface {
	Name(string) string
}

type identity struct{}

func (identity) Name(s string) string { return s }

// State is an immutable snapshot of the global state.
type State struct {
	Tracer        trace.Tracer
	Namer         Namer
	TraceHeader   string
	BaggageHeader string
}

var current atomic.Pointer[State]

func init() {
	current.Store(&State{
		Namer:         identity{},
		TraceHeader:   DefaultTraceHeader,
		BaggageHeader: DefaultBaggageHeader,
	})
}

// Load returns the current snapshot.
func Load() State {
	return *current.Load()
}

// update applies fn to a copy of the current snapshot and publishes it,
// retrying when a concurrent update won.
func update(fn func(*State)) {
	for {
		old := current.Load()
		next := *old
		fn(&next)
		if current.CompareAndSwap(old, &next) {
			return
		}
	}
}

// SetTracer installs the tracer and namer. A nil namer keeps operation names as is.
func SetTracer(t trace.Tracer, n Namer) {
	if n == nil {
		n = identity{}
	}
	update(func(s *State) {
		s.Tracer, s.Namer = t, n
	})
}

// SetHeaders installs the default header names. Empty names restore the defaults.
func SetHeaders(traceHeader, baggageHeader string) {
	if traceHeader == "" {
		traceHeader = DefaultTraceHeader
	}
	if baggageHeader == "" {
		baggageHeader = DefaultBaggageHeader
	}
	update(func(s *State) {
		s.TraceHeader, s.BaggageHeader = traceHeader, baggageHeader
	})
}

// Start begins a named span with the installed tracer. Without a tracer it
// returns ctx, the span already on it and false.
func Start(ctx context.Context, operation string, opts ...trace.SpanStartOption) (context.Context, trace.Span, bool) {
	s := current.Load()
	if s.Tracer == nil {
		return ctx, trace.SpanFromContext(ctx), false
	}

	ctx, span := s.Tracer.Start(ctx, s.Namer.Name(operation), opts...)

	return ctx, span, true
}
