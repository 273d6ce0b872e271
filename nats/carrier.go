package nats

import (
	"context"
	"maps"
	"slices"

	"github.com/arloliu/lsprop"
	"github.com/nats-io/nats.go"
)

// headerCarrier lets propagators and the run-trace codec read and write nats.Header.
type headerCarrier nats.Header

func (c headerCarrier) Get(key string) string {
	return nats.Header(c).Get(key)
}

func (c headerCarrier) Set(key, value string) {
	nats.Header(c).Set(key, value)
}

func (c headerCarrier) Keys() []string {
	return slices.Collect(maps.Keys(c))
}

// ensureHeader returns msg.Header, allocating it first when nil.
func ensureHeader(msg *nats.Msg) nats.Header {
	if msg.Header == nil {
		msg.Header = nats.Header{}
	}

	return msg.Header
}

// InjectNATS writes the OpenTelemetry propagation headers of ctx into msg
// using the propagator from opts, the global one by default.
func InjectNATS(ctx context.Context, msg *nats.Msg, opts ...Option) {
	applyOptions(opts).propagator().Inject(ctx, headerCarrier(ensureHeader(msg)))
}

// ExtractNATS is the consuming side of InjectNATS. A nil header returns ctx as is.
func ExtractNATS(ctx context.Context, header nats.Header, opts ...Option) context.Context {
	if header == nil {
		return ctx
	}

	return applyOptions(opts).propagator().Extract(ctx, headerCarrier(header))
}

// InjectRunTrace writes the run-trace header for the outbound TraceContext of ctx.
// Nothing is written when ctx carries no trace.
func InjectRunTrace(ctx context.Context, msg *nats.Msg, codec lsprop.Codec) error {
	tc, ok := lsprop.Outbound(ctx)
	if !ok {
		return nil
	}

	return codec.Inject(tc, headerCarrier(ensureHeader(msg)))
}

// AcceptRunTrace resolves the TraceContext of a received message with lsprop.Accept.
// A missing or malformed header starts a new root.
func AcceptRunTrace(
	ctx context.Context,
	header nats.Header,
	codec lsprop.Codec,
) (context.Context, lsprop.TraceContext, lsprop.Outcome, error) {
	return lsprop.Accept(ctx, codec, headerCarrier(header))
}
