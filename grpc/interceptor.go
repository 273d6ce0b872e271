package grpc

import (
	"context"

	"github.com/arloliu/lsprop"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// MetadataCarrier adapts gRPC metadata to propagation.TextMapCarrier.
// Keys are lower-cased by metadata.MD.
type MetadataCarrier metadata.MD

// Get returns the first value for key, or "".
func (c MetadataCarrier) Get(key string) string {
	vals := metadata.MD(c).Get(key)
	if len(vals) == 0 {
		return ""
	}

	return vals[0]
}

// Set replaces the values for key.
func (c MetadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

// Keys lists the keys in the carrier.
func (c MetadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}

	return keys
}

type options struct {
	codec  *lsprop.Codec
	logger *zap.Logger
	tel    telemetry
}

// Option configures the run-trace interceptors and the option bundles.
type Option func(*options)

// WithCodec sets the codec used for the trace header.
// Defaults to lsprop.DefaultCodec, resolved on every call.
func WithCodec(codec lsprop.Codec) Option {
	return func(o *options) {
		o.codec = &codec
	}
}

// WithLogger sets the logger for header fallbacks. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func applyOptions(opts []Option) *options {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

func (o *options) getCodec() lsprop.Codec {
	if o.codec != nil {
		return *o.codec
	}

	return lsprop.DefaultCodec()
}

// accept resolves the inbound TraceContext from incoming metadata.
func (o *options) accept(ctx context.Context, method string) context.Context {
	md, _ := metadata.FromIncomingContext(ctx)

	ctx, tc, outcome, err := lsprop.Accept(ctx, o.getCodec(), MetadataCarrier(md))
	if outcome == lsprop.OutcomeMalformed {
		o.logger.Warn("malformed run-trace metadata, starting new root",
			zap.String("method", method),
			zap.String("trace_id", tc.TraceID),
			zap.Error(err))
	}

	return ctx
}

// inject writes the outbound TraceContext into outgoing metadata.
// ctx is returned unchanged when it carries no trace.
func (o *options) inject(ctx context.Context) (context.Context, error) {
	tc, ok := lsprop.Outbound(ctx)
	if !ok {
		return ctx, nil
	}

	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if err := o.getCodec().Inject(tc, MetadataCarrier(md)); err != nil {
		return ctx, err
	}

	return metadata.NewOutgoingContext(ctx, md), nil
}

// UnaryServerInterceptor reads the run-trace header from incoming metadata.
// A missing or malformed header starts a new root; the call is never rejected.
func UnaryServerInterceptor(opts ...Option) grpc.UnaryServerInterceptor {
	return applyOptions(opts).unaryServer()
}

// StreamServerInterceptor reads the run-trace header from incoming metadata for streams.
func StreamServerInterceptor(opts ...Option) grpc.StreamServerInterceptor {
	return applyOptions(opts).streamServer()
}

// UnaryClientInterceptor writes the run-trace header into outgoing metadata.
// A TraceContext with invalid identifiers fails the call before it is sent.
func UnaryClientInterceptor(opts ...Option) grpc.UnaryClientInterceptor {
	return applyOptions(opts).unaryClient()
}

// StreamClientInterceptor writes the run-trace header into outgoing metadata for streams.
func StreamClientInterceptor(opts ...Option) grpc.StreamClientInterceptor {
	return applyOptions(opts).streamClient()
}

func (o *options) unaryServer() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(o.accept(ctx, info.FullMethod), req)
	}
}

func (o *options) streamServer() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &tracedServerStream{
			ServerStream: ss,
			ctx:          o.accept(ss.Context(), info.FullMethod),
		})
	}
}

// tracedServerStream overrides Context with the resolved one.
type tracedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedServerStream) Context() context.Context {
	return s.ctx
}

func (o *options) unaryClient() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		callOpts ...grpc.CallOption,
	) error {
		ctx, err := o.inject(ctx)
		if err != nil {
			return err
		}

		return invoker(ctx, method, req, reply, cc, callOpts...)
	}
}

func (o *options) streamClient() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		callOpts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		ctx, err := o.inject(ctx)
		if err != nil {
			return nil, err
		}

		return streamer(ctx, desc, cc, method, callOpts...)
	}
}
