package resty

import (
	"github.com/arloliu/lsprop"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

type options struct {
	codec  *lsprop.Codec
	logger *zap.Logger
}

// Option configures the resty hook.
type Option func(*options)

// WithCodec sets the codec used to write the trace header.
// Defaults to lsprop.DefaultCodec, resolved on every request.
func WithCodec(codec lsprop.Codec) Option {
	return func(o *options) {
		o.codec = &codec
	}
}

// WithLogger sets the logger for requests sent without a trace. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Hook returns a request middleware that writes the run-trace header for the
// TraceContext on the request's context. Register it with OnBeforeRequest.
//
// An invalid TraceContext fails the request with the encoding error.
func Hook(opts ...Option) resty.RequestMiddleware {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	return func(_ *resty.Client, r *resty.Request) error {
		tc, ok := lsprop.Outbound(r.Context())
		if !ok {
			o.logger.Debug("request without run-trace context", zap.String("url", r.URL))
			return nil
		}

		codec := lsprop.DefaultCodec()
		if o.codec != nil {
			codec = *o.codec
		}

		return codec.Inject(tc, propagation.HeaderCarrier(r.Header))
	}
}

// Instrument registers Hook on c and returns c.
func Instrument(c *resty.Client, opts ...Option) *resty.Client {
	return c.OnBeforeRequest(Hook(opts...))
}

// NewClient creates a resty client that writes the run-trace header on every request.
//
// Usage:
//
//	client := lsresty.NewClient()
//	resp, err := client.R().SetContext(ctx).Get(url)
func NewClient(opts ...Option) *resty.Client {
	return Instrument(resty.New(), opts...)
}
