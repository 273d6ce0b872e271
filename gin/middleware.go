package gin

import (
	"github.com/arloliu/lsprop"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// Keys under which the middleware stores identifiers on the gin.Context.
const (
	TraceIDKey = "lsprop.trace_id"
	SpanIDKey  = "lsprop.span_id"
)

type options struct {
	codec          *lsprop.Codec
	logger         *zap.Logger
	responseHeader bool
}

// Option configures the gin middleware.
type Option func(*options)

// WithCodec sets the codec used to read the trace header.
// Defaults to lsprop.DefaultCodec, resolved on every request.
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

// WithResponseHeader echoes the resolved trace header on the response so callers
// can correlate a request that started a new root.
func WithResponseHeader() Option {
	return func(o *options) {
		o.responseHeader = true
	}
}

// Middleware returns a gin.HandlerFunc that reads the run-trace header, stores the
// TraceContext on c.Request's context, and sets [TraceIDKey] and [SpanIDKey].
//
// A missing or malformed header starts a new root; the request is never aborted.
//
// Usage:
//
//	router := gin.New()
//	router.Use(lsgin.Middleware(lsgin.WithLogger(logger)))
func Middleware(opts ...Option) gin.HandlerFunc {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	return func(c *gin.Context) {
		codec := lsprop.DefaultCodec()
		if o.codec != nil {
			codec = *o.codec
		}

		ctx, tc, outcome, err := lsprop.Accept(c.Request.Context(), codec, propagation.HeaderCarrier(c.Request.Header))
		if outcome == lsprop.OutcomeMalformed {
			o.logger.Warn("malformed run-trace header, starting new root",
				zap.String("route", c.FullPath()),
				zap.String("trace_id", tc.TraceID),
				zap.Error(err))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Set(TraceIDKey, tc.TraceID)
		c.Set(SpanIDKey, tc.SpanID)

		if o.responseHeader {
			if value, err := lsprop.Encode(tc.TraceID, tc.SpanID); err == nil {
				c.Header(codec.TraceHeader(), value)
			} else {
				otel.Handle(err)
			}
		}

		c.Next()
	}
}

// TraceContext returns the TraceContext resolved by Middleware for this request.
func TraceContext(c *gin.Context) lsprop.TraceContext {
	tc, _ := lsprop.FromContext(c.Request.Context())
	return tc
}
