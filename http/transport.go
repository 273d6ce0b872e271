package http

import (
	"net/http"

	"github.com/arloliu/lsprop"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// roundTripper writes the run-trace header on outgoing requests.
type roundTripper struct {
	base http.RoundTripper
	opts *options
}

// RoundTrip implements http.RoundTripper. The request is cloned before headers are
// set. Requests whose context carries no trace are sent unchanged.
func (t *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	tc, ok := lsprop.Outbound(req.Context())
	if !ok {
		return t.base.RoundTrip(req)
	}

	out := req.Clone(req.Context())
	if err := t.opts.getCodec().Inject(tc, propagation.HeaderCarrier(out.Header)); err != nil {
		otel.Handle(err)
		return t.base.RoundTrip(req)
	}

	return t.base.RoundTrip(out)
}

// RunTraceTransport wraps base so that every request carries the run-trace header
// for the TraceContext on its context. No OTel span is started.
//
// If base is nil, http.DefaultTransport is used.
func RunTraceTransport(base http.RoundTripper, opts ...Option) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}

	return &roundTripper{base: base, opts: applyOptions(opts)}
}

// Transport records an otelhttp client span for each request and sends the
// run-trace header naming that span as the parent.
//
//	client := &http.Client{Transport: lshttp.Transport(nil, lshttp.WithLogger(logger))}
//
// If base is nil, http.DefaultTransport is used.
func Transport(base http.RoundTripper, opts ...Option) http.RoundTripper {
	return otelhttp.NewTransport(RunTraceTransport(base, opts...), applyOptions(opts).otelOptions()...)
}
