package http

import (
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Pool tunes connection reuse of the client's transport. Zero fields keep
// the value of the base transport.
type Pool struct {
	MaxIdle        int
	MaxIdlePerHost int
	MaxPerHost     int
	IdleTimeout    time.Duration
}

type clientConfig struct {
	timeout       time.Duration
	dialTimeout   time.Duration
	headerTimeout time.Duration
	pool          Pool
	base          http.RoundTripper
	propagation   []Option
}

// ClientOption configures NewClient.
type ClientOption func(*clientConfig)

// WithTimeout bounds a whole call, including reading the body.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithDialTimeout bounds establishing a TCP connection.
func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.dialTimeout = d
	}
}

// WithResponseHeaderTimeout bounds the wait for response headers, which for
// model endpoints is the time to first token.
func WithResponseHeaderTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.headerTimeout = d
	}
}

// WithPool sets connection pool limits.
func WithPool(p Pool) ClientOption {
	return func(c *clientConfig) {
		c.pool = p
	}
}

// WithTransport replaces the base transport. An *http.Transport is cloned
// before the timeouts and pool limits are applied; any other RoundTripper is
// used as is.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *clientConfig) {
		c.base = rt
	}
}

// WithProviders sets the providers and propagator for the client spans.
// nil values keep the globals.
func WithProviders(tp trace.TracerProvider, mp metric.MeterProvider, prop propagation.TextMapPropagator) ClientOption {
	return func(c *clientConfig) {
		c.propagation = append(c.propagation, WithTracerProvider(tp), WithMeterProvider(mp), WithPropagator(prop))
	}
}

// WithPropagation sets the run-trace options (codec, logger, otelhttp passthrough)
// of the client's transport.
func WithPropagation(opts ...Option) ClientOption {
	return func(c *clientConfig) {
		c.propagation = append(c.propagation, opts...)
	}
}

// NewClient returns an http.Client whose requests record a client span and
// carry the run-trace header naming that span as the parent.
//
//	client := lshttp.NewClient(
//	    lshttp.WithTimeout(30*time.Second),
//	    lshttp.WithPool(lshttp.Pool{MaxIdlePerHost: 10}),
//	    lshttp.WithPropagation(lshttp.WithLogger(logger)),
//	)
func NewClient(opts ...ClientOption) *http.Client {
	c := &clientConfig{base: http.DefaultTransport}
	for _, opt := range opts {
		opt(c)
	}

	return &http.Client{
		Transport: Transport(c.transport(), c.propagation...),
		Timeout:   c.timeout,
	}
}

// transport applies the timeouts and pool limits to a clone of the base transport.
func (c *clientConfig) transport() http.RoundTripper {
	base, ok := c.base.(*http.Transport)
	if !ok {
		return c.base
	}

	t := base.Clone()
	if c.dialTimeout > 0 {
		t.DialContext = (&net.Dialer{Timeout: c.dialTimeout, KeepAlive: 30 * time.Second}).DialContext
	}
	if c.headerTimeout > 0 {
		t.ResponseHeaderTimeout = c.headerTimeout
	}
	if c.pool.MaxIdle > 0 {
		t.MaxIdleConns = c.pool.MaxIdle
	}
	if c.pool.MaxIdlePerHost > 0 {
		t.MaxIdleConnsPerHost = c.pool.MaxIdlePerHost
	}
	if c.pool.MaxPerHost > 0 {
		t.MaxConnsPerHost = c.pool.MaxPerHost
	}
	if c.pool.IdleTimeout > 0 {
		t.IdleConnTimeout = c.pool.IdleTimeout
	}

	return t
}
