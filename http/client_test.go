package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arloliu/lsprop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewClientParentsUpstreamOnClientSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	client := NewClient(WithProviders(
		trace.NewTracerProvider(trace.WithSyncer(exporter)),
		noop.NewMeterProvider(),
		propagation.TraceContext{},
	))

	var seen lsprop.TraceContext
	server := httptest.NewServer(Middleware(WithMeterProvider(noop.NewMeterProvider()))(captureHandler(&seen)))
	defer server.Close()

	root := lsprop.NewRoot()
	doGet(t, client, lsprop.ContextWith(context.Background(), root), server.URL)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET", spans[0].Name)
	assert.Equal(t, root.TraceID, seen.TraceID)
	assert.Equal(t, spans[0].SpanContext.SpanID().String(), seen.SpanID)
}

func TestNewClientCustomCodec(t *testing.T) {
	server, got := headerServer(t)
	codec := lsprop.NewCodec(lsprop.WithTraceHeader("x-run-trace"))

	client := NewClient(
		WithProviders(trace.NewTracerProvider(), noop.NewMeterProvider(), propagation.TraceContext{}),
		WithPropagation(WithCodec(codec)),
	)

	ctx := lsprop.ContextWith(context.Background(), lsprop.TraceContext{TraceID: "t1", SpanID: "s1"})
	doGet(t, client, ctx, server.URL)

	assert.Contains(t, got.Get("x-run-trace"), "t1.")
	assert.Empty(t, got.Get("langsmith-trace"))
}

func TestNewClientWithoutRunTrace(t *testing.T) {
	server, got := headerServer(t)
	client := NewClient(WithTimeout(5 * time.Second))
	assert.Equal(t, 5*time.Second, client.Timeout)

	doGet(t, client, context.Background(), server.URL)
	assert.Empty(t, got.Get(lsprop.DefaultTraceHeader))
}

func TestClientTransportKeepsDefaults(t *testing.T) {
	c := &clientConfig{base: http.DefaultTransport}
	transport, ok := c.transport().(*http.Transport)
	require.True(t, ok)

	defaults, ok := http.DefaultTransport.(*http.Transport)
	require.True(t, ok)
	assert.NotSame(t, defaults, transport)
	assert.Equal(t, defaults.MaxIdleConns, transport.MaxIdleConns)
	assert.Equal(t, defaults.IdleConnTimeout, transport.IdleConnTimeout)
	assert.Equal(t, defaults.TLSHandshakeTimeout, transport.TLSHandshakeTimeout)
	assert.NotNil(t, transport.DialContext)
}

func TestClientTransportAppliesLimits(t *testing.T) {
	c := &clientConfig{base: &http.Transport{}}
	for _, opt := range []ClientOption{
		WithDialTimeout(time.Second),
		WithResponseHeaderTimeout(3 * time.Second),
		WithPool(Pool{MaxIdle: 10, MaxIdlePerHost: 5, MaxPerHost: 20, IdleTimeout: 30 * time.Second}),
	} {
		opt(c)
	}

	transport, ok := c.transport().(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, transport.ResponseHeaderTimeout)
	assert.Equal(t, 10, transport.MaxIdleConns)
	assert.Equal(t, 5, transport.MaxIdleConnsPerHost)
	assert.Equal(t, 20, transport.MaxConnsPerHost)
	assert.Equal(t, 30*time.Second, transport.IdleConnTimeout)
	assert.NotNil(t, transport.DialContext)
}

type stubRoundTripper struct{}

func (stubRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, http.ErrHandlerTimeout
}

func TestClientTransportOpaqueBase(t *testing.T) {
	c := &clientConfig{base: stubRoundTripper{}, pool: Pool{MaxIdle: 3}}
	assert.Equal(t, stubRoundTripper{}, c.transport())
}
