package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/arloliu/lsprop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

// dialBundled serves the health service with ServerOptions and dials it with DialOptions.
func dialBundled(t *testing.T, rec *recorder, serverOpts []Option, clientOpts []Option) healthpb.HealthClient {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	serverOptions := append(ServerOptions(serverOpts...),
		grpc.ChainUnaryInterceptor(func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			rec.record(lsprop.Follow(ctx))
			return handler(ctx, req)
		}),
	)
	s := grpc.NewServer(serverOptions...)
	healthpb.RegisterHealthServer(s, health.NewServer())

	go func() {
		_ = s.Serve(lis)
	}()
	t.Cleanup(s.Stop)

	dialOptions := append(DialOptions(clientOpts...),
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	conn, err := grpc.NewClient("passthrough://bufnet", dialOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return healthpb.NewHealthClient(conn)
}

func serverSpan(t *testing.T, exporter *tracetest.InMemoryExporter) tracetest.SpanStub {
	t.Helper()

	for _, s := range exporter.GetSpans() {
		if s.SpanKind == oteltrace.SpanKindServer {
			return s
		}
	}
	t.Fatal("no server span recorded")

	return tracetest.SpanStub{}
}

func TestBundledOptionsJoinRunTrace(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	opts := []Option{WithTracerProvider(tp), WithMeterProvider(noop.NewMeterProvider())}

	rec := &recorder{}
	client := dialBundled(t, rec, opts, opts)

	root := lsprop.NewRoot().WithBaggage(lsprop.BaggageProject, "evals")
	ctx := lsprop.ContextWith(context.Background(), root)
	_, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(exporter.GetSpans()) == 2 }, time.Second, 10*time.Millisecond)
	server := serverSpan(t, exporter)

	// the server span continues the run and parents the handler
	assert.Equal(t, root.TraceID, server.SpanContext.TraceID().String())
	seen := rec.get()
	assert.Equal(t, root.TraceID, seen.TraceID)
	assert.Equal(t, server.SpanContext.SpanID().String(), seen.SpanID)
	assert.Equal(t, "evals", seen.Baggage[lsprop.BaggageProject])
}

func TestBundledOptionsCustomHeader(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	opts := []Option{
		WithCodec(lsprop.NewCodec(lsprop.WithTraceHeader("x-run-trace"))),
		WithTracerProvider(tp),
	}

	rec := &recorder{}
	client := dialBundled(t, rec, opts, opts)

	root := lsprop.NewRoot()
	_, err := client.Check(lsprop.ContextWith(context.Background(), root), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)

	assert.Equal(t, root.TraceID, rec.get().TraceID)
}

func TestBundledOptionsWithoutTrace(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))

	rec := &recorder{}
	client := dialBundled(t, rec, []Option{WithTracerProvider(tp)}, nil)

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)

	// the server starts its own root, anchored on its server span
	seen := rec.get()
	require.NoError(t, seen.Validate())
	require.Eventually(t, func() bool { return len(exporter.GetSpans()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, serverSpan(t, exporter).SpanContext.TraceID().String(), seen.TraceID)
}

func TestStatsOptions(t *testing.T) {
	o := applyOptions(nil)
	assert.Len(t, o.statsOptions(), 1, "propagator only")

	tp := trace.NewTracerProvider()
	o = applyOptions([]Option{
		WithTracerProvider(tp),
		WithMeterProvider(noop.NewMeterProvider()),
		WithPropagator(propagation.TraceContext{}),
		WithStatsOptions(otelgrpc.WithSpanOptions(), otelgrpc.WithMessageEvents(otelgrpc.ReceivedEvents)),
	})
	assert.Len(t, o.statsOptions(), 5)
	assert.Equal(t, propagation.TraceContext{}, o.propagator())
}

func TestDefaultPropagatorCarriesRunHeader(t *testing.T) {
	codec := lsprop.NewCodec(lsprop.WithTraceHeader("x-run"))
	prop := applyOptions([]Option{WithCodec(codec)}).propagator()

	assert.Contains(t, prop.Fields(), "x-run")
}
