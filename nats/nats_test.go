package nats

import (
	"context"
	"testing"
	"time"

	"github.com/arloliu/lsprop"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// mockMsg implements jetstream.Msg for testing.
type mockMsg struct {
	subject  string
	data     []byte
	headers  nats.Header
	metadata *jetstream.MsgMetadata
	acks     int
	naks     int
}

func (m *mockMsg) Subject() string                           { return m.subject }
func (m *mockMsg) Data() []byte                              { return m.data }
func (m *mockMsg) Headers() nats.Header                      { return m.headers }
func (*mockMsg) Reply() string                               { return "" }
func (m *mockMsg) Ack() error                                { m.acks++; return nil }
func (*mockMsg) DoubleAck(_ context.Context) error           { return nil }
func (m *mockMsg) Nak() error                                { m.naks++; return nil }
func (*mockMsg) NakWithDelay(_ time.Duration) error          { return nil }
func (*mockMsg) Term() error                                 { return nil }
func (*mockMsg) TermWithReason(_ string) error               { return nil }
func (*mockMsg) InProgress() error                           { return nil }
func (m *mockMsg) Metadata() (*jetstream.MsgMetadata, error) { return m.metadata, nil }

func newTestProvider() (*trace.TracerProvider, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	return trace.NewTracerProvider(trace.WithSyncer(exporter)), exporter
}

func TestHeaderCarrier_GetSetKeys(t *testing.T) {
	header := make(nats.Header)
	carrier := headerCarrier(header)

	carrier.Set("langsmith-trace", "t1.s1")
	carrier.Set("baggage", "tenant=acme")

	assert.Equal(t, "t1.s1", carrier.Get("langsmith-trace"))
	assert.Equal(t, "tenant=acme", carrier.Get("baggage"))
	assert.Equal(t, "", carrier.Get("nonexistent"))

	keys := carrier.Keys()
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, "langsmith-trace")
	assert.Contains(t, keys, "baggage")
}

func TestInjectRunTrace(t *testing.T) {
	msg := &nats.Msg{Subject: "runs.created"}

	// no trace: nothing written
	require.NoError(t, InjectRunTrace(context.Background(), msg, lsprop.NewCodec()))
	assert.Nil(t, msg.Header)

	tc := lsprop.TraceContext{TraceID: "t1", SpanID: "s1", Baggage: map[string]string{"tenant": "acme"}}
	require.NoError(t, InjectRunTrace(lsprop.ContextWith(context.Background(), tc), msg, lsprop.NewCodec()))
	require.NotNil(t, msg.Header)
	assert.Equal(t, "t1.s1", msg.Header.Get("langsmith-trace"))
	assert.Equal(t, "tenant=acme", msg.Header.Get("baggage"))

	bad := lsprop.ContextWith(context.Background(), lsprop.TraceContext{TraceID: "t.1", SpanID: "s1"})
	assert.ErrorIs(t, InjectRunTrace(bad, &nats.Msg{}, lsprop.NewCodec()), lsprop.ErrInvalidIdentifier)
}

func TestAcceptRunTrace(t *testing.T) {
	header := nats.Header{}
	header.Set("langsmith-trace", "t1.s1")

	ctx, tc, outcome, err := AcceptRunTrace(context.Background(), header, lsprop.NewCodec())
	require.NoError(t, err)
	assert.Equal(t, lsprop.OutcomeExtracted, outcome)
	assert.Equal(t, lsprop.TraceContext{TraceID: "t1", SpanID: "s1"}, tc)
	got, _ := lsprop.FromContext(ctx)
	assert.Equal(t, tc, got)

	_, tc, outcome, err = AcceptRunTrace(context.Background(), nil, lsprop.NewCodec())
	require.NoError(t, err)
	assert.Equal(t, lsprop.OutcomeMissing, outcome)
	assert.False(t, tc.IsZero())
}

func TestInjectExtractNATS(t *testing.T) {
	tp, _ := newTestProvider()
	prop := propagation.TraceContext{}

	ctx, span := tp.Tracer("test").Start(context.Background(), "test-span")
	defer span.End()

	msg := &nats.Msg{Subject: "test.subject"}
	InjectNATS(ctx, msg, WithPropagator(prop))
	require.NotNil(t, msg.Header)
	assert.NotEmpty(t, msg.Header.Get("traceparent"))

	result := ExtractNATS(context.Background(), msg.Header, WithPropagator(prop))
	assert.Equal(t, span.SpanContext().TraceID(), oteltrace.SpanContextFromContext(result).TraceID())

	assert.Equal(t, context.Background(), ExtractNATS(context.Background(), nil))
}

func attrMap(attrs []attribute.KeyValue) map[string]any {
	m := make(map[string]any, len(attrs))
	for _, attr := range attrs {
		m[string(attr.Key)] = attr.Value.AsInterface()
	}

	return m
}

func TestMessageAttributes(t *testing.T) {
	run := lsprop.NewRoot().WithBaggage(lsprop.BaggageProject, "support-bot")
	m := message{
		operation: opProcess,
		subject:   "runs.created",
		stream:    "RUNS",
		consumer:  "summarizer",
		sequence:  456,
		bodySize:  2048,
		run:       run,
	}
	assert.Equal(t, "process RUNS", m.spanName())

	attrs := attrMap(m.attributes())
	assert.Equal(t, "nats", attrs["messaging.system"])
	assert.Equal(t, "process", attrs["messaging.operation.name"])
	assert.Equal(t, "process", attrs["messaging.operation.type"])
	assert.Equal(t, "RUNS", attrs["nats.stream"])
	assert.Equal(t, "runs.created", attrs["messaging.destination.name"])
	assert.Equal(t, "summarizer", attrs["messaging.consumer.group.name"])
	assert.Equal(t, "456", attrs["messaging.message.id"])
	assert.Equal(t, int64(2048), attrs["messaging.message.body.size"])
	assert.Equal(t, run.TraceID, attrs["langsmith.trace_id"])
	assert.Equal(t, "support-bot", attrs["langsmith.project"])
}

func TestMessageAttributesPublishMinimal(t *testing.T) {
	m := message{operation: opPublish, subject: "runs.created"}
	assert.Equal(t, "publish runs.created", m.spanName())

	attrs := attrMap(m.attributes())
	assert.Len(t, attrs, 4)
	assert.Equal(t, "send", attrs["messaging.operation.type"])
	assert.NotContains(t, attrs, "langsmith.trace_id")
}

func TestOptions(t *testing.T) {
	o := applyOptions(nil)
	assert.Equal(t, instrumentationName, o.tracerName)
	assert.Nil(t, o.tp)
	assert.True(t, o.asyncSpans)
	assert.Equal(t, lsprop.DefaultTraceHeader, o.getCodec().TraceHeader())

	codec := lsprop.NewCodec(lsprop.WithTraceHeader("x-run-trace"))
	o = applyOptions([]Option{
		WithTracerName("custom"),
		WithAsyncSpans(false),
		WithStream("RUNS"),
		WithCodec(codec),
		WithLogger(nil),
	})
	assert.Equal(t, "custom", o.tracerName)
	assert.False(t, o.asyncSpans)
	assert.Equal(t, "RUNS", o.stream)
	assert.Equal(t, "x-run-trace", o.getCodec().TraceHeader())
	assert.NotNil(t, o.logger)
}

func TestNewTracedMsg(t *testing.T) {
	header := nats.Header{}
	header.Set("langsmith-trace", "4bf92f3577b34da6a3ce929d0e0e4736.00f067aa0ba902b7")

	msg := NewTracedMsg(&mockMsg{subject: "runs.created", headers: header}, WithPropagator(propagation.TraceContext{}))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", msg.TraceContext().TraceID)
	assert.Equal(t, "00f067aa0ba902b7", oteltrace.SpanContextFromContext(msg.Context()).SpanID().String())

	// no headers: new root
	root := NewTracedMsg(&mockMsg{subject: "runs.created"})
	assert.Len(t, root.TraceContext().TraceID, 32)

	// nil message
	assert.False(t, NewTracedMsg(nil).TraceContext().IsZero())
	assert.NotNil(t, (&TracedMsg{}).Context())
}

func TestTracedMsg_StartProcessSpan(t *testing.T) {
	tp, exporter := newTestProvider()

	header := nats.Header{}
	header.Set("langsmith-trace", "4bf92f3577b34da6a3ce929d0e0e4736.00f067aa0ba902b7")
	msg := NewTracedMsg(&mockMsg{
		subject:  "runs.created",
		data:     []byte("payload"),
		headers:  header,
		metadata: &jetstream.MsgMetadata{Stream: "RUNS", Consumer: "summarizer"},
	}, WithPropagator(propagation.TraceContext{}))

	ctx, end := msg.StartProcessSpan(WithTracerProvider(tp))
	tc, _ := lsprop.FromContext(ctx)
	end(assert.AnError)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "process RUNS", spans[0].Name)
	assert.Equal(t, oteltrace.SpanKindConsumer, spans[0].SpanKind)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent.SpanID().String())

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", tc.TraceID)
	assert.Equal(t, spans[0].SpanContext.SpanID().String(), tc.SpanID)
}
