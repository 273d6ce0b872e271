package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/arloliu/lsprop"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMessageHandlerWithTracing_PublishConsumeRoundTrip(t *testing.T) {
	js := &fakeJetStream{}
	pub, _ := setupTestPublisher(t, js)

	root := lsprop.NewRoot()
	_, err := pub.Publish(lsprop.ContextWith(context.Background(), root), "runs.created", []byte("payload"))
	require.NoError(t, err)
	published := js.last()

	tp, exporter := newTestProvider()
	var got lsprop.TraceContext
	handler := MessageHandlerWithTracing(func(msg *TracedMsg) {
		got = msg.TraceContext()
	}, WithTracerProvider(tp), WithPropagator(propagation.TraceContext{}))

	handler(&mockMsg{
		subject:  published.Subject,
		data:     published.Data,
		headers:  published.Header,
		metadata: &jetstream.MsgMetadata{Stream: "RUNS", Consumer: "summarizer"},
	})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	process := spans[0]
	assert.Equal(t, "process RUNS", process.Name)
	assert.Equal(t, oteltrace.SpanKindConsumer, process.SpanKind)
	assert.Equal(t, root.TraceID, spanAttrMap(process)["langsmith.trace_id"])

	assert.Equal(t, root.TraceID, got.TraceID)
	assert.Equal(t, process.SpanContext.SpanID().String(), got.SpanID)
}

func TestMessageHandlerWithTracing_MalformedHeader(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tp, exporter := newTestProvider()

	header := nats.Header{}
	header.Set("langsmith-trace", "no-delimiter")

	var got lsprop.TraceContext
	handler := MessageHandlerWithTracing(func(msg *TracedMsg) {
		got = msg.TraceContext()
	}, WithTracerProvider(tp), WithLogger(zap.New(core)), WithStream("RUNS"))

	handler(&mockMsg{subject: "runs.created", headers: header})

	assert.False(t, got.IsZero())
	require.Len(t, exporter.GetSpans(), 1)
	assert.Equal(t, "process RUNS", exporter.GetSpans()[0].Name)
	assert.Equal(t, 1, logs.FilterMessage("malformed run-trace header, starting new root").Len())
}

func TestMessageHandlerWithTracing_PanicRecorded(t *testing.T) {
	tp, exporter := newTestProvider()

	handler := MessageHandlerWithTracing(func(*TracedMsg) {
		panic("boom")
	}, WithTracerProvider(tp))

	assert.Panics(t, func() { handler(&mockMsg{subject: "runs.created"}) })

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestMessageHandlerWithTracing_NilHandler_Panics(t *testing.T) {
	assert.Panics(t, func() { MessageHandlerWithTracing(nil) })
}

func TestRunHandler_AcksOnSuccess(t *testing.T) {
	root := lsprop.NewRoot()
	header := nats.Header{}
	require.NoError(t, InjectRunTrace(lsprop.ContextWith(context.Background(), root), &nats.Msg{Header: header}, lsprop.NewCodec()))

	tp, exporter := newTestProvider()
	var got lsprop.TraceContext
	handler := RunHandler(func(ctx context.Context, msg jetstream.Msg) error {
		got, _ = lsprop.FromContext(ctx)
		assert.Equal(t, "feedback.recorded", msg.Subject())
		return nil
	}, WithStream("FEEDBACK"), WithTracerProvider(tp))

	msg := &mockMsg{subject: "feedback.recorded", headers: header}
	handler(msg)

	assert.Equal(t, 1, msg.acks)
	assert.Zero(t, msg.naks)
	assert.Equal(t, root.TraceID, got.TraceID)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "process FEEDBACK", spans[0].Name)
	assert.Equal(t, got.SpanID, spans[0].SpanContext.SpanID().String())
}

func TestRunHandler_NaksOnError(t *testing.T) {
	tp, exporter := newTestProvider()
	handler := RunHandler(func(context.Context, jetstream.Msg) error {
		return errors.New("score store unavailable")
	}, WithTracerProvider(tp))

	msg := &mockMsg{subject: "feedback.recorded"}
	handler(msg)

	assert.Zero(t, msg.acks)
	assert.Equal(t, 1, msg.naks)
	require.Len(t, exporter.GetSpans(), 1)
	assert.Equal(t, codes.Error, exporter.GetSpans()[0].Status.Code)
}

func TestRunHandler_NilPanics(t *testing.T) {
	assert.Panics(t, func() { RunHandler(nil) })
}
