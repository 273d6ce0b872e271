package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/lsprop"
	"github.com/arloliu/lsprop/cmd/lstrace/scenario"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	e := NewWithProvider(tp, lsprop.NewCodec(), cfg)
	e.SetSleep(false)

	return e, exp
}

func spansByName(spans tracetest.SpanStubs) map[string]tracetest.SpanStub {
	out := make(map[string]tracetest.SpanStub, len(spans))
	for _, s := range spans {
		out[s.Name] = s
	}

	return out
}

func noErrors(s *scenario.Scenario) *scenario.Scenario {
	var strip func(r *scenario.RunTemplate)
	strip = func(r *scenario.RunTemplate) {
		r.ErrorRate = 0
		for i := range r.Children {
			strip(&r.Children[i])
		}
	}
	strip(&s.Root)

	return s
}

func TestGenerateTraceStaysConnectedAcrossServices(t *testing.T) {
	e, exp := newTestEngine(t, Config{})

	report, err := e.GenerateTrace(context.Background(), noErrors(scenario.RAGScenario()))
	require.NoError(t, err)

	spans := exp.GetSpans()
	require.Len(t, spans, 7)
	assert.Equal(t, 7, report.Runs)
	assert.Zero(t, report.Errors)

	for _, s := range spans {
		assert.Equal(t, report.TraceID, s.SpanContext.TraceID().String(), "span %q left the trace", s.Name)
	}

	byName := spansByName(spans)
	root := byName["chain AnswerQuestion"]
	search := byName["retriever SearchDocuments"]
	chat := byName["llm ChatCompletion"]
	assert.False(t, root.Parent.IsValid())
	assert.Equal(t, root.SpanContext.SpanID(), search.Parent.SpanID())
	assert.True(t, search.Parent.IsRemote())
	assert.Equal(t, root.SpanContext.SpanID(), chat.Parent.SpanID())
	assert.Equal(t, "rag-api", root.InstrumentationScope.Name)
	assert.Equal(t, "vector-store", search.InstrumentationScope.Name)

	require.Len(t, report.Hops, 2)
	first := report.Hops[0]
	assert.Equal(t, "rag-api", first.From)
	assert.Equal(t, "vector-store", first.To)
	assert.Equal(t, lsprop.OutcomeExtracted, first.Outcome)
	assert.Equal(t, report.TraceID+"."+root.SpanContext.SpanID().String(), first.Header)
	assert.Contains(t, first.Baggage, "langsmith-project=rag-demo")
	assert.Equal(t, "rag-demo", first.Context.Baggage[lsprop.BaggageProject])

	assert.Equal(t, "llm-gateway", report.Hops[1].To)
}

func TestGenerateTraceRunTypeAttribute(t *testing.T) {
	e, exp := newTestEngine(t, Config{})

	_, err := e.GenerateTrace(context.Background(), noErrors(scenario.RAGScenario()))
	require.NoError(t, err)

	byName := spansByName(exp.GetSpans())
	embed := byName["embedding EmbedQuery"]
	assert.Contains(t, embed.Attributes, RunKindKey.String("embedding"))
	assert.Equal(t, trace.SpanKindInternal, embed.SpanKind)

	sql := byName["SELECT chunks"]
	for _, kv := range sql.Attributes {
		assert.NotEqual(t, RunKindKey, kv.Key, "untyped runs carry no run kind")
	}
	assert.Equal(t, trace.SpanKindClient, sql.SpanKind)
}

func TestGenerateTraceAgentQueueHop(t *testing.T) {
	e, _ := newTestEngine(t, Config{})

	report, err := e.GenerateTrace(context.Background(), noErrors(scenario.AgentScenario()))
	require.NoError(t, err)

	require.Len(t, report.Hops, 4)
	last := report.Hops[3]
	assert.Equal(t, "agent-runtime", last.From)
	assert.Equal(t, "feedback-worker", last.To)
	assert.Equal(t, report.TraceID, last.Context.TraceID)
	for _, hop := range report.Hops {
		assert.Equal(t, lsprop.OutcomeExtracted, hop.Outcome)
	}
}

func TestGenerateTraceErrorSimulation(t *testing.T) {
	e, exp := newTestEngine(t, Config{})

	s := &scenario.Scenario{
		Name: "always-fails",
		Root: scenario.RunTemplate{
			Name:        "Flaky",
			Service:     "svc",
			RunType:     lsprop.RunTypeTool,
			ErrorRate:   1,
			ErrorStatus: "boom",
		},
	}

	report, err := e.GenerateTrace(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "boom", spans[0].Status.Description)
}

func TestGenerateTraceCanceled(t *testing.T) {
	e, exp := newTestEngine(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.GenerateTrace(ctx, scenario.HealthCheckScenario())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, exp.GetSpans())
}

func TestGenerateTraceLogsHops(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	e, _ := newTestEngine(t, Config{Logger: zap.New(core)})

	_, err := e.GenerateTrace(context.Background(), noErrors(scenario.RAGScenario()))
	require.NoError(t, err)

	hops := logs.FilterMessage("crossed service boundary").All()
	require.Len(t, hops, 2)
	assert.Equal(t, "vector-store", hops[0].ContextMap()["to"])
	assert.Equal(t, "extracted", hops[0].ContextMap()["outcome"])
}

type logRecorder struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (r *logRecorder) Export(_ context.Context, records []sdklog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		r.records = append(r.records, rec.Clone())
	}

	return nil
}

func (*logRecorder) Shutdown(context.Context) error   { return nil }
func (*logRecorder) ForceFlush(context.Context) error { return nil }

func TestGenerateTraceEmitsLogs(t *testing.T) {
	rec := &logRecorder{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(rec)))
	prev := global.GetLoggerProvider()
	global.SetLoggerProvider(lp)
	t.Cleanup(func() { global.SetLoggerProvider(prev) })

	e, exp := newTestEngine(t, Config{EnableLogs: true})

	report, err := e.GenerateTrace(context.Background(), noErrors(scenario.RAGScenario()))
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.records, 2)

	first := rec.records[0]
	assert.Equal(t, "Answering question", first.Body().AsString())
	root := spansByName(exp.GetSpans())["chain AnswerQuestion"]
	assert.Equal(t, root.SpanContext.TraceID(), first.TraceID())

	var traceAttr string
	first.WalkAttributes(func(kv otellog.KeyValue) bool {
		if kv.Key == "langsmith.trace_id" {
			traceAttr = kv.Value.AsString()
		}

		return true
	})
	assert.Equal(t, report.TraceID, traceAttr)
}

func TestNewBuildsProviders(t *testing.T) {
	enabled := true
	cfg := &lsprop.Config{
		Enabled:     &enabled,
		ServiceName: "lstrace-test",
		Traces:      &lsprop.TracesConfig{Exporter: "none"},
	}

	e, err := New(context.Background(), Config{Telemetry: cfg, EnableLogs: true})
	require.NoError(t, err)
	require.NotNil(t, e.logger)
	assert.Len(t, e.shutdown, 2)

	e.SetSleep(false)
	report, err := e.GenerateTrace(context.Background(), scenario.HealthCheckScenario())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Runs)
	assert.Len(t, report.TraceID, 32)

	require.NoError(t, e.Shutdown(context.Background()))
}

func TestNewRequiresTelemetry(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestNewDisabled(t *testing.T) {
	_, err := New(context.Background(), Config{Telemetry: &lsprop.Config{}})
	assert.ErrorIs(t, err, lsprop.ErrDisabled)
}

func TestSpanKind(t *testing.T) {
	tests := []struct {
		input scenario.SpanKind
		want  trace.SpanKind
	}{
		{scenario.SpanKindServer, trace.SpanKindServer},
		{scenario.SpanKindClient, trace.SpanKindClient},
		{scenario.SpanKindProducer, trace.SpanKindProducer},
		{"consumer", trace.SpanKindConsumer},
		{scenario.SpanKindInternal, trace.SpanKindInternal},
		{"", trace.SpanKindInternal},
		{"UNKNOWN", trace.SpanKindInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, spanKind(tt.input), "kind %q", tt.input)
	}
}

func TestSeverity(t *testing.T) {
	for input, want := range map[string]otellog.Severity{
		"DEBUG": otellog.SeverityDebug,
		"warn":  otellog.SeverityWarn,
		"ERROR": otellog.SeverityError,
		"":      otellog.SeverityInfo,
		"TRACE": otellog.SeverityInfo,
	} {
		assert.Equal(t, want, severity(input), "level %q", input)
	}
}

func TestTypedAttributes(t *testing.T) {
	result := typedAttributes(map[string]string{
		"model":        "gpt-4o-mini",
		"input_tokens": "812",
		"temperature":  "0.2",
		"streamed":     "true",
	})

	keys := make([]attribute.Key, 0, len(result))
	got := make(map[attribute.Key]any, len(result))
	for _, kv := range result {
		keys = append(keys, kv.Key)
		got[kv.Key] = kv.Value.AsInterface()
	}
	assert.Equal(t, []attribute.Key{"input_tokens", "model", "streamed", "temperature"}, keys)
	assert.Equal(t, map[attribute.Key]any{
		"model":        "gpt-4o-mini",
		"input_tokens": int64(812),
		"temperature":  0.2,
		"streamed":     true,
	}, got)

	assert.Empty(t, typedAttributes(nil))
}

func TestJitter(t *testing.T) {
	d := 100 * time.Millisecond

	for _, pct := range []int{0, -10} {
		e := NewWithProvider(tracenoop.NewTracerProvider(), lsprop.NewCodec(), Config{JitterPct: pct})
		assert.Equal(t, d, e.jitter(d))
	}

	e := NewWithProvider(tracenoop.NewTracerProvider(), lsprop.NewCodec(), Config{JitterPct: 50})
	assert.Zero(t, e.jitter(0))
	for range 100 {
		got := e.jitter(d)
		assert.GreaterOrEqual(t, got, 50*time.Millisecond)
		assert.LessOrEqual(t, got, 150*time.Millisecond)
	}
}

func TestSeedRepeatsRuns(t *testing.T) {
	a := NewWithProvider(tracenoop.NewTracerProvider(), lsprop.NewCodec(), Config{JitterPct: 40, Seed: 7})
	b := NewWithProvider(tracenoop.NewTracerProvider(), lsprop.NewCodec(), Config{JitterPct: 40, Seed: 7})

	for range 10 {
		assert.Equal(t, a.jitter(time.Second), b.jitter(time.Second))
	}
}
