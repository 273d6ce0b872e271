package engine

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/arloliu/lsprop/cmd/lstrace/scenario"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/trace"
)

var spanKinds = map[scenario.SpanKind]trace.SpanKind{
	scenario.SpanKindServer:   trace.SpanKindServer,
	scenario.SpanKindClient:   trace.SpanKindClient,
	scenario.SpanKindProducer: trace.SpanKindProducer,
	scenario.SpanKindConsumer: trace.SpanKindConsumer,
	scenario.SpanKindInternal: trace.SpanKindInternal,
}

// spanKind maps a template kind onto the OTel kind; unknown kinds are internal.
func spanKind(k scenario.SpanKind) trace.SpanKind {
	if kind, ok := spanKinds[scenario.SpanKind(strings.ToUpper(string(k)))]; ok {
		return kind
	}

	return trace.SpanKindInternal
}

var severities = map[string]otellog.Severity{
	"DEBUG": otellog.SeverityDebug,
	"INFO":  otellog.SeverityInfo,
	"WARN":  otellog.SeverityWarn,
	"ERROR": otellog.SeverityError,
}

// severity maps a template level onto a log severity, INFO when unknown.
func severity(level string) otellog.Severity {
	if s, ok := severities[strings.ToUpper(level)]; ok {
		return s
	}

	return otellog.SeverityInfo
}

// typedAttributes turns template attributes into OTel attributes, sorted by
// key. Values that parse as integers, floats or booleans keep that type.
func typedAttributes(attrs map[string]string) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs)+1)
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		out = append(out, attribute.KeyValue{Key: attribute.Key(k), Value: typedValue(attrs[k])})
	}

	return out
}

func typedValue(s string) attribute.Value {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return attribute.Int64Value(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return attribute.Float64Value(f)
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return attribute.BoolValue(b)
	}

	return attribute.StringValue(s)
}
