package nats

import (
	"strconv"

	"github.com/arloliu/lsprop"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	attrConsumerGroup = attribute.Key("messaging.consumer.group.name")
	attrStream        = attribute.Key("nats.stream")
	attrRunTraceID    = attribute.Key("langsmith.trace_id")
	attrRunProject    = attribute.Key("langsmith.project")
)

// Span operations. The operation type follows the messaging conventions:
// a producer sends, a consumer processes.
const (
	opPublish = "publish"
	opProcess = "process"
)

// message describes the message a producer or consumer span is about.
type message struct {
	operation string
	subject   string
	stream    string
	consumer  string
	sequence  uint64
	bodySize  int
	run       lsprop.TraceContext
}

// spanName is "<operation> <stream>" for consumers and "<operation> <subject>" for producers.
func (m message) spanName() string {
	if m.operation == opProcess {
		return m.operation + " " + m.stream
	}

	return m.operation + " " + m.subject
}

// attributes lists the messaging attributes of m, skipping empty values,
// plus the run's trace id and project when m carries a run.
func (m message) attributes() []attribute.KeyValue {
	opType := "send"
	if m.operation == opProcess {
		opType = opProcess
	}

	attrs := make([]attribute.KeyValue, 0, 10)
	attrs = append(attrs,
		semconv.MessagingSystemKey.String("nats"),
		semconv.MessagingOperationNameKey.String(m.operation),
		attribute.String("messaging.operation.type", opType),
	)
	if m.subject != "" {
		attrs = append(attrs, semconv.MessagingDestinationNameKey.String(m.subject))
	}
	if m.stream != "" {
		attrs = append(attrs, attrStream.String(m.stream))
	}
	if m.consumer != "" {
		attrs = append(attrs, attrConsumerGroup.String(m.consumer))
	}
	if m.sequence > 0 {
		attrs = append(attrs, semconv.MessagingMessageIDKey.String(strconv.FormatUint(m.sequence, 10)))
	}
	if m.bodySize > 0 {
		attrs = append(attrs, semconv.MessagingMessageBodySizeKey.Int(m.bodySize))
	}
	if m.run.TraceID != "" {
		attrs = append(attrs, attrRunTraceID.String(m.run.TraceID))
	}
	if project := m.run.Baggage[lsprop.BaggageProject]; project != "" {
		attrs = append(attrs, attrRunProject.String(project))
	}

	return attrs
}
