package scenario

import (
	"maps"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// GenAI attribute keys; semconv v1.26.0 predates the stable gen_ai namespace.
const (
	keyGenAISystem       = "gen_ai.system"
	keyGenAIModel        = "gen_ai.request.model"
	keyGenAIInputTokens  = "gen_ai.usage.input_tokens"
	keyGenAIOutputTokens = "gen_ai.usage.output_tokens"
)

// Attrs flattens OpenTelemetry attributes into the string map templates carry.
func Attrs(kvs ...attribute.KeyValue) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.Emit()
	}

	return out
}

// Merge folds sets left to right into a new map.
func Merge(sets ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, set := range sets {
		maps.Copy(out, set)
	}

	return out
}

func inboundHTTP(method, route string, status int) map[string]string {
	return Attrs(
		semconv.HTTPRequestMethodKey.String(method),
		semconv.HTTPRouteKey.String(route),
		semconv.URLPathKey.String(route),
		semconv.HTTPResponseStatusCodeKey.Int(status),
	)
}

func outboundHTTP(method, url string, status int) map[string]string {
	return Attrs(
		semconv.HTTPRequestMethodKey.String(method),
		semconv.URLFullKey.String(url),
		semconv.HTTPResponseStatusCodeKey.Int(status),
	)
}

// grpcCall describes a gRPC method; service is the fully qualified service name.
func grpcCall(service, method string) map[string]string {
	return Attrs(
		semconv.RPCSystemGRPC,
		semconv.RPCService(service),
		semconv.RPCMethod(method),
	)
}

func sqlQuery(system, namespace, query string) map[string]string {
	return Attrs(
		semconv.DBSystemKey.String(system),
		semconv.DBNamespace(namespace),
		semconv.DBQueryText(query),
	)
}

// natsOp describes a publish or process step on a NATS subject.
func natsOp(subject, op string) map[string]string {
	return Attrs(
		semconv.MessagingSystemKey.String("nats"),
		semconv.MessagingDestinationName(subject),
		semconv.MessagingOperationName(op),
	)
}

// modelCall records which model served an llm or embedding run and its token usage.
func modelCall(system, model string, in, out int) map[string]string {
	return map[string]string{
		keyGenAISystem:       system,
		keyGenAIModel:        model,
		keyGenAIInputTokens:  strconv.Itoa(in),
		keyGenAIOutputTokens: strconv.Itoa(out),
	}
}
