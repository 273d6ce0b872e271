package lsprop

import "slices"

// SpanNamer turns the operation passed to Start into the span name.
type SpanNamer interface {
	Name(operation string) string
}

// NamerFunc adapts a plain function to SpanNamer.
type NamerFunc func(operation string) string

// Name calls f.
func (f NamerFunc) Name(operation string) string { return f(operation) }

// DefaultNamer keeps operations as span names.
type DefaultNamer struct{}

// Name returns operation unchanged.
func (DefaultNamer) Name(operation string) string { return operation }

// RunType classifies a run the way LangSmith groups them in its UI.
type RunType string

const (
	RunTypeLLM       RunType = "llm"
	RunTypeChain     RunType = "chain"
	RunTypeTool      RunType = "tool"
	RunTypeRetriever RunType = "retriever"
	RunTypeEmbedding RunType = "embedding"
	RunTypePrompt    RunType = "prompt"
	RunTypeParser    RunType = "parser"
)

var runTypes = []RunType{
	RunTypeLLM, RunTypeChain, RunTypeTool, RunTypeRetriever,
	RunTypeEmbedding, RunTypePrompt, RunTypeParser,
}

// Valid reports whether t is one of the run types LangSmith recognizes.
// Matching is case-sensitive.
func (t RunType) Valid() bool {
	return slices.Contains(runTypes, t)
}

// PrefixNamer names every span after a fixed run type, for a tracer that
// only records one kind of run such as a tool executor.
type PrefixNamer struct {
	RunType RunType
}

// Name returns NameRun(n.RunType, operation), or operation when RunType is empty.
func (n PrefixNamer) Name(operation string) string {
	if n.RunType == "" {
		return operation
	}

	return NameRun(n.RunType, operation)
}

// NameRun formats a run span name, e.g. "chain Summarize".
func NameRun(runType RunType, name string) string {
	return string(runType) + " " + name
}

// NameHTTP formats an HTTP span name from the method and the route template,
// e.g. "POST /runs/{id}/feedback".
func NameHTTP(method, route string) string {
	return method + " " + route
}

// NameRPC formats "service/method".
func NameRPC(service, method string) string {
	return service + "/" + method
}

// NameMessaging formats "<operation> <destination>", e.g. "publish agent.feedback".
func NameMessaging(operation, destination string) string {
	return operation + " " + destination
}
