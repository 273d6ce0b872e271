package scenario

import (
	"time"

	"github.com/arloliu/lsprop"
)

// RAGScenario returns a retrieval-augmented answer flow.
// Simulates: rag-api → vector-store (retrieve) → rag-api (prompt) → llm-gateway (completion)
func RAGScenario() *Scenario {
	return &Scenario{
		Name:        "rag",
		Description: "Question answering over a vector store with a hosted chat model",
		Project:     "rag-demo",
		Tags:        []string{"simulated", "rag"},
		Root: RunTemplate{
			Name:       "AnswerQuestion",
			Service:    "rag-api",
			RunType:    lsprop.RunTypeChain,
			Kind:       SpanKindServer,
			Duration:   Duration(40 * time.Millisecond),
			Attributes: inboundHTTP("POST", "/v1/answer", 200),
			Logs: []LogTemplate{
				{Level: "INFO", Message: "Answering question", Attributes: map[string]string{"question.length": "42"}},
			},
			Children: []RunTemplate{
				{
					Name:       "SearchDocuments",
					Service:    "vector-store",
					RunType:    lsprop.RunTypeRetriever,
					Kind:       SpanKindServer,
					Duration:   Duration(12 * time.Millisecond),
					Attributes: Merge(grpcCall("retrieval.v1.VectorStore", "Search"), map[string]string{"retriever.top_k": "4"}),
					Children: []RunTemplate{
						{
							Name:       "EmbedQuery",
							Service:    "vector-store",
							RunType:    lsprop.RunTypeEmbedding,
							Kind:       SpanKindInternal,
							Duration:   Duration(4 * time.Millisecond),
							Attributes: modelCall("openai", "text-embedding-3-small", 12, 0),
						},
						{
							Name:       "SELECT chunks",
							Service:    "vector-store",
							Kind:       SpanKindClient,
							Duration:   Duration(3 * time.Millisecond),
							Attributes: sqlQuery("postgresql", "documents", "SELECT id, body FROM chunks ORDER BY embedding <-> $1 LIMIT 4"),
						},
					},
				},
				{
					Name:     "FormatPrompt",
					Service:  "rag-api",
					RunType:  lsprop.RunTypePrompt,
					Kind:     SpanKindInternal,
					Duration: Duration(1 * time.Millisecond),
				},
				{
					Name:        "ChatCompletion",
					Service:     "llm-gateway",
					RunType:     lsprop.RunTypeLLM,
					Kind:        SpanKindServer,
					Duration:    Duration(25 * time.Millisecond),
					Attributes:  Merge(outboundHTTP("POST", "https://llm-gateway/v1/chat/completions", 200), modelCall("openai", "gpt-4o-mini", 812, 164)),
					ErrorRate:   0.05,
					ErrorStatus: "upstream model timeout",
					Logs: []LogTemplate{
						{Level: "DEBUG", Message: "Forwarding completion request"},
					},
				},
				{
					Name:     "ParseAnswer",
					Service:  "rag-api",
					RunType:  lsprop.RunTypeParser,
					Kind:     SpanKindInternal,
					Duration: Duration(1 * time.Millisecond),
				},
			},
		},
	}
}
