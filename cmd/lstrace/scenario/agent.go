package scenario

import (
	"time"

	"github.com/arloliu/lsprop"
)

// AgentScenario returns a tool-using agent loop that hands feedback to a worker.
// Simulates: agent-runtime → llm-gateway → tool-server → llm-gateway, then a queue hop to feedback-worker
func AgentScenario() *Scenario {
	return &Scenario{
		Name:        "agent",
		Description: "Tool-calling agent with an HTTP tool server and an async feedback worker",
		Project:     "agent-demo",
		Tags:        []string{"simulated", "agent"},
		Root: RunTemplate{
			Name:       "RunAgent",
			Service:    "agent-runtime",
			RunType:    lsprop.RunTypeChain,
			Kind:       SpanKindServer,
			Duration:   Duration(30 * time.Millisecond),
			Attributes: inboundHTTP("POST", "/v1/agent/runs", 201),
			Children: []RunTemplate{
				{
					Name:       "PlanStep",
					Service:    "llm-gateway",
					RunType:    lsprop.RunTypeLLM,
					Kind:       SpanKindServer,
					Duration:   Duration(18 * time.Millisecond),
					Attributes: modelCall("anthropic", "claude-haiku", 540, 96),
				},
				{
					Name:       "web_search",
					Service:    "tool-server",
					RunType:    lsprop.RunTypeTool,
					Kind:       SpanKindServer,
					Duration:   Duration(15 * time.Millisecond),
					Attributes: outboundHTTP("GET", "https://search.example.com/q", 200),
					Logs: []LogTemplate{
						{Level: "INFO", Message: "Tool invoked", Attributes: map[string]string{"tool.name": "web_search"}},
					},
					ErrorRate:   0.1,
					ErrorStatus: "search backend unavailable",
				},
				{
					Name:     "calculator",
					Service:  "agent-runtime",
					RunType:  lsprop.RunTypeTool,
					Kind:     SpanKindInternal,
					Duration: Duration(1 * time.Millisecond),
				},
				{
					Name:       "FinalAnswer",
					Service:    "llm-gateway",
					RunType:    lsprop.RunTypeLLM,
					Kind:       SpanKindServer,
					Duration:   Duration(20 * time.Millisecond),
					Attributes: modelCall("anthropic", "claude-haiku", 910, 210),
				},
				{
					Name:       lsprop.NameMessaging("publish", "agent.feedback"),
					Service:    "agent-runtime",
					Kind:       SpanKindProducer,
					Duration:   Duration(1 * time.Millisecond),
					Attributes: natsOp("agent.feedback", "publish"),
					Children: []RunTemplate{
						{
							Name:       "RecordFeedback",
							Service:    "feedback-worker",
							RunType:    lsprop.RunTypeChain,
							Kind:       SpanKindConsumer,
							Duration:   Duration(6 * time.Millisecond),
							Attributes: natsOp("agent.feedback", "process"),
							Logs: []LogTemplate{
								{Level: "WARN", Message: "Feedback score missing, defaulting to neutral"},
							},
						},
					},
				},
			},
		},
	}
}
