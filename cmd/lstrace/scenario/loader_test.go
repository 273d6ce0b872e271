package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arloliu/lsprop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeScenario(t, `
name: support-bot
description: Ticket triage
project: support
tags: [triage, simulated]
root:
  name: TriageTicket
  service: support-api
  runType: chain
  kind: SERVER
  duration: "20ms"
  attributes:
    ticket.priority: "2"
  logs:
    - level: WARN
      message: "Ticket body truncated"
  children:
    - name: Classify
      service: llm-gateway
      runType: llm
      kind: SERVER
      duration: 10
      errorRate: 0.25
      errorStatus: "rate limited"
`)

	s, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "support-bot", s.Name)
	assert.Equal(t, "support", s.Project)
	assert.Equal(t, []string{"triage", "simulated"}, s.Tags)

	assert.Equal(t, "TriageTicket", s.Root.Name)
	assert.Equal(t, lsprop.RunTypeChain, s.Root.RunType)
	assert.Equal(t, SpanKindServer, s.Root.Kind)
	assert.Equal(t, "2", s.Root.Attributes["ticket.priority"])
	require.Len(t, s.Root.Logs, 1)
	assert.Equal(t, "WARN", s.Root.Logs[0].Level)

	require.Len(t, s.Root.Children, 1)
	child := s.Root.Children[0]
	assert.Equal(t, lsprop.RunTypeLLM, child.RunType)
	assert.Equal(t, "llm-gateway", child.Service)
	assert.Equal(t, 10*time.Millisecond, child.Duration.AsDuration())
	assert.InDelta(t, 0.25, child.ErrorRate, 1e-9)
	assert.Equal(t, "rate limited", child.ErrorStatus)

	assert.Equal(t, []string{"llm-gateway", "support-api"}, s.Services())
}

func TestLoadFromFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"invalid yaml", "name: broken\ndescription: [invalid yaml\n", "read scenario"},
		{"missing name", "description: x\nroot:\n  name: r\n  service: s\n", "scenario name is required"},
		{"missing root", "name: empty\n", "scenario root run needs a name"},
		{"unknown run type", "name: x\nroot:\n  name: r\n  children:\n    - name: c\n      runType: agent\n", `run "c" has unknown run type "agent"`},
		{"error rate above one", "name: x\nroot:\n  name: r\n  errorRate: 1.5\n", `run "r": errorRate must be between 0 and 1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := LoadFromFile(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Nil(t, s)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadFromFile("/non/existent/path.yaml")
	assert.ErrorContains(t, err, "read scenario /non/existent/path.yaml")
}

func TestBuiltinScenariosValidate(t *testing.T) {
	for _, name := range List() {
		s, _ := Get(name)
		assert.NoError(t, s.Validate(), name)
	}
}
