// Package scenario describes run trees that the lstrace simulator walks.
//
// A scenario is a tree of runs. Each run belongs to a service; whenever a child run
// lives in a different service than its parent, the simulator crosses a service
// boundary by encoding the run-trace header and decoding it on the other side.
package scenario

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/arloliu/lsprop"
)

// Scenario is a named run tree plus the baggage attached at its root.
type Scenario struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Project     string      `yaml:"project,omitempty"`
	Tags        []string    `yaml:"tags,omitempty"`
	Root        RunTemplate `yaml:"root"`
}

// RunTemplate defines a run and its children.
type RunTemplate struct {
	Name       string            `yaml:"name"`
	Service    string            `yaml:"service"`
	RunType    lsprop.RunType    `yaml:"runType"`
	Kind       SpanKind          `yaml:"kind"`
	Duration   Duration          `yaml:"duration"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
	Children   []RunTemplate     `yaml:"children,omitempty"`
	Logs       []LogTemplate     `yaml:"logs,omitempty"`

	// Error simulation
	ErrorRate   float64 `yaml:"errorRate,omitempty"`   // 0.0-1.0
	ErrorStatus string  `yaml:"errorStatus,omitempty"` // Error message when triggered
}

// Services returns the distinct services in the tree, sorted.
func (s *Scenario) Services() []string {
	seen := map[string]bool{}
	s.Root.walk(func(r RunTemplate) {
		if r.Service != "" {
			seen[r.Service] = true
		}
	})

	return slices.Sorted(maps.Keys(seen))
}

// RunCount returns the number of runs in the tree.
func (s *Scenario) RunCount() int {
	n := 0
	s.Root.walk(func(RunTemplate) { n++ })

	return n
}

func (r RunTemplate) walk(fn func(RunTemplate)) {
	fn(r)
	for _, child := range r.Children {
		child.walk(fn)
	}
}

// LogTemplate defines a log entry emitted while a run is active.
type LogTemplate struct {
	Level      string            `yaml:"level"` // INFO, WARN, ERROR, DEBUG
	Message    string            `yaml:"message"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
}

// SpanKind represents the type of span.
type SpanKind string

const (
	SpanKindServer   SpanKind = "SERVER"
	SpanKindClient   SpanKind = "CLIENT"
	SpanKindProducer SpanKind = "PRODUCER"
	SpanKindConsumer SpanKind = "CONSUMER"
	SpanKindInternal SpanKind = "INTERNAL"
)

// Duration is a run's simulated length. In YAML it is either a Go duration
// string such as "15ms" or a bare integer number of milliseconds.
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}

	var ms float64
	switch v := raw.(type) {
	case string:
		dur, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("duration %q: %w", v, err)
		}
		*d = Duration(dur)

		return nil
	case int:
		ms = float64(v)
	case int64:
		ms = float64(v)
	case uint64:
		ms = float64(v)
	case float64:
		ms = v
	default:
		return fmt.Errorf("duration: unsupported value %v", raw)
	}
	if ms < 0 {
		return fmt.Errorf("duration: negative value %v", raw)
	}
	*d = Duration(ms * float64(time.Millisecond))

	return nil
}

// AsDuration converts Duration to time.Duration.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

// builtin holds the scenarios shipped with lstrace, keyed by name.
var builtin = map[string]*Scenario{}

func init() {
	for _, s := range []*Scenario{RAGScenario(), AgentScenario(), HealthCheckScenario()} {
		Register(s)
	}
}

// Register makes s available to Get and List, replacing any scenario of the same name.
func Register(s *Scenario) {
	builtin[s.Name] = s
}

// Get returns the registered scenario called name.
func Get(name string) (*Scenario, bool) {
	s, ok := builtin[name]

	return s, ok
}

// List returns the registered scenario names in order.
func List() []string {
	return slices.Sorted(maps.Keys(builtin))
}

// HealthCheckScenario returns a single-run scenario for checking the export path.
func HealthCheckScenario() *Scenario {
	return &Scenario{
		Name:        "health-check",
		Description: "Single chain run, useful for verifying the exporter connection",
		Root: RunTemplate{
			Name:       "Ping",
			Service:    "lstrace",
			RunType:    lsprop.RunTypeChain,
			Kind:       SpanKindInternal,
			Duration:   Duration(5 * time.Millisecond),
			Attributes: inboundHTTP("GET", "/health", 200),
		},
	}
}
