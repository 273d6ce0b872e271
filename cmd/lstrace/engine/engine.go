// Package engine walks scenario run trees and emits them as OpenTelemetry spans.
//
// Runs within one service share a context. When a child run belongs to another
// service the engine serializes the run-trace header into a fresh carrier and resolves
// it with lsprop.Accept on a clean context, the same way a real downstream service
// would, so the exported trace only stays connected if propagation works.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/arloliu/lsprop"
	"github.com/arloliu/lsprop/cmd/lstrace/scenario"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RunKindKey is the span attribute LangSmith reads the run type from.
const RunKindKey = attribute.Key("langsmith.span.kind")

const instrumentationName = "github.com/arloliu/lsprop/cmd/lstrace"

// Engine generates run trees from scenarios. It is not safe for concurrent use.
type Engine struct {
	rng            *rand.Rand
	tracerProvider trace.TracerProvider
	shutdown       []func(context.Context) error
	logger         otellog.Logger
	codec          lsprop.Codec
	log            *zap.Logger
	jitterPct      int
	sleep          bool
}

// Config holds engine configuration.
type Config struct {
	// Telemetry configures the tracer and logger providers.
	Telemetry *lsprop.Config
	// EnableLogs emits the scenario log templates through the OTel log bridge.
	EnableLogs bool
	// JitterPct varies run durations by up to this percentage.
	JitterPct int
	// Seed makes jitter and simulated failures repeatable. Zero seeds randomly.
	Seed uint64
	// Logger receives hop diagnostics. Defaults to zap.NewNop().
	Logger *zap.Logger
}

// Hop records one crossing of a service boundary.
type Hop struct {
	From    string
	To      string
	Header  string
	Baggage string
	Outcome lsprop.Outcome
	Context lsprop.TraceContext
}

// Report summarizes one generated run tree.
type Report struct {
	TraceID string
	Runs    int
	Errors  int
	Hops    []Hop
}

// New creates an Engine whose providers are built from cfg.Telemetry.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Telemetry == nil {
		return nil, errors.New("telemetry config is required")
	}

	tp, err := lsprop.NewTracerProvider(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}

	e := NewWithProvider(tp, cfg.Telemetry.Codec(), cfg)
	e.shutdown = append(e.shutdown, tp.Shutdown)

	if cfg.EnableLogs {
		enabled := true
		logs := lsprop.LogsConfig{Exporter: cfg.Telemetry.GetTracesExporter()}
		if cfg.Telemetry.Logs != nil {
			logs = *cfg.Telemetry.Logs
		}
		logs.Enabled = &enabled
		logsCfg := *cfg.Telemetry
		logsCfg.Logs = &logs

		lp, err := lsprop.NewLoggerProvider(ctx, &logsCfg)
		if err != nil {
			// the log bridge is optional
			e.log.Warn("logger provider unavailable, continuing without logs", zap.Error(err))
		} else {
			e.logger = lp.Logger(instrumentationName)
			e.shutdown = append(e.shutdown, lp.Shutdown)
		}
	}

	return e, nil
}

// NewWithProvider creates an Engine on an existing TracerProvider.
// cfg.Telemetry is ignored; logs are emitted through the global LoggerProvider
// when cfg.EnableLogs is set.
func NewWithProvider(tp trace.TracerProvider, codec lsprop.Codec, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // simulation only
	}

	e := &Engine{
		rng:            rand.New(rand.NewPCG(seed, seed>>1|1)), //nolint:gosec // simulation only
		tracerProvider: tp,
		codec:          codec,
		log:            logger,
		jitterPct:      cfg.JitterPct,
		sleep:          true,
	}
	if cfg.EnableLogs {
		e.logger = global.GetLoggerProvider().Logger(instrumentationName)
	}

	return e
}

// SetSleep controls whether runs wait out their simulated duration.
func (e *Engine) SetSleep(sleep bool) {
	e.sleep = sleep
}

// Shutdown flushes and closes providers created by New.
func (e *Engine) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range e.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// GenerateTrace generates a complete run tree from a scenario.
func (e *Engine) GenerateTrace(ctx context.Context, s *scenario.Scenario) (*Report, error) {
	var err error
	if s.Project != "" {
		if ctx, err = lsprop.SetProject(ctx, s.Project); err != nil {
			return nil, err
		}
	}
	if len(s.Tags) > 0 {
		if ctx, err = lsprop.SetTags(ctx, s.Tags...); err != nil {
			return nil, err
		}
	}

	report := &Report{}
	if err := e.generateRun(ctx, s.Root, s.Root.Service, report); err != nil {
		return report, err
	}

	return report, nil
}

// generateRun starts a span for tmpl and recurses into its children.
func (e *Engine) generateRun(ctx context.Context, tmpl scenario.RunTemplate, service string, report *Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if tmpl.Service != "" && tmpl.Service != service {
		remote, release, err := e.crossBoundary(ctx, service, tmpl.Service, report)
		if err != nil {
			return err
		}
		defer release()
		ctx, service = remote, tmpl.Service
	}

	attrs := typedAttributes(tmpl.Attributes)
	name := tmpl.Name
	if tmpl.RunType != "" {
		attrs = append(attrs, RunKindKey.String(string(tmpl.RunType)))
		name = lsprop.NameRun(tmpl.RunType, tmpl.Name)
	}

	ctx, span := e.tracerProvider.Tracer(service).Start(ctx, name,
		trace.WithSpanKind(spanKind(tmpl.Kind)),
		trace.WithAttributes(attrs...),
	)
	ctx = lsprop.Follow(ctx)
	defer span.End()

	if report.TraceID == "" {
		report.TraceID = lsprop.TraceID(ctx)
	}
	report.Runs++

	if e.logger != nil {
		e.generateLogs(ctx, tmpl.Logs)
	}

	if tmpl.ErrorRate > 0 && e.rng.Float64() < tmpl.ErrorRate {
		lsprop.RecordError(ctx, errors.New(tmpl.ErrorStatus))
		report.Errors++
	}

	for _, child := range tmpl.Children {
		if err := e.generateRun(ctx, child, service, report); err != nil {
			return err
		}
	}

	if e.sleep {
		time.Sleep(e.jitter(tmpl.Duration.AsDuration()))
	}

	return nil
}

// crossBoundary hands the run-trace state from one service to another through a carrier.
// The returned context carries no values from ctx but is canceled with it; call
// release once the downstream subtree is done.
func (e *Engine) crossBoundary(ctx context.Context, from, to string, report *Report) (context.Context, func(), error) {
	carrier := propagation.MapCarrier{}
	if tc, ok := lsprop.Outbound(ctx); ok {
		if err := e.codec.Inject(tc, carrier); err != nil {
			return ctx, nil, fmt.Errorf("inject %s -> %s: %w", from, to, err)
		}
	}

	remote, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	release := func() {
		stop()
		cancel()
	}

	remote, tc, outcome, err := lsprop.Accept(remote, e.codec, carrier)
	if err != nil {
		e.log.Warn("downstream rejected trace header",
			zap.String("from", from), zap.String("to", to), zap.Error(err))
	}

	hop := Hop{
		From:    from,
		To:      to,
		Header:  carrier.Get(e.codec.TraceHeader()),
		Baggage: carrier.Get(e.codec.BaggageHeader()),
		Outcome: outcome,
		Context: tc,
	}
	report.Hops = append(report.Hops, hop)
	e.log.Debug("crossed service boundary",
		zap.String("from", from), zap.String("to", to),
		zap.String("header", hop.Header), zap.String("outcome", string(outcome)))

	return remote, release, nil
}

// generateLogs emits log records for a run.
func (e *Engine) generateLogs(ctx context.Context, logs []scenario.LogTemplate) {
	for _, l := range logs {
		var rec otellog.Record
		rec.SetTimestamp(time.Now())
		rec.SetBody(otellog.StringValue(l.Message))
		rec.SetSeverity(severity(l.Level))
		rec.SetSeverityText(l.Level)

		attrs := make([]otellog.KeyValue, 0, len(l.Attributes)+1)
		for k, v := range l.Attributes {
			attrs = append(attrs, otellog.String(k, v))
		}
		if traceID := lsprop.TraceID(ctx); traceID != "" {
			attrs = append(attrs, otellog.String("langsmith.trace_id", traceID))
		}
		rec.AddAttributes(attrs...)

		e.logger.Emit(ctx, rec)
	}
}

// jitter spreads d uniformly over ±jitterPct percent.
func (e *Engine) jitter(d time.Duration) time.Duration {
	if e.jitterPct <= 0 || d <= 0 {
		return d
	}
	spread := float64(d) * float64(e.jitterPct) / 100

	return d + time.Duration((e.rng.Float64()*2-1)*spread)
}
