package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/arloliu/lsprop/cmd/lstrace/engine"
	"github.com/arloliu/lsprop/cmd/lstrace/scenario"
	"go.uber.org/zap"
)

// runSimulate generates cfg.Count run trees from the selected scenario.
// A positive cfg.Rate paces traces per second; otherwise they are sent back to back.
func runSimulate(ctx context.Context, cfg *Config, logger *zap.Logger, out io.Writer) error {
	s, err := loadScenario(cfg)
	if err != nil {
		return err
	}

	eng, err := engine.New(ctx, engine.Config{
		Telemetry:  cfg.telemetry(),
		EnableLogs: cfg.EnableLogs,
		JitterPct:  cfg.Jitter,
		Seed:       cfg.Seed,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer func() {
		if err := eng.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("engine shutdown", zap.Error(err))
		}
	}()

	logger.Info("simulating",
		zap.String("scenario", s.Name),
		zap.Int("count", cfg.Count),
		zap.String("exporter", cfg.Exporter))

	var tick <-chan time.Time
	if cfg.Rate > 0 {
		ticker := time.NewTicker(time.Duration(float64(time.Second) / cfg.Rate))
		defer ticker.Stop()
		tick = ticker.C
	}

	for i := range cfg.Count {
		if tick != nil && i > 0 {
			select {
			case <-ctx.Done():
			case <-tick:
			}
		}
		if ctx.Err() != nil {
			_, _ = fmt.Fprintf(out, "\nInterrupted after %d traces\n", i)
			return nil
		}

		report, err := eng.GenerateTrace(ctx, s)
		if err != nil {
			return fmt.Errorf("failed to generate trace %d: %w", i+1, err)
		}
		printReport(out, i+1, cfg.Count, report)
	}

	return nil
}

func printReport(out io.Writer, n, total int, r *engine.Report) {
	_, _ = fmt.Fprintf(out, "trace %d/%d %s: runs=%d hops=%d errors=%d\n", n, total, r.TraceID, r.Runs, len(r.Hops), r.Errors)
	for _, hop := range r.Hops {
		_, _ = fmt.Fprintf(out, "  %s -> %s [%s] %s\n", hop.From, hop.To, hop.Outcome, hop.Header)
	}
}

func loadScenario(cfg *Config) (*scenario.Scenario, error) {
	if cfg.ScenarioFile != "" {
		return scenario.LoadFromFile(cfg.ScenarioFile)
	}

	s, ok := scenario.Get(cfg.Scenario)
	if !ok {
		return nil, fmt.Errorf("%w: unknown scenario %s (use 'lstrace list' to see available scenarios)", errUsage, cfg.Scenario)
	}

	return s, nil
}

func listScenarios(out io.Writer) {
	_, _ = fmt.Fprintln(out, "Available scenarios:")
	for _, name := range scenario.List() {
		s, _ := scenario.Get(name)
		_, _ = fmt.Fprintf(out, "\n  %-13s %s\n", s.Name, s.Description)
		_, _ = fmt.Fprintf(out, "  %-13s %d runs across %v\n", "", s.RunCount(), s.Services())
	}
}
