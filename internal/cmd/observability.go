package cmd

import (
	"context"
	"io"
	"time"

	"github.com/felixgeelhaar/switchboard/internal/config"
	"github.com/felixgeelhaar/switchboard/internal/log"
	"github.com/felixgeelhaar/switchboard/internal/telemetry"
	"github.com/felixgeelhaar/switchboard/internal/version"
)

// setupObservability configures logging and optional tracing. It returns
// the command logger and a cleanup function that flushes spans.
func setupObservability(ctx context.Context, cfg *config.Config, stderr io.Writer) (*log.Logger, func()) {
	logger := setupLogging(cfg, stderr)
	telemetryCleanup := setupTelemetry(ctx, cfg, logger)
	return logger, telemetryCleanup
}

func setupLogging(cfg *config.Config, stderr io.Writer) *log.Logger {
	lc := cfg.LogConfig()
	lc.Output = log.NewOutput(stderr)
	logger := log.New(lc)
	log.SetDefaultLogger(logger)
	return logger
}

func setupTelemetry(ctx context.Context, cfg *config.Config, logger *log.Logger) func() {
	if !cfg.Telemetry.Enabled {
		return func() {}
	}

	telemCfg := cfg.Telemetry
	telemCfg.ServiceVersion = version.GetInfo().Version
	telemCfg.SampleRate = clampSampleRate(telemCfg.SampleRate)

	shutdown, err := telemetry.InitProvider(ctx, telemCfg)
	if err != nil {
		logger.Warn("Failed to initialize telemetry", "error", err)
		return func() {}
	}

	logger.Info("Telemetry enabled",
		"endpoint", telemCfg.Endpoint,
		"sample_rate", telemCfg.SampleRate,
	)

	return func() {
		if shutdown == nil {
			return
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to flush telemetry", "error", err)
		}
	}
}

func clampSampleRate(value float64) float64 {
	switch {
	case value <= 0:
		return 0.0
	case value >= 1:
		return 1.0
	default:
		return value
	}
}
