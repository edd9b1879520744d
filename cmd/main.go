package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ALEYI17/InfraSight_mon/internal/collector"
	"github.com/ALEYI17/InfraSight_mon/internal/config"
	"github.com/ALEYI17/InfraSight_mon/internal/monitor"
	"github.com/ALEYI17/InfraSight_mon/internal/sinks"
	"github.com/ALEYI17/InfraSight_mon/internal/tap"
	"github.com/ALEYI17/InfraSight_mon/internal/telemetry"
	"github.com/ALEYI17/InfraSight_mon/pkg/logutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logutil.InitLogger()

	logger := logutil.GetLogger()

	go func() {
		sigch := make(chan os.Signal, 1)
		signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigch
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := run(ctx); err != nil {
		logger.Error("Monitor run failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func run(ctx context.Context) (err error) {
	logger := logutil.GetLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.Capture == "" {
		return errors.New("MON_CAPTURE is not set, nothing to replay")
	}

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint: cfg.OTLPEndpoint,
		Insecure: cfg.OTLPInsecure,
		Interval: cfg.MetricsInterval,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		err = multierr.Append(err, tel.Shutdown(shutdownCtx))
	}()

	layout := tap.FixedLayout
	if cfg.Symbols != "" {
		symbols, err := tap.LoadSymbols(cfg.Symbols)
		if err != nil {
			return err
		}
		if layout, err = tap.ResolveLayout(symbols); err != nil {
			return err
		}
	}

	m, err := monitor.New(monitor.Options{
		Skip:    cfg.Skip,
		Enabled: cfg.Enabled,
		Sinks: sinks.Options{
			Path:         cfg.Output,
			KafkaBrokers: cfg.KafkaBrokers,
			KafkaTopic:   cfg.KafkaTopic,
			KafkaTimeout: cfg.KafkaTimeout,
		},
		Meter: tel.Meter(),
	})
	if err != nil {
		return err
	}

	if cfg.Settings != "" {
		settings, err := config.LoadSettings(cfg.Settings)
		switch {
		case err == nil:
			m.ApplySettings(settings)
		case errors.Is(err, os.ErrNotExist):
			logger.Info("No saved settings", zap.String("path", cfg.Settings))
		default:
			logger.Warn("Ignoring saved settings", zap.Error(err))
		}
	}

	if err := m.SelectSink(cfg.Sink, ""); err != nil {
		return err
	}

	loader, err := tap.OpenCapture(cfg.Capture)
	if err != nil {
		return multierr.Append(err, m.Close())
	}
	defer loader.Close()
	logger.Info("Replaying capture", zap.String("capture", cfg.Capture), zap.String("sink", cfg.Sink))

	stopSummaries := m.Summaries().LogEvery(ctx, cfg.SummaryInterval)

	runErr := tap.NewReplayer(m, layout).Run(ctx, loader.Run(ctx))
	switch {
	case errors.Is(runErr, context.Canceled):
		runErr = nil
	case runErr == nil:
		// The record channel is closed, the loader is done.
		runErr = loader.Err()
	}
	err = multierr.Append(runErr, m.Close())

	stopSummaries()
	collector.LogSummaries(m.Summaries().Flush())
	stats := m.Stats()
	logger.Info("Monitor finished",
		zap.Int64("events", stats.Events),
		zap.Int64("states", stats.States),
		zap.Int64("infos", stats.Infos),
		zap.Int64("skipped", stats.Skipped),
		zap.Int64("nodes", stats.Nodes))

	if cfg.Settings != "" {
		if serr := config.SaveSettings(cfg.Settings, m.Settings()); serr != nil {
			logger.Warn("Cannot save settings", zap.Error(serr))
		}
	}
	return err
}
