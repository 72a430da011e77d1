package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetwatch/fleetwatch/internal/alertmgr"
	"github.com/fleetwatch/fleetwatch/internal/api"
	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/engine"
	"github.com/fleetwatch/fleetwatch/internal/evaluator"
	"github.com/fleetwatch/fleetwatch/internal/publisher"
	"github.com/fleetwatch/fleetwatch/internal/store"
	"github.com/fleetwatch/fleetwatch/internal/stream"
	"github.com/fleetwatch/fleetwatch/internal/version"
)

func main() {
	configDir := flag.String("config", "/config", "Path to configuration directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	// Capture recent log lines for the admin API
	logBuffer := api.NewLogBuffer(1000)

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	multiWriter := io.MultiWriter(os.Stdout, logBuffer)
	logger := zerolog.New(multiWriter).With().
		Timestamp().
		Str("version", version.GetVersion()).
		Logger()

	logger.Info().Str("build", version.String()).Msg("Starting Fleetwatch")

	cfg, err := config.LoadConfigDir(*configDir)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("config_dir", *configDir).
			Msg("Failed to load configuration")
	}

	logger.Info().
		Int("device_count", len(cfg.Thresholds.Devices)).
		Dur("dedup_window", cfg.Alerting.DedupWindow).
		Dur("escalation_timeout", cfg.Alerting.EscalationTimeout).
		Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to the durable store; alert state lives there
	st, err := store.New(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to store")
	}
	defer st.Close()

	pub := publisher.New(cfg.Broker, logger)
	defer pub.Close()

	eval := evaluator.New(cfg.Thresholds.Devices, cfg.Evaluator, logger)
	manager := alertmgr.New(st, cfg.Alerting, logger)

	eng := engine.New(eval, manager, pub, cfg.Alerting, logger)
	eng.Start(ctx)

	consumer := stream.New(cfg.Broker, eng, logger)
	go func() {
		if err := consumer.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("Stream consumer stopped")
		}
	}()

	apiServer := api.NewServer(eng, st, logBuffer, logger, cfg.Admin.Port)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error().Err(err).Msg("Admin API error")
		}
	}()

	logger.Info().
		Str("port", cfg.Admin.Port).
		Str("readings_topic", cfg.Broker.ReadingsTopic).
		Str("events_topic", cfg.Broker.EventsTopic).
		Msg("Fleetwatch running")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info().Msg("Shutting down...")

	cancel()
	if err := consumer.Close(); err != nil {
		logger.Error().Err(err).Msg("Error closing stream consumer")
	}
	eng.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping admin API")
	}

	logger.Info().Msg("Fleetwatch stopped")
}
