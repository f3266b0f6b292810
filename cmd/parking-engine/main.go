package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/utils/clock"

	"parking-engine/internal/config"
	"parking-engine/internal/logging"
	"parking-engine/internal/parking"
	"parking-engine/internal/server"
	"parking-engine/internal/telemetry"
)

var (
	mode = flag.String("mode", "cli", "Mode to run: cli, server, or both")
	port = flag.String("port", "", "Port for HTTP server (overrides PORT)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Init(true)
		logging.Logger().Fatal().Err(err).Msg("failed to load configuration")
	}
	if *port != "" {
		cfg.Port = *port
	}

	if *mode == "server" {
		logging.Init(cfg.IsDevelopment())
	} else {
		// Keep stdout for the shell.
		logging.InitWithWriter(cfg.IsDevelopment(), os.Stderr)
	}
	log := logging.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryProvider, err := telemetry.Init(ctx, cfg.OTelServiceName, cfg.OTelEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}

	rules, err := cfg.Rules()
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.RulesFile).Msg("failed to load parking rules")
	}

	lot, err := parking.NewParkingLot(rules, parking.WithLayout(cfg.Layout))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create parking lot")
	}

	instrumented, err := parking.NewInstrumentedParkingLot(lot, telemetryProvider)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to instrument parking lot")
	}

	log.Info().
		Str("mode", *mode).
		Int("capacity", lot.Capacity()).
		Int("levels", cfg.Layout.Levels).
		Msg("parking lot ready")

	go instrumented.WatchExpired(ctx, clock.RealClock{}, cfg.ExpiryScanInterval)

	switch *mode {
	case "cli":
		runCLI(ctx, instrumented)
	case "server":
		runServer(ctx, cfg, instrumented)
	case "both":
		runBoth(ctx, cfg, instrumented)
	default:
		log.Error().Str("mode", *mode).Msg("invalid mode, must be cli, server, or both")
		shutdownTelemetry(telemetryProvider)
		os.Exit(2)
	}

	shutdownTelemetry(telemetryProvider)
}

func runCLI(ctx context.Context, lot *parking.InstrumentedParkingLot) {
	shell := parking.NewShell(lot, os.Stdin, os.Stdout)
	shell.Run(ctx)
}

func runServer(ctx context.Context, cfg *config.Config, lot *parking.InstrumentedParkingLot) {
	srv, err := server.NewServer(cfg.Port, cfg.OTelServiceName, lot)
	if err != nil {
		logging.Error(ctx).Err(err).Msg("failed to create server")
		return
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start()
	}()

	select {
	case err := <-serverDone:
		if err != nil {
			logging.Error(ctx).Err(err).Msg("server error")
		}
	case <-ctx.Done():
		logging.Logger().Info().Msg("received shutdown signal")
	}

	shutdownServer(srv)
}

func runBoth(ctx context.Context, cfg *config.Config, lot *parking.InstrumentedParkingLot) {
	srv, err := server.NewServer(cfg.Port, cfg.OTelServiceName, lot)
	if err != nil {
		logging.Error(ctx).Err(err).Msg("failed to create server")
		return
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start()
	}()

	cliDone := make(chan struct{})
	go func() {
		runCLI(ctx, lot)
		close(cliDone)
	}()

	select {
	case err := <-serverDone:
		if err != nil {
			logging.Error(ctx).Err(err).Msg("server error")
		}
	case <-cliDone:
		logging.Logger().Info().Msg("CLI exited")
	case <-ctx.Done():
		logging.Logger().Info().Msg("received shutdown signal")
	}

	shutdownServer(srv)
}

func shutdownServer(srv *server.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Logger().Error().Err(err).Msg("server shutdown error")
	}
}

func shutdownTelemetry(provider *telemetry.Provider) {
	logging.Logger().Info().Msg("shutting down telemetry")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := provider.Shutdown(shutdownCtx); err != nil {
		logging.Logger().Error().Err(err).Msg("error shutting down telemetry")
	}
}
