// dicebot - watches two game windows and drives the betting loop
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GriffinCanCode/dicepilot/internal/audio"
	"github.com/GriffinCanCode/dicepilot/internal/betting"
	"github.com/GriffinCanCode/dicepilot/internal/clock"
	"github.com/GriffinCanCode/dicepilot/internal/config"
	"github.com/GriffinCanCode/dicepilot/internal/game"
	"github.com/GriffinCanCode/dicepilot/internal/grpcclient"
	"github.com/GriffinCanCode/dicepilot/internal/input"
	"github.com/GriffinCanCode/dicepilot/internal/journal"
	"github.com/GriffinCanCode/dicepilot/internal/metrics"
	"github.com/GriffinCanCode/dicepilot/internal/perception"
	"github.com/GriffinCanCode/dicepilot/internal/region"
	"github.com/GriffinCanCode/dicepilot/internal/resilience"
	"github.com/GriffinCanCode/dicepilot/internal/screen"
	"github.com/GriffinCanCode/dicepilot/internal/server"
)

func main() {
	cfg := config.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := run(cfg); err != nil {
		slog.Error("dicebot failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	gameCfg, err := cfg.Game()
	if err != nil {
		return err
	}
	strategy, err := betting.NewStrategy(gameCfg.Strategy)
	if err != nil {
		return err
	}
	chips := strategy.Ladder()

	regions, err := region.Load(cfg.RegionsFile)
	if err != nil {
		return err
	}
	if err := region.Validate(regions, chips); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	recorder := metrics.New(reg)

	// Connect to the remote recognizer
	breaker := resilience.New(resilience.RecognizerConfig()).WithHook(recorder.BreakerHook())
	recognizer, err := grpcclient.New(cfg.RecognizerAddr, breaker)
	if err != nil {
		return err
	}
	defer func() { _ = recognizer.Close() }()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), grpcclient.StartupTimeout)
	err = recognizer.Ping(pingCtx)
	pingCancel()
	if err != nil {
		return err
	}

	mouse, err := input.NewMouse()
	if err != nil {
		return err
	}
	clk := clock.Real{}

	observers := []game.Observer{recorder}

	var rounds server.RoundStore
	if cfg.JournalPath != "" {
		db, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		observers = append(observers, db)
		rounds = db
	}

	if cfg.AlarmEnabled {
		speaker, err := audio.NewSpeaker(cfg.AlarmDevice, audio.DefaultSampleRate)
		if err != nil {
			slog.Warn("alarm disabled", "error", err)
		} else {
			defer func() { _ = speaker.Close() }()
			alarm := audio.NewAlarm(speaker, audio.DefaultSampleRate)
			defer alarm.Wait()
			observers = append(observers, alarm)
			slog.Info("alarm enabled", "device", speaker.Device())
		}
	}

	gameCfg.Chips = chips
	manager := game.NewManager(gameCfg, game.Deps{
		Sampler: screen.NewSampler(screen.NewDesktop(cfg.ScreenBounds)),
		Locator: regions,
		Placer:  input.NewPlacer(mouse, regions, chips, clk, cfg.TapDelay),
		Local:   perception.NewPipCounter(perception.DefaultPipConfig()),
		Remote:  recognizer,
		Clock:   clk,
	}, observers...)

	opts := []server.Option{
		server.WithMetrics(recorder.Handler()),
		server.WithAllowedOrigins(cfg.AllowedOrigins...),
	}
	if rounds != nil {
		opts = append(opts, server.WithRounds(rounds))
	}
	srv := server.New(manager, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("dicebot starting", "http", cfg.HTTPAddr, "recognizer", cfg.RecognizerAddr, "chips", chips)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	manager.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
