package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "weathersound/internal/api/http"
	"weathersound/internal/config"
	"weathersound/internal/device"
	"weathersound/internal/graph"
	"weathersound/internal/observability"
	"weathersound/internal/poller"
	"weathersound/internal/provider/openweather"
	"weathersound/internal/recipe"
	"weathersound/internal/schedule"
	"weathersound/internal/soundscape"
	"weathersound/internal/synth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	lib := recipe.Default()
	if cfg.RecipesFile != "" {
		if lib, err = recipe.LoadFile(cfg.RecipesFile); err != nil {
			logger.Error("failed to load recipes", "path", cfg.RecipesFile, "error", err)
			os.Exit(1)
		}
		logger.Info("recipes loaded", "path", cfg.RecipesFile)
	}

	clock := clockwork.NewRealClock()
	loop := schedule.NewLoop(clock, logger)

	// The device is opened lazily on the first sound or user gesture.
	gm := graph.New(graph.Options{
		Open: func() device.Device {
			return device.Open(device.Options{
				Backend:        cfg.AudioBackend,
				StartSuspended: cfg.AudioStartSuspended,
				Clock:          clock,
				Logger:         logger,
			})
		},
		Loop:    loop,
		Rand:    synth.NewRand(cfg.RandomSeed),
		Logger:  logger,
		Metrics: metrics,
		FadeOut: cfg.FadeOut,
	})

	sm := soundscape.New(soundscape.Options{
		Loop:        loop,
		Graph:       gm,
		Library:     lib,
		Rand:        synth.NewRand(cfg.RandomSeed + 1),
		Logger:      logger,
		Metrics:     metrics,
		SettleDelay: cfg.SettleDelay,
		Enabled:     cfg.SoundEnabled,
		Volume:      cfg.SoundVolume,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(ctx)
	}()

	var poll *poller.Poller
	if cfg.PollingEnabled() {
		client := openweather.NewClient(nil, cfg.OpenWeatherAPIKey)
		poll = poller.New(client, sm, cfg.WeatherCity, cfg.PollInterval, logger, metrics)
		if err := poll.Start(); err != nil {
			logger.Error("failed to start weather poller", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("weather polling disabled; waiting for POST /api/v1/weather")
	}

	app := httpapi.NewApp(sm, promhttp.Handler(), logger)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if poll != nil {
		poll.Stop()
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	// The loop has stopped with ctx; run the close here and let the fade play out.
	<-loopDone
	sm.Close()
	loop.RunPending()
	clock.Sleep(cfg.FadeOut)

	logger.Info("shutdown complete")
}
