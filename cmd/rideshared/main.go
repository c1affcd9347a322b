package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/campus-rideshare/internal/application"
	"github.com/example/campus-rideshare/internal/config"
	"github.com/example/campus-rideshare/internal/logging"
	"github.com/example/campus-rideshare/internal/persistence/sqlite"
	"github.com/example/campus-rideshare/internal/presence"
	"github.com/example/campus-rideshare/internal/server"
)

func main() {
	// Local development convenience; the file is optional.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger("info").Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := store.Migrate(context.Background()); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	userRepo := sqlite.NewUserRepository(store)
	rideRepo := sqlite.NewRideRepository(store)
	scheduledRepo := sqlite.NewScheduledRideRepository(store)
	ratingRepo := sqlite.NewRatingRepository(store)
	preferencesRepo := sqlite.NewPreferencesRepository(store)

	registry := presence.NewRegistry()
	notifier := server.NewPushNotifier(registry, logger)

	matchService := application.NewMatchService(userRepo, registry, logger)
	userService := application.NewUserService(userRepo, preferencesRepo, registry, logger)
	rideService := application.NewRideService(rideRepo, ratingRepo, preferencesRepo, matchService, notifier, logger)
	scheduleService := application.NewScheduleService(scheduledRepo, userRepo, matchService, notifier, logger)

	srv := server.New(server.Config{
		ListenAddr: cfg.ListenAddr,
		Users:      userService,
		Rides:      rideService,
		Schedules:  scheduleService,
		Registry:   registry,
		Logger:     logger,
	})

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown metrics server", "error", err)
			}
		}()
	}

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("server encountered error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		select {
		case err := <-done:
			if err != nil {
				logger.Error("server encountered error", "error", err)
				os.Exit(1)
			}
		case <-time.After(cfg.ShutdownTimeout):
			logger.Error("shutdown timed out, exiting")
			os.Exit(1)
		}
	}
}
