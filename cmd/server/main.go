package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"corpflow-chat/backend/pkg/config"
	"corpflow-chat/backend/pkg/di"
	"corpflow-chat/backend/pkg/logger"
	"corpflow-chat/backend/pkg/observability"
	"corpflow-chat/backend/pkg/router"
)

func main() {
	cfg := config.New()

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("starting chat server", "version", os.Getenv("APP_VERSION"), "store", cfg.Server.Store)

	obsOpts := observability.Options{ServiceName: "corpflow-chat"}
	if !cfg.IsProduction() && os.Getenv("OTEL_STDOUT_TRACES") == "true" {
		obsOpts.TraceOutput = os.Stdout
	}
	provider, err := observability.Setup(obsOpts)
	if err != nil {
		log.LogError(err, "failed to initialize observability")
		os.Exit(1)
	}

	container, err := di.New(cfg, log)
	if err != nil {
		log.LogError(err, "failed to initialize dependency container")
		os.Exit(1)
	}
	container.Metrics = provider.MetricsHandler()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	container.Health.Start(ctx)

	r := router.New(container)
	r.SetupRoutes()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(err, "server failed to start")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "server forced to shutdown")
	}
	stop()
	r.Close()
	if err := container.Close(); err != nil {
		log.LogError(err, "failed to release resources")
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "failed to flush telemetry")
	}

	log.Info("server exited gracefully")
}
