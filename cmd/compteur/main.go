package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"compteur/internal/backend"
	"compteur/internal/cli"
	"compteur/internal/core"
	apphttp "compteur/internal/http"
	"compteur/internal/log"
	"compteur/internal/metrics"
	"compteur/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), "compteur")
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	result, err := backend.NewFactory(logger.Logger).CreateBackend(startCtx, backendCfg)
	cancelStart()
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", log.FieldError, err)
			}
		}
	}()
	logger.Info("Initialized backend", log.FieldBackend, cfg.DataBackend)

	m := metrics.New()
	svc := services.NewCounterService(result.Backend,
		services.WithMetrics(m),
		services.WithLabeler(core.LabelerFor(cfg.Locale)),
		services.WithLogger(logger),
	)

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 10*time.Second)
	if counters, err := svc.Load(loadCtx); err != nil {
		logger.Warn("Initial load failed, starting with an empty board", log.FieldError, err)
	} else {
		logger.Info("Counters loaded", "count", len(counters))
	}
	cancelLoad()

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		RefreshInterval:    cfg.ChartRefreshInterval,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Locale:             cfg.Locale,
		Metrics:            m,
		Logger:             logger,
	}, svc)

	_, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	logger.Info("Starting compteur server", "port", cfg.Port, log.FieldBackend, cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
