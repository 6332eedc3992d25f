package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opencouncil/meeting-search/internal/config"
	"github.com/opencouncil/meeting-search/internal/infrastructure/repository/postgres"
	"github.com/opencouncil/meeting-search/internal/observability/logging"
	"github.com/opencouncil/meeting-search/internal/observability/metrics"
)

const serviceName = "sweeper"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		slog.Error("open_postgres_failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cacheRepo := postgres.NewCacheRepository(db)
	sweeperMetrics := metrics.NewSweeperMetrics(serviceName)

	metricsServer := &http.Server{
		Addr:    ":" + cfg.SweeperMetricsPort,
		Handler: sweeperMetrics.Handler(),
	}
	go func() {
		slog.Info("sweeper_metrics_listening", "port", cfg.SweeperMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics_server_failed", "error", err)
		}
	}()

	interval := time.Duration(cfg.SweepIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	sweep(ctx, cacheRepo, sweeperMetrics)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = metricsServer.Shutdown(shutdownCtx)
			cancel()
			return
		case <-ticker.C:
			sweep(ctx, cacheRepo, sweeperMetrics)
		}
	}
}

func sweep(ctx context.Context, cacheRepo *postgres.CacheRepository, sweeperMetrics *metrics.SweeperMetrics) {
	start := time.Now()
	deleted, err := cacheRepo.DeleteExpired(ctx)
	sweeperMetrics.FinishSweep(serviceName, deleted, time.Since(start), err)
	if err != nil {
		slog.Error("sweep_failed", "error", err)
		return
	}
	slog.Info("sweep_complete", "deleted", deleted, "duration_ms", time.Since(start).Milliseconds())
}
