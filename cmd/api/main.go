package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/opencouncil/meeting-search/internal/adapters/http"
	"github.com/opencouncil/meeting-search/internal/bootstrap"
	"github.com/opencouncil/meeting-search/internal/config"
	"github.com/opencouncil/meeting-search/internal/core/domain"
	"github.com/opencouncil/meeting-search/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	defaultIntent := domain.IntentQuestion
	if cfg.SearchDefaultIntent == string(domain.IntentKeyword) {
		defaultIntent = domain.IntentKeyword
	}

	router := httpadapter.NewRouter(app.SearchUC, app.AnswerUC, app.Cache, app.Metrics, httpadapter.Options{
		DefaultIntent:         defaultIntent,
		ResultLimit:           cfg.SearchResultLimit,
		RateLimitRPS:          cfg.APIRateLimitRPS,
		RateLimitBurst:        cfg.APIRateLimitBurst,
		MaxConcurrent:         cfg.APIMaxConcurrent,
		ConversationMaxTurns:  cfg.ConversationMaxTurns,
		TopicOverlapThreshold: cfg.TopicOverlapThreshold,
	}).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_error", "error", err)
	}
}
