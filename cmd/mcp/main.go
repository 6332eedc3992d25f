package main

import (
	"context"
	"log/slog"
	"os"

	mcpadapter "github.com/opencouncil/meeting-search/internal/adapters/mcp"
	"github.com/opencouncil/meeting-search/internal/bootstrap"
	"github.com/opencouncil/meeting-search/internal/config"
	"github.com/opencouncil/meeting-search/internal/observability/logging"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	// Stdout carries the MCP protocol; keep logs on stderr.
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel))

	app, err := bootstrap.NewToolApp(context.Background(), cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := mcpadapter.Run(app.Tools, version); err != nil {
		slog.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
