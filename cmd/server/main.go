// Package main is the entry point for the PhotoSphere API server.
//
// main stays minimal: read configuration, build the logger, hand both to
// internal/server. All actual logic lives in imported packages.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/sakif/photosphere/internal/config"
	"github.com/sakif/photosphere/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No configured logger yet; fall back to the default one.
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until the server is shut down (Ctrl+C or SIGTERM).
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
