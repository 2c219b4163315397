// Package main serves saved notes and pages over HTTP and MCP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bull/notes-rag/internal/api"
	"github.com/bull/notes-rag/internal/app"
	"github.com/bull/notes-rag/internal/config"
	"github.com/bull/notes-rag/internal/logging"
	mcpserver "github.com/bull/notes-rag/internal/mcp"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Logs go to stderr so stdio mode keeps stdout for the protocol.
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	slog.SetDefault(logger)

	a, err := app.New(ctx, cfg, logger, app.Options{OwnIndex: true})
	if err != nil {
		return err
	}
	defer a.Close()

	server := mcpserver.NewServer(&mcpserver.Config{
		Pipeline:        a.Pipeline,
		Store:           a.Store,
		MaxRequestBytes: cfg.MaxRequestBytes,
		Version:         version,
	})

	if logging.ParseLevel(cfg.LogLevel) > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Config{
		Pipeline:        a.Pipeline,
		Store:           a.Store,
		MCP:             server.HTTPHandler(),
		Health:          mcpserver.NewHealthHandler(a.Pipeline),
		Landing:         mcpserver.NewLandingHandler(),
		MaxRequestBytes: cfg.MaxRequestBytes,
		CORSOrigins:     cfg.CORSOrigins,
		Logger:          logger,
	})

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.ServerMode == config.ModeStdio {
		// Stdio mode: MCP over stdin/stdout for local clients, with the
		// HTTP endpoints in the background for local testing.
		go func() {
			logger.Info("Starting background HTTP server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("Background HTTP server error", "error", err)
			}
		}()

		logger.Info("Starting MCP server (stdio mode)")
		err := server.Run(ctx)
		shutdown(srv, logger)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", srv.Addr, "mcp", "/mcp", "api", "/api", "health", "/health")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutting down")
	}
	shutdown(srv, logger)
	return nil
}

func shutdown(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("HTTP server shutdown", "error", err)
	}
}
