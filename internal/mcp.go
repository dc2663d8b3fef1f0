package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/beyondguo/webnote/internal/cache"
	"github.com/beyondguo/webnote/internal/handle"
	"github.com/beyondguo/webnote/internal/mcpserver"
	"github.com/beyondguo/webnote/internal/notestore"
	"github.com/beyondguo/webnote/internal/syncengine"
)

// RunMCP starts the MCP stdio server. It shares the cache and handle
// databases with the HTTP server but runs the store in background mode:
// stdio transport has no user present, so saves without folder access
// report pending rather than asking for re-authorization.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Log to stderr: stdout carries the MCP protocol.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	for _, p := range []string{cfg.Data.CachePath, cfg.Data.HandlePath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	cacheStore, err := cache.Open(cfg.Data.CachePath)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer cacheStore.Close()

	handleStore, err := handle.OpenStore(cfg.Data.HandlePath)
	if err != nil {
		return fmt.Errorf("init handle store: %w", err)
	}
	defer handleStore.Close()

	holder := handle.NewHolder(handleStore, handle.WithLogger(logger))
	engine := syncengine.New(cacheStore, holder, logger)
	svc := notestore.New(cacheStore, holder, engine, notestore.ModeBackground, logger)

	if holder.EnsureAccess(ctx, false) {
		if _, err := engine.ReconcileNow(ctx); err != nil {
			logger.Warn("initial reconciliation failed", slog.String("error", err.Error()))
		}
	}

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(svc).ServeStdio()
}
