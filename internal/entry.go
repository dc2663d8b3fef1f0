// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/beyondguo/webnote/internal/api"
	"github.com/beyondguo/webnote/internal/cache"
	"github.com/beyondguo/webnote/internal/chat"
	"github.com/beyondguo/webnote/internal/extract"
	"github.com/beyondguo/webnote/internal/handle"
	"github.com/beyondguo/webnote/internal/notestore"
	"github.com/beyondguo/webnote/internal/sse"
	"github.com/beyondguo/webnote/internal/syncengine"
	"github.com/beyondguo/webnote/internal/syncwatch"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("cache_path", cfg.Data.CachePath),
		slog.String("handle_path", cfg.Data.HandlePath),
		slog.String("log_level", cfg.App.LogLevel.String()))

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

	// An API request is already an explicit user action, so re-approval of a
	// previously revoked folder does not need a second confirmation step.
	holderOpts := []handle.HolderOption{
		handle.WithLogger(logger),
		handle.WithPrompter(handle.PrompterFunc(func(_ context.Context, _ *handle.Handle) (bool, error) {
			return true, nil
		})),
	}
	if cfg.Notes.Dir != "" {
		holderOpts = append(holderOpts, handle.WithSelector(handle.SelectorFunc(func(_ context.Context) (string, error) {
			return cfg.Notes.Dir, nil
		})))
	}
	holder := handle.NewHolder(handleStore, holderOpts...)

	engine := syncengine.New(cacheStore, holder, logger)

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Directory changes feed the file watcher: seeded at startup when a
	// stored grant is still valid, then again on every new grant.
	dirCh := make(chan string, 1)
	notifyDir := func(dir string) {
		select {
		case dirCh <- dir:
		default:
		}
	}

	svc := notestore.New(cacheStore, holder, engine, notestore.ModeForeground, logger,
		notestore.WithEvents(broker),
		notestore.WithGrantNotify(notifyDir))

	// Restore folder access from the stored handle and run an initial
	// reconciliation pass.
	if holder.EnsureAccess(ctx, false) {
		if dir, ok := holder.Dir(); ok {
			notifyDir(dir)
		}
		if _, err := engine.ReconcileNow(ctx); err != nil {
			logger.Warn("initial reconciliation failed", slog.String("error", err.Error()))
		}
	}

	var chatSvc *chat.Service
	if cfg.Chat.Enabled {
		chatSvc = chat.New(cfg.Chat.APIKey, cfg.Chat.BaseURL, cfg.Chat.Model)
		logger.Info("Chat collaborator enabled", slog.String("model", cfg.Chat.Model))
	}

	extractor := extract.New(cfg.Extract.Timeout.Std())

	handler := api.NewHandler(svc, chatSvc, extractor)
	apiRouter := api.NewRouter(handler, http.HandlerFunc(broker.ServeHTTP), cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start the notes-folder watcher with SSE callback.
	g.Go(func() error {
		return syncwatch.Watch(gCtx, dirCh, logger, func(kind, name string) {
			broker.PublishNoteEvent(kind, name)
		})
	})

	// Background reconciliation loop.
	if interval := cfg.Sync.Interval.Std(); interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-gCtx.Done():
					return nil
				case <-ticker.C:
					synced, err := engine.ReconcileNow(gCtx)
					switch {
					case err != nil:
						logger.Warn("reconciliation failed", slog.String("error", err.Error()))
						broker.PublishSyncStatus("error", err.Error())
					case synced:
						broker.PublishSyncStatus("synced", "")
					}
				}
			}
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
