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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/wolog/internal/api"
	"github.com/starford/wolog/internal/filter"
	"github.com/starford/wolog/internal/notify"
	"github.com/starford/wolog/internal/pandoc"
	"github.com/starford/wolog/internal/postservice"
	"github.com/starford/wolog/internal/render"
	"github.com/starford/wolog/internal/sandbox"
	"github.com/starford/wolog/internal/search"
	"github.com/starford/wolog/internal/sse"
	"github.com/starford/wolog/internal/store"
	"github.com/starford/wolog/internal/syncer"
	"github.com/starford/wolog/internal/watch"
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
		slog.String("content_root", cfg.Content.Root),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure the content root exists.
	if err := os.MkdirAll(cfg.Content.Root, 0o755); err != nil {
		return fmt.Errorf("create content root: %w", err)
	}

	// Store.
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	// Templates.
	renderer, err := render.NewRegistry(cfg.Site.TemplatesGlob)
	if err != nil {
		return fmt.Errorf("init templates: %w", err)
	}

	// Sandbox: fail closed. A runner only exists when the host can drop
	// privileges; otherwise dynamic blocks stay unexecuted.
	var runner sandbox.Runner
	if cfg.Sandbox.Enabled {
		r, err := sandbox.New(sandbox.Config{
			Sudo:    cfg.Sandbox.Sudo,
			User:    cfg.Sandbox.User,
			Group:   cfg.Sandbox.Group,
			Timeout: cfg.Sandbox.Timeout,
		})
		if err != nil {
			logger.Warn("sandbox unavailable, dynamic blocks disabled", slog.String("error", err.Error()))
		} else {
			runner = r
		}
	}

	conv := pandoc.NewCLI(cfg.Pandoc.Binary)
	engine := search.NewEngine(db)
	pre := filter.NewPreprocessor(runner, cfg.Site.Bridge, logger)
	post := filter.NewPostprocessor(db, engine, renderer, logger)

	// SSE broker: receives every store change the sync engine makes.
	broker := sse.NewBroker()
	defer broker.Close()

	sync := syncer.New(syncer.Options{
		Root:      cfg.Content.Root,
		Extension: cfg.Content.Extension,
		Ignore:    cfg.Content.Ignore,
		Skew:      cfg.Sync.SkewTolerance,
		Develop:   cfg.Sync.Develop,
		Workers:   cfg.Sync.Workers,
	}, conv, pre, db, &notify.LogNotifier{Logger: logger}, broker.Publish, logger)

	// Initial pass before serving.
	if err := sync.SyncAll(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	svc := postservice.NewService(db, conv, post, engine, renderer, logger)
	siteRouter := api.NewRouter(svc, sync, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, logger)

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

	r.Mount("/", siteRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// File watcher feeds edits into the sync engine as they happen.
	g.Go(func() error {
		if err := watch.Watch(gCtx, sync, cfg.Content.Root, cfg.Content.Extension, logger); err != nil {
			logger.Error("watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})

	// Periodic full pass catches anything the watcher missed.
	if cfg.Sync.Interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.Sync.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-gCtx.Done():
					return nil
				case <-ticker.C:
					if err := sync.SyncAll(gCtx); err != nil {
						logger.Warn("periodic sync failed", slog.String("error", err.Error()))
					}
				}
			}
		})
	}

	// Template hot reload.
	if cfg.Site.TemplateReload > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.Site.TemplateReload)
			defer ticker.Stop()
			for {
				select {
				case <-gCtx.Done():
					return nil
				case <-ticker.C:
					if err := renderer.Reload(); err != nil {
						logger.Warn("template reload failed", slog.String("error", err.Error()))
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
