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

	"github.com/starford/focusguard/internal/alert"
	"github.com/starford/focusguard/internal/api"
	"github.com/starford/focusguard/internal/engine"
	"github.com/starford/focusguard/internal/feed"
	"github.com/starford/focusguard/internal/mcpserver"
	"github.com/starford/focusguard/internal/milestone"
	"github.com/starford/focusguard/internal/policy"
	"github.com/starford/focusguard/internal/seed"
	"github.com/starford/focusguard/internal/session"
	"github.com/starford/focusguard/internal/store"
	"github.com/starford/focusguard/internal/triage"
	"github.com/starford/focusguard/internal/views"
)

// Run starts the triage daemon with the given options.
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
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize SQLite store (sender directory, notification log, prefs).
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	// Change-feed broker.
	broker := feed.NewBroker(time.Second)
	defer broker.Close()

	// Focus session state.
	sess, err := session.New(db, broker, nil)
	if err != nil {
		return fmt.Errorf("init session: %w", err)
	}

	notifier := app.notifier
	if notifier == nil {
		notifier = &alert.LogNotifier{Logger: logger}
	}
	labels := alert.Labels(cfg.Labels)

	// Interception engine.
	eng := engine.New(db, db, sess, notifier, labels, broker, logger, engine.Config{
		Workers:   cfg.Engine.Workers,
		QueueSize: cfg.Engine.QueueSize,
	})
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer eng.Stop()

	// Live view projection.
	proj := views.New(db, db, broker, logger)
	if err := proj.Start(ctx); err != nil {
		return fmt.Errorf("start views: %w", err)
	}
	defer proj.Stop()

	// Milestone reminder scheduler.
	reminders, err := milestone.New(sess, notifier, broker, logger, cfg.Milestones.Interval)
	if err != nil {
		return fmt.Errorf("init milestones: %w", err)
	}
	if err := reminders.Start(ctx); err != nil {
		return fmt.Errorf("start milestones: %w", err)
	}
	defer reminders.Stop()

	// Build triage service and router.
	svc := triage.NewService(db, db, sess, eng, proj, broker, reminders)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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

	// Start seed-file watcher when configured.
	if cfg.Seed.Path != "" {
		g.Go(func() error {
			return seed.Watch(gCtx, db, cfg.Seed.Path, logger, func(key string, cat policy.Category) {
				broker.Publish(feed.Event{Kind: feed.KindSenderUpdated, Data: map[string]any{
					"sender_id": key,
					"category":  cat,
				}})
			})
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

// RunMCP starts the MCP server on stdio instead of the HTTP daemon. The
// interception engine still runs so assistant-driven focus toggles behave
// exactly like UI-driven ones.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Logs go to stderr: stdout carries the MCP transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	broker := feed.NewBroker(time.Second)
	defer broker.Close()

	sess, err := session.New(db, broker, nil)
	if err != nil {
		return fmt.Errorf("init session: %w", err)
	}

	notifier := app.notifier
	if notifier == nil {
		notifier = &alert.LogNotifier{Logger: logger}
	}

	eng := engine.New(db, db, sess, notifier, alert.Labels(cfg.Labels), broker, logger, engine.Config{
		Workers:   cfg.Engine.Workers,
		QueueSize: cfg.Engine.QueueSize,
	})
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer eng.Stop()

	proj := views.New(db, db, broker, logger)
	if err := proj.Start(ctx); err != nil {
		return fmt.Errorf("start views: %w", err)
	}
	defer proj.Stop()

	svc := triage.NewService(db, db, sess, eng, proj, broker, nil)

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(svc).ServeStdio()
}
