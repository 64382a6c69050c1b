// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/pantry/internal/api"
	"github.com/starford/pantry/internal/assistant"
	"github.com/starford/pantry/internal/cloudsync"
	"github.com/starford/pantry/internal/events"
	"github.com/starford/pantry/internal/inventory"
	"github.com/starford/pantry/internal/mcpserver"
	"github.com/starford/pantry/internal/models"
	"github.com/starford/pantry/internal/storage"
)

const statsThrottle = 2 * time.Second

func newApplication(opts []Option, defaultOutput io.Writer) (*application, error) {
	app := &application{logOutput: defaultOutput}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger builds the structured JSON logger. When a log file is configured
// records go to both out and the rotating file.
func newLogger(cfg ApplicationConfig, out io.Writer) (*slog.Logger, io.Closer) {
	var closer io.Closer = nopCloser{}
	if cfg.LogFile.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile.Path,
			MaxSize:    cfg.LogFile.MaxSizeMB,
			MaxBackups: cfg.LogFile.MaxBackups,
			MaxAge:     cfg.LogFile.MaxAgeDays,
			Compress:   cfg.LogFile.Compress,
		}
		out = io.MultiWriter(out, rotator)
		closer = rotator
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// localStore is the opened persistence layer. fs is set only for the fs
// driver and is what the watcher observes.
type localStore struct {
	provider storage.Provider
	fs       *storage.FS
	close    func() error
}

func openStorage(cfg StorageConfig) (*localStore, error) {
	switch cfg.Driver {
	case StorageSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
		db, err := storage.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &localStore{provider: db, close: db.Close}, nil
	default:
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
		fs, err := storage.NewFS(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &localStore{provider: fs, fs: fs, close: func() error { return nil }}, nil
	}
}

// syncCandidates lists the configured backends in auto-mode preference order.
func syncCandidates(cfg SyncConfig, local storage.Provider, logger *slog.Logger) []cloudsync.Candidate {
	return []cloudsync.Candidate{
		{
			Backend: cloudsync.BackendFirebase,
			Enabled: cfg.Firebase.Enabled,
			Push:    true,
			New: func() (cloudsync.Adapter, error) {
				return cloudsync.NewFirebase(cloudsync.FirebaseConfig{
					APIKey:      cfg.Firebase.APIKey,
					DatabaseURL: cfg.Firebase.DatabaseURL,
				},
					cloudsync.WithFirebaseLogger(logger),
					cloudsync.WithSessionStore(local),
				), nil
			},
		},
		{
			Backend: cloudsync.BackendLeanCloud,
			Enabled: cfg.LeanCloud.Enabled,
			New: func() (cloudsync.Adapter, error) {
				return cloudsync.NewLeanCloud(cloudsync.LeanCloudConfig{
					AppID:     cfg.LeanCloud.AppID,
					AppKey:    cfg.LeanCloud.AppKey,
					ServerURL: cfg.LeanCloud.ServerURL,
				}, local,
					cloudsync.WithPollInterval(cfg.LeanCloud.PollInterval),
					cloudsync.WithLeanCloudLogger(logger),
				), nil
			},
		},
	}
}

// newProvider returns nil when the model has no credentials.
func newProvider(provider string, timeout time.Duration, m ModelConfig) assistant.Provider {
	if !m.Enabled() {
		return nil
	}
	if provider == ProviderAnthropic {
		opts := []option.RequestOption{option.WithRequestTimeout(timeout)}
		if m.Endpoint != "" {
			opts = append(opts, option.WithBaseURL(m.Endpoint))
		}
		return assistant.NewAnthropic(m.APIKey, m.Model, opts...)
	}
	return assistant.NewOpenAI(m.Endpoint, m.APIKey, m.Model, assistant.WithHTTPTimeout(timeout))
}

func newAssistant(cfg AssistantConfig, logger *slog.Logger) *assistant.Client {
	return assistant.New(
		newProvider(cfg.Provider, cfg.Timeout, cfg.Chat),
		newProvider(cfg.Provider, cfg.Timeout, cfg.Vision),
		logger,
	)
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts, os.Stdout)
	if err != nil {
		return err
	}

	cfg := app.config

	logger, logCloser := newLogger(cfg.App, app.logOutput)
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_driver", cfg.Storage.Driver),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("sync_mode", cfg.Sync.Default),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize storage.
	local, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer local.close()

	// Event broker.
	var store *inventory.Store
	broker := events.NewBroker(statsThrottle,
		events.WithLogger(logger),
		events.WithStats(func() any { return store.Stats() }),
	)
	defer broker.Close()

	store = inventory.New(local.provider,
		inventory.WithLogger(logger),
		inventory.WithOnChange(func(kind string, snap models.Snapshot) {
			broker.PublishChange(kind, snap)
		}),
	)
	if err := store.Load(); err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}

	// Select the sync backend.
	coord := cloudsync.NewCoordinator(
		cloudsync.WithSettleDelay(cfg.Sync.SettleDelay),
		cloudsync.WithCoordinatorLogger(logger),
		cloudsync.WithStatusHook(func(s cloudsync.Status) {
			broker.Publish(events.Event{Type: events.TypeSyncStatus, Data: s})
		}),
	)

	g, gCtx := errgroup.WithContext(ctx)

	if coord.Select(gCtx, cfg.Sync.Default, syncCandidates(cfg.Sync, local.provider, logger)) {
		store.SetSink(coord)
		coord.ListenToChanges(gCtx, func(snap models.Snapshot) {
			if err := store.ReplaceAll(snap, false); err != nil {
				logger.Error("apply remote change failed", slog.String("error", err.Error()))
			}
		})
		if snap := coord.LoadSnapshot(gCtx); snap != nil {
			if err := store.ReplaceAll(*snap, false); err != nil {
				logger.Warn("initial sync failed", slog.String("error", err.Error()))
			}
		}
	}

	ai := newAssistant(cfg.Assistant, logger)

	apiRouter := api.NewRouter(api.Deps{
		Store:     store,
		Sync:      coord,
		Assistant: ai,
		Logger:    logger,
		Events:    broker,
		WebSocket: broker.ServeWS,
	}, cfg.Auth.AuthEnabled(), cfg.Auth.Token)

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
		_, _ = fmt.Fprintf(w, `{"status":"ok","sync":%q}`, coord.Status())
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	// Reload local state when the data files are edited externally.
	if cfg.Storage.Watch && local.fs != nil {
		g.Go(func() error {
			err := storage.Watch(gCtx, local.fs, logger, func(key string, _ bool) {
				if err := store.Reload(key); err != nil {
					logger.Warn("reload failed", slog.String("key", key), slog.String("error", err.Error()))
				}
			})
			if err != nil {
				logger.Error("watcher stopped", slog.String("error", err.Error()))
			}
			return nil
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
		coord.WaitSettled()

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so the watcher and sync listeners
// stop once the server is down.
var errShutdown = errors.New("shutdown")

// RunMCP serves the inventory tools over stdio. It reads and writes local
// storage only; remote sync is left to the HTTP server.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts, os.Stderr)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, logCloser := newLogger(cfg.App, app.logOutput)
	defer logCloser.Close()
	slog.SetDefault(logger)

	local, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer local.close()

	store := inventory.New(local.provider, inventory.WithLogger(logger))
	if err := store.Load(); err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}

	srv := mcpserver.New(store, newAssistant(cfg.Assistant, logger), logger)
	logger.Info("MCP server starting on stdio", slog.String("storage_path", cfg.Storage.Path))
	if err := srv.ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
