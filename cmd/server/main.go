package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/breffi/content-sync/pkg/contentsync"
	"github.com/breffi/content-sync/pkg/contentsync/api"
	"github.com/breffi/content-sync/pkg/contentsync/config"
)

// Config holds process-level settings read from the environment. Service
// wiring (database, storage, remote endpoints) is handled by the config
// package's WithEnv option.
type Config struct {
	EnvPrefix string `env:"CONTENT_SYNC_ENV_PREFIX" env-default:""`
	Queues    string `env:"CONTENT_SYNC_QUEUES" env-default:"bridge"`
}

func main() {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	serverConfig, err := config.Load(config.WithEnv(cfg.EnvPrefix))
	if err != nil {
		slog.Error("Failed to load server configuration", "err", err)
		os.Exit(1)
	}

	svc, err := serverConfig.BuildService()
	if err != nil {
		slog.Error("Failed to build service", "err", err)
		os.Exit(1)
	}

	queues := splitQueues(cfg.Queues)

	// Set up router
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Mount("/", api.NewSyncHandler(svc).Routes())
	r.Mount("/bridge", api.NewBridgeHandler(svc).Routes())
	r.Mount("/events", api.NewEventHandler(svc).Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverConfig.Port),
		Handler: r,
	}

	// Background maintenance: upload pending analytics events and purge
	// answered bridge messages past retention.
	maintCtx, stopMaint := context.WithCancel(context.Background())
	if serverConfig.EnableBackgroundJob {
		go runMaintenance(maintCtx, svc, queues, serverConfig.SyncInterval, serverConfig.EventsURL != "")
	}

	go func() {
		slog.Info("Content sync server starting",
			"port", serverConfig.Port,
			"environment", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"storage", serverConfig.StorageType)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server")

	stopMaint()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
		os.Exit(1)
	}

	slog.Info("Server exiting")
}

// runMaintenance periodically uploads unsynced events and purges answered
// bridge messages. Failures are logged and retried on the next tick.
func runMaintenance(ctx context.Context, svc contentsync.Service, queues []string, interval time.Duration, uploadEvents bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if uploadEvents {
			if n, err := svc.UploadEvents(ctx); err != nil {
				slog.Warn("Event upload failed", "err", err)
			} else if n > 0 {
				slog.Info("Uploaded events", "count", n)
			}
		}

		for _, queue := range queues {
			if _, err := svc.PurgeAnswered(ctx, queue); err != nil {
				slog.Warn("Queue purge failed", "queue", queue, "err", err)
			}
		}
	}
}

func splitQueues(raw string) []string {
	var queues []string
	for _, q := range strings.Split(raw, ",") {
		if q = strings.TrimSpace(q); q != "" {
			queues = append(queues, q)
		}
	}
	return queues
}
