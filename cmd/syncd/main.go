package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/config"
	"github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/feed"
	"github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/metrics"
	"github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/store"
	"github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/sync"
	"github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/syncd.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting syncd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"feed_url", cfg.Feed.URL,
		"streams", len(cfg.Streams),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Dashboard store and fallback refresher
	st := store.New(pool, store.Config{
		CacheRows: cfg.Cache.Rows,
		CacheTTL:  cfg.Cache.TTL,
	}, logger)

	refresher := store.NewRefresher(store.DefaultRefresherConfig(), st, logger)
	if err := refresher.Start(ctx); err != nil {
		logger.Error("failed to start refresher", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		refresher.Stop(shutdownCtx)
	}()

	// Change-feed client
	client := feed.NewClient(feed.ClientConfig{
		URL:              cfg.Feed.URL,
		APIKey:           cfg.Feed.APIKey,
		HandshakeTimeout: cfg.Feed.HandshakeTimeout,
		WriteTimeout:     cfg.Feed.WriteTimeout,
		PingInterval:     cfg.Feed.PingInterval,
		PingTimeout:      cfg.Feed.PingTimeout,
	}, logger)

	// Sync manager: batched deliveries recompute aggregates once per batch,
	// immediate events recompute right away.
	session := sync.NewRetrySession(cfg.Sync.RetryBaseDelay, cfg.Sync.RetryMaxDelay, cfg.Sync.MaxAttempts)
	handlers := sync.Handlers{
		OnBatch: func(stream string, events []feed.ChangeEvent) {
			if err := st.ApplyBatch(ctx, stream, events); err != nil {
				logger.Warn("batch apply failed", "stream", stream, "error", err)
			}
		},
		OnEvent: func(ev feed.ChangeEvent) {
			if err := st.ApplyEvent(ctx, ev); err != nil {
				logger.Warn("event apply failed", "stream", ev.Stream, "error", err)
			}
		},
		OnDegraded: func() {
			logger.Error("change feed degraded, retries exhausted; serving cached data until wake or restart")
		},
	}

	manager := sync.NewManager(sync.ManagerConfig{
		RetryBaseDelay:     cfg.Sync.RetryBaseDelay,
		RetryMaxDelay:      cfg.Sync.RetryMaxDelay,
		MaxAttempts:        cfg.Sync.MaxAttempts,
		StabilityThreshold: cfg.Sync.StabilityThreshold,
		BatchWindow:        cfg.Sync.BatchWindow,
	}, client, session, handlers, logger)

	// Wake detection: treat host suspension like a tab coming back to the
	// foreground and reconnect immediately.
	wake := sync.NewWakeDetector(cfg.Sync.WakeCheckInterval, 2*cfg.Sync.WakeCheckInterval, logger)
	wake.Start()
	defer wake.Stop()

	cancelWatch := manager.BindVisibility(wake)
	defer cancelWatch()

	// Metrics and health server
	registry := prometheus.NewRegistry()
	if err := metrics.RegisterSyncMetrics(registry, manager.Stats); err != nil {
		logger.Error("failed to register sync metrics", "error", err)
		os.Exit(1)
	}
	if err := metrics.RegisterStoreMetrics(registry, st.Stats); err != nil {
		logger.Error("failed to register store metrics", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", healthHandler(pool, manager, st))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}

	go func() {
		logger.Info("starting http server", "port", cfg.Metrics.Port, "metrics_path", cfg.Metrics.Path)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the sync session
	streams := make([]sync.StreamConfig, 0, len(cfg.Streams))
	for _, sc := range cfg.Streams {
		events := make([]feed.OperationKind, 0, len(sc.Events))
		for _, e := range sc.Events {
			events = append(events, feed.OperationKind(e))
		}
		streams = append(streams, sync.StreamConfig{
			ID:        sc.ID,
			Table:     sc.Table,
			Events:    events,
			Immediate: sc.Immediate,
		})
	}
	if err := manager.Start(streams); err != nil {
		logger.Error("failed to start sync manager", "error", err)
		os.Exit(1)
	}
	defer manager.Stop()

	logger.Info("syncd running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	logger.Info("syncd stopped")
}

// healthHandler reports database, feed, and snapshot freshness.
func healthHandler(pool *pgxpool.Pool, manager *sync.Manager, st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// Check database
		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		// Check feed
		stats := manager.Stats()
		health.Components["feed"] = map[string]any{
			"connected":       stats.Connected,
			"gave_up":         stats.GaveUp,
			"streams":         stats.Streams,
			"events_received": stats.EventsReceived,
		}
		if stats.GaveUp {
			health.Status = "degraded"
		} else if !stats.Connected && health.Status == "healthy" {
			health.Status = "degraded"
		}

		// Check snapshot freshness
		if snap, ok := st.Cached(); ok {
			health.Components["snapshot"] = map[string]any{
				"taken_at":    snap.TakenAt,
				"last_upload": snap.LastUpload,
				"sales":       snap.Sales,
			}
		} else {
			health.Components["snapshot"] = "none"
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	}
}
