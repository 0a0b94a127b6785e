// feedtest connects to the change feed and prints decoded events to console.
// Usage: go run ./cmd/feedtest --config configs/syncd.local.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/config"
	"github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/feed"
	"github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/sync"
)

func main() {
	configPath := flag.String("config", "configs/syncd.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full event payload JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	client := feed.NewClient(feed.ClientConfig{
		URL:              cfg.Feed.URL,
		APIKey:           cfg.Feed.APIKey,
		HandshakeTimeout: cfg.Feed.HandshakeTimeout,
		WriteTimeout:     cfg.Feed.WriteTimeout,
		PingInterval:     cfg.Feed.PingInterval,
		PingTimeout:      cfg.Feed.PingTimeout,
	}, logger)

	session := sync.NewRetrySession(cfg.Sync.RetryBaseDelay, cfg.Sync.RetryMaxDelay, cfg.Sync.MaxAttempts)
	handlers := sync.Handlers{
		OnBatch: func(stream string, events []feed.ChangeEvent) {
			fmt.Printf("[BATCH] stream=%s events=%d\n", stream, len(events))
			for _, ev := range events {
				printEvent(ev, *verbose)
			}
		},
		OnEvent: func(ev feed.ChangeEvent) {
			fmt.Printf("[IMMEDIATE]\n")
			printEvent(ev, *verbose)
		},
		OnDegraded: func() {
			fmt.Println("[DEGRADED] retries exhausted")
		},
	}

	manager := sync.NewManager(sync.ManagerConfig{
		RetryBaseDelay:     cfg.Sync.RetryBaseDelay,
		RetryMaxDelay:      cfg.Sync.RetryMaxDelay,
		MaxAttempts:        cfg.Sync.MaxAttempts,
		StabilityThreshold: cfg.Sync.StabilityThreshold,
		BatchWindow:        cfg.Sync.BatchWindow,
	}, client, session, handlers, logger)

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

	logger.Info("starting sync manager", "streams", len(streams))
	if err := manager.Start(streams); err != nil {
		logger.Error("failed to start sync manager", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := manager.Stats()
				logger.Info("stats",
					"connected", stats.Connected,
					"gave_up", stats.GaveUp,
					"attempts", stats.Attempts,
					"events_received", stats.EventsReceived,
					"events_immediate", stats.EventsImmediate,
					"batch_flushes", stats.Batcher.Flushes,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	manager.Stop()
	logger.Info("shutdown complete")
}

func printEvent(ev feed.ChangeEvent, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(ev, "", "  ")
		fmt.Printf("[EVENT] %s\n", data)
		return
	}
	fmt.Printf("[EVENT] stream=%s kind=%s arrival=%d payload_bytes=%d\n",
		ev.Stream, ev.Kind, ev.Arrival, len(ev.Payload))
}
