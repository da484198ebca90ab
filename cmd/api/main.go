package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/faceoverlay/internal/api"
	"github.com/your-org/faceoverlay/internal/api/ws"
	"github.com/your-org/faceoverlay/internal/config"
	"github.com/your-org/faceoverlay/internal/observability"
	"github.com/your-org/faceoverlay/internal/overlay"
	"github.com/your-org/faceoverlay/internal/queue"
	"github.com/your-org/faceoverlay/internal/stream"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// FO_* overrides may also come from a local .env file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting face overlay service",
		"port", cfg.Server.Port,
		"tick_rate", cfg.Overlay.TickRate,
		"staleness_window", cfg.Overlay.StalenessWindow,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	sinks := []overlay.Sink{hub}
	if cfg.NATS.PublishOverlay {
		sinks = append(sinks, producer)
	}
	manager := stream.NewManager(cfg.Overlay.SessionOptions(), stream.FanOut(sinks...))

	// Detection batches from NATS
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create detection consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeDetections(ctx, cfg.NATS.Consumer, func(ctx context.Context, msg jetstream.Msg) error {
		return manager.HandleDetectionMessage(queue.StreamIDFromSubject(msg.Subject()), msg.Data())
	}, cfg.NATS.Workers)
	if err != nil {
		slog.Warn("start detection consumer", "error", err)
	}

	// Stream control commands (raw NATS)
	if _, err := consumer.SubscribeControl(ctx, manager.HandleCommand); err != nil {
		slog.Error("subscribe to control", "error", err)
		os.Exit(1)
	}

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:  cfg.Server.APIKey,
		Manager: manager,
		NATS:    producer,
		Hub:     hub,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down face overlay service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if err := manager.StopAll(); err != nil {
		slog.Error("stop sessions", "error", err)
	}
	cancel()

	slog.Info("face overlay service stopped")
}
