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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/faceoverlay/internal/config"
	"github.com/your-org/faceoverlay/internal/observability"
	"github.com/your-org/faceoverlay/internal/queue"
	"github.com/your-org/faceoverlay/internal/replay"
)

// replay plays a recorded detection script into NATS, standing in for an
// on-device detector.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	recordingPath := flag.String("recording", "", "path to a YAML detection recording")
	loop := flag.Bool("loop", false, "repeat the recording until interrupted")
	metricsAddr := flag.String("metrics-addr", "", "serve /metrics and /healthz on this address")
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

	if *recordingPath == "" {
		slog.Error("missing -recording")
		os.Exit(2)
	}
	rec, err := replay.Load(*recordingPath)
	if err != nil {
		slog.Error("load recording", "path", *recordingPath, "error", err)
		os.Exit(1)
	}
	rec.Loop = rec.Loop || *loop

	slog.Info("starting detection replay",
		"stream_id", rec.StreamID,
		"frames", len(rec.Frames),
		"interval", rec.Interval,
		"loop", rec.Loop,
	)

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"status":"ok"}`))
			})
			slog.Info("replay metrics listening", "addr", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down replay...")
		cancel()
	}()

	start := time.Now()
	n, err := replay.NewPlayer(rec, producer, nil).Play(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("replay failed", "published", n, "error", err)
		os.Exit(1)
	}
	slog.Info("replay finished", "published", n, "elapsed", time.Since(start).Round(time.Millisecond))
}
