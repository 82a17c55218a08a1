package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"benevault/observability/logging"
	telemetry "benevault/observability/otel"
	"benevault/services/harvestd/checkpoint"
	"benevault/services/harvestd/config"
	"benevault/services/harvestd/harvester"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/harvestd/config.yaml", "path to harvestd configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("BENEVAULT_ENV"))
	logger := logging.Setup("harvestd", env)
	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "harvestd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		logger.Error("init telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	store, err := checkpoint.Open(cfg.CheckpointPath, nil)
	if err != nil {
		logger.Error("open checkpoint store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	client, err := harvester.NewClient(cfg.Node.Endpoint, cfg.NodeToken(), cfg.Node.Timeout.Duration)
	if err != nil {
		logger.Error("build node client", "error", err)
		os.Exit(1)
	}
	manager, err := harvester.New(client, store, cfg.Harvest.Interval.Duration, cfg.Harvest.EventPage, harvester.WithLogger(logger))
	if err != nil {
		logger.Error("build harvester", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("harvestd listening", "addr", cfg.ListenAddress, "node", cfg.Node.Endpoint)
		serverErr <- httpServer.ListenAndServe()
	}()

	loopErr := make(chan error, 1)
	go func() {
		loopErr <- manager.Run(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
		stop()
	case err := <-loopErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("harvest loop failed", "error", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		_ = httpServer.Close()
	}
}
