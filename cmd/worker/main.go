package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/pdf-markup/internal/bootstrap"
	"github.com/kirillkom/pdf-markup/internal/config"
	"github.com/kirillkom/pdf-markup/internal/core/domain"
	"github.com/kirillkom/pdf-markup/internal/observability/logging"
	"github.com/kirillkom/pdf-markup/internal/observability/metrics"
)

// The worker follows document.processed events and exposes their volume and
// delivery lag as metrics.
func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "worker", logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Events == nil {
		logger.Error("worker_requires_nats", "hint", "set NATS_URL")
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metrics.Handler(app.Metrics.Registry(), app.Resilience.Registry()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "group", cfg.NATSGroup)
	err = app.Events.SubscribeDocumentProcessed(ctx, cfg.NATSGroup, func(_ context.Context, event domain.DocumentProcessedEvent) error {
		lag := time.Since(event.At)
		app.Metrics.ObserveEvent(event.Mode, lag)
		logger.Info("document_processed_received",
			"run_id", event.RunID,
			"session_id", event.SessionID,
			"mode", event.Mode.String(),
			"result_uri", event.ResultURI,
			"lag_ms", lag.Milliseconds(),
		)
		return nil
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
	}
}
