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

	httpadapter "github.com/kirillkom/pdf-markup/internal/adapters/http"
	"github.com/kirillkom/pdf-markup/internal/bootstrap"
	"github.com/kirillkom/pdf-markup/internal/config"
	"github.com/kirillkom/pdf-markup/internal/observability/logging"
	"github.com/kirillkom/pdf-markup/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "api", logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if ttl := cfg.SessionIdleTTL(); ttl > 0 {
		go app.Sessions.RunSweeper(ctx, ttl, logger)
	}

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	router := httpadapter.NewRouter(cfg, app.Sessions, app.OpenUC, app.ProcessUC, httpadapter.Options{
		Exporter:       app.Exporter,
		Entities:       app.Metrics,
		Metrics:        httpMetrics,
		MetricsHandler: metrics.Handler(httpMetrics.Registry(), app.Metrics.Registry(), app.Resilience.Registry()),
	}).Handler()

	// Processing calls may take the full service timeout plus one retry.
	writeTimeout := 2*cfg.PDFServiceTimeout() + 30*time.Second
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
