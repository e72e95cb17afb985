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

	"github.com/kirillkom/pdf-markup/internal/adapters/script"
	"github.com/kirillkom/pdf-markup/internal/bootstrap"
	"github.com/kirillkom/pdf-markup/internal/config"
	"github.com/kirillkom/pdf-markup/internal/observability/logging"
)

func main() {
	scriptPath := flag.String("script", "", "path to a YAML markup script")
	stopOnError := flag.Bool("stop-on-error", false, "abort on the first failed step")
	flag.Parse()

	if *scriptPath == "" {
		fmt.Fprintln(os.Stderr, "usage: markup -script session.yaml")
		os.Exit(2)
	}

	cfg := config.Load()
	logger := logging.New(os.Stderr, "markup", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, *scriptPath, *stopOnError, logger)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg config.Config, path string, stopOnError bool, logger *slog.Logger) int {
	f, err := os.Open(path)
	if err != nil {
		logger.Error("script_open_failed", "path", path, "error", err)
		return 2
	}
	s, err := script.Parse(f)
	_ = f.Close()
	if err != nil {
		logger.Error("script_parse_failed", "path", path, "error", err)
		return 2
	}
	if stopOnError {
		s.StopOnError = true
	}

	app, err := bootstrap.New(ctx, cfg, "markup", logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		return 1
	}
	defer app.Close()

	runner := script.NewRunner(app.LocalOpenUC, app.ProcessUC, script.Options{
		Exporter: app.Exporter,
		Entities: app.Metrics,
		Session:  bootstrap.SessionOptions(cfg),
		Logger:   logger,
	})
	report, runErr := runner.Run(ctx, s)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error("report_write_failed", "error", err)
		return 1
	}

	switch {
	case runErr != nil:
		logger.Error("script_failed", "error", runErr)
		return 1
	case report.Failed():
		return 3
	default:
		return 0
	}
}
