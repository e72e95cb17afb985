package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/pdf-markup/internal/config"
	"github.com/kirillkom/pdf-markup/internal/core/ports"
	"github.com/kirillkom/pdf-markup/internal/core/session"
	"github.com/kirillkom/pdf-markup/internal/core/usecase"
	"github.com/kirillkom/pdf-markup/internal/infrastructure/docsource"
	natsbus "github.com/kirillkom/pdf-markup/internal/infrastructure/events/nats"
	"github.com/kirillkom/pdf-markup/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/pdf-markup/internal/infrastructure/pdfinspect"
	"github.com/kirillkom/pdf-markup/internal/infrastructure/pdfservice"
	"github.com/kirillkom/pdf-markup/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/pdf-markup/internal/infrastructure/resilience"
	"github.com/kirillkom/pdf-markup/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/pdf-markup/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Sessions *session.Registry
	// OpenUC opens references only from the storage directory and the
	// configured document roots and hosts. LocalOpenUC opens any path or URL
	// and serves the markup CLI.
	OpenUC      *usecase.OpenDocumentUseCase
	LocalOpenUC *usecase.OpenDocumentUseCase
	ProcessUC   *usecase.ProcessDocumentUseCase
	Exporter    ports.EntityExporter
	Metrics     *metrics.ProcessMetrics
	// Resilience observes retries and breaker state of outbound calls.
	Resilience *metrics.ResilienceMetrics
	// Events is nil unless NATS_URL is set.
	Events *natsbus.Bus

	closeFn func()
}

// SessionOptions carries the gesture settings every new session starts with.
func SessionOptions(cfg config.Config) session.Options {
	return session.Options{
		Interpreter: session.Interpreter{
			TapRedactionWidth:  cfg.TapRedactionWidth,
			TapRedactionHeight: cfg.TapRedactionHeight,
		},
	}
}

func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	closers := make([]func(), 0, 2)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	contract, err := pdfservice.LoadContract()
	if err != nil {
		return nil, fmt.Errorf("load processing service contract: %w", err)
	}

	resilienceMetrics := metrics.NewResilienceMetrics(service)
	executorOpts := resilience.Options{Logger: logger, Observer: resilienceMetrics}
	serviceExecutor := resilience.NewExecutorWithOptions(cfg.Resilience(), executorOpts)
	transport := pdfservice.NewWithOptions(cfg.PDFServiceURL, pdfservice.Options{
		Timeout:        cfg.PDFServiceTimeout(),
		TrailingSlash:  cfg.PDFServiceTrailingSlash,
		URIScan:        cfg.PDFServiceURIScan,
		MaxResultBytes: int64(cfg.PDFServiceMaxResultMB) << 20,
		Defaults: pdfservice.PayloadDefaults{
			AnnotationColor:   cfg.AnnotationColor,
			AnnotationType:    cfg.AnnotationType,
			RedactionFill:     cfg.RedactionFill,
			WatermarkOpacity:  cfg.WatermarkOpacity,
			WatermarkRotation: cfg.WatermarkRotation,
			WatermarkFontSize: cfg.WatermarkFontSize,
		},
		ResilienceExecutor: serviceExecutor,
		Storage:            storage,
		Contract:           contract,
	})

	maxUploadBytes := int64(cfg.MaxUploadMB) << 20
	source := docsource.New(docsource.Options{
		Timeout:  cfg.DownloadTimeout(),
		MaxBytes: maxUploadBytes,
	})
	guardedSource := docsource.New(docsource.Options{
		Timeout:  cfg.DownloadTimeout(),
		MaxBytes: maxUploadBytes,
		Policy: &docsource.Policy{
			Roots: append([]string{storage.BasePath()}, cfg.DocumentRoots...),
			Hosts: cfg.DocumentHosts,
		},
	})
	inspector := pdfinspect.New(logger)
	processMetrics := metrics.NewProcessMetrics(service)

	processOpts := usecase.ProcessOptions{
		Observer: processMetrics,
		Logger:   logger,
	}

	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })
		runs := postgres.NewRunRepository(db)
		if err := runs.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		processOpts.Runs = runs
	}

	var events *natsbus.Bus
	if cfg.NATSURL != "" {
		events, err = natsbus.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsbus.Options{
			ResilienceExecutor: resilience.NewExecutorWithOptions(resilience.DefaultConfig(), executorOpts),
			Logger:             logger,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init event bus: %w", err)
		}
		closers = append(closers, events.Close)
		processOpts.Events = events
	}

	logger.Info("bootstrap_completed",
		"pdfservice_url", cfg.PDFServiceURL,
		"storage_path", storage.BasePath(),
		"run_history", processOpts.Runs != nil,
		"events", events != nil,
	)

	return &App{
		Config: cfg,
		Logger: logger,

		Sessions:    session.NewRegistry(SessionOptions(cfg)),
		OpenUC:      usecase.NewOpenDocumentUseCase(guardedSource, inspector, storage, maxUploadBytes, logger),
		LocalOpenUC: usecase.NewOpenDocumentUseCase(source, inspector, storage, maxUploadBytes, logger),
		ProcessUC:   usecase.NewProcessDocumentUseCase(source, transport, processOpts),
		Exporter:    xlsx.New(),
		Metrics:     processMetrics,

		Resilience: resilienceMetrics,
		Events:     events,

		closeFn: closeAll,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
