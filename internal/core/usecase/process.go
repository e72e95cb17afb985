package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
	"github.com/kirillkom/pdf-markup/internal/core/ports"
	"github.com/kirillkom/pdf-markup/internal/core/session"
)

// ProcessDocumentUseCase submits the working document and the entities of the
// active mode to the processing service and swaps in the result.
type ProcessDocumentUseCase struct {
	source    ports.DocumentSource
	transport ports.DocumentTransport
	runs      ports.RunRecorder
	events    ports.EventPublisher
	observer  ports.ProcessObserver
	logger    *slog.Logger
	now       func() time.Time
}

type ProcessOptions struct {
	Runs     ports.RunRecorder
	Events   ports.EventPublisher
	Observer ports.ProcessObserver
	Logger   *slog.Logger
}

func NewProcessDocumentUseCase(
	source ports.DocumentSource,
	transport ports.DocumentTransport,
	options ProcessOptions,
) *ProcessDocumentUseCase {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessDocumentUseCase{
		source:    source,
		transport: transport,
		runs:      options.Runs,
		events:    options.Events,
		observer:  options.Observer,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Process runs the active mode's operation. Precondition failures are
// reported before any I/O and leave the session exactly as it was; so does a
// failed remote call.
func (uc *ProcessDocumentUseCase) Process(ctx context.Context, sess *session.Session) (domain.DocumentRef, error) {
	snapshot, err := sess.BeginProcessing()
	if err != nil {
		return domain.DocumentRef{}, err
	}
	completed := false
	defer func() {
		if !completed {
			sess.AbortProcessing()
		}
	}()

	req := domain.NewProcessRequest(snapshot)
	if err := req.Validate(); err != nil {
		return domain.DocumentRef{}, err
	}

	startedAt := uc.now()
	if uc.observer != nil {
		uc.observer.StartProcess(req.Mode)
	}

	ref, err := uc.run(ctx, &req)

	finishedAt := uc.now()
	if uc.observer != nil {
		uc.observer.FinishProcess(req.Mode, req.EntityCount(), finishedAt.Sub(startedAt), err)
	}

	run := domain.ProcessingRun{
		ID:          uuid.NewString(),
		SessionID:   sess.ID(),
		Mode:        req.Mode,
		SourceURI:   snapshot.Document.URI,
		EntityCount: req.EntityCount(),
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
	}

	if err != nil {
		run.Status = domain.RunFailed
		run.Error = domain.UserMessage(err)
		uc.logger.Warn("process_failed",
			"session_id", sess.ID(),
			"mode", req.Mode.String(),
			"error", err,
		)
		uc.record(ctx, run)
		return domain.DocumentRef{}, err
	}

	sess.CompleteProcessing(ref)
	completed = true

	run.Status = domain.RunSucceeded
	run.ResultURI = ref.URI
	uc.logger.Info("process_completed",
		"session_id", sess.ID(),
		"mode", req.Mode.String(),
		"entities", req.EntityCount(),
		"result_uri", ref.URI,
		"duration_ms", finishedAt.Sub(startedAt).Milliseconds(),
	)
	uc.record(ctx, run)
	uc.publish(ctx, run)
	return ref, nil
}

func (uc *ProcessDocumentUseCase) run(ctx context.Context, req *domain.ProcessRequest) (domain.DocumentRef, error) {
	data, err := uc.source.Load(ctx, req.Source)
	if err != nil {
		return domain.DocumentRef{}, err
	}
	req.PDF = data
	return uc.transport.Process(ctx, *req)
}

func (uc *ProcessDocumentUseCase) record(ctx context.Context, run domain.ProcessingRun) {
	if uc.runs == nil {
		return
	}
	if err := uc.runs.RecordRun(ctx, run); err != nil {
		uc.logger.Warn("run_record_failed", "run_id", run.ID, "error", err)
	}
}

func (uc *ProcessDocumentUseCase) publish(ctx context.Context, run domain.ProcessingRun) {
	if uc.events == nil {
		return
	}
	event := domain.DocumentProcessedEvent{
		RunID:     run.ID,
		SessionID: run.SessionID,
		Mode:      run.Mode,
		SourceURI: run.SourceURI,
		ResultURI: run.ResultURI,
		At:        run.FinishedAt,
	}
	if err := uc.events.PublishDocumentProcessed(ctx, event); err != nil {
		uc.logger.Warn("event_publish_failed", "run_id", run.ID, "error", err)
	}
}

// Runs lists a session's processing history when a recorder is configured.
func (uc *ProcessDocumentUseCase) Runs(ctx context.Context, sessionID string, limit int) ([]domain.ProcessingRun, error) {
	if uc.runs == nil {
		return nil, domain.NewError(domain.ErrNotFound, "run history is not configured")
	}
	return uc.runs.ListRuns(ctx, sessionID, limit)
}
