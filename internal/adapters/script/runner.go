package script

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
	"github.com/kirillkom/pdf-markup/internal/core/ports"
	"github.com/kirillkom/pdf-markup/internal/core/session"
)

type Options struct {
	Exporter ports.EntityExporter
	Entities ports.EntityObserver
	Session  session.Options
	Logger   *slog.Logger
}

// Runner replays a script against a fresh session.
type Runner struct {
	opener    ports.DocumentOpener
	processor ports.DocumentProcessor
	exporter  ports.EntityExporter
	entities  ports.EntityObserver
	sessOpts  session.Options
	logger    *slog.Logger
}

func NewRunner(opener ports.DocumentOpener, processor ports.DocumentProcessor, options Options) *Runner {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		opener:    opener,
		processor: processor,
		exporter:  options.Exporter,
		entities:  options.Entities,
		sessOpts:  options.Session,
		logger:    logger,
	}
}

type StepResult struct {
	Step     int                 `json:"step"`
	Action   string              `json:"action"`
	Created  *domain.Entity      `json:"created,omitempty"`
	Overlays []domain.Overlay    `json:"overlays,omitempty"`
	Document *domain.DocumentRef `json:"document,omitempty"`
	// Error is the alert a user would have seen for this step.
	Error string `json:"error,omitempty"`
}

type Report struct {
	SessionID string          `json:"sessionId"`
	Steps     []StepResult    `json:"steps"`
	Final     domain.Snapshot `json:"final"`
}

// Failed reports whether any step raised an alert.
func (r Report) Failed() bool {
	for _, step := range r.Steps {
		if step.Error != "" {
			return true
		}
	}
	return false
}

// Run executes the steps in order. Selection, precondition and transport
// errors are recorded on the step and the script goes on unless StopOnError
// is set; any other error aborts the run.
func (r *Runner) Run(ctx context.Context, s Script) (Report, error) {
	sess := session.New(uuid.NewString(), r.sessOpts)
	report := Report{SessionID: sess.ID(), Steps: make([]StepResult, 0, len(s.Steps))}

	for i, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			return r.finish(report, sess), err
		}

		action, err := step.Action()
		if err != nil {
			return r.finish(report, sess), domain.WrapError(domain.ErrInvalidInput, fmt.Sprintf("step %d", i+1), err)
		}
		result := StepResult{Step: i + 1, Action: action}

		err = r.exec(ctx, sess, step, action, &result)
		if err != nil {
			if !isAlert(err) {
				report.Steps = append(report.Steps, result)
				return r.finish(report, sess), fmt.Errorf("step %d (%s): %w", i+1, action, err)
			}
			result.Error = domain.UserMessage(err)
			r.logger.Warn("script_step_failed",
				"session_id", sess.ID(),
				"step", i+1,
				"action", action,
				"error", result.Error,
			)
		}
		report.Steps = append(report.Steps, result)

		if err != nil && s.StopOnError {
			return r.finish(report, sess), fmt.Errorf("step %d (%s): %w", i+1, action, err)
		}
	}
	return r.finish(report, sess), nil
}

func (r *Runner) exec(ctx context.Context, sess *session.Session, step Step, action string, result *StepResult) error {
	switch action {
	case "open":
		if _, err := r.opener.Open(ctx, sess, *step.Open); err != nil {
			return err
		}
		doc := sess.Document()
		result.Document = &doc
	case "mode":
		mode, err := domain.ParseMode(step.Mode)
		if err != nil {
			return err
		}
		answer := session.PromptAnswer{Cancelled: true}
		if step.Watermark != nil {
			answer = session.PromptAnswer{Text: *step.Watermark}
		}
		return sess.SetMode(ctx, mode, answer)
	case "tap":
		entity, err := sess.HandleTap(*step.Tap)
		if err != nil {
			return err
		}
		r.created(entity, result)
	case "drag":
		entity, err := sess.HandleDrag(*step.Drag)
		if err != nil {
			return err
		}
		r.created(entity, result)
	case "clearWatermark":
		sess.ClearWatermark()
	case "process":
		ref, err := r.processor.Process(ctx, sess)
		if err != nil {
			return err
		}
		result.Document = &ref
	case "overlays":
		q := step.Overlays
		result.Overlays = sess.Overlays(q.Page, q.Width, q.Height)
	case "export":
		return r.export(ctx, sess, step.Export)
	default:
		return domain.WrapError(domain.ErrInvalidInput, "run step", fmt.Errorf("unknown action %q", action))
	}
	return nil
}

func (r *Runner) created(entity *domain.Entity, result *StepResult) {
	if entity == nil {
		return
	}
	result.Created = entity
	if r.entities != nil {
		r.entities.RecordEntity(entity.Kind)
	}
}

func (r *Runner) export(ctx context.Context, sess *session.Session, path string) (err error) {
	if r.exporter == nil {
		return domain.WrapError(domain.ErrInvalidInput, "export", fmt.Errorf("no exporter configured"))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close export file: %w", closeErr)
		}
	}()
	return r.exporter.Export(ctx, sess.Snapshot(), f)
}

func (r *Runner) finish(report Report, sess *session.Session) Report {
	report.Final = sess.Snapshot()
	return report
}

func isAlert(err error) bool {
	return domain.IsKind(err, domain.ErrSelection) ||
		domain.IsKind(err, domain.ErrPrecondition) ||
		domain.IsKind(err, domain.ErrTransport)
}
