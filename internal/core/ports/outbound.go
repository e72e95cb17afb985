package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
)

// DocumentTransport sends a document and its entities to the processing
// service and returns a reference to the replacement document.
type DocumentTransport interface {
	Process(ctx context.Context, req domain.ProcessRequest) (domain.DocumentRef, error)
}

// DocumentSource loads the bytes behind a document reference.
type DocumentSource interface {
	Load(ctx context.Context, ref domain.DocumentRef) ([]byte, error)
}

// DocumentInspector checks that bytes form a PDF and reports its pages.
type DocumentInspector interface {
	Inspect(ctx context.Context, data []byte) (domain.DocumentInfo, error)
}

// ObjectStorage stores uploaded and processed documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (domain.DocumentRef, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// RunRecorder persists processing history.
type RunRecorder interface {
	RecordRun(ctx context.Context, run domain.ProcessingRun) error
	ListRuns(ctx context.Context, sessionID string, limit int) ([]domain.ProcessingRun, error)
}

// EventPublisher announces processed documents.
type EventPublisher interface {
	PublishDocumentProcessed(ctx context.Context, event domain.DocumentProcessedEvent) error
}

// EntityExporter writes a snapshot's entities in a tabular format.
type EntityExporter interface {
	Export(ctx context.Context, snapshot domain.Snapshot, w io.Writer) error
}

// ProcessObserver receives processing outcomes for metrics.
type ProcessObserver interface {
	StartProcess(mode domain.Mode)
	FinishProcess(mode domain.Mode, entityCount int, duration time.Duration, err error)
}

// EntityObserver counts entities created by gestures.
type EntityObserver interface {
	RecordEntity(kind domain.EntityKind)
}
