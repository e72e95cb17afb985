package ports

import (
	"context"
	"io"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
	"github.com/kirillkom/pdf-markup/internal/core/session"
)

// DocumentOpener is the inbound contract for loading a picked document into a
// session.
type DocumentOpener interface {
	Open(ctx context.Context, sess *session.Session, ref domain.DocumentRef) (domain.DocumentInfo, error)
	Upload(ctx context.Context, sess *session.Session, filename string, body io.Reader) (domain.DocumentRef, domain.DocumentInfo, error)
}

// DocumentProcessor is the inbound contract for running the active mode's
// remote operation.
type DocumentProcessor interface {
	Process(ctx context.Context, sess *session.Session) (domain.DocumentRef, error)
	Runs(ctx context.Context, sessionID string, limit int) ([]domain.ProcessingRun, error)
}

// SessionRegistry owns the live sessions of the HTTP driver.
type SessionRegistry interface {
	Create() *session.Session
	Get(id string) (*session.Session, error)
	Delete(id string) error
}
