package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
	"github.com/kirillkom/pdf-markup/internal/core/ports"
	"github.com/kirillkom/pdf-markup/internal/core/session"
)

const defaultMaxUploadBytes = 100 << 20

// OpenDocumentUseCase makes a picked file the working document of a session.
type OpenDocumentUseCase struct {
	source    ports.DocumentSource
	inspector ports.DocumentInspector
	storage   ports.ObjectStorage
	maxUpload int64
	logger    *slog.Logger
}

func NewOpenDocumentUseCase(
	source ports.DocumentSource,
	inspector ports.DocumentInspector,
	storage ports.ObjectStorage,
	maxUploadBytes int64,
	logger *slog.Logger,
) *OpenDocumentUseCase {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenDocumentUseCase{
		source:    source,
		inspector: inspector,
		storage:   storage,
		maxUpload: maxUploadBytes,
		logger:    logger,
	}
}

// Open loads ref, checks it is a PDF and hands it to the session. The session
// is untouched when any step fails.
func (uc *OpenDocumentUseCase) Open(ctx context.Context, sess *session.Session, ref domain.DocumentRef) (domain.DocumentInfo, error) {
	if strings.TrimSpace(ref.URI) == "" {
		return domain.DocumentInfo{}, domain.NewError(domain.ErrSelection, domain.MsgNoDocument)
	}
	data, err := uc.source.Load(ctx, ref)
	if err != nil {
		return domain.DocumentInfo{}, fmt.Errorf("load document: %w", err)
	}
	return uc.adopt(ctx, sess, ref, data)
}

// Upload stores an uploaded file and opens it. Files that are not PDFs are
// rejected before anything is written.
func (uc *OpenDocumentUseCase) Upload(ctx context.Context, sess *session.Session, filename string, body io.Reader) (domain.DocumentRef, domain.DocumentInfo, error) {
	if uc.storage == nil {
		return domain.DocumentRef{}, domain.DocumentInfo{}, fmt.Errorf("upload: no document storage configured")
	}

	data, err := io.ReadAll(io.LimitReader(body, uc.maxUpload+1))
	if err != nil {
		return domain.DocumentRef{}, domain.DocumentInfo{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > uc.maxUpload {
		return domain.DocumentRef{}, domain.DocumentInfo{}, domain.NewError(domain.ErrInvalidInput, fmt.Sprintf("document exceeds %d bytes", uc.maxUpload))
	}
	if len(data) == 0 {
		return domain.DocumentRef{}, domain.DocumentInfo{}, domain.NewError(domain.ErrSelection, domain.MsgNoDocument)
	}

	info, err := uc.inspector.Inspect(ctx, data)
	if err != nil {
		return domain.DocumentRef{}, domain.DocumentInfo{}, err
	}

	key := fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(filename))
	ref, err := uc.storage.Save(ctx, key, bytes.NewReader(data))
	if err != nil {
		return domain.DocumentRef{}, domain.DocumentInfo{}, fmt.Errorf("save to object storage: %w", err)
	}
	if name := filepath.Base(strings.TrimSpace(filename)); name != "" && name != "." {
		ref.Name = name
	}

	if err := sess.LoadDocument(ref, info); err != nil {
		return domain.DocumentRef{}, domain.DocumentInfo{}, err
	}
	uc.logger.Info("document_opened", "session_id", sess.ID(), "uri", ref.URI, "pages", info.Pages)
	return ref, info, nil
}

func (uc *OpenDocumentUseCase) adopt(ctx context.Context, sess *session.Session, ref domain.DocumentRef, data []byte) (domain.DocumentInfo, error) {
	info, err := uc.inspector.Inspect(ctx, data)
	if err != nil {
		return domain.DocumentInfo{}, err
	}
	if ref.Name == "" {
		ref.Name = filepath.Base(ref.URI)
	}
	if err := sess.LoadDocument(ref, info); err != nil {
		return domain.DocumentInfo{}, err
	}
	uc.logger.Info("document_opened", "session_id", sess.ID(), "uri", ref.URI, "pages", info.Pages)
	return info, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "_" {
		return "document.pdf"
	}
	return base
}
