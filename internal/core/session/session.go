package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
	"github.com/kirillkom/pdf-markup/internal/core/geometry"
)

type Options struct {
	Interpreter Interpreter
}

// Session is the state of one markup workspace: the working document, the
// active mode, the entity store and the busy flag. All mutations go through
// its methods, which are safe for concurrent use. Prompters passed to SetMode
// run under the session lock and must not call back into the session.
type Session struct {
	id        string
	createdAt time.Time

	mu        sync.Mutex
	doc       domain.DocumentRef
	info      domain.DocumentInfo
	store     *Store
	modes     *ModeController
	busy      bool
	updatedAt time.Time
}

func New(id string, opts Options) *Session {
	now := time.Now().UTC()
	return &Session{
		id:        id,
		createdAt: now,
		updatedAt: now,
		store:     NewStore(opts.Interpreter),
		modes:     NewModeController(),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.busy && s.updatedAt.Before(cutoff)
}

// HandleTap interprets a tap in the active mode and stores the result. A nil
// entity with a nil error means the tap created nothing, including taps on a
// page whose size is not yet known.
func (s *Session) HandleTap(ev domain.TapEvent) (*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.gestureAllowedLocked(ev.Page); err != nil {
		return nil, err
	}
	entity, err := s.store.Tap(s.modes.Mode(), ev)
	return s.storedLocked(entity, err)
}

// HandleDrag is HandleTap for completed drags.
func (s *Session) HandleDrag(ev domain.DragEvent) (*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.gestureAllowedLocked(ev.Page); err != nil {
		return nil, err
	}
	entity, err := s.store.Drag(s.modes.Mode(), ev)
	return s.storedLocked(entity, err)
}

// gestureAllowedLocked rejects gestures while processing runs, before a
// document is loaded and on pages past the end of the document. A page count
// of zero means the document was not inspected and any page is accepted.
func (s *Session) gestureAllowedLocked(page int) error {
	if s.busy {
		return domain.NewError(domain.ErrBusy, domain.MsgOperationPending)
	}
	if s.doc.IsZero() {
		return domain.NewError(domain.ErrSelection, domain.MsgNoDocument)
	}
	if s.info.Pages > 0 && page > s.info.Pages {
		return domain.WrapError(domain.ErrInvalidInput, "page number", fmt.Errorf("page %d is past the last page %d", page, s.info.Pages))
	}
	return nil
}

func (s *Session) storedLocked(entity *domain.Entity, err error) (*domain.Entity, error) {
	if err != nil {
		if domain.IsKind(err, domain.ErrGeometry) {
			slog.Debug("gesture_ignored", "session_id", s.id, "mode", s.modes.Mode().String(), "error", err)
			return nil, nil
		}
		return nil, err
	}
	if entity == nil {
		return nil, nil
	}
	s.updatedAt = time.Now().UTC()
	return entity, nil
}

func (s *Session) SetMode(ctx context.Context, mode domain.Mode, prompter WatermarkPrompter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.modes.SetMode(ctx, mode, prompter)
	s.updatedAt = time.Now().UTC()
	return err
}

func (s *Session) ClearWatermark() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.modes.ClearWatermark()
	s.updatedAt = time.Now().UTC()
}

// LoadDocument makes ref the working document, clears the store and returns to
// view mode. The watermark text is kept.
func (s *Session) LoadDocument(ref domain.DocumentRef, info domain.DocumentInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return domain.NewError(domain.ErrBusy, domain.MsgOperationPending)
	}
	s.doc = ref
	s.info = info
	s.store.Reset()
	s.modes.resetMode()
	s.updatedAt = time.Now().UTC()
	return nil
}

// Document returns the working document reference.
func (s *Session) Document() domain.DocumentRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// BeginProcessing raises the busy flag and returns the state to submit.
func (s *Session) BeginProcessing() (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc.IsZero() {
		return domain.Snapshot{}, domain.NewError(domain.ErrSelection, domain.MsgNoDocument)
	}
	if s.busy {
		return domain.Snapshot{}, domain.NewError(domain.ErrBusy, domain.MsgOperationPending)
	}
	s.busy = true
	return s.snapshotLocked(), nil
}

// CompleteProcessing swaps in the processed document, clears the store and
// lowers the busy flag in one step.
func (s *Session) CompleteProcessing(ref domain.DocumentRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc = ref
	s.store.Reset()
	s.busy = false
	s.updatedAt = time.Now().UTC()
}

// AbortProcessing lowers the busy flag and leaves everything else as it was.
func (s *Session) AbortProcessing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
}

func (s *Session) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() domain.Snapshot {
	info := s.info
	info.PageSizes = append([]domain.PageSize(nil), s.info.PageSizes...)
	return domain.Snapshot{
		Document:    s.doc,
		Info:        info,
		Mode:        s.modes.Mode(),
		Annotations: s.store.Annotations(),
		Redactions:  s.store.Redactions(),
		Crop:        s.store.Crop(),
		Watermark:   s.modes.Watermark(),
		Busy:        s.busy,
	}
}

// Overlays converts the entities of page back to pixels for a page displayed
// at pageWidth x pageHeight. Nothing is returned until the page is measured.
func (s *Session) Overlays(page int, pageWidth, pageHeight float64) []domain.Overlay {
	if !(pageWidth > 0) || !(pageHeight > 0) || math.IsInf(pageWidth, 0) || math.IsInf(pageHeight, 0) {
		return nil
	}

	s.mu.Lock()
	annotations, redactions, crop := s.store.ForPage(page)
	s.mu.Unlock()

	out := make([]domain.Overlay, 0, len(annotations)+len(redactions)+1)
	for _, a := range annotations {
		left, top := geometry.ToPixel(a.X, a.Y, pageWidth, pageHeight)
		out = append(out, domain.Overlay{
			Kind: domain.EntityAnnotation,
			Page: page,
			Left: left,
			Top:  top,
			Text: a.Text,
		})
	}
	for _, r := range redactions {
		left, top, width, height := geometry.BoxToPixel(geometry.Box{Left: r.X, Top: r.Y, Width: r.Width, Height: r.Height}, pageWidth, pageHeight)
		out = append(out, domain.Overlay{
			Kind:   domain.EntityRedaction,
			Page:   page,
			Left:   left,
			Top:    top,
			Width:  width,
			Height: height,
		})
	}
	if crop != nil {
		left, top, width, height := geometry.BoxToPixel(geometry.Box{Left: crop.Left, Top: crop.Top, Width: crop.Width, Height: crop.Height}, pageWidth, pageHeight)
		out = append(out, domain.Overlay{
			Kind:   domain.EntityCrop,
			Page:   page,
			Left:   left,
			Top:    top,
			Width:  width,
			Height: height,
		})
	}
	return out
}
