package session

import (
	"github.com/kirillkom/pdf-markup/internal/core/domain"
)

// Store holds the entities of the working document. Annotations and
// redactions only grow until Reset; the crop area is replaced.
type Store struct {
	interp      Interpreter
	annotations []domain.Annotation
	redactions  []domain.Redaction
	crop        *domain.CropArea
}

func NewStore(interp Interpreter) *Store {
	return &Store{interp: interp}
}

// Tap stores the entity a tap creates in mode. A nil entity with a nil error
// means the mode ignores taps.
func (s *Store) Tap(mode domain.Mode, ev domain.TapEvent) (*domain.Entity, error) {
	e, err := s.interp.Tap(mode, ev, len(s.annotations))
	if err != nil || e == nil {
		return nil, err
	}
	s.Apply(*e)
	return e, nil
}

// Drag is Tap for completed drags.
func (s *Store) Drag(mode domain.Mode, ev domain.DragEvent) (*domain.Entity, error) {
	e, err := s.interp.Drag(mode, ev)
	if err != nil || e == nil {
		return nil, err
	}
	s.Apply(*e)
	return e, nil
}

// AddAnnotation labels the note "Note N" when text is empty.
func (s *Store) AddAnnotation(page int, px, py, pageWidth, pageHeight float64, text string) (domain.Annotation, error) {
	e, err := s.Tap(domain.ModeAnnotate, domain.TapEvent{Page: page, X: px, Y: py, PageWidth: pageWidth, PageHeight: pageHeight, Text: text})
	if err != nil {
		return domain.Annotation{}, err
	}
	return *e.Annotation, nil
}

func (s *Store) AddRedactionFromTap(page int, px, py, pageWidth, pageHeight float64) (domain.Redaction, error) {
	e, err := s.Tap(domain.ModeRedact, domain.TapEvent{Page: page, X: px, Y: py, PageWidth: pageWidth, PageHeight: pageHeight})
	if err != nil {
		return domain.Redaction{}, err
	}
	return *e.Redaction, nil
}

func (s *Store) AddRedactionFromDrag(page int, x1, y1, x2, y2, pageWidth, pageHeight float64) (domain.Redaction, error) {
	e, err := s.Drag(domain.ModeRedact, dragEvent(page, x1, y1, x2, y2, pageWidth, pageHeight))
	if err != nil {
		return domain.Redaction{}, err
	}
	return *e.Redaction, nil
}

// SetCropFromDrag replaces any existing crop area.
func (s *Store) SetCropFromDrag(page int, x1, y1, x2, y2, pageWidth, pageHeight float64) (domain.CropArea, error) {
	e, err := s.Drag(domain.ModeCrop, dragEvent(page, x1, y1, x2, y2, pageWidth, pageHeight))
	if err != nil {
		return domain.CropArea{}, err
	}
	return *e.Crop, nil
}

func dragEvent(page int, x1, y1, x2, y2, pageWidth, pageHeight float64) domain.DragEvent {
	return domain.DragEvent{Page: page, X1: x1, Y1: y1, X2: x2, Y2: y2, PageWidth: pageWidth, PageHeight: pageHeight}
}

// Apply stores an interpreted entity.
func (s *Store) Apply(e domain.Entity) {
	switch {
	case e.Annotation != nil:
		s.annotations = append(s.annotations, *e.Annotation)
	case e.Redaction != nil:
		s.redactions = append(s.redactions, *e.Redaction)
	case e.Crop != nil:
		crop := *e.Crop
		s.crop = &crop
	}
}

// Reset clears every collection. The watermark lives outside the store.
func (s *Store) Reset() {
	s.annotations = nil
	s.redactions = nil
	s.crop = nil
}

func (s *Store) Annotations() []domain.Annotation {
	return append([]domain.Annotation(nil), s.annotations...)
}

func (s *Store) Redactions() []domain.Redaction {
	return append([]domain.Redaction(nil), s.redactions...)
}

func (s *Store) Crop() *domain.CropArea {
	if s.crop == nil {
		return nil
	}
	crop := *s.crop
	return &crop
}

func (s *Store) AnnotationCount() int {
	return len(s.annotations)
}

// ForPage returns the entities created on page, in creation order.
func (s *Store) ForPage(page int) ([]domain.Annotation, []domain.Redaction, *domain.CropArea) {
	var annotations []domain.Annotation
	for _, a := range s.annotations {
		if a.PageNumber == page {
			annotations = append(annotations, a)
		}
	}
	var redactions []domain.Redaction
	for _, r := range s.redactions {
		if r.PageNumber == page {
			redactions = append(redactions, r)
		}
	}
	var crop *domain.CropArea
	if s.crop != nil && s.crop.PageNumber == page {
		c := *s.crop
		crop = &c
	}
	return annotations, redactions, crop
}
