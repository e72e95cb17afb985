package session

import (
	"errors"
	"fmt"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
	"github.com/kirillkom/pdf-markup/internal/core/geometry"
)

// Size in pixels of a redaction created by a single tap.
const (
	DefaultTapRedactionWidth  = 100.0
	DefaultTapRedactionHeight = 30.0
)

// Interpreter turns raw gestures into entities. The zero value uses the
// default tap redaction size.
type Interpreter struct {
	TapRedactionWidth  float64
	TapRedactionHeight float64
}

// Tap returns the entity a tap creates in mode, or nil when the mode ignores
// taps. annotationCount is the number of annotations already stored and
// numbers the default label.
func (in Interpreter) Tap(mode domain.Mode, ev domain.TapEvent, annotationCount int) (*domain.Entity, error) {
	switch mode {
	case domain.ModeAnnotate:
		text := ev.Text
		if text == "" {
			text = fmt.Sprintf("Note %d", annotationCount+1)
		}
		a, err := AnnotationAt(ev.Page, ev.X, ev.Y, ev.PageWidth, ev.PageHeight, text)
		if err != nil {
			return nil, err
		}
		return &domain.Entity{Kind: domain.EntityAnnotation, Annotation: &a}, nil
	case domain.ModeRedact:
		w, h := in.tapSize()
		r, err := RedactionAroundTap(ev.Page, ev.X, ev.Y, ev.PageWidth, ev.PageHeight, w, h)
		if err != nil {
			return nil, err
		}
		return &domain.Entity{Kind: domain.EntityRedaction, Redaction: &r}, nil
	default:
		return nil, nil
	}
}

// Drag returns the entity a completed drag creates in mode, or nil when the
// mode ignores drags.
func (in Interpreter) Drag(mode domain.Mode, ev domain.DragEvent) (*domain.Entity, error) {
	switch mode {
	case domain.ModeCrop:
		c, err := CropFromDrag(ev.Page, ev.X1, ev.Y1, ev.X2, ev.Y2, ev.PageWidth, ev.PageHeight)
		if err != nil {
			return nil, err
		}
		return &domain.Entity{Kind: domain.EntityCrop, Crop: &c}, nil
	case domain.ModeRedact:
		r, err := RedactionFromDrag(ev.Page, ev.X1, ev.Y1, ev.X2, ev.Y2, ev.PageWidth, ev.PageHeight)
		if err != nil {
			return nil, err
		}
		return &domain.Entity{Kind: domain.EntityRedaction, Redaction: &r}, nil
	default:
		return nil, nil
	}
}

func (in Interpreter) tapSize() (float64, float64) {
	w, h := in.TapRedactionWidth, in.TapRedactionHeight
	if w <= 0 {
		w = DefaultTapRedactionWidth
	}
	if h <= 0 {
		h = DefaultTapRedactionHeight
	}
	return w, h
}

func AnnotationAt(page int, px, py, pageWidth, pageHeight float64, text string) (domain.Annotation, error) {
	if err := checkPageNumber(page); err != nil {
		return domain.Annotation{}, err
	}
	x, y, err := geometry.ToUnit(px, py, pageWidth, pageHeight)
	if err != nil {
		return domain.Annotation{}, err
	}
	return domain.Annotation{PageNumber: page, X: x, Y: y, Text: text}, nil
}

func RedactionAroundTap(page int, px, py, pageWidth, pageHeight, boxWidth, boxHeight float64) (domain.Redaction, error) {
	if err := checkPageNumber(page); err != nil {
		return domain.Redaction{}, err
	}
	box, err := geometry.BoxAroundTap(px, py, boxWidth, boxHeight, pageWidth, pageHeight)
	if err != nil {
		return domain.Redaction{}, err
	}
	return redactionFromBox(page, box)
}

func RedactionFromDrag(page int, x1, y1, x2, y2, pageWidth, pageHeight float64) (domain.Redaction, error) {
	if err := checkPageNumber(page); err != nil {
		return domain.Redaction{}, err
	}
	box, err := geometry.BoxFromDrag(x1, y1, x2, y2, pageWidth, pageHeight)
	if err != nil {
		return domain.Redaction{}, err
	}
	return redactionFromBox(page, box)
}

func CropFromDrag(page int, x1, y1, x2, y2, pageWidth, pageHeight float64) (domain.CropArea, error) {
	if err := checkPageNumber(page); err != nil {
		return domain.CropArea{}, err
	}
	box, err := geometry.BoxFromDrag(x1, y1, x2, y2, pageWidth, pageHeight)
	if err != nil {
		return domain.CropArea{}, err
	}
	if box.Empty() {
		return domain.CropArea{}, domain.WrapError(domain.ErrGeometry, "crop from drag", errors.New("crop area has no area"))
	}
	return domain.CropArea{
		PageNumber: page,
		Left:       box.Left,
		Top:        box.Top,
		Right:      box.Right,
		Bottom:     box.Bottom,
		Width:      box.Width,
		Height:     box.Height,
	}, nil
}

func redactionFromBox(page int, box geometry.Box) (domain.Redaction, error) {
	if box.Empty() {
		return domain.Redaction{}, domain.WrapError(domain.ErrGeometry, "redaction", errors.New("redaction has no area"))
	}
	return domain.Redaction{
		PageNumber: page,
		X:          box.Left,
		Y:          box.Top,
		Width:      box.Width,
		Height:     box.Height,
	}, nil
}

func checkPageNumber(page int) error {
	if page < 1 {
		return domain.WrapError(domain.ErrInvalidInput, "page number", fmt.Errorf("page %d is not positive", page))
	}
	return nil
}
