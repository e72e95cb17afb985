// Package geometry converts between on-screen pixel coordinates and
// page-relative unit coordinates.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
)

var unitSquare = r2.Rect{
	X: r1.Interval{Lo: 0, Hi: 1},
	Y: r1.Interval{Lo: 0, Hi: 1},
}

// Box is an axis-aligned region in unit coordinates, top-left origin.
type Box struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
	Width  float64
	Height float64
}

func (b Box) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// ToUnit divides a pixel position by the page size. The result is clamped to
// the unit square.
func ToUnit(px, py, pageWidth, pageHeight float64) (float64, float64, error) {
	if err := checkPage(pageWidth, pageHeight); err != nil {
		return 0, 0, err
	}
	if err := checkFinite(px, py); err != nil {
		return 0, 0, err
	}
	p := unitSquare.ClampPoint(r2.Point{X: px / pageWidth, Y: py / pageHeight})
	return p.X, p.Y, nil
}

func ToPixel(ux, uy, pageWidth, pageHeight float64) (float64, float64) {
	return ux * pageWidth, uy * pageHeight
}

// BoxFromDrag returns the bounding box of two drag points.
func BoxFromDrag(x1, y1, x2, y2, pageWidth, pageHeight float64) (Box, error) {
	if err := checkPage(pageWidth, pageHeight); err != nil {
		return Box{}, err
	}
	if err := checkFinite(x1, y1, x2, y2); err != nil {
		return Box{}, err
	}
	box := Box{
		Left:   math.Min(x1, x2) / pageWidth,
		Top:    math.Min(y1, y2) / pageHeight,
		Right:  math.Max(x1, x2) / pageWidth,
		Bottom: math.Max(y1, y2) / pageHeight,
		Width:  math.Abs(x2-x1) / pageWidth,
		Height: math.Abs(y2-y1) / pageHeight,
	}
	return clampBox(box)
}

// BoxAroundTap centers a box of boxWidth x boxHeight pixels on a tap.
func BoxAroundTap(px, py, boxWidth, boxHeight, pageWidth, pageHeight float64) (Box, error) {
	if err := checkPage(pageWidth, pageHeight); err != nil {
		return Box{}, err
	}
	if err := checkFinite(px, py, boxWidth, boxHeight); err != nil {
		return Box{}, err
	}
	w := math.Abs(boxWidth) / pageWidth
	h := math.Abs(boxHeight) / pageHeight
	left := px/pageWidth - w/2
	top := py/pageHeight - h/2
	return clampBox(Box{
		Left:   left,
		Top:    top,
		Right:  left + w,
		Bottom: top + h,
		Width:  w,
		Height: h,
	})
}

// BoxToPixel scales a unit box back to the displayed page.
func BoxToPixel(b Box, pageWidth, pageHeight float64) (left, top, width, height float64) {
	left, top = ToPixel(b.Left, b.Top, pageWidth, pageHeight)
	width, height = ToPixel(b.Width, b.Height, pageWidth, pageHeight)
	return left, top, width, height
}

// clampBox keeps exact values for boxes inside the page and intersects the
// rest with the unit square.
func clampBox(b Box) (Box, error) {
	rect := r2.RectFromPoints(
		r2.Point{X: b.Left, Y: b.Top},
		r2.Point{X: b.Right, Y: b.Bottom},
	)
	if unitSquare.Contains(rect) {
		return b, nil
	}
	clipped := rect.Intersection(unitSquare)
	if clipped.IsEmpty() {
		return Box{}, domain.WrapError(domain.ErrGeometry, "clamp box", errors.New("box lies outside the page"))
	}
	return Box{
		Left:   clipped.X.Lo,
		Top:    clipped.Y.Lo,
		Right:  clipped.X.Hi,
		Bottom: clipped.Y.Hi,
		Width:  clipped.X.Length(),
		Height: clipped.Y.Length(),
	}, nil
}

func checkPage(pageWidth, pageHeight float64) error {
	if !(pageWidth > 0) || !(pageHeight > 0) || math.IsInf(pageWidth, 0) || math.IsInf(pageHeight, 0) {
		return domain.WrapError(domain.ErrGeometry, "normalize", fmt.Errorf("page size %gx%g not measured", pageWidth, pageHeight))
	}
	return nil
}

func checkFinite(values ...float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.WrapError(domain.ErrGeometry, "normalize", fmt.Errorf("non-finite coordinate %g", v))
		}
	}
	return nil
}
