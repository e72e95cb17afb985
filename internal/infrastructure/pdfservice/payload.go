package pdfservice

import (
	"encoding/base64"
	"fmt"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
)

// PayloadDefaults are the presentation attributes the client does not collect
// from gestures.
type PayloadDefaults struct {
	AnnotationColor   string
	AnnotationType    string
	RedactionFill     string
	WatermarkOpacity  float64
	WatermarkRotation float64
	WatermarkFontSize int
}

func DefaultPayloadDefaults() PayloadDefaults {
	return PayloadDefaults{
		AnnotationColor:   "#FFEB3B",
		AnnotationType:    "text",
		RedactionFill:     "#000000",
		WatermarkOpacity:  0.3,
		WatermarkRotation: 45,
		WatermarkFontSize: 48,
	}
}

func (d PayloadDefaults) normalize() PayloadDefaults {
	def := DefaultPayloadDefaults()
	if d == (PayloadDefaults{}) {
		return def
	}
	out := d
	if out.AnnotationColor == "" {
		out.AnnotationColor = def.AnnotationColor
	}
	if out.AnnotationType == "" {
		out.AnnotationType = def.AnnotationType
	}
	if out.RedactionFill == "" {
		out.RedactionFill = def.RedactionFill
	}
	if out.WatermarkOpacity <= 0 || out.WatermarkOpacity > 1 {
		out.WatermarkOpacity = def.WatermarkOpacity
	}
	if out.WatermarkFontSize <= 0 {
		out.WatermarkFontSize = def.WatermarkFontSize
	}
	return out
}

type cropBody struct {
	PDF    string  `json:"pdf"`
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type annotationItem struct {
	Page  int     `json:"page"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Text  string  `json:"text"`
	Color string  `json:"color"`
	Type  string  `json:"type"`
}

type annotateBody struct {
	PDF         string           `json:"pdf"`
	Annotations []annotationItem `json:"annotations"`
}

type redactionItem struct {
	Page      int     `json:"page"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	FillColor string  `json:"fillColor"`
}

type redactBody struct {
	PDF        string          `json:"pdf"`
	Redactions []redactionItem `json:"redactions"`
}

type watermarkBody struct {
	PDF      string  `json:"pdf"`
	Text     string  `json:"text"`
	Opacity  float64 `json:"opacity"`
	Rotation float64 `json:"rotation"`
	FontSize int     `json:"fontSize"`
}

type documentBody struct {
	PDF string `json:"pdf"`
}

// buildPayload returns the JSON body for the request's mode. Preconditions
// must already hold.
func buildPayload(req domain.ProcessRequest, defaults PayloadDefaults) (any, error) {
	encoded := base64.StdEncoding.EncodeToString(req.PDF)

	switch req.Mode {
	case domain.ModeCrop:
		return cropBody{
			PDF:    encoded,
			Page:   req.Crop.PageNumber,
			X:      req.Crop.Left,
			Y:      req.Crop.Top,
			Width:  req.Crop.Width,
			Height: req.Crop.Height,
		}, nil
	case domain.ModeAnnotate:
		items := make([]annotationItem, 0, len(req.Annotations))
		for _, a := range req.Annotations {
			items = append(items, annotationItem{
				Page:  a.PageNumber,
				X:     a.X,
				Y:     a.Y,
				Text:  a.Text,
				Color: defaults.AnnotationColor,
				Type:  defaults.AnnotationType,
			})
		}
		return annotateBody{PDF: encoded, Annotations: items}, nil
	case domain.ModeRedact:
		items := make([]redactionItem, 0, len(req.Redactions))
		for _, r := range req.Redactions {
			items = append(items, redactionItem{
				Page:      r.PageNumber,
				X:         r.X,
				Y:         r.Y,
				Width:     r.Width,
				Height:    r.Height,
				FillColor: defaults.RedactionFill,
			})
		}
		return redactBody{PDF: encoded, Redactions: items}, nil
	case domain.ModeWatermark:
		return watermarkBody{
			PDF:      encoded,
			Text:     req.Watermark.Text,
			Opacity:  defaults.WatermarkOpacity,
			Rotation: defaults.WatermarkRotation,
			FontSize: defaults.WatermarkFontSize,
		}, nil
	case domain.ModeCompress, domain.ModeOCR:
		return documentBody{PDF: encoded}, nil
	default:
		return nil, fmt.Errorf("no payload for mode %q", req.Mode)
	}
}
