package domain

// TapEvent is a single tap in screen pixels on the displayed page. Text is an
// optional annotation label.
type TapEvent struct {
	Page       int     `json:"page" yaml:"page"`
	X          float64 `json:"x" yaml:"x"`
	Y          float64 `json:"y" yaml:"y"`
	PageWidth  float64 `json:"pageWidth" yaml:"pageWidth"`
	PageHeight float64 `json:"pageHeight" yaml:"pageHeight"`
	Text       string  `json:"text,omitempty" yaml:"text,omitempty"`
}

// DragEvent is a completed pan from (X1,Y1) to (X2,Y2) in screen pixels.
type DragEvent struct {
	Page       int     `json:"page" yaml:"page"`
	X1         float64 `json:"x1" yaml:"x1"`
	Y1         float64 `json:"y1" yaml:"y1"`
	X2         float64 `json:"x2" yaml:"x2"`
	Y2         float64 `json:"y2" yaml:"y2"`
	PageWidth  float64 `json:"pageWidth" yaml:"pageWidth"`
	PageHeight float64 `json:"pageHeight" yaml:"pageHeight"`
}
