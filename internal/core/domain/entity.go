package domain

// All coordinates below are unit-interval ratios of the page they were
// created on, independent of zoom and device resolution.

type Annotation struct {
	PageNumber int     `json:"pageNumber" yaml:"pageNumber"`
	X          float64 `json:"x" yaml:"x"`
	Y          float64 `json:"y" yaml:"y"`
	Text       string  `json:"text" yaml:"text"`
}

// Redaction is anchored at its top-left corner.
type Redaction struct {
	PageNumber int     `json:"pageNumber" yaml:"pageNumber"`
	X          float64 `json:"x" yaml:"x"`
	Y          float64 `json:"y" yaml:"y"`
	Width      float64 `json:"width" yaml:"width"`
	Height     float64 `json:"height" yaml:"height"`
}

type CropArea struct {
	PageNumber int     `json:"pageNumber" yaml:"pageNumber"`
	Left       float64 `json:"left" yaml:"left"`
	Top        float64 `json:"top" yaml:"top"`
	Right      float64 `json:"right" yaml:"right"`
	Bottom     float64 `json:"bottom" yaml:"bottom"`
	Width      float64 `json:"width" yaml:"width"`
	Height     float64 `json:"height" yaml:"height"`
}

type WatermarkSpec struct {
	Text string `json:"text" yaml:"text"`
}

type EntityKind string

const (
	EntityAnnotation EntityKind = "annotation"
	EntityRedaction  EntityKind = "redaction"
	EntityCrop       EntityKind = "crop"
)

// Entity is the result of interpreting one gesture. Exactly one of the
// pointers matching Kind is set.
type Entity struct {
	Kind       EntityKind  `json:"kind"`
	Annotation *Annotation `json:"annotation,omitempty"`
	Redaction  *Redaction  `json:"redaction,omitempty"`
	Crop       *CropArea   `json:"crop,omitempty"`
}

func (e Entity) PageNumber() int {
	switch {
	case e.Annotation != nil:
		return e.Annotation.PageNumber
	case e.Redaction != nil:
		return e.Redaction.PageNumber
	case e.Crop != nil:
		return e.Crop.PageNumber
	default:
		return 0
	}
}

type DocumentRef struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

func (r DocumentRef) IsZero() bool {
	return r.URI == ""
}

type PageSize struct {
	Number int     `json:"number"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type DocumentInfo struct {
	Pages     int        `json:"pages"`
	PageSizes []PageSize `json:"pageSizes,omitempty"`
}

// Overlay is an entity converted back to pixel space for the page currently on
// screen.
type Overlay struct {
	Kind   EntityKind `json:"kind"`
	Page   int        `json:"page"`
	Left   float64    `json:"left"`
	Top    float64    `json:"top"`
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
	Text   string     `json:"text,omitempty"`
}

// Snapshot is a detached copy of a session's state.
type Snapshot struct {
	Document    DocumentRef   `json:"document"`
	Info        DocumentInfo  `json:"info"`
	Mode        Mode          `json:"mode"`
	Annotations []Annotation  `json:"annotations"`
	Redactions  []Redaction   `json:"redactions"`
	Crop        *CropArea     `json:"crop,omitempty"`
	Watermark   WatermarkSpec `json:"watermark"`
	Busy        bool          `json:"busy"`
}

func (s Snapshot) EntityCount() int {
	n := len(s.Annotations) + len(s.Redactions)
	if s.Crop != nil {
		n++
	}
	return n
}
