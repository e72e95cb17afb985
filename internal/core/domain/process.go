package domain

import (
	"strings"
	"time"
)

// ProcessRequest is everything the transport needs for one remote operation.
type ProcessRequest struct {
	Mode        Mode
	Source      DocumentRef
	PDF         []byte
	Annotations []Annotation
	Redactions  []Redaction
	Crop        *CropArea
	Watermark   WatermarkSpec
}

// NewProcessRequest copies the entity state of a snapshot. PDF bytes are
// attached later by the caller.
func NewProcessRequest(s Snapshot) ProcessRequest {
	req := ProcessRequest{
		Mode:        s.Mode,
		Source:      s.Document,
		Annotations: append([]Annotation(nil), s.Annotations...),
		Redactions:  append([]Redaction(nil), s.Redactions...),
		Watermark:   s.Watermark,
	}
	if s.Crop != nil {
		crop := *s.Crop
		req.Crop = &crop
	}
	return req
}

// Validate checks the local state required by the selected mode.
func (r ProcessRequest) Validate() error {
	switch r.Mode {
	case ModeCrop:
		if r.Crop == nil {
			return NewError(ErrPrecondition, MsgNoCropArea)
		}
	case ModeAnnotate:
		if len(r.Annotations) == 0 {
			return NewError(ErrPrecondition, MsgNoAnnotations)
		}
	case ModeRedact:
		if len(r.Redactions) == 0 {
			return NewError(ErrPrecondition, MsgNoRedactions)
		}
	case ModeWatermark:
		if strings.TrimSpace(r.Watermark.Text) == "" {
			return NewError(ErrPrecondition, MsgNoWatermarkText)
		}
	case ModeCompress, ModeOCR:
	default:
		return NewError(ErrPrecondition, MsgNoOperation)
	}
	return nil
}

// EntityCount is the number of entities the request submits.
func (r ProcessRequest) EntityCount() int {
	switch r.Mode {
	case ModeAnnotate:
		return len(r.Annotations)
	case ModeRedact:
		return len(r.Redactions)
	case ModeCrop:
		if r.Crop != nil {
			return 1
		}
	}
	return 0
}

type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// ProcessingRun is the history record of one process call.
type ProcessingRun struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Mode        Mode      `json:"mode"`
	SourceURI   string    `json:"source_uri"`
	ResultURI   string    `json:"result_uri,omitempty"`
	Status      RunStatus `json:"status"`
	Error       string    `json:"error,omitempty"`
	EntityCount int       `json:"entity_count"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// DocumentProcessedEvent is published after a successful run.
type DocumentProcessedEvent struct {
	RunID     string    `json:"run_id"`
	SessionID string    `json:"session_id"`
	Mode      Mode      `json:"mode"`
	SourceURI string    `json:"source_uri"`
	ResultURI string    `json:"result_uri"`
	At        time.Time `json:"at"`
}
