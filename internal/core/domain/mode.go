package domain

import (
	"fmt"
	"strings"
)

// Mode is the active tool; it decides how gestures are interpreted and which
// operation a process request performs.
type Mode string

const (
	ModeView      Mode = "view"
	ModeCrop      Mode = "crop"
	ModeAnnotate  Mode = "annotate"
	ModeRedact    Mode = "redact"
	ModeCompress  Mode = "compress"
	ModeOCR       Mode = "ocr"
	ModeWatermark Mode = "watermark"
)

var allModes = []Mode{ModeView, ModeCrop, ModeAnnotate, ModeRedact, ModeCompress, ModeOCR, ModeWatermark}

func Modes() []Mode {
	out := make([]Mode, len(allModes))
	copy(out, allModes)
	return out
}

func ParseMode(raw string) (Mode, error) {
	candidate := Mode(strings.ToLower(strings.TrimSpace(raw)))
	for _, m := range allModes {
		if m == candidate {
			return m, nil
		}
	}
	return "", WrapError(ErrInvalidInput, "parse mode", fmt.Errorf("unknown mode %q", raw))
}

func (m Mode) Valid() bool {
	for _, known := range allModes {
		if m == known {
			return true
		}
	}
	return false
}

// Processable reports whether the mode maps to a remote operation.
func (m Mode) Processable() bool {
	return m.Valid() && m != ModeView
}

func (m Mode) String() string {
	return string(m)
}
