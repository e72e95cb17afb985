package script

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
)

// Script is a recorded markup session. Each step performs exactly one action.
//
//	stopOnError: false
//	steps:
//	  - open: {uri: ./contract.pdf}
//	  - mode: redact
//	  - drag: {page: 1, x1: 40, y1: 40, x2: 140, y2: 100, pageWidth: 200, pageHeight: 400}
//	  - mode: watermark
//	    watermark: CONFIDENTIAL
//	  - process: true
//	  - export: entities.xlsx
type Script struct {
	StopOnError bool   `yaml:"stopOnError"`
	Steps       []Step `yaml:"steps"`
}

type Step struct {
	Open *domain.DocumentRef `yaml:"open,omitempty"`
	Mode string              `yaml:"mode,omitempty"`
	// Watermark answers the prompt raised by switching to watermark mode.
	// Leaving it out cancels the prompt.
	Watermark      *string           `yaml:"watermark,omitempty"`
	Tap            *domain.TapEvent  `yaml:"tap,omitempty"`
	Drag           *domain.DragEvent `yaml:"drag,omitempty"`
	ClearWatermark bool              `yaml:"clearWatermark,omitempty"`
	Process        bool              `yaml:"process,omitempty"`
	Overlays       *OverlayQuery     `yaml:"overlays,omitempty"`
	Export         string            `yaml:"export,omitempty"`
}

type OverlayQuery struct {
	Page   int     `yaml:"page"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// Action names the single action a step performs.
func (s Step) Action() (string, error) {
	actions := make([]string, 0, 1)
	if s.Open != nil {
		actions = append(actions, "open")
	}
	if s.Mode != "" {
		actions = append(actions, "mode")
	}
	if s.Tap != nil {
		actions = append(actions, "tap")
	}
	if s.Drag != nil {
		actions = append(actions, "drag")
	}
	if s.ClearWatermark {
		actions = append(actions, "clearWatermark")
	}
	if s.Process {
		actions = append(actions, "process")
	}
	if s.Overlays != nil {
		actions = append(actions, "overlays")
	}
	if s.Export != "" {
		actions = append(actions, "export")
	}

	switch len(actions) {
	case 0:
		return "", errors.New("step has no action")
	case 1:
		if s.Watermark != nil && actions[0] != "mode" {
			return "", errors.New("watermark is only valid with mode")
		}
		return actions[0], nil
	default:
		return "", fmt.Errorf("step has several actions: %s", strings.Join(actions, ", "))
	}
}

// Parse decodes a script and checks that every step names one action.
func Parse(r io.Reader) (Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Script
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return Script{}, domain.WrapError(domain.ErrInvalidInput, "parse script", errors.New("script is empty"))
		}
		return Script{}, domain.WrapError(domain.ErrInvalidInput, "parse script", err)
	}
	for i, step := range s.Steps {
		if _, err := step.Action(); err != nil {
			return Script{}, domain.WrapError(domain.ErrInvalidInput, "parse script", fmt.Errorf("step %d: %w", i+1, err))
		}
	}
	return s, nil
}
