package session

import (
	"context"
	"fmt"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
)

// WatermarkPrompter asks the user for watermark text. ok is false when the
// prompt was cancelled.
type WatermarkPrompter interface {
	PromptWatermark(ctx context.Context, current string) (text string, ok bool, err error)
}

// PromptAnswer is a prompter with a prepared reply, used by drivers that
// collect the text together with the mode change.
type PromptAnswer struct {
	Text      string
	Cancelled bool
}

func (a PromptAnswer) PromptWatermark(context.Context, string) (string, bool, error) {
	if a.Cancelled {
		return "", false, nil
	}
	return a.Text, true, nil
}

// ModeController tracks the active tool and the watermark text. Any mode may
// follow any other.
type ModeController struct {
	mode      domain.Mode
	watermark domain.WatermarkSpec
}

func NewModeController() *ModeController {
	return &ModeController{mode: domain.ModeView}
}

func (c *ModeController) Mode() domain.Mode {
	return c.mode
}

func (c *ModeController) Watermark() domain.WatermarkSpec {
	return c.watermark
}

// SetMode switches the tool. Entering watermark mode prompts for text; the
// mode stays watermark even when the prompt is cancelled or fails.
func (c *ModeController) SetMode(ctx context.Context, mode domain.Mode, prompter WatermarkPrompter) error {
	if !mode.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "set mode", fmt.Errorf("unknown mode %q", mode))
	}
	c.mode = mode
	if mode != domain.ModeWatermark || prompter == nil {
		return nil
	}

	text, ok, err := prompter.PromptWatermark(ctx, c.watermark.Text)
	if err != nil {
		return fmt.Errorf("prompt watermark text: %w", err)
	}
	if ok {
		c.watermark = domain.WatermarkSpec{Text: text}
	}
	return nil
}

// SetWatermark replaces the watermark text without touching the mode.
func (c *ModeController) SetWatermark(text string) {
	c.watermark = domain.WatermarkSpec{Text: text}
}

func (c *ModeController) ClearWatermark() {
	c.watermark = domain.WatermarkSpec{}
}

func (c *ModeController) resetMode() {
	c.mode = domain.ModeView
}
