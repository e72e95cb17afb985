package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSelection    = errors.New("no document selected")
	ErrPrecondition = errors.New("precondition failed")
	ErrTransport    = errors.New("transport failure")
	ErrGeometry     = errors.New("page geometry unavailable")
	ErrBusy         = errors.New("operation in progress")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrTemporary    = errors.New("temporary failure")
)

// Messages surfaced to the user when a mode's local state is incomplete.
const (
	MsgNoDocument       = "no document selected"
	MsgNotPDF           = "selected file is not a PDF"
	MsgNoCropArea       = "no crop area defined"
	MsgNoAnnotations    = "no annotations to apply"
	MsgNoRedactions     = "no redactions to apply"
	MsgNoWatermarkText  = "watermark text not set"
	MsgNoOperation      = "no operation selected"
	MsgOperationPending = "another operation is in progress"
)

// Error carries a human-readable message alongside its kind.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Kind != nil {
		return e.Kind.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// UserMessage returns the text to show for err. Typed errors yield their own
// message without operation prefixes.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) && typed.Message != "" {
		return typed.Message
	}
	return err.Error()
}
