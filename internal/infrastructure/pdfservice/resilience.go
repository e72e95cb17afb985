package pdfservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
	"github.com/kirillkom/pdf-markup/internal/infrastructure/resilience"
)

// HTTPStatusError is a non-2xx answer from the processing service. Message is
// the text extracted from the response body.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Message    string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "pdfservice status error"
	}
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("pdfservice %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("pdfservice %s status: %s: %s", e.Operation, e.Status, e.Message)
}

// classifyServiceError retries network failures only. HTTP answers are never
// retried because the upload may already have been applied.
func classifyServiceError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: isServerSideStatus(statusErr.StatusCode),
		}
	}

	if isNetworkError(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

func isServerSideStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	default:
		return statusCode >= 500
	}
}

// toTransportError converts a failed call into the error surfaced to the user.
func toTransportError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTransport) {
		return err
	}

	var statusErr *HTTPStatusError
	switch {
	case errors.As(err, &statusErr):
		typed := &domain.Error{Kind: domain.ErrTransport, Message: statusErr.Message, Err: statusErr}
		if isServerSideStatus(statusErr.StatusCode) {
			return domain.WrapError(domain.ErrTemporary, operation, typed)
		}
		return typed
	case resilience.IsCircuitOpen(err):
		return domain.WrapError(domain.ErrTemporary, operation, &domain.Error{
			Kind:    domain.ErrTransport,
			Message: "processing service is temporarily unavailable",
			Err:     err,
		})
	case errors.Is(err, context.DeadlineExceeded):
		return domain.WrapError(domain.ErrTemporary, operation, &domain.Error{
			Kind:    domain.ErrTransport,
			Message: "processing service did not respond in time",
			Err:     err,
		})
	case errors.Is(err, context.Canceled):
		return &domain.Error{Kind: domain.ErrTransport, Message: "processing was cancelled", Err: err}
	case isNetworkError(err):
		return domain.WrapError(domain.ErrTemporary, operation, &domain.Error{
			Kind:    domain.ErrTransport,
			Message: "could not reach processing service",
			Err:     err,
		})
	default:
		return &domain.Error{Kind: domain.ErrTransport, Message: "processing request failed", Err: err}
	}
}
