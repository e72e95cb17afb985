package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
	"github.com/kirillkom/pdf-markup/internal/infrastructure/resilience"
)

// transientErrors are connection states the client recovers from on its own.
var transientErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
}

func isTransient(err error) bool {
	if resilience.IsCircuitOpen(err) {
		return true
	}
	for _, target := range transientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classifyPublishError retries transient connection errors. Cancellation is
// not held against the breaker.
func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	default:
		return resilience.ErrorClassification{Retryable: isTransient(err), RecordFailure: true}
	}
}

// publishError marks transient failures as ErrTemporary so callers can treat
// a missed event as recoverable.
func publishError(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) || !isTransient(err) {
		return err
	}
	return domain.WrapError(domain.ErrTemporary, "nats publish", err)
}
