package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
	"github.com/kirillkom/pdf-markup/internal/infrastructure/resilience"
)

const DefaultSubject = "pdfmarkup.document.processed"

type messageConn interface {
	Publish(subject string, data []byte) error
}

// Bus publishes and consumes document.processed events.
type Bus struct {
	conn     *nats.Conn
	pub      messageConn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	// ReconnectWait defaults to 2s. The client keeps reconnecting for about
	// two minutes before giving up.
	ReconnectWait      time.Duration
	ResilienceExecutor *resilience.Executor
	Logger             *slog.Logger
}

// NewWithOptions connects to url. The first connect is retried in the
// background, so a broker that starts after the service is not an error.
func NewWithOptions(url, subject string, options Options) (*Bus, error) {
	wait := options.ReconnectWait
	if wait <= 0 {
		wait = 2 * time.Second
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.Name("pdf-markup"),
		nats.Timeout(2*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.ReconnectWait(wait),
		nats.MaxReconnects(int((2*time.Minute)/wait)),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("nats_closed", "subject", subject)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	bus := newBus(conn, subject, options.ResilienceExecutor, logger)
	bus.conn = conn
	return bus, nil
}

func newBus(pub messageConn, subject string, executor *resilience.Executor, logger *slog.Logger) *Bus {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{pub: pub, subject: subject, executor: executor, logger: logger}
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *Bus) PublishDocumentProcessed(ctx context.Context, event domain.DocumentProcessedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal document processed event: %w", err)
	}

	call := func(_ context.Context) error {
		if err := b.pub.Publish(b.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if b.executor != nil {
		err = b.executor.Execute(ctx, "nats.publish", call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return publishError(err)
	}
	return nil
}

// SubscribeDocumentProcessed delivers events to handler until ctx is done,
// then drains the subscription.
func (b *Bus) SubscribeDocumentProcessed(ctx context.Context, group string, handler func(context.Context, domain.DocumentProcessedEvent) error) error {
	if b.conn == nil {
		return errors.New("nats subscribe: bus is not connected")
	}
	sub, err := b.conn.QueueSubscribe(b.subject, group, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		b.dispatch(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (b *Bus) dispatch(ctx context.Context, data []byte, handler func(context.Context, domain.DocumentProcessedEvent) error) {
	var event domain.DocumentProcessedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		b.logger.Warn("event_decode_failed", "subject", b.subject, "error", err)
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := handler(handlerCtx, event); err != nil {
		b.logger.Error("event_handler_failed", "run_id", event.RunID, "error", err)
	}
}
