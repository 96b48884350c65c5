package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/yallacatch/claim-engine/internal/application"
	"github.com/yallacatch/claim-engine/internal/contracts"
	"github.com/yallacatch/claim-engine/internal/domain"
	"github.com/yallacatch/claim-engine/internal/ports"
)

// Worker drains the outbox and consumes upstream domain events on a fixed
// poll interval. Failed events that are not transient go to the DLQ so the
// stream keeps moving.
type Worker struct {
	logger       *slog.Logger
	consumer     ports.EventConsumer
	dlqPublisher ports.DLQPublisher
	service      *application.Service
	pollInterval time.Duration
}

func NewWorker(logger *slog.Logger, consumer ports.EventConsumer, dlqPublisher ports.DLQPublisher, service *application.Service, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{logger: logger, consumer: consumer, dlqPublisher: dlqPublisher, service: service, pollInterval: pollInterval}
}

func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if w.service != nil {
				if err := w.service.FlushOutbox(ctx); err != nil {
					return err
				}
			}
			if w.consumer == nil || w.service == nil {
				continue
			}
			event, err := w.consumer.Receive(ctx)
			if err != nil {
				if errors.Is(err, io.EOF) {
					continue
				}
				return err
			}
			if event == nil {
				continue
			}
			if err := w.service.HandleDomainEvent(ctx, *event); err != nil {
				if errors.Is(err, domain.ErrUnsupportedEventType) || errors.Is(err, domain.ErrUnsupportedEventClass) {
					w.logger.WarnContext(ctx, "unsupported event dropped", "event_type", event.EventType, "event_id", event.EventID, "error", err)
					continue
				}
				w.logger.ErrorContext(ctx, "domain event failed", "event_type", event.EventType, "event_id", event.EventID, "error", err)
				if w.dlqPublisher != nil {
					now := time.Now().UTC()
					_ = w.dlqPublisher.PublishDLQ(ctx, contracts.DLQRecord{OriginalEvent: *event, ErrorSummary: err.Error(), RetryCount: 1, FirstSeenAt: now, LastErrorAt: now, SourceTopic: event.EventType, DLQTopic: "claim-engine.dlq", TraceID: event.TraceID})
				}
			}
		}
	}
}
