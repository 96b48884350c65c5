package events

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/yallacatch/claim-engine/internal/contracts"
)

type MemoryConsumer struct {
	mu     sync.Mutex
	events []contracts.EventEnvelope
}

func NewMemoryConsumer() *MemoryConsumer {
	return &MemoryConsumer{events: []contracts.EventEnvelope{}}
}

func (c *MemoryConsumer) Seed(events []contracts.EventEnvelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, events...)
}

func (c *MemoryConsumer) Receive(_ context.Context) (*contracts.EventEnvelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return nil, io.EOF
	}
	item := c.events[0]
	c.events = c.events[1:]
	return &item, nil
}

type MemoryDomainPublisher struct {
	mu     sync.Mutex
	events []contracts.EventEnvelope
}

func NewMemoryDomainPublisher() *MemoryDomainPublisher {
	return &MemoryDomainPublisher{events: []contracts.EventEnvelope{}}
}

func (p *MemoryDomainPublisher) PublishDomain(_ context.Context, event contracts.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Published returns a copy of everything published so far; used by tests.
func (p *MemoryDomainPublisher) Published() []contracts.EventEnvelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]contracts.EventEnvelope, len(p.events))
	copy(out, p.events)
	return out
}

type MemoryAnalyticsPublisher struct {
	mu     sync.Mutex
	events []contracts.EventEnvelope
}

func NewMemoryAnalyticsPublisher() *MemoryAnalyticsPublisher {
	return &MemoryAnalyticsPublisher{events: []contracts.EventEnvelope{}}
}

func (p *MemoryAnalyticsPublisher) PublishAnalytics(_ context.Context, event contracts.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// LoggingDLQPublisher records dead-lettered events in the service log; there
// is no real DLQ topic behind it.
type LoggingDLQPublisher struct {
	logger *slog.Logger
}

func NewLoggingDLQPublisher(logger *slog.Logger) *LoggingDLQPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingDLQPublisher{logger: logger}
}

func (p *LoggingDLQPublisher) PublishDLQ(ctx context.Context, record contracts.DLQRecord) error {
	p.logger.WarnContext(ctx, "event dead-lettered",
		"event_id", record.OriginalEvent.EventID,
		"event_type", record.OriginalEvent.EventType,
		"dlq_topic", record.DLQTopic,
		"trace_id", record.TraceID,
		"error", record.ErrorSummary)
	return nil
}
