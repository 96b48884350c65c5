package ports

import (
	"context"

	"github.com/yallacatch/claim-engine/internal/contracts"
)

type DomainPublisher interface {
	PublishDomain(ctx context.Context, event contracts.EventEnvelope) error
}

type AnalyticsPublisher interface {
	PublishAnalytics(ctx context.Context, event contracts.EventEnvelope) error
}

type DLQPublisher interface {
	PublishDLQ(ctx context.Context, record contracts.DLQRecord) error
}

type EventConsumer interface {
	Receive(ctx context.Context) (*contracts.EventEnvelope, error)
}
